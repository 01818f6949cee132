package domain

import (
	"context"
	"errors"

	"github.com/atriumhq/atrium/internal/trustchain"
)

var (
	ErrLicenseNotFound  = errors.New("license not found")
	ErrLicenseNotActive = errors.New("license is not active")
	ErrNoSelection      = errors.New("no license selected")
)

// ValidationReport is the read-only outcome of validating an
// assertion without storing it. ChainVerified distinguishes a
// signature/shape failure from a license that verified but derived a
// non-active status.
type ValidationReport struct {
	Valid         bool                      `json:"valid"`
	ChainVerified bool                      `json:"chain_verified"`
	Status        string                    `json:"status,omitempty"`
	Claims        *trustchain.LicenseClaims `json:"claims,omitempty"`
	Errors        []string                  `json:"errors,omitempty"`
}

// Repository persists licenses and selection pins.
type Repository interface {
	Upsert(ctx context.Context, license *TenantLicense) (*TenantLicense, error)
	FindByJTI(ctx context.Context, tenantID, jti string) (*TenantLicense, error)
	List(ctx context.Context, tenantID, appID string) ([]TenantLicense, error)
	// Delete removes the license and any selection that references it
	// in a single transaction.
	Delete(ctx context.Context, tenantID, jti string) error

	GetSelection(ctx context.Context, tenantID, appID string) (*LicenseSelection, error)
	UpsertSelection(ctx context.Context, selection *LicenseSelection) error
	DeleteSelection(ctx context.Context, tenantID, appID string) error
}

// Service imports, validates, and selects chain-verified licenses.
type Service interface {
	Import(ctx context.Context, assertion, certificate string) (*TenantLicense, error)
	Validate(ctx context.Context, assertion, certificate string) (*ValidationReport, error)
	List(ctx context.Context, appID string) ([]TenantLicense, error)
	Delete(ctx context.Context, jti string) error

	Select(ctx context.Context, appID, jti string) error
	GetSelected(ctx context.Context, appID string) (*TenantLicense, error)
	HasSelectedActive(ctx context.Context, appID string) (bool, error)
}
