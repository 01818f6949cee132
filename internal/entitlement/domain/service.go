package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidTenant      = errors.New("invalid tenant")
	ErrInvalidAppID       = errors.New("invalid app id")
	ErrInvalidSource      = errors.New("invalid entitlement source")
	ErrInvalidWindow      = errors.New("invalid validity window")
	ErrNoEntitlement      = errors.New("no effective entitlement")
	ErrEntitlementMissing = errors.New("entitlement not found")
)

// UpsertRequest creates or refreshes a directly-issued grant.
type UpsertRequest struct {
	AppID     string
	Source    Source
	Tier      string
	ValidFrom time.Time
	ValidTo   time.Time
	Limits    map[string]interface{}
	Status    string
}

// Resolution is the outcome of resolving the effective entitlement.
type Resolution struct {
	Entitlement *Entitlement
	// SoftGrace is set when the grant was only usable under the soft
	// grace tolerance; a warning, not an error.
	SoftGrace bool
	// Selected is set when a tenant selection override decided the
	// outcome.
	Selected bool
}

// Repository persists entitlements and selection overrides.
type Repository interface {
	Upsert(ctx context.Context, entitlement *Entitlement) (*Entitlement, error)
	FindByID(ctx context.Context, tenantID string, id int64) (*Entitlement, error)
	ListActive(ctx context.Context, tenantID, appID string) ([]Entitlement, error)
	List(ctx context.Context, tenantID, appID string) ([]Entitlement, error)

	GetSelection(ctx context.Context, tenantID, appID string) (*EntitlementSelection, error)
	UpsertSelection(ctx context.Context, selection *EntitlementSelection) error
	DeleteSelection(ctx context.Context, tenantID, appID string) error
}

// Service holds directly-issued grants and resolves the single
// effective one under strict and soft time windows.
type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*Entitlement, error)
	List(ctx context.Context, appID string) ([]Entitlement, error)
	Select(ctx context.Context, appID string, entitlementID int64) error
	ClearSelection(ctx context.Context, appID string) error
	Resolve(ctx context.Context, appID string) (*Resolution, error)
}
