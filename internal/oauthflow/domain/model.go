package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	licensedomain "github.com/atriumhq/atrium/internal/license/domain"
	"github.com/bwmarrin/snowflake"
)

var (
	// ErrFlowStateNotFound covers unknown, expired, and
	// wrong-tenant state tokens alike; callers learn nothing about
	// which.
	ErrFlowStateNotFound  = errors.New("oauth flow state not found or expired")
	ErrAppNotAuthorScoped = errors.New("app id must be author-scoped")
	ErrLicenseModeInvalid = errors.New("unknown license mode")
)

// ErrFlowFailed is the opaque class for external-dependency
// failures; the failing step travels in the FlowError wrapper.
var ErrFlowFailed = errors.New("oauth flow failed")

// FlowError marks which step of the flow broke without exposing the
// issuer's response to callers.
type FlowError struct {
	Step  string
	Cause error
}

func (e *FlowError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("oauth flow failed during %s", e.Step)
	}
	return fmt.Sprintf("oauth flow failed during %s: %v", e.Step, e.Cause)
}

func (e *FlowError) Unwrap() error { return e.Cause }

func (e *FlowError) Is(target error) bool { return target == ErrFlowFailed }

// OAuthConnection caches a dynamic client registration so it runs at
// most once per (issuer, app) pair. Registrations are shared across
// tenants.
type OAuthConnection struct {
	ID        snowflake.ID `gorm:"primaryKey"`
	TenantID  string       `gorm:"column:tenant_id;type:text;not null"`
	IssuerURL string       `gorm:"column:issuer_url;type:text;not null;uniqueIndex:ux_oauth_connections_issuer_app,priority:1"`
	AppID     string       `gorm:"column:app_id;type:text;not null;uniqueIndex:ux_oauth_connections_issuer_app,priority:2"`

	ClientID     string `gorm:"column:client_id;type:text;not null;index:ux_oauth_connections_issuer_client,unique,priority:2"`
	ClientSecret string `gorm:"column:client_secret;type:text"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OAuthConnection) TableName() string { return "oauth_connections" }

// StartRequest begins an acquisition flow against an external issuer.
type StartRequest struct {
	IssuerURL   string `json:"issuer_url"`
	AppID       string `json:"app_id"`
	LicenseMode string `json:"license_mode"`
	AutoSelect  bool   `json:"auto_select"`
}

// StartResult carries the URL the caller must send the operator to.
type StartResult struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CompleteResult reports the imported license.
type CompleteResult struct {
	License  *licensedomain.TenantLicense `json:"license"`
	Selected bool                         `json:"selected"`
}

// Repository caches client registrations.
type Repository interface {
	FindConnection(ctx context.Context, issuerURL, appID string) (*OAuthConnection, error)
	SaveConnection(ctx context.Context, connection *OAuthConnection) error
}

// Service runs the two-phase acquisition protocol.
type Service interface {
	Start(ctx context.Context, req StartRequest) (*StartResult, error)
	Complete(ctx context.Context, code, stateToken string) (*CompleteResult, error)
}
