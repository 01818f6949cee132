package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// License lifecycle statuses as stored per tenant.
const (
	StatusActive   = "active"
	StatusInvalid  = "invalid"
	StatusExpired  = "expired"
	StatusRevoked  = "revoked"
	StatusDisabled = "disabled"
)

// TenantLicense is a chain-verified license assertion kept alongside
// its author certificate. jti is globally unique: re-importing the
// same assertion refreshes the stored row in place.
type TenantLicense struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID string       `gorm:"column:tenant_id;type:text;not null;index:ix_tenant_licenses_tenant_app,priority:1"`
	AuthorID string       `gorm:"column:author_id;type:text;not null"`
	AppID    string       `gorm:"column:app_id;type:text;not null;index:ix_tenant_licenses_tenant_app,priority:2"`
	JTI      string       `gorm:"column:jti;type:text;not null;uniqueIndex:ux_tenant_licenses_jti"`

	LicenseMode string         `gorm:"column:license_mode;type:text;not null"`
	Audience    datatypes.JSON `gorm:"type:jsonb"`

	LicenseAssertion  string `gorm:"column:license_assertion;type:text;not null"`
	AuthorCertificate string `gorm:"column:author_certificate;type:text"`
	AuthorKeyID       string `gorm:"column:author_key_id;type:text;not null;default:''"`

	Status    string    `gorm:"type:text;not null"`
	ValidFrom time.Time `gorm:"column:valid_from;not null"`
	ValidTo   time.Time `gorm:"column:valid_to;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TenantLicense) TableName() string { return "tenant_licenses" }

// LicenseSelection pins one license per (tenant, app). The row is
// removed together with the license it references.
type LicenseSelection struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID string       `gorm:"column:tenant_id;type:text;not null;index:ux_license_selections_tenant_app,unique,priority:1"`
	AppID    string       `gorm:"column:app_id;type:text;not null;index:ux_license_selections_tenant_app,unique,priority:2"`
	JTI      string       `gorm:"column:jti;type:text;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (LicenseSelection) TableName() string { return "license_selections" }
