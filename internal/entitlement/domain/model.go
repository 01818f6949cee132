package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Source records how an entitlement entered the store.
type Source string

const (
	SourceOnline  Source = "online"
	SourceOffline Source = "offline"
)

// Tier is an ordered capability level.
type Tier string

const (
	TierFree       Tier = "free"
	TierTrial      Tier = "trial"
	TierStandard   Tier = "standard"
	TierEnterprise Tier = "enterprise"
)

var tierRank = map[Tier]int{
	TierFree:       0,
	TierTrial:      1,
	TierStandard:   2,
	TierEnterprise: 3,
}

var ErrUnknownTier = errors.New("unknown tier")

// ParseTier validates a raw tier value.
func ParseTier(raw string) (Tier, error) {
	tier := Tier(raw)
	if _, ok := tierRank[tier]; !ok {
		return "", ErrUnknownTier
	}
	return tier, nil
}

// Rank returns the tier's position in the ordering, -1 if unknown.
func (t Tier) Rank() int {
	rank, ok := tierRank[t]
	if !ok {
		return -1
	}
	return rank
}

// StatusActive is the only status an entitlement resolves under.
const StatusActive = "active"

// Entitlement is a capability grant independent of signature chains.
// (tenant_id, app_id, source, tier, valid_from, valid_to) is a
// natural dedup key: re-ingesting identical parameters updates limits
// and status in place.
type Entitlement struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID string       `gorm:"column:tenant_id;type:text;not null;index:ux_entitlements_dedup,unique,priority:1"`
	AppID    string       `gorm:"column:app_id;type:text;not null;index:ux_entitlements_dedup,unique,priority:2"`
	Source   Source       `gorm:"type:text;not null;index:ux_entitlements_dedup,unique,priority:3"`
	Tier     Tier         `gorm:"type:text;not null;index:ux_entitlements_dedup,unique,priority:4"`

	ValidFrom time.Time         `gorm:"column:valid_from;not null;index:ux_entitlements_dedup,unique,priority:5"`
	ValidTo   time.Time         `gorm:"column:valid_to;not null;index:ux_entitlements_dedup,unique,priority:6"`
	Limits    datatypes.JSONMap `gorm:"type:jsonb"`
	Status    string            `gorm:"type:text;not null;default:'active'"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Entitlement) TableName() string { return "entitlements" }

// EntitlementSelection pins one entitlement per (tenant, app),
// overriding automatic resolution while it remains usable.
type EntitlementSelection struct {
	ID            snowflake.ID `gorm:"primaryKey"`
	TenantID      string       `gorm:"column:tenant_id;type:text;not null;index:ux_entitlement_selections_tenant_app,unique,priority:1"`
	AppID         string       `gorm:"column:app_id;type:text;not null;index:ux_entitlement_selections_tenant_app,unique,priority:2"`
	EntitlementID snowflake.ID `gorm:"column:entitlement_id;not null"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (EntitlementSelection) TableName() string { return "entitlement_selections" }
