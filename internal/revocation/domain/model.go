package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// RevocationType classifies what a local revocation entry blocks.
type RevocationType string

const (
	TypeAuthorID   RevocationType = "author_id"
	TypeLicenseJTI RevocationType = "license_jti"
	TypeAuthorKID  RevocationType = "author_kid"
)

var ErrInvalidRevocationType = errors.New("invalid revocation type")

// ParseRevocationType validates a raw revocation type value.
func ParseRevocationType(raw string) (RevocationType, error) {
	switch RevocationType(raw) {
	case TypeAuthorID, TypeLicenseJTI, TypeAuthorKID:
		return RevocationType(raw), nil
	default:
		return "", ErrInvalidRevocationType
	}
}

// LocalRevocation is one entry in the append-only local blocklist.
type LocalRevocation struct {
	ID        snowflake.ID   `gorm:"primaryKey"`
	Type      RevocationType `gorm:"column:revocation_type;type:text;not null;index:ux_local_revocations_type_value,unique,priority:1"`
	Value     string         `gorm:"type:text;not null;index:ux_local_revocations_type_value,unique,priority:2"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (LocalRevocation) TableName() string { return "local_revocations" }
