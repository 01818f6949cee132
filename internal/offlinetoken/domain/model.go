package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Verification results recorded on the audit trail.
const (
	ResultOK          = "ok"
	ResultTimeWarning = "ok_with_time_warning"
	// ResultErrorPrefix prefixes failed verifications; the reason
	// follows the colon.
	ResultErrorPrefix = "error:"
)

// Fallback audit values when the token could not be read far enough
// to know the real ones.
const (
	UnknownApp = "unknown_app"
	UnknownKID = "unknown_kid"
)

// ErrVerificationFailed is the single failure surfaced to callers.
// The precise cause is preserved only in the audit record so
// verification internals do not leak.
var ErrVerificationFailed = errors.New("offline token verification failed")

// OfflineTokenRecord is the append-only audit trail of every offline
// token verification attempt. Rows are never updated or deleted.
type OfflineTokenRecord struct {
	ID       snowflake.ID `gorm:"primaryKey"`
	TenantID string       `gorm:"column:tenant_id;type:text;not null"`
	AppID    string       `gorm:"column:app_id;type:text;not null"`
	KeyID    string       `gorm:"column:key_id;type:text;not null"`
	// TokenHash is a sha256 of the raw token; the token itself is
	// never stored.
	TokenHash          string            `gorm:"column:token_hash;type:text;not null"`
	Claims             datatypes.JSONMap `gorm:"type:jsonb"`
	VerificationResult string            `gorm:"column:verification_result;type:text;not null"`
	CreatedAt          time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (OfflineTokenRecord) TableName() string { return "offline_token_records" }
