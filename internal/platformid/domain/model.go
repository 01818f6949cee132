package domain

import "time"

// AudiencePrefix marks audience values derived from the platform
// instance id so they cannot be forged from a bare identifier.
const AudiencePrefix = "atrium-instance:"

// PlatformInstance is the single persisted row holding this
// installation's stable identifier.
type PlatformInstance struct {
	ID         int       `gorm:"primaryKey;column:id"`
	InstanceID string    `gorm:"column:instance_id;type:text;not null"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (PlatformInstance) TableName() string { return "platform_instance" }
