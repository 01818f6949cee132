package domain

import "context"

// Repository persists the platform instance row.
type Repository interface {
	Get(ctx context.Context) (*PlatformInstance, error)
	// EnsureCreated inserts the row if absent. Concurrent creators
	// converge on whichever row was stored first.
	EnsureCreated(ctx context.Context, instanceID string) error
}

// Service answers this installation's stable identity.
type Service interface {
	// InstanceID returns the cached instance identifier, lazily
	// provisioning it on first use.
	InstanceID(ctx context.Context) (string, error)
	// AudienceID returns the instance id rendered as an audience value.
	AudienceID(ctx context.Context) (string, error)
}
