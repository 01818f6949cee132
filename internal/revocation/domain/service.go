package domain

import "context"

// Repository persists local revocation entries.
type Repository interface {
	Add(ctx context.Context, entry *LocalRevocation) error
	List(ctx context.Context) ([]LocalRevocation, error)
	Exists(ctx context.Context, pairs [][2]string) (bool, error)
}

// Service is the revocation check consulted on every chain
// verification. It is deliberately uncached: a revocation is a
// security control and must take effect immediately.
type Service interface {
	Add(ctx context.Context, revocationType RevocationType, value string) error
	List(ctx context.Context) ([]LocalRevocation, error)
	IsRevoked(ctx context.Context, authorID, authorKID, jti string) (bool, error)
}
