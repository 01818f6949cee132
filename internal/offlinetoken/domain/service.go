package domain

import (
	"context"

	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
)

// IngestResult reports a successful offline token ingestion.
type IngestResult struct {
	Entitlement *entitlementdomain.Entitlement
	// TimeWarning is set when the grant was outside the strict
	// validity window at ingestion time.
	TimeWarning bool
}

// Repository appends audit records.
type Repository interface {
	Append(ctx context.Context, record *OfflineTokenRecord) error
	List(ctx context.Context, tenantID, appID string) ([]OfflineTokenRecord, error)
}

// Service verifies self-contained offline grant tokens against the
// configured key ring and persists both the entitlement and an audit
// record for every attempt.
type Service interface {
	Ingest(ctx context.Context, token string) (*IngestResult, error)
	ListRecords(ctx context.Context, appID string) ([]OfflineTokenRecord, error)
}
