package repository

import (
	"context"

	"github.com/atriumhq/atrium/internal/offlinetoken/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Append(ctx context.Context, record *domain.OfflineTokenRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repo) List(ctx context.Context, tenantID, appID string) ([]domain.OfflineTokenRecord, error) {
	stmt := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID)
	if appID != "" {
		stmt = stmt.Where("app_id = ?", appID)
	}

	var items []domain.OfflineTokenRecord
	if err := stmt.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
