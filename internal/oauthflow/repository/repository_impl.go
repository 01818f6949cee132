package repository

import (
	"context"

	"github.com/atriumhq/atrium/internal/oauthflow/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) FindConnection(ctx context.Context, issuerURL, appID string) (*domain.OAuthConnection, error) {
	var row domain.OAuthConnection
	err := r.db.WithContext(ctx).
		Where("issuer_url = ? AND app_id = ?", issuerURL, appID).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) SaveConnection(ctx context.Context, connection *domain.OAuthConnection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "issuer_url"}, {Name: "app_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"client_id", "client_secret", "updated_at"}),
		}).
		Create(connection).Error
}
