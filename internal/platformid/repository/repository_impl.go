package repository

import (
	"context"

	"github.com/atriumhq/atrium/internal/platformid/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Get(ctx context.Context) (*domain.PlatformInstance, error) {
	var row domain.PlatformInstance
	err := r.db.WithContext(ctx).
		Where("id = ?", 1).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) EnsureCreated(ctx context.Context, instanceID string) error {
	row := domain.PlatformInstance{ID: 1, InstanceID: instanceID}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(&row).Error
}
