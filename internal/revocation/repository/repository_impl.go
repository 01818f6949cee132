package repository

import (
	"context"

	"github.com/atriumhq/atrium/internal/revocation/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Add(ctx context.Context, entry *domain.LocalRevocation) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "revocation_type"}, {Name: "value"}},
			DoNothing: true,
		}).
		Create(entry).Error
}

func (r *repo) List(ctx context.Context) ([]domain.LocalRevocation, error) {
	var items []domain.LocalRevocation
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Exists(ctx context.Context, pairs [][2]string) (bool, error) {
	if len(pairs) == 0 {
		return false, nil
	}

	stmt := r.db.WithContext(ctx).Model(&domain.LocalRevocation{})
	cond := r.db.Session(&gorm.Session{NewDB: true})
	for _, pair := range pairs {
		cond = cond.Or("revocation_type = ? AND value = ?", pair[0], pair[1])
	}

	var count int64
	if err := stmt.Where(cond).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
