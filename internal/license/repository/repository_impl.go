package repository

import (
	"context"

	"github.com/atriumhq/atrium/internal/license/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Upsert(ctx context.Context, license *domain.TenantLicense) (*domain.TenantLicense, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "jti"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"tenant_id", "author_id", "app_id", "license_mode", "audience",
				"license_assertion", "author_certificate", "author_key_id",
				"status", "valid_from", "valid_to", "updated_at",
			}),
		}).
		Create(license).Error
	if err != nil {
		return nil, err
	}

	var stored domain.TenantLicense
	if err := r.db.WithContext(ctx).Where("jti = ?", license.JTI).Take(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repo) FindByJTI(ctx context.Context, tenantID, jti string) (*domain.TenantLicense, error) {
	var row domain.TenantLicense
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND jti = ?", tenantID, jti).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) List(ctx context.Context, tenantID, appID string) ([]domain.TenantLicense, error) {
	stmt := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if appID != "" {
		stmt = stmt.Where("app_id = ?", appID)
	}

	var items []domain.TenantLicense
	if err := stmt.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) Delete(ctx context.Context, tenantID, jti string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("tenant_id = ? AND jti = ?", tenantID, jti).
			Delete(&domain.LicenseSelection{}).Error; err != nil {
			return err
		}

		result := tx.
			Where("tenant_id = ? AND jti = ?", tenantID, jti).
			Delete(&domain.TenantLicense{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrLicenseNotFound
		}
		return nil
	})
}

func (r *repo) GetSelection(ctx context.Context, tenantID, appID string) (*domain.LicenseSelection, error) {
	var row domain.LicenseSelection
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND app_id = ?", tenantID, appID).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) UpsertSelection(ctx context.Context, selection *domain.LicenseSelection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "app_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"jti", "updated_at"}),
		}).
		Create(selection).Error
}

func (r *repo) DeleteSelection(ctx context.Context, tenantID, appID string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND app_id = ?", tenantID, appID).
		Delete(&domain.LicenseSelection{}).Error
}
