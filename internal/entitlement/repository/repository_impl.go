package repository

import (
	"context"

	"github.com/atriumhq/atrium/internal/entitlement/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct {
	db *gorm.DB
}

func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

var dedupColumns = []clause.Column{
	{Name: "tenant_id"},
	{Name: "app_id"},
	{Name: "source"},
	{Name: "tier"},
	{Name: "valid_from"},
	{Name: "valid_to"},
}

func (r *repo) Upsert(ctx context.Context, entitlement *domain.Entitlement) (*domain.Entitlement, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   dedupColumns,
			DoUpdates: clause.AssignmentColumns([]string{"limits", "status", "updated_at"}),
		}).
		Create(entitlement).Error
	if err != nil {
		return nil, err
	}

	// Re-read so the caller sees the surviving row on conflict.
	var stored domain.Entitlement
	err = r.db.WithContext(ctx).
		Where("tenant_id = ? AND app_id = ? AND source = ? AND tier = ? AND valid_from = ? AND valid_to = ?",
			entitlement.TenantID,
			entitlement.AppID,
			entitlement.Source,
			entitlement.Tier,
			entitlement.ValidFrom,
			entitlement.ValidTo,
		).
		Take(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repo) FindByID(ctx context.Context, tenantID string, id int64) (*domain.Entitlement, error) {
	var row domain.Entitlement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repo) ListActive(ctx context.Context, tenantID, appID string) ([]domain.Entitlement, error) {
	var items []domain.Entitlement
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND app_id = ? AND status = ?", tenantID, appID, domain.StatusActive).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, tenantID, appID string) ([]domain.Entitlement, error) {
	stmt := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID)
	if appID != "" {
		stmt = stmt.Where("app_id = ?", appID)
	}

	var items []domain.Entitlement
	if err := stmt.Order("created_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) GetSelection(ctx context.Context, tenantID, appID string) (*domain.EntitlementSelection, error) {
	var row domain.EntitlementSelection
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

func (r *repo) UpsertSelection(ctx context.Context, selection *domain.EntitlementSelection) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "app_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"entitlement_id", "updated_at"}),
		}).
		Create(selection).Error
}

func (r *repo) DeleteSelection(ctx context.Context, tenantID, appID string) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND app_id = ?", tenantID, appID).
		Delete(&domain.EntitlementSelection{}).Error
}
