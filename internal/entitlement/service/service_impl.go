package service

import (
	"context"
	"strings"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/entitlement/domain"
	obsmetrics "github.com/atriumhq/atrium/internal/observability/metrics"
	"github.com/atriumhq/atrium/internal/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clk     clock.Clock
	repo    domain.Repository
	tol     domain.Tolerance
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("entitlement.service"),
		genID: p.GenID,
		clk:   p.Clock,
		repo:  p.Repo,
		tol: domain.Tolerance{
			StrictSkew: p.Cfg.StrictSkew,
			SoftGrace:  p.Cfg.SoftGrace,
		},
		metrics: p.Metrics,
	}
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) (*domain.Entitlement, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}

	appID := strings.TrimSpace(req.AppID)
	if appID == "" {
		return nil, domain.ErrInvalidAppID
	}
	if req.Source != domain.SourceOnline && req.Source != domain.SourceOffline {
		return nil, domain.ErrInvalidSource
	}
	tier, err := domain.ParseTier(req.Tier)
	if err != nil {
		return nil, err
	}
	if req.ValidFrom.IsZero() || req.ValidTo.IsZero() || !req.ValidTo.After(req.ValidFrom) {
		return nil, domain.ErrInvalidWindow
	}

	status := strings.TrimSpace(req.Status)
	if status == "" {
		status = domain.StatusActive
	}

	now := s.clk.Now()
	record := &domain.Entitlement{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		AppID:     appID,
		Source:    req.Source,
		Tier:      tier,
		ValidFrom: req.ValidFrom.UTC(),
		ValidTo:   req.ValidTo.UTC(),
		Limits:    datatypes.JSONMap(req.Limits),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}

	stored, err := s.repo.Upsert(ctx, record)
	if err != nil {
		return nil, err
	}

	s.log.Info("entitlement upserted",
		zap.String("tenant_id", tenantID),
		zap.String("app_id", appID),
		zap.String("source", string(req.Source)),
		zap.String("tier", string(tier)),
	)
	return stored, nil
}

func (s *Service) List(ctx context.Context, appID string) ([]domain.Entitlement, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.List(ctx, tenantID, strings.TrimSpace(appID))
}

func (s *Service) Select(ctx context.Context, appID string, entitlementID int64) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidTenant
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return domain.ErrInvalidAppID
	}

	target, err := s.repo.FindByID(ctx, tenantID, entitlementID)
	if err != nil {
		return err
	}
	if target == nil || target.AppID != appID {
		return domain.ErrEntitlementMissing
	}

	now := s.clk.Now()
	return s.repo.UpsertSelection(ctx, &domain.EntitlementSelection{
		ID:            s.genID.Generate(),
		TenantID:      tenantID,
		AppID:         appID,
		EntitlementID: target.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
}

func (s *Service) ClearSelection(ctx context.Context, appID string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return domain.ErrInvalidTenant
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return domain.ErrInvalidAppID
	}
	return s.repo.DeleteSelection(ctx, tenantID, appID)
}

// Resolve returns the single effective entitlement for (tenant, app):
// a usable selection override first, then the best strict-window
// candidate, then the best soft-window candidate with a warning.
func (s *Service) Resolve(ctx context.Context, appID string) (*domain.Resolution, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidTenant
	}
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, domain.ErrInvalidAppID
	}

	now := s.clk.Now()

	if resolution, err := s.resolveSelection(ctx, tenantID, appID, now); err != nil {
		return nil, err
	} else if resolution != nil {
		return resolution, nil
	}

	candidates, err := s.repo.ListActive(ctx, tenantID, appID)
	if err != nil {
		return nil, err
	}

	if best := pickBest(candidates, now, s.tol, domain.WindowStrict); best != nil {
		return &domain.Resolution{Entitlement: best}, nil
	}
	if best := pickBest(candidates, now, s.tol, domain.WindowSoft); best != nil {
		s.warnSoftGrace(ctx, tenantID, appID, best, "resolution")
		return &domain.Resolution{Entitlement: best, SoftGrace: true}, nil
	}

	return nil, domain.ErrNoEntitlement
}

// resolveSelection honors a tenant's explicit override while it is
// not fully invalid. An expired override falls through to automatic
// resolution rather than blocking it.
func (s *Service) resolveSelection(ctx context.Context, tenantID, appID string, now time.Time) (*domain.Resolution, error) {
	selection, err := s.repo.GetSelection(ctx, tenantID, appID)
	if err != nil || selection == nil {
		return nil, err
	}

	selected, err := s.repo.FindByID(ctx, tenantID, int64(selection.EntitlementID))
	if err != nil {
		return nil, err
	}
	if selected == nil || selected.Status != domain.StatusActive {
		return nil, nil
	}

	switch selected.Window(now, s.tol) {
	case domain.WindowStrict:
		return &domain.Resolution{Entitlement: selected, Selected: true}, nil
	case domain.WindowSoft:
		s.warnSoftGrace(ctx, tenantID, appID, selected, "selection")
		return &domain.Resolution{Entitlement: selected, SoftGrace: true, Selected: true}, nil
	default:
		return nil, nil
	}
}

func (s *Service) warnSoftGrace(ctx context.Context, tenantID, appID string, entitlement *domain.Entitlement, source string) {
	s.log.Warn("entitlement resolved under soft grace",
		zap.String("tenant_id", tenantID),
		zap.String("app_id", appID),
		zap.Int64("entitlement_id", int64(entitlement.ID)),
		zap.Time("valid_to", entitlement.ValidTo),
	)
	s.metrics.RecordSoftGraceWarning(ctx, source)
}

func pickBest(candidates []domain.Entitlement, now time.Time, tol domain.Tolerance, minimum domain.WindowState) *domain.Entitlement {
	var best *domain.Entitlement
	for i := range candidates {
		candidate := &candidates[i]
		if candidate.Window(now, tol) < minimum {
			continue
		}
		if candidate.Better(best) {
			best = candidate
		}
	}
	return best
}
