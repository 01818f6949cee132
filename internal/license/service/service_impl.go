package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	"github.com/atriumhq/atrium/internal/license/domain"
	obsmetrics "github.com/atriumhq/atrium/internal/observability/metrics"
	"github.com/atriumhq/atrium/internal/tenantctx"
	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Repo     domain.Repository
	Verifier *trustchain.Verifier
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	clk      clock.Clock
	repo     domain.Repository
	verifier *trustchain.Verifier
	metrics  *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("license.service"),
		genID:    p.GenID,
		clk:      p.Clock,
		repo:     p.Repo,
		verifier: p.Verifier,
		metrics:  p.Metrics,
	}
}

// Import verifies the assertion against its certificate and stores
// the result keyed by jti. Re-importing a known jti refreshes the
// stored row, including its derived status.
func (s *Service) Import(ctx context.Context, assertion, certificate string) (*domain.TenantLicense, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}

	verified, err := s.verifier.Verify(ctx, tenantID, assertion, certificate)
	if err != nil {
		s.metrics.RecordLicenseVerification(ctx, "error")
		return nil, err
	}
	s.metrics.RecordLicenseVerification(ctx, string(verified.Status))

	row, err := s.toRecord(tenantID, assertion, certificate, verified)
	if err != nil {
		return nil, err
	}

	stored, err := s.repo.Upsert(ctx, row)
	if err != nil {
		return nil, err
	}

	s.log.Info("license imported",
		zap.String("tenant_id", tenantID),
		zap.String("app_id", stored.AppID),
		zap.String("jti", stored.JTI),
		zap.String("status", stored.Status),
	)
	return stored, nil
}

// Validate runs the same chain verification as Import without
// touching the store.
func (s *Service) Validate(ctx context.Context, assertion, certificate string) (*domain.ValidationReport, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}

	verified, err := s.verifier.Verify(ctx, tenantID, assertion, certificate)
	if err != nil {
		if verifyErr, ok := trustchain.AsVerifyError(err); ok {
			s.metrics.RecordLicenseVerification(ctx, "error")
			return &domain.ValidationReport{
				Valid:         false,
				ChainVerified: false,
				Errors:        []string{verifyErr.Error()},
			}, nil
		}
		return nil, err
	}
	s.metrics.RecordLicenseVerification(ctx, string(verified.Status))

	report := &domain.ValidationReport{
		Valid:         verified.Status == trustchain.StatusActive,
		ChainVerified: true,
		Status:        string(verified.Status),
		Claims:        &verified.Claims,
	}
	if !report.Valid {
		report.Errors = []string{"license status is " + report.Status}
	}
	return report, nil
}

func (s *Service) List(ctx context.Context, appID string) ([]domain.TenantLicense, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}
	return s.repo.List(ctx, tenantID, strings.TrimSpace(appID))
}

func (s *Service) Delete(ctx context.Context, jti string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return entitlementdomain.ErrInvalidTenant
	}
	return s.repo.Delete(ctx, tenantID, jti)
}

// Select pins a license for the app. Only active licenses can be
// selected; a pinned license that later degrades is surfaced by
// HasSelectedActive, not silently unpinned.
func (s *Service) Select(ctx context.Context, appID, jti string) error {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return entitlementdomain.ErrInvalidTenant
	}

	license, err := s.repo.FindByJTI(ctx, tenantID, jti)
	if err != nil {
		return err
	}
	if license == nil || license.AppID != appID {
		return domain.ErrLicenseNotFound
	}
	if license.Status != domain.StatusActive {
		return domain.ErrLicenseNotActive
	}

	return s.repo.UpsertSelection(ctx, &domain.LicenseSelection{
		ID:       s.genID.Generate(),
		TenantID: tenantID,
		AppID:    appID,
		JTI:      jti,
	})
}

func (s *Service) GetSelected(ctx context.Context, appID string) (*domain.TenantLicense, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}

	selection, err := s.repo.GetSelection(ctx, tenantID, appID)
	if err != nil {
		return nil, err
	}
	if selection == nil {
		return nil, domain.ErrNoSelection
	}

	license, err := s.repo.FindByJTI(ctx, tenantID, selection.JTI)
	if err != nil {
		return nil, err
	}
	if license == nil {
		return nil, domain.ErrLicenseNotFound
	}
	return license, nil
}

func (s *Service) HasSelectedActive(ctx context.Context, appID string) (bool, error) {
	license, err := s.GetSelected(ctx, appID)
	if err == domain.ErrNoSelection || err == domain.ErrLicenseNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return license.Status == domain.StatusActive, nil
}

func (s *Service) toRecord(tenantID, assertion, certificate string, verified *trustchain.VerifiedLicense) (*domain.TenantLicense, error) {
	audience, err := json.Marshal([]string(verified.Claims.Audience))
	if err != nil {
		return nil, err
	}

	validFrom := time.Time{}
	if verified.Claims.NotBefore != nil {
		validFrom = verified.Claims.NotBefore.Time
	} else if verified.Claims.IssuedAt != nil {
		validFrom = verified.Claims.IssuedAt.Time
	}

	return &domain.TenantLicense{
		ID:                s.genID.Generate(),
		TenantID:          tenantID,
		AuthorID:          verified.AuthorID,
		AppID:             verified.Claims.AppID,
		JTI:               verified.Claims.ID,
		LicenseMode:       verified.Claims.LicenseMode,
		Audience:          datatypes.JSON(audience),
		LicenseAssertion:  assertion,
		AuthorCertificate: certificate,
		AuthorKeyID:       verified.KeyID,
		Status:            string(verified.Status),
		ValidFrom:         validFrom,
		ValidTo:           verified.Claims.ExpiresAt.Time,
	}, nil
}
