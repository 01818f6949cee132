package service

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	obsmetrics "github.com/atriumhq/atrium/internal/observability/metrics"
	"github.com/atriumhq/atrium/internal/offlinetoken/domain"
	platformdomain "github.com/atriumhq/atrium/internal/platformid/domain"
	"github.com/atriumhq/atrium/internal/tenantctx"
	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type offlineClaims struct {
	TenantID  string                 `json:"tenant_id"`
	AppID     string                 `json:"app_id"`
	Tier      string                 `json:"tier"`
	ValidFrom *jwt.NumericDate       `json:"valid_from"`
	ValidTo   *jwt.NumericDate       `json:"valid_to"`
	Limits    map[string]interface{} `json:"limits"`
	// KeyID is the payload fallback for tokens whose header omits kid.
	KeyID string `json:"kid"`
	jwt.RegisteredClaims
}

type Params struct {
	fx.In

	Cfg          config.Config
	Log          *zap.Logger
	GenID        *snowflake.Node
	Clock        clock.Clock
	Repo         domain.Repository
	Entitlements entitlementdomain.Service
	Platform     platformdomain.Service
	Metrics      *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log          *zap.Logger
	genID        *snowflake.Node
	clk          clock.Clock
	repo         domain.Repository
	entitlements entitlementdomain.Service
	platform     platformdomain.Service
	keyRing      trustchain.KeySet
	tol          entitlementdomain.Tolerance
	metrics      *obsmetrics.Metrics
}

func New(p Params) (domain.Service, error) {
	keyRing, err := trustchain.ParseKeySet(p.Cfg.OfflineKeys)
	if err != nil {
		return nil, fmt.Errorf("offline key ring: %w", err)
	}
	return &Service{
		log:          p.Log.Named("offlinetoken.service"),
		genID:        p.GenID,
		clk:          p.Clock,
		repo:         p.Repo,
		entitlements: p.Entitlements,
		platform:     p.Platform,
		keyRing:      keyRing,
		tol: entitlementdomain.Tolerance{
			StrictSkew: p.Cfg.StrictSkew,
			SoftGrace:  p.Cfg.SoftGrace,
		},
		metrics: p.Metrics,
	}, nil
}

// Ingest verifies a self-contained offline grant token, upserts the
// resulting entitlement, and appends an audit record for the attempt
// whether it succeeded or not.
func (s *Service) Ingest(ctx context.Context, token string) (*domain.IngestResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}

	result, verifyErr := s.verify(ctx, tenantID, token)
	if verifyErr != nil {
		s.recordAttempt(ctx, tenantID, verifyErr.appID, verifyErr.keyID, token, verifyErr.snapshot,
			domain.ResultErrorPrefix+verifyErr.reason)
		s.metrics.RecordOfflineIngest(ctx, "error")
		s.log.Warn("offline token rejected",
			zap.String("tenant_id", tenantID),
			zap.String("reason", verifyErr.reason),
		)
		return nil, domain.ErrVerificationFailed
	}

	stored, err := s.entitlements.Upsert(ctx, entitlementdomain.UpsertRequest{
		AppID:     result.claims.AppID,
		Source:    entitlementdomain.SourceOffline,
		Tier:      result.claims.Tier,
		ValidFrom: result.claims.ValidFrom.Time,
		ValidTo:   result.claims.ValidTo.Time,
		Limits:    result.claims.Limits,
		Status:    entitlementdomain.StatusActive,
	})
	if err != nil {
		s.recordAttempt(ctx, tenantID, result.claims.AppID, result.keyID, token, result.snapshot,
			domain.ResultErrorPrefix+err.Error())
		s.metrics.RecordOfflineIngest(ctx, "error")
		return nil, err
	}

	verification := domain.ResultOK
	if result.timeWarning {
		verification = domain.ResultTimeWarning
		s.log.Warn("offline token accepted outside strict validity window",
			zap.String("tenant_id", tenantID),
			zap.String("app_id", result.claims.AppID),
			zap.Time("valid_to", result.claims.ValidTo.Time),
		)
	}
	s.recordAttempt(ctx, tenantID, result.claims.AppID, result.keyID, token, result.snapshot, verification)
	s.metrics.RecordOfflineIngest(ctx, verification)

	return &domain.IngestResult{
		Entitlement: stored,
		TimeWarning: result.timeWarning,
	}, nil
}

func (s *Service) ListRecords(ctx context.Context, appID string) ([]domain.OfflineTokenRecord, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}
	return s.repo.List(ctx, tenantID, strings.TrimSpace(appID))
}

type verified struct {
	claims      *offlineClaims
	keyID       string
	snapshot    map[string]interface{}
	timeWarning bool
}

type verifyFailure struct {
	reason   string
	appID    string
	keyID    string
	snapshot map[string]interface{}
}

func (s *Service) verify(ctx context.Context, tenantID, token string) (*verified, *verifyFailure) {
	failure := &verifyFailure{appID: domain.UnknownApp, keyID: domain.UnknownKID}

	// The unverified payload is kept purely for the audit trail; it is
	// never trusted for authorization decisions.
	snapshot, headerKID := parseUnverified(token)
	failure.snapshot = snapshot
	if app, _ := snapshot["app_id"].(string); strings.TrimSpace(app) != "" {
		failure.appID = app
	}

	keyID := headerKID
	if keyID == "" {
		keyID, _ = snapshot["kid"].(string)
	}
	if strings.TrimSpace(keyID) == "" {
		failure.reason = "missing signing key id"
		return nil, failure
	}
	failure.keyID = keyID

	key, ok := s.keyRing.Lookup(keyID)
	if !ok {
		failure.reason = fmt.Sprintf("unknown signing key %q", keyID)
		return nil, failure
	}

	claims, err := s.parseVerified(ctx, token, key)
	if err != nil {
		failure.reason = err.Error()
		return nil, failure
	}

	if err := s.checkClaims(tenantID, claims); err != nil {
		failure.reason = err.Error()
		return nil, failure
	}

	// Grants outside the strict window are still ingested: there is no
	// live issuer to re-query, so staleness is recorded as a warning
	// and left to the caller's trust decision.
	window := entitlementdomain.EvaluateWindow(claims.ValidFrom.Time, claims.ValidTo.Time, s.clk.Now(), s.tol)
	return &verified{
		claims:      claims,
		keyID:       keyID,
		snapshot:    snapshot,
		timeWarning: window != entitlementdomain.WindowStrict,
	}, nil
}

func (s *Service) parseVerified(ctx context.Context, token string, key ed25519.PublicKey) (*offlineClaims, error) {
	var claims offlineClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("signature verification failed: %w", err)
	}

	audienceID, err := s.platform.AudienceID(ctx)
	if err != nil {
		return nil, err
	}
	if !containsAudience(claims.Audience, audienceID) {
		return nil, errors.New("token audience does not match this instance")
	}

	return &claims, nil
}

func (s *Service) checkClaims(tenantID string, claims *offlineClaims) error {
	if claims.TenantID != tenantID {
		return errors.New("token tenant_id does not match the caller")
	}
	if strings.TrimSpace(claims.AppID) == "" {
		return errors.New("token app_id is required")
	}
	if _, err := entitlementdomain.ParseTier(claims.Tier); err != nil {
		return fmt.Errorf("token tier %q is unknown", claims.Tier)
	}
	if claims.ValidFrom == nil || claims.ValidTo == nil {
		return errors.New("token valid_from and valid_to are required")
	}
	if strings.TrimSpace(claims.Issuer) == "" {
		return errors.New("token issuer is required")
	}
	if strings.TrimSpace(claims.ID) == "" {
		return errors.New("token jti is required")
	}
	return nil
}

func (s *Service) recordAttempt(ctx context.Context, tenantID, appID, keyID, token string, snapshot map[string]interface{}, result string) {
	record := &domain.OfflineTokenRecord{
		ID:                 s.genID.Generate(),
		TenantID:           tenantID,
		AppID:              appID,
		KeyID:              keyID,
		TokenHash:          hashToken(token),
		Claims:             datatypes.JSONMap(snapshot),
		VerificationResult: result,
		CreatedAt:          s.clk.Now().UTC(),
	}
	if err := s.repo.Append(ctx, record); err != nil {
		s.log.Error("failed to append offline token audit record",
			zap.String("tenant_id", tenantID),
			zap.Error(err),
		)
	}
}

func parseUnverified(token string) (map[string]interface{}, string) {
	claims := jwt.MapClaims{}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, claims)
	if err != nil {
		return nil, ""
	}
	kid, _ := parsed.Header["kid"].(string)
	return claims, kid
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func containsAudience(audience jwt.ClaimStrings, value string) bool {
	for _, item := range audience {
		if item == value {
			return true
		}
	}
	return false
}
