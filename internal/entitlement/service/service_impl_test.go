package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/entitlement/domain"
	"github.com/atriumhq/atrium/internal/entitlement/repository"
	"github.com/atriumhq/atrium/internal/tenantctx"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testAppID = "author-x/reporting"

func mustNode(t *testing.T) *snowflake.Node {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return node
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(&domain.Entitlement{}, &domain.EntitlementSelection{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func setupEntitlementService(t *testing.T, clk clock.Clock) (domain.Service, *gorm.DB) {
	t.Helper()

	db := openTestDB(t)
	svc := New(Params{
		Cfg: config.Config{
			StrictSkew: 10 * time.Minute,
			SoftGrace:  12 * time.Hour,
		},
		Log:   zap.NewNop(),
		GenID: mustNode(t),
		Clock: clk,
		Repo:  repository.Provide(db),
	})
	return svc, db
}

func tenantCtx(tenantID string) context.Context {
	return tenantctx.WithTenantID(context.Background(), tenantID)
}

func upsertReq(source domain.Source, tier string, validFrom, validTo time.Time) domain.UpsertRequest {
	return domain.UpsertRequest{
		AppID:     testAppID,
		Source:    source,
		Tier:      tier,
		ValidFrom: validFrom,
		ValidTo:   validTo,
	}
}

func TestUpsertDeduplicates(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, db := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")

	req := upsertReq(domain.SourceOnline, "standard", clk.Now(), clk.Now().Add(24*time.Hour))
	req.Limits = map[string]interface{}{"seats": float64(5)}

	first, err := svc.Upsert(ctx, req)
	if err != nil {
		t.Fatalf("upsert first: %v", err)
	}

	req.Limits = map[string]interface{}{"seats": float64(10)}
	second, err := svc.Upsert(ctx, req)
	if err != nil {
		t.Fatalf("upsert second: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected dedup to converge on one row, got %d vs %d", first.ID, second.ID)
	}

	var count int64
	if err := db.Model(&domain.Entitlement{}).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 entitlement, got %d", count)
	}
	if got := second.Limits["seats"]; got != float64(10) {
		t.Fatalf("expected refreshed limits, got %v", got)
	}
}

func TestUpsertValidation(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	if _, err := svc.Upsert(context.Background(), upsertReq(domain.SourceOnline, "standard", now, now.Add(time.Hour))); err != domain.ErrInvalidTenant {
		t.Fatalf("expected ErrInvalidTenant, got %v", err)
	}
	if _, err := svc.Upsert(ctx, upsertReq(domain.Source("mystery"), "standard", now, now.Add(time.Hour))); err != domain.ErrInvalidSource {
		t.Fatalf("expected ErrInvalidSource, got %v", err)
	}
	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "platinum", now, now.Add(time.Hour))); err != domain.ErrUnknownTier {
		t.Fatalf("expected ErrUnknownTier, got %v", err)
	}
	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "standard", now.Add(time.Hour), now)); err != domain.ErrInvalidWindow {
		t.Fatalf("expected ErrInvalidWindow, got %v", err)
	}

	req := upsertReq(domain.SourceOnline, "standard", now, now.Add(time.Hour))
	req.AppID = "  "
	if _, err := svc.Upsert(ctx, req); err != domain.ErrInvalidAppID {
		t.Fatalf("expected ErrInvalidAppID, got %v", err)
	}
}

func TestResolveOfflineBeatsHigherOnlineTier(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "enterprise", now, now.Add(48*time.Hour))); err != nil {
		t.Fatalf("upsert online: %v", err)
	}
	offline, err := svc.Upsert(ctx, upsertReq(domain.SourceOffline, "free", now, now.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("upsert offline: %v", err)
	}

	resolution, err := svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolution.Entitlement.ID != offline.ID {
		t.Fatalf("expected offline grant to win, got source %s", resolution.Entitlement.Source)
	}
	if resolution.SoftGrace || resolution.Selected {
		t.Fatalf("expected plain strict resolution, got %+v", resolution)
	}
}

func TestResolveTierThenWindowOrdering(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "trial", now, now.Add(72*time.Hour))); err != nil {
		t.Fatalf("upsert trial: %v", err)
	}
	short, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "standard", now, now.Add(24*time.Hour)))
	if err != nil {
		t.Fatalf("upsert standard short: %v", err)
	}
	long, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "standard", now, now.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("upsert standard long: %v", err)
	}

	resolution, err := svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolution.Entitlement.ID != long.ID {
		t.Fatalf("expected longest-window standard grant %d, got %d (short %d)",
			long.ID, resolution.Entitlement.ID, short.ID)
	}
}

func TestResolveSoftGraceFallback(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "standard", now, now.Add(time.Hour))); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Past the strict window but well within the 12h grace.
	clk.Advance(3 * time.Hour)

	resolution, err := svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolution.SoftGrace {
		t.Fatal("expected soft grace resolution")
	}

	clk.Advance(24 * time.Hour)
	if _, err := svc.Resolve(ctx, testAppID); err != domain.ErrNoEntitlement {
		t.Fatalf("expected ErrNoEntitlement past grace, got %v", err)
	}
}

func TestResolveSelectionOverridesAutomaticWinner(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "enterprise", now, now.Add(48*time.Hour))); err != nil {
		t.Fatalf("upsert winner: %v", err)
	}
	pinned, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "free", now, now.Add(48*time.Hour)))
	if err != nil {
		t.Fatalf("upsert pinned: %v", err)
	}

	if err := svc.Select(ctx, testAppID, int64(pinned.ID)); err != nil {
		t.Fatalf("select: %v", err)
	}

	resolution, err := svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolution.Selected || resolution.Entitlement.ID != pinned.ID {
		t.Fatalf("expected pinned grant %d, got %d", pinned.ID, resolution.Entitlement.ID)
	}

	if err := svc.ClearSelection(ctx, testAppID); err != nil {
		t.Fatalf("clear selection: %v", err)
	}
	resolution, err = svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve after clear: %v", err)
	}
	if resolution.Selected || resolution.Entitlement.Tier != domain.TierEnterprise {
		t.Fatalf("expected automatic winner after clear, got %+v", resolution.Entitlement)
	}
}

func TestResolveSoftSelectionBeatsStrictAutomatic(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	if _, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "enterprise", now, now.Add(48*time.Hour))); err != nil {
		t.Fatalf("upsert strict: %v", err)
	}
	pinned, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "free", now, now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("upsert pinned: %v", err)
	}
	if err := svc.Select(ctx, testAppID, int64(pinned.ID)); err != nil {
		t.Fatalf("select: %v", err)
	}

	// Pinned grant leaves the strict window; selection still wins,
	// flagged as soft grace.
	clk.Advance(3 * time.Hour)

	resolution, err := svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !resolution.Selected || !resolution.SoftGrace {
		t.Fatalf("expected soft selected resolution, got %+v", resolution)
	}
	if resolution.Entitlement.ID != pinned.ID {
		t.Fatalf("expected pinned grant %d, got %d", pinned.ID, resolution.Entitlement.ID)
	}

	// Fully invalid selection falls through to the automatic winner.
	clk.Advance(24 * time.Hour)
	resolution, err = svc.Resolve(ctx, testAppID)
	if err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if resolution.Selected || resolution.Entitlement.Tier != domain.TierEnterprise {
		t.Fatalf("expected fallthrough to automatic winner, got %+v", resolution.Entitlement)
	}
}

func TestSelectRequiresMatchingEntitlement(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	ctx := tenantCtx("tenant-a")
	now := clk.Now()

	stored, err := svc.Upsert(ctx, upsertReq(domain.SourceOnline, "standard", now, now.Add(time.Hour)))
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := svc.Select(ctx, testAppID, 12345); err != domain.ErrEntitlementMissing {
		t.Fatalf("expected ErrEntitlementMissing, got %v", err)
	}
	if err := svc.Select(ctx, "author-x/other", int64(stored.ID)); err != domain.ErrEntitlementMissing {
		t.Fatalf("expected ErrEntitlementMissing for app mismatch, got %v", err)
	}
	if err := svc.Select(tenantCtx("tenant-b"), testAppID, int64(stored.ID)); err != domain.ErrEntitlementMissing {
		t.Fatalf("expected ErrEntitlementMissing across tenants, got %v", err)
	}
}

func TestResolveTenantIsolation(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	svc, _ := setupEntitlementService(t, clk)
	now := clk.Now()

	if _, err := svc.Upsert(tenantCtx("tenant-a"), upsertReq(domain.SourceOnline, "standard", now, now.Add(time.Hour))); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if _, err := svc.Resolve(tenantCtx("tenant-b"), testAppID); err != domain.ErrNoEntitlement {
		t.Fatalf("expected ErrNoEntitlement for foreign tenant, got %v", err)
	}
}
