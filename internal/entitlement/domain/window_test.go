package domain

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

var testTolerance = Tolerance{
	StrictSkew: 10 * time.Minute,
	SoftGrace:  12 * time.Hour,
}

func TestEvaluateWindow(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	validFrom := base
	validTo := base.Add(24 * time.Hour)

	cases := []struct {
		name string
		now  time.Time
		want WindowState
	}{
		{"inside", base.Add(time.Hour), WindowStrict},
		{"before start beyond skew", base.Add(-time.Hour), WindowSoft},
		{"before start within skew", base.Add(-5 * time.Minute), WindowStrict},
		{"at end is excluded", validTo, WindowStrict}, // still inside via skew
		{"past end beyond skew", validTo.Add(time.Hour), WindowSoft},
		{"past end beyond grace", validTo.Add(13 * time.Hour), WindowInvalid},
		{"far before start", base.Add(-13 * time.Hour), WindowInvalid},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := EvaluateWindow(validFrom, validTo, tc.now, testTolerance)
			if got != tc.want {
				t.Fatalf("EvaluateWindow(%s) = %d, want %d", tc.name, got, tc.want)
			}
		})
	}
}

func TestEvaluateWindowHalfOpenWithoutSkew(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tol := Tolerance{StrictSkew: 0, SoftGrace: 0}

	if got := EvaluateWindow(base, base.Add(time.Hour), base, tol); got != WindowStrict {
		t.Fatalf("expected start to be inclusive, got %d", got)
	}
	if got := EvaluateWindow(base, base.Add(time.Hour), base.Add(time.Hour), tol); got != WindowInvalid {
		t.Fatalf("expected end to be exclusive, got %d", got)
	}
}

func TestBetterOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	mk := func(id int64, source Source, tier Tier, validTo, createdAt time.Time) *Entitlement {
		return &Entitlement{
			ID:        snowflake.ID(id),
			Source:    source,
			Tier:      tier,
			ValidTo:   validTo,
			CreatedAt: createdAt,
		}
	}

	offlineFree := mk(1, SourceOffline, TierFree, base.Add(time.Hour), base)
	onlineEnterprise := mk(2, SourceOnline, TierEnterprise, base.Add(100*time.Hour), base)
	if !offlineFree.Better(onlineEnterprise) {
		t.Fatal("offline must outrank online regardless of tier")
	}

	onlineStandard := mk(3, SourceOnline, TierStandard, base.Add(time.Hour), base)
	onlineTrial := mk(4, SourceOnline, TierTrial, base.Add(100*time.Hour), base)
	if !onlineStandard.Better(onlineTrial) {
		t.Fatal("higher tier must win within a source")
	}

	shortWindow := mk(5, SourceOnline, TierStandard, base.Add(time.Hour), base)
	longWindow := mk(6, SourceOnline, TierStandard, base.Add(2*time.Hour), base)
	if !longWindow.Better(shortWindow) {
		t.Fatal("later valid_to must win within a tier")
	}

	older := mk(7, SourceOnline, TierStandard, base.Add(time.Hour), base)
	newer := mk(8, SourceOnline, TierStandard, base.Add(time.Hour), base.Add(time.Minute))
	if !newer.Better(older) {
		t.Fatal("later created_at must break valid_to ties")
	}

	lowID := mk(9, SourceOnline, TierStandard, base.Add(time.Hour), base)
	highID := mk(10, SourceOnline, TierStandard, base.Add(time.Hour), base)
	if !highID.Better(lowID) {
		t.Fatal("higher id must break full ties")
	}

	if !lowID.Better(nil) {
		t.Fatal("any entitlement must outrank nil")
	}
}

func TestParseTier(t *testing.T) {
	for _, raw := range []string{"free", "trial", "standard", "enterprise"} {
		if _, err := ParseTier(raw); err != nil {
			t.Fatalf("ParseTier(%q): %v", raw, err)
		}
	}
	if _, err := ParseTier("platinum"); err == nil {
		t.Fatal("expected error for unknown tier")
	}
	if TierEnterprise.Rank() <= TierStandard.Rank() {
		t.Fatal("enterprise must outrank standard")
	}
	if Tier("platinum").Rank() != -1 {
		t.Fatal("unknown tier must rank -1")
	}
}
