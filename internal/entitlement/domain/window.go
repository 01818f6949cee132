package domain

import "time"

// WindowState classifies a validity window against "now" under a
// strict clock-skew tolerance and a larger soft grace tolerance.
type WindowState int

const (
	WindowInvalid WindowState = iota
	WindowSoft
	WindowStrict
)

// Tolerance bundles the two nested clock tolerances.
type Tolerance struct {
	StrictSkew time.Duration
	SoftGrace  time.Duration
}

// EvaluateWindow classifies [validFrom, validTo) against now. The
// interval is half-open: strict-valid iff validFrom <= now+skew and
// now-skew < validTo; soft-valid under the same test with the grace
// tolerance.
func EvaluateWindow(validFrom, validTo, now time.Time, tol Tolerance) WindowState {
	if insideWindow(validFrom, validTo, now, tol.StrictSkew) {
		return WindowStrict
	}
	if insideWindow(validFrom, validTo, now, tol.SoftGrace) {
		return WindowSoft
	}
	return WindowInvalid
}

func insideWindow(validFrom, validTo, now time.Time, skew time.Duration) bool {
	return !validFrom.After(now.Add(skew)) && now.Add(-skew).Before(validTo)
}

// Window classifies the entitlement's own validity window.
func (e *Entitlement) Window(now time.Time, tol Tolerance) WindowState {
	return EvaluateWindow(e.ValidFrom, e.ValidTo, now, tol)
}

// Better reports whether e outranks other under the resolution
// precedence: offline before online, then higher tier, then later
// valid_to, then later created_at, then higher id. The ordering is
// total; only identical rows can tie on all five keys.
func (e *Entitlement) Better(other *Entitlement) bool {
	if other == nil {
		return true
	}
	if e.Source != other.Source {
		return e.Source == SourceOffline
	}
	if e.Tier.Rank() != other.Tier.Rank() {
		return e.Tier.Rank() > other.Tier.Rank()
	}
	if !e.ValidTo.Equal(other.ValidTo) {
		return e.ValidTo.After(other.ValidTo)
	}
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.After(other.CreatedAt)
	}
	return e.ID > other.ID
}
