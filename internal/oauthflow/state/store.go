package state

import (
	"sync"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
)

// TTL bounds how long an in-flight flow may wait for its callback.
const TTL = 10 * time.Minute

// Endpoints are the issuer endpoints resolved at discovery time.
type Endpoints struct {
	AuthorizeURL string
	TokenURL     string
	IssueURL     string
	RegisterURL  string
}

// FlowState is the process-local record of one in-flight acquisition
// flow, keyed externally by its random state token. It is never
// persisted: a restart invalidates in-flight flows, matching the
// issuer's own authorization-code expiry.
type FlowState struct {
	TenantID     string
	IssuerURL    string
	AppID        string
	LicenseMode  string
	CodeVerifier string
	Endpoints    Endpoints
	AutoSelect   bool
	CreatedAt    time.Time
}

type entry struct {
	state     FlowState
	expiresAt time.Time
}

// Store is a concurrency-safe map of in-flight flow states. Expired
// entries are swept lazily on each Put and Take; there is no timer.
type Store struct {
	clk clock.Clock

	mu      sync.Mutex
	entries map[string]entry
}

func New(clk clock.Clock) *Store {
	return &Store{
		clk:     clk,
		entries: make(map[string]entry),
	}
}

func (s *Store) Put(token string, state FlowState) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	state.CreatedAt = now
	s.entries[token] = entry{state: state, expiresAt: now.Add(TTL)}
}

// Take returns and removes the state for token. It is single-use:
// racing callers for the same token see exactly one winner.
func (s *Store) Take(token string) (FlowState, bool) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	item, ok := s.entries[token]
	if !ok {
		return FlowState{}, false
	}
	delete(s.entries, token)
	if now.After(item.expiresAt) {
		return FlowState{}, false
	}
	return item.state, true
}

// TakeFor is Take restricted to the flow's owning tenant. A token
// presented by another tenant is left in place so the owner's
// in-flight flow survives.
func (s *Store) TakeFor(token, tenantID string) (FlowState, bool) {
	now := s.clk.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(now)

	item, ok := s.entries[token]
	if !ok || item.state.TenantID != tenantID {
		return FlowState{}, false
	}
	delete(s.entries, token)
	return item.state, true
}

// Len reports the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) sweepLocked(now time.Time) {
	for token, item := range s.entries {
		if now.After(item.expiresAt) {
			delete(s.entries, token)
		}
	}
}
