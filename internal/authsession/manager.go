// Package authsession tracks the freshness of successful privilege
// elevations, keyed by privilege domain. The grace window it answers for is
// consulted only when stopping an already-approved process; it never expands
// privilege and is never a substitute for command validation or elevation.
package authsession

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Default timing constants. Shorter windows reduce the cached-privilege
// attack surface; per-domain overrides may tighten them further.
const (
	DefaultGracePeriod     = 30 * time.Second
	DefaultSessionDuration = 60 * time.Second
)

// ErrInvalidTiming is returned when a timing configuration is inconsistent.
var ErrInvalidTiming = errors.New("invalid session timing")

// Timing holds the fixed windows for one privilege domain.
type Timing struct {
	// GracePeriod is the window after a successful elevation during which
	// stopping the elevated process may use the direct-signal path.
	GracePeriod time.Duration

	// SessionDuration is how long a session counts as fresh at all. Expiry
	// is passive: a computed predicate, never a timer callback.
	SessionDuration time.Duration
}

// validate checks the internal consistency of a timing configuration.
func (t Timing) validate() error {
	if t.GracePeriod <= 0 || t.SessionDuration <= 0 {
		return fmt.Errorf("%w: windows must be positive (grace %v, session %v)", ErrInvalidTiming, t.GracePeriod, t.SessionDuration)
	}
	if t.GracePeriod > t.SessionDuration {
		return fmt.Errorf("%w: grace period %v exceeds session duration %v", ErrInvalidTiming, t.GracePeriod, t.SessionDuration)
	}
	return nil
}

// DefaultTiming returns the global default windows.
func DefaultTiming() Timing {
	return Timing{GracePeriod: DefaultGracePeriod, SessionDuration: DefaultSessionDuration}
}

// session records one successful elevation. Sessions are immutable after
// creation; they are replaced, never mutated.
type session struct {
	startedAt time.Time
	timing    Timing
}

// Manager tracks at most one active session per privilege domain. It is safe
// for concurrent use; predicates take a read lock so domains do not block
// each other on the hot path.
type Manager struct {
	mu            sync.RWMutex
	sessions      map[scantypes.PrivilegeDomain]session
	defaultTiming Timing
	perDomain     map[scantypes.PrivilegeDomain]Timing
}

// NewManager creates a session manager with the given default timing and
// optional per-domain overrides.
func NewManager(defaultTiming Timing, perDomain map[scantypes.PrivilegeDomain]Timing) (*Manager, error) {
	if err := defaultTiming.validate(); err != nil {
		return nil, err
	}
	overrides := make(map[scantypes.PrivilegeDomain]Timing, len(perDomain))
	for domain, timing := range perDomain {
		if err := timing.validate(); err != nil {
			return nil, fmt.Errorf("domain %q: %w", domain, err)
		}
		overrides[domain] = timing
	}
	return &Manager{
		sessions:      make(map[scantypes.PrivilegeDomain]session),
		defaultTiming: defaultTiming,
		perDomain:     overrides,
	}, nil
}

// TimingFor returns the effective timing for a domain.
func (m *Manager) TimingFor(domain scantypes.PrivilegeDomain) Timing {
	if t, ok := m.perDomain[domain]; ok {
		return t
	}
	return m.defaultTiming
}

// RecordSuccess stores a fresh session for the domain, replacing any prior
// one. Called by the supervisor when the elevation mechanism reports a
// successful start; nothing else may create sessions.
func (m *Manager) RecordSuccess(domain scantypes.PrivilegeDomain, now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[domain] = session{startedAt: now, timing: m.TimingFor(domain)}
}

// IsWithinGracePeriod reports whether a session exists for the domain and
// the grace window has not elapsed. Consumers use this only to choose a
// termination path for an already-running process.
func (m *Manager) IsWithinGracePeriod(domain scantypes.PrivilegeDomain, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[domain]
	if !ok {
		return false
	}
	age := now.Sub(s.startedAt)
	return age >= 0 && age <= s.timing.GracePeriod
}

// IsSessionFresh reports whether a session exists and the full session
// duration has not elapsed. This is a best-effort hint that the OS layer may
// still have cached credentials; the elevation mechanism remains
// authoritative.
func (m *Manager) IsSessionFresh(domain scantypes.PrivilegeDomain, now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[domain]
	if !ok {
		return false
	}
	age := now.Sub(s.startedAt)
	return age >= 0 && age <= s.timing.SessionDuration
}
