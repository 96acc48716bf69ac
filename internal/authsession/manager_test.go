package authsession

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(DefaultTiming(), nil)
	require.NoError(t, err)
	return m
}

func TestNewManager_RejectsInvalidTiming(t *testing.T) {
	tests := []struct {
		name    string
		timing  Timing
		domains map[scantypes.PrivilegeDomain]Timing
	}{
		{name: "zero grace", timing: Timing{GracePeriod: 0, SessionDuration: time.Minute}},
		{name: "negative session", timing: Timing{GracePeriod: time.Second, SessionDuration: -time.Second}},
		{name: "grace exceeds session", timing: Timing{GracePeriod: 2 * time.Minute, SessionDuration: time.Minute}},
		{
			name:   "invalid override",
			timing: DefaultTiming(),
			domains: map[scantypes.PrivilegeDomain]Timing{
				"clamav": {GracePeriod: time.Minute, SessionDuration: time.Second},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(tt.timing, tt.domains)
			assert.ErrorIs(t, err, ErrInvalidTiming)
		})
	}
}

func TestManager_GracePeriodBoundaries(t *testing.T) {
	m := newTestManager(t)
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.RecordSuccess("rkhunter", start)

	// 10s after elevation: inside the 30s grace window.
	assert.True(t, m.IsWithinGracePeriod("rkhunter", start.Add(10*time.Second)))
	// Exactly at the boundary still counts.
	assert.True(t, m.IsWithinGracePeriod("rkhunter", start.Add(30*time.Second)))
	// 40s after elevation: grace gone, but the session is still fresh.
	assert.False(t, m.IsWithinGracePeriod("rkhunter", start.Add(40*time.Second)))
	assert.True(t, m.IsSessionFresh("rkhunter", start.Add(40*time.Second)))
	// Past the session duration nothing is fresh.
	assert.False(t, m.IsSessionFresh("rkhunter", start.Add(61*time.Second)))
}

func TestManager_UnknownDomainIsNeverFresh(t *testing.T) {
	m := newTestManager(t)
	now := time.Now()
	assert.False(t, m.IsWithinGracePeriod("clamav", now))
	assert.False(t, m.IsSessionFresh("clamav", now))
}

func TestManager_DomainsAreIndependent(t *testing.T) {
	m := newTestManager(t)
	start := time.Now()
	m.RecordSuccess("clamav", start)

	// Elevating clamav grants nothing to rkhunter.
	assert.True(t, m.IsWithinGracePeriod("clamav", start.Add(time.Second)))
	assert.False(t, m.IsWithinGracePeriod("rkhunter", start.Add(time.Second)))
}

func TestManager_RecordSuccessReplacesSession(t *testing.T) {
	m := newTestManager(t)
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.RecordSuccess("clamav", first)
	assert.False(t, m.IsWithinGracePeriod("clamav", first.Add(45*time.Second)))

	second := first.Add(40 * time.Second)
	m.RecordSuccess("clamav", second)
	assert.True(t, m.IsWithinGracePeriod("clamav", first.Add(45*time.Second)))
}

func TestManager_ClockSkewDoesNotGrantGrace(t *testing.T) {
	m := newTestManager(t)
	start := time.Now()
	m.RecordSuccess("clamav", start)

	// A stop timestamped before the elevation must not take the cheap path.
	assert.False(t, m.IsWithinGracePeriod("clamav", start.Add(-time.Second)))
	assert.False(t, m.IsSessionFresh("clamav", start.Add(-time.Second)))
}

func TestManager_PerDomainOverride(t *testing.T) {
	override := Timing{GracePeriod: 5 * time.Second, SessionDuration: 10 * time.Second}
	m, err := NewManager(DefaultTiming(), map[scantypes.PrivilegeDomain]Timing{"rkhunter": override})
	require.NoError(t, err)
	assert.Equal(t, override, m.TimingFor("rkhunter"))
	assert.Equal(t, DefaultTiming(), m.TimingFor("clamav"))

	start := time.Now()
	m.RecordSuccess("rkhunter", start)
	assert.True(t, m.IsWithinGracePeriod("rkhunter", start.Add(4*time.Second)))
	assert.False(t, m.IsWithinGracePeriod("rkhunter", start.Add(6*time.Second)))
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := newTestManager(t)
	domains := []scantypes.PrivilegeDomain{"clamav", "rkhunter", "chkrootkit"}

	var wg sync.WaitGroup
	for _, domain := range domains {
		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func(d scantypes.PrivilegeDomain) {
				defer wg.Done()
				m.RecordSuccess(d, time.Now())
			}(domain)
			go func(d scantypes.PrivilegeDomain) {
				defer wg.Done()
				m.IsWithinGracePeriod(d, time.Now())
				m.IsSessionFresh(d, time.Now())
			}(domain)
		}
	}
	wg.Wait()

	for _, domain := range domains {
		assert.True(t, m.IsSessionFresh(domain, time.Now()))
	}
}
