package supervisor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/scanwarden/scanwarden/internal/common"
	"github.com/scanwarden/scanwarden/internal/elevation"
	"github.com/scanwarden/scanwarden/internal/eventstream"
	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Handle is the supervisor's view of one launched scan process. A handle is
// exclusively owned by one scan channel and is never reused after reaching a
// terminal outcome.
type Handle struct {
	id        string
	channel   scantypes.ChannelID
	domain    scantypes.PrivilegeDomain
	pid       int
	proc      elevation.Process
	hub       *eventstream.Hub
	tail      *common.LineBuffer
	startedAt time.Time

	mu            sync.Mutex
	stopRequested bool
	stopMethod    scantypes.StopMethod
	outcome       scantypes.Outcome

	sessionOnce     sync.Once
	sessionRecorded atomic.Bool
	lastPercent     atomic.Int64
	finalizeOnce    sync.Once
	watchdogOnce    sync.Once
	done            chan struct{}
}

// ID returns the unique handle identifier.
func (h *Handle) ID() string { return h.id }

// Channel returns the owning scan channel.
func (h *Handle) Channel() scantypes.ChannelID { return h.channel }

// Domain returns the privilege domain the process was elevated under.
func (h *Handle) Domain() scantypes.PrivilegeDomain { return h.domain }

// PID returns the OS process ID.
func (h *Handle) PID() int { return h.pid }

// StartedAt returns when the process was launched.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Subscribe attaches a progress subscriber. Lines still inside the retention
// window are replayed first, so detaching and reattaching loses nothing that
// is still retained.
func (h *Handle) Subscribe() *eventstream.Subscription {
	return h.hub.Subscribe()
}

// LastProgressPercent returns the most recent parsed completion percentage,
// or scantypes.PercentNone if no output line has carried one yet. It lets a
// reattaching observer learn the current position without replaying events.
func (h *Handle) LastProgressPercent() int {
	return int(h.lastPercent.Load())
}

// Done returns a channel closed when the handle reaches a terminal outcome.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Outcome returns the terminal outcome. The boolean is false until the
// handle is done.
func (h *Handle) Outcome() (scantypes.Outcome, bool) {
	select {
	case <-h.done:
	default:
		return scantypes.Outcome{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, true
}

// markStopRequested records the stop request and chosen method. It returns
// false if a stop was already in flight, along with the method of that
// earlier request.
func (h *Handle) markStopRequested(method scantypes.StopMethod) (bool, scantypes.StopMethod) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopRequested {
		return false, h.stopMethod
	}
	h.stopRequested = true
	h.stopMethod = method
	return true, method
}

// stopState reports whether a stop was requested and by which method.
func (h *Handle) stopState() (bool, scantypes.StopMethod) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopRequested, h.stopMethod
}
