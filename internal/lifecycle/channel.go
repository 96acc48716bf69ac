package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/scanwarden/scanwarden/internal/eventstream"
	"github.com/scanwarden/scanwarden/internal/scantypes"
	"github.com/scanwarden/scanwarden/internal/supervisor"
)

// stopAction tells StopScan what beginStopping decided.
type stopAction int

const (
	// stopActionNone means there is nothing to stop.
	stopActionNone stopAction = iota
	// stopActionDeferred means the launch is still in flight; the stop flag
	// was recorded and will be honored once the process appears.
	stopActionDeferred
	// stopActionSignal means a live handle should be signalled now.
	stopActionSignal
)

// channel is one scan lane. All mutable state is guarded by mu; the hub
// outlives individual scans so observers keep their subscription across
// scan cycles.
type channel struct {
	id  scantypes.ChannelID
	hub *eventstream.Hub

	mu            sync.Mutex
	state         scantypes.ScanState
	running       bool
	handle        *supervisor.Handle
	domain        scantypes.PrivilegeDomain
	hasDomain     bool
	stopRequested bool
	lastPercent   int
	cancelLaunch  context.CancelFunc
}

func newChannel(id scantypes.ChannelID, retention int) *channel {
	return &channel{
		id:          id,
		hub:         eventstream.NewHub(retention),
		state:       scantypes.StateIdle,
		lastPercent: scantypes.PercentNone,
	}
}

// transitionLocked publishes a state-change event. Callers hold mu, which
// serializes transitions and keeps the published order identical to the
// order transitions occurred.
func (ch *channel) transitionLocked(c *Coordinator, to scantypes.ScanState, outcome *scantypes.Outcome) {
	from := ch.state
	ch.state = to
	ch.hub.Publish(scantypes.Event{
		Channel: ch.id,
		Kind:    scantypes.EventStateChange,
		At:      c.clock(),
		Percent: scantypes.PercentNone,
		From:    from,
		To:      to,
		Outcome: outcome,
	})
	c.logger.Debug("Channel state transition",
		"channel", ch.id, "from", from.String(), "to", to.String())
}

// beginStarting moves the channel Idle → Starting and returns the
// cancellable launch context. Rejects with ErrChannelBusy if the channel
// already has a live scan; the live scan is unaffected.
func (ch *channel) beginStarting(ctx context.Context, c *Coordinator, domain scantypes.PrivilegeDomain) (context.Context, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state != scantypes.StateIdle {
		return nil, fmt.Errorf("%w: channel %q is %s", scantypes.ErrChannelBusy, ch.id, ch.state)
	}

	launchCtx, cancel := context.WithCancel(ctx)
	ch.cancelLaunch = cancel
	ch.stopRequested = false
	ch.domain = domain
	ch.hasDomain = true
	ch.transitionLocked(c, scantypes.StateStarting, nil)
	return launchCtx, nil
}

// failStarting resolves a failed launch: Starting → Failed → Idle in one
// critical section, so observers never see a partially reset channel. When
// the failure was caused by a stop request cancelling the launch, the
// terminal state is Stopped rather than Failed.
func (ch *channel) failStarting(c *Coordinator, err error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.clearLaunchLocked()

	outcome := &scantypes.Outcome{State: scantypes.StateFailed, Err: err}
	terminal := scantypes.StateFailed
	if ch.stopRequested {
		terminal = scantypes.StateStopped
		outcome = &scantypes.Outcome{State: scantypes.StateStopped, StopMethod: scantypes.StopMethodNone}
	}
	ch.transitionLocked(c, terminal, outcome)
	ch.resetLocked(c)
}

// enterRunning installs the handle and moves Starting → Running. It returns
// whether a stop was requested while the launch was in flight.
func (ch *channel) enterRunning(c *Coordinator, handle *supervisor.Handle) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.clearLaunchLocked()
	ch.handle = handle
	ch.running = true
	ch.transitionLocked(c, scantypes.StateRunning, nil)
	return ch.stopRequested
}

// beginStopping decides how a stop request should proceed given the current
// state, and performs the Running → Stopping transition when a live handle
// is present.
func (ch *channel) beginStopping(c *Coordinator) (*supervisor.Handle, stopAction) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	switch ch.state {
	case scantypes.StateStarting:
		ch.stopRequested = true
		if ch.cancelLaunch != nil {
			ch.cancelLaunch()
		}
		return nil, stopActionDeferred
	case scantypes.StateRunning:
		ch.transitionLocked(c, scantypes.StateStopping, nil)
		return ch.handle, stopActionSignal
	case scantypes.StateStopping:
		// Already stopping; the supervisor treats repeat requests as no-ops.
		return ch.handle, stopActionSignal
	default:
		return nil, stopActionNone
	}
}

// finish resolves the terminal transition for a completed handle and resets
// the channel. The terminal notification and the full reset happen under one
// lock hold: observers see the terminal event and the return to Idle as one
// atomic sequence, with every channel-visible flag already reset.
func (ch *channel) finish(c *Coordinator, outcome scantypes.Outcome) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.state != scantypes.StateRunning && ch.state != scantypes.StateStopping {
		// Terminal already resolved (e.g. forced watchdog reset raced a
		// natural exit). Exactly one terminal notification is emitted.
		return
	}
	ch.transitionLocked(c, outcome.State, &outcome)
	ch.resetLocked(c)
}

// resetLocked returns the channel to Idle with all observable state cleared.
func (ch *channel) resetLocked(c *Coordinator) {
	ch.handle = nil
	ch.running = false
	ch.stopRequested = false
	ch.lastPercent = scantypes.PercentNone
	ch.transitionLocked(c, scantypes.StateIdle, nil)
}

// clearLaunchLocked releases the launch context.
func (ch *channel) clearLaunchLocked() {
	if ch.cancelLaunch != nil {
		ch.cancelLaunch()
		ch.cancelLaunch = nil
	}
}

func (ch *channel) currentState() scantypes.ScanState {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.state
}

func (ch *channel) isRunning() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.running
}

func (ch *channel) currentDomain() (scantypes.PrivilegeDomain, bool) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.domain, ch.hasDomain
}

// notePercent retains the percentage carried by a progress event so it can be
// queried later without replaying the stream.
func (ch *channel) notePercent(ev scantypes.Event) {
	if ev.Kind != scantypes.EventProgress || ev.Percent == scantypes.PercentNone {
		return
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.lastPercent = ev.Percent
}

func (ch *channel) lastProgressPercent() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.lastPercent
}
