// Package lifecycle implements the per-channel scan state machine and the
// top-level coordinator exposed to external collaborators. It drives the
// process supervisor, forwards ordered progress events, and guarantees that
// every terminal path resets a channel's observable state atomically and
// emits exactly one terminal notification.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/scanwarden/scanwarden/internal/authsession"
	"github.com/scanwarden/scanwarden/internal/eventstream"
	"github.com/scanwarden/scanwarden/internal/scantemplate"
	"github.com/scanwarden/scanwarden/internal/scantypes"
	"github.com/scanwarden/scanwarden/internal/supervisor"
)

// Options configures a Coordinator.
type Options struct {
	Supervisor *supervisor.Supervisor
	Templates  *scantemplate.Registry
	Sessions   *authsession.Manager
	Logger     *slog.Logger
	Clock      func() time.Time
	// Channels lists the scan lanes to manage.
	Channels []scantypes.ChannelID
	// Retention is the per-channel event replay window.
	Retention int
}

// Coordinator owns all scan channels. Channels operate concurrently and
// independently; within one channel operations are strictly sequential.
type Coordinator struct {
	supervisor *supervisor.Supervisor
	templates  *scantemplate.Registry
	sessions   *authsession.Manager
	logger     *slog.Logger
	clock      func() time.Time
	channels   map[scantypes.ChannelID]*channel
}

// New creates a coordinator for the given channels.
func New(opts Options) (*Coordinator, error) {
	if opts.Supervisor == nil || opts.Templates == nil || opts.Sessions == nil {
		return nil, fmt.Errorf("coordinator requires a supervisor, a template registry and a session manager")
	}
	if len(opts.Channels) == 0 {
		return nil, fmt.Errorf("coordinator requires at least one channel")
	}

	c := &Coordinator{
		supervisor: opts.Supervisor,
		templates:  opts.Templates,
		sessions:   opts.Sessions,
		logger:     opts.Logger,
		clock:      opts.Clock,
		channels:   make(map[scantypes.ChannelID]*channel, len(opts.Channels)),
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = time.Now
	}

	retention := opts.Retention
	if retention <= 0 {
		retention = eventstream.DefaultRetention
	}
	for _, id := range opts.Channels {
		if _, exists := c.channels[id]; exists {
			return nil, fmt.Errorf("duplicate channel %q", id)
		}
		c.channels[id] = newChannel(id, retention)
	}
	return c, nil
}

// lookup resolves a channel ID.
func (c *Coordinator) lookup(id scantypes.ChannelID) (*channel, error) {
	ch, ok := c.channels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", scantypes.ErrUnknownChannel, id)
	}
	return ch, nil
}

// StartScan starts a scan of the given kind on a channel. Target narrows the
// scan to one path for templates that accept it; empty selects the template
// default.
//
// StartScan is synchronous through launch: when it returns an error the
// channel has already resolved to Failed and reset to Idle, never an
// ambiguous in-between. A second start while the channel is live returns
// ErrChannelBusy and leaves the running scan untouched.
func (c *Coordinator) StartScan(ctx context.Context, id scantypes.ChannelID, kind scantypes.ScanKind, target string) error {
	ch, err := c.lookup(id)
	if err != nil {
		return err
	}
	def, err := c.templates.Lookup(kind)
	if err != nil {
		return err
	}

	launchCtx, err := ch.beginStarting(ctx, c, def.Domain)
	if err != nil {
		return err
	}

	c.logger.Info("Scan starting", "channel", id, "kind", kind, "domain", def.Domain)

	handle, err := c.supervisor.Launch(launchCtx, id, def.Build(target))
	if err != nil {
		ch.failStarting(c, err)
		return err
	}

	stopWanted := ch.enterRunning(c, handle)
	go c.observe(ch, handle)

	if stopWanted {
		// A stop arrived while the launch was in flight. Honor it now that
		// the process exists, moving the channel into Stopping before the
		// signal goes out so observers never see the stop land on a channel
		// still presenting as Running.
		deferred, action := ch.beginStopping(c)
		if action == stopActionSignal {
			if _, stopErr := c.supervisor.RequestStop(ctx, deferred); stopErr != nil {
				c.logger.Warn("Deferred stop delivery failed, watchdog armed",
					"channel", id, "error", stopErr)
			}
		}
	}
	return nil
}

// StopScan requests termination of the channel's scan. Stopping an idle
// channel is a no-op. The stop always resolves eventually: cleanly, or via
// the supervisor's bounded watchdog escalation.
func (c *Coordinator) StopScan(ctx context.Context, id scantypes.ChannelID) error {
	ch, err := c.lookup(id)
	if err != nil {
		return err
	}

	handle, action := ch.beginStopping(c)
	switch action {
	case stopActionNone:
		return nil
	case stopActionDeferred:
		// Launch still in flight; flag recorded, context cancelled. The
		// start path delivers the stop once the process appears.
		c.logger.Info("Stop requested before launch completed", "channel", id)
		return nil
	default:
	}

	method, err := c.supervisor.RequestStop(ctx, handle)
	if err != nil {
		c.logger.Warn("Stop signal delivery failed, watchdog armed",
			"channel", id, "method", method.String(), "error", err)
		return nil
	}
	c.logger.Info("Stop signal delivered", "channel", id, "method", method.String())
	return nil
}

// Subscribe attaches an observer to the channel's event stream. Events are
// delivered in occurrence order; detaching and reattaching replays what the
// retention window still holds.
func (c *Coordinator) Subscribe(id scantypes.ChannelID) (*eventstream.Subscription, error) {
	ch, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	return ch.hub.Subscribe(), nil
}

// State returns the channel's current lifecycle state.
func (c *Coordinator) State(id scantypes.ChannelID) (scantypes.ScanState, error) {
	ch, err := c.lookup(id)
	if err != nil {
		return scantypes.StateIdle, err
	}
	return ch.currentState(), nil
}

// IsRunning reports the channel's externally observable running flag.
func (c *Coordinator) IsRunning(id scantypes.ChannelID) (bool, error) {
	ch, err := c.lookup(id)
	if err != nil {
		return false, err
	}
	return ch.isRunning(), nil
}

// LastProgressPercent returns the channel's most recent parsed completion
// percentage, or scantypes.PercentNone when the current scan has not reported
// one (or no scan is active). It answers a reattaching observer's "where is
// the scan now" without replaying the event stream.
func (c *Coordinator) LastProgressPercent(id scantypes.ChannelID) (int, error) {
	ch, err := c.lookup(id)
	if err != nil {
		return scantypes.PercentNone, err
	}
	return ch.lastProgressPercent(), nil
}

// WithinGraceWindow reports whether stopping this channel's scan would take
// the low-friction path. Purely informational, for describing the cost of a
// stop; it must never gate the starting of new privileged actions.
func (c *Coordinator) WithinGraceWindow(id scantypes.ChannelID) (bool, error) {
	ch, err := c.lookup(id)
	if err != nil {
		return false, err
	}
	domain, ok := ch.currentDomain()
	if !ok {
		return false, nil
	}
	return c.sessions.IsWithinGracePeriod(domain, c.clock()), nil
}

// Channels returns the managed channel IDs.
func (c *Coordinator) Channels() []scantypes.ChannelID {
	ids := make([]scantypes.ChannelID, 0, len(c.channels))
	for id := range c.channels {
		ids = append(ids, id)
	}
	return ids
}

// observe forwards the handle's progress events to the channel stream and
// resolves the terminal transition when the handle completes. It is the only
// goroutine that moves a channel out of Running/Stopping, which keeps the
// terminal sequence single-sourced and ordered.
func (c *Coordinator) observe(ch *channel, handle *supervisor.Handle) {
	sub := handle.Subscribe()
	for ev := range sub.Events() {
		ch.notePercent(ev)
		ch.hub.Publish(ev)
	}

	outcome, ok := handle.Outcome()
	if !ok {
		// Stream closed without an outcome; treat as an abnormal exit so the
		// channel never sticks outside Idle.
		outcome = scantypes.Outcome{
			State: scantypes.StateFailed,
			Err:   fmt.Errorf("%w: scan ended without an outcome", scantypes.ErrProcessExitedAbnormally),
		}
	}
	ch.finish(c, outcome)
}
