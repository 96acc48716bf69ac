// Package supervisor launches validated commands through the OS elevation
// mechanism, streams their output as ordered progress events, and implements
// the grace-period and watchdog termination paths. It is the only component
// allowed to invoke the elevation mechanism, and it never does so without a
// prior validator approval.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/scanwarden/scanwarden/internal/authsession"
	"github.com/scanwarden/scanwarden/internal/common"
	"github.com/scanwarden/scanwarden/internal/elevation"
	"github.com/scanwarden/scanwarden/internal/eventstream"
	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Defaults applied when Options leaves the corresponding field unset.
const (
	// DefaultWatchdogTimeout bounds how long a stop request may take before
	// the channel is forcibly reset.
	DefaultWatchdogTimeout = 5 * time.Second

	// DefaultTailLines is the number of output lines retained for the
	// diagnostic tail on abnormal exit.
	DefaultTailLines = 32
)

// Validator approves a command spec before launch. Implemented by
// cmdvalidate.Validator.
type Validator interface {
	Validate(spec scantypes.CommandSpec) error
}

// Options configures a Supervisor.
type Options struct {
	Validator Validator
	Sessions  *authsession.Manager
	Mechanism elevation.Mechanism
	// Signaler delivers the direct (grace-period) termination signal.
	// Defaults to elevation.DirectSignaler.
	Signaler elevation.Signaler
	Logger   *slog.Logger
	// Clock is the time source, injectable for tests. Defaults to time.Now.
	Clock func() time.Time

	WatchdogTimeout time.Duration
	// Retention is the progress replay window per handle.
	Retention int
	TailLines int
}

// Supervisor owns the launch and termination of privileged scan processes.
// One instance serves all channels; per-process state lives on the Handle.
type Supervisor struct {
	validator       Validator
	sessions        *authsession.Manager
	mechanism       elevation.Mechanism
	signaler        elevation.Signaler
	logger          *slog.Logger
	clock           func() time.Time
	watchdogTimeout time.Duration
	retention       int
	tailLines       int
}

// New creates a supervisor. Validator, Sessions and Mechanism are required.
func New(opts Options) (*Supervisor, error) {
	if opts.Validator == nil || opts.Sessions == nil || opts.Mechanism == nil {
		return nil, fmt.Errorf("supervisor requires a validator, a session manager and an elevation mechanism")
	}
	s := &Supervisor{
		validator:       opts.Validator,
		sessions:        opts.Sessions,
		mechanism:       opts.Mechanism,
		signaler:        opts.Signaler,
		logger:          opts.Logger,
		clock:           opts.Clock,
		watchdogTimeout: opts.WatchdogTimeout,
		retention:       opts.Retention,
		tailLines:       opts.TailLines,
	}
	if s.signaler == nil {
		s.signaler = elevation.DirectSignaler{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.watchdogTimeout <= 0 {
		s.watchdogTimeout = DefaultWatchdogTimeout
	}
	if s.retention <= 0 {
		s.retention = eventstream.DefaultRetention
	}
	if s.tailLines <= 0 {
		s.tailLines = DefaultTailLines
	}
	return s, nil
}

// Launch validates the spec and, on approval, starts it through the
// elevation mechanism with the exact approved argv. The elevation session is
// recorded only once the process proves alive (first output byte or a clean
// exit). Launch may block while the user authenticates; the context cancels
// that wait.
//
// On validator rejection the elevation mechanism is never invoked.
func (s *Supervisor) Launch(ctx context.Context, channel scantypes.ChannelID, spec scantypes.CommandSpec) (*Handle, error) {
	if err := s.validator.Validate(spec); err != nil {
		s.logger.Warn("Command rejected by validator",
			"channel", channel,
			"executable", spec.ExecutablePath,
			"reason", err)
		return nil, fmt.Errorf("%w: %w", scantypes.ErrValidationRejected, err)
	}

	proc, err := s.mechanism.Start(ctx, spec.Argv(), spec.WorkDir)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		id:        ulid.Make().String(),
		channel:   channel,
		domain:    spec.Domain,
		pid:       proc.PID(),
		proc:      proc,
		hub:       eventstream.NewHub(s.retention),
		tail:      common.NewLineBuffer(s.tailLines),
		startedAt: s.clock(),
		done:      make(chan struct{}),
	}
	h.lastPercent.Store(scantypes.PercentNone)

	s.logger.Info("Scan process launched",
		"handle", h.id,
		"channel", channel,
		"domain", spec.Domain,
		"pid", h.pid)

	go s.supervise(h)
	return h, nil
}

// supervise streams output until both pipes drain, then reaps the process
// and resolves the terminal outcome. If the watchdog forced a stop first,
// the outcome resolved here is discarded.
func (s *Supervisor) supervise(h *Handle) {
	var wg sync.WaitGroup
	wg.Add(2)
	go s.streamOutput(h, h.proc.Stdout(), &wg)
	go s.streamOutput(h, h.proc.Stderr(), &wg)
	wg.Wait()

	code, waitErr := h.proc.Wait()
	stopRequested, method := h.stopState()

	switch {
	case waitErr != nil:
		s.finalize(h, scantypes.Outcome{
			State:    scantypes.StateFailed,
			ExitCode: -1,
			Err:      fmt.Errorf("failed to reap scan process: %w", waitErr),
		})
	case stopRequested:
		s.finalize(h, scantypes.Outcome{
			State:      scantypes.StateStopped,
			ExitCode:   code,
			StopMethod: method,
		})
	case code == 0:
		s.finalize(h, scantypes.Outcome{
			State:    scantypes.StateCompleted,
			ExitCode: code,
		})
	case elevation.ClassifyExit(code) != nil:
		s.finalize(h, scantypes.Outcome{
			State:    scantypes.StateFailed,
			ExitCode: code,
			Err:      fmt.Errorf("%w (exit code %d)", scantypes.ErrElevationDenied, code),
		})
	default:
		s.finalize(h, scantypes.Outcome{
			State:    scantypes.StateFailed,
			ExitCode: code,
			Err: &scantypes.ProcessError{
				Channel:    h.channel,
				ExitCode:   code,
				OutputTail: h.tail.Snapshot(),
			},
		})
	}
}

// streamOutput publishes one progress event per output line, in read order.
// The first line observed confirms the elevation succeeded and records the
// session for the handle's privilege domain.
func (s *Supervisor) streamOutput(h *Handle, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Text()
		h.tail.Append(line)
		h.sessionOnce.Do(func() {
			s.sessions.RecordSuccess(h.domain, s.clock())
			h.sessionRecorded.Store(true)
		})
		percent := ParsePercent(line)
		if percent != scantypes.PercentNone {
			h.lastPercent.Store(int64(percent))
		}
		h.hub.Publish(scantypes.Event{
			Channel: h.channel,
			Kind:    scantypes.EventProgress,
			At:      s.clock(),
			RawLine: line,
			Percent: percent,
		})
	}
	if err := scanner.Err(); err != nil {
		s.logger.Debug("Output stream ended with error",
			"handle", h.id, "channel", h.channel, "error", err)
	}
}

// finalize resolves the handle's outcome exactly once, closes the event
// stream, and releases the handle's resources. Later calls are no-ops, which
// is how the natural-exit and forced-stop paths converge on a single
// terminal notification.
func (s *Supervisor) finalize(h *Handle, outcome scantypes.Outcome) {
	h.finalizeOnce.Do(func() {
		outcome.StartedAt = h.startedAt
		outcome.FinishedAt = s.clock()
		if len(outcome.OutputTail) == 0 {
			outcome.OutputTail = h.tail.Snapshot()
		}

		h.mu.Lock()
		h.outcome = outcome
		h.mu.Unlock()

		// Release the process streams so the stream readers unblock even when
		// the forced path finalizes while the process is still alive.
		if err := h.proc.Close(); err != nil {
			s.logger.Debug("Releasing process streams failed",
				"handle", h.id, "channel", h.channel, "error", err)
		}

		close(h.done)
		h.hub.Close()

		s.logger.Info("Scan process finished",
			"handle", h.id,
			"channel", h.channel,
			"state", outcome.State.String(),
			"exit_code", outcome.ExitCode,
			"stop_method", outcome.StopMethod.String())
	})
}
