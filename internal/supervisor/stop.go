package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sys/unix"

	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// orphanCleanupRetries bounds the best-effort cleanup of a process that
// survived forced termination. Cleanup is logged, never retried forever.
const orphanCleanupRetries = 3

// RequestStop asks the handle's process to terminate. Within the domain's
// grace period the termination signal is delivered directly; outside it the
// elevation mechanism is re-invoked to deliver the signal. Either way the
// watchdog is armed, so the stop resolves within the watchdog bound even if
// the process ignores the signal.
//
// The returned method is the path taken. A non-nil error means the signal
// could not be delivered; the watchdog still escalates, so the stop is
// honored eventually regardless.
func (s *Supervisor) RequestStop(ctx context.Context, h *Handle) (scantypes.StopMethod, error) {
	select {
	case <-h.done:
		// Already terminal; nothing to stop.
		return h.outcomeStopMethod(), nil
	default:
	}

	// The direct path requires both an unexpired grace window for the domain
	// and that this handle's own launch recorded the elevation success. A
	// sibling channel's elevation in the same domain is not enough.
	method := scantypes.StopMethodElevated
	if h.sessionRecorded.Load() && s.sessions.IsWithinGracePeriod(h.domain, s.clock()) {
		method = scantypes.StopMethodDirect
	}

	first, chosen := h.markStopRequested(method)
	if !first {
		return chosen, nil
	}

	s.logger.Info("Stop requested",
		"handle", h.id,
		"channel", h.channel,
		"method", method.String(),
		"pid", h.pid)

	var err error
	if method == scantypes.StopMethodDirect {
		if err = s.signaler.Signal(h.pid, unix.SIGTERM); err != nil {
			// The direct path can fail when the elevated process is owned by
			// root and we are not. Fall back to the elevated path.
			s.logger.Warn("Direct signal failed, falling back to elevated delivery",
				"handle", h.id, "pid", h.pid, "error", err)
			method = scantypes.StopMethodElevated
			h.setStopMethod(method)
		}
	}
	if method == scantypes.StopMethodElevated {
		err = s.mechanism.SignalElevated(ctx, h.pid, unix.SIGTERM)
		if err != nil {
			s.logger.Warn("Elevated signal delivery failed, relying on watchdog",
				"handle", h.id, "pid", h.pid, "error", err)
		}
	}

	h.watchdogOnce.Do(func() {
		go s.watchdog(h)
	})
	return method, err
}

// watchdog enforces the stop bound: half the budget waiting for the
// termination signal to work, then a SIGKILL escalation, then a forced reset
// of the channel regardless of the OS process state.
func (s *Supervisor) watchdog(h *Handle) {
	half := s.watchdogTimeout / 2

	select {
	case <-h.done:
		return
	case <-time.After(half):
	}

	s.logger.Warn("Stop deadline approaching, escalating to SIGKILL",
		"handle", h.id, "channel", h.channel, "pid", h.pid)
	if err := s.signaler.Signal(h.pid, unix.SIGKILL); err != nil {
		killCtx, cancel := context.WithTimeout(context.Background(), half)
		if elevErr := s.mechanism.SignalElevated(killCtx, h.pid, unix.SIGKILL); elevErr != nil {
			s.logger.Warn("SIGKILL delivery failed on both paths",
				"handle", h.id, "pid", h.pid,
				"direct_error", err, "elevated_error", elevErr)
		}
		cancel()
	}

	select {
	case <-h.done:
		return
	case <-time.After(half):
	}

	h.setStopMethod(scantypes.StopMethodForced)
	s.finalize(h, scantypes.Outcome{
		State:      scantypes.StateStopped,
		ExitCode:   -1,
		StopMethod: scantypes.StopMethodForced,
		Err:        scantypes.ErrForcedTimeout,
	})
	go s.cleanupOrphan(h)
}

// cleanupOrphan makes a bounded best-effort attempt to reap a process that
// survived the watchdog. Failures are logged and abandoned, never retried
// indefinitely.
func (s *Supervisor) cleanupOrphan(h *Handle) {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), orphanCleanupRetries)
	err := backoff.Retry(func() error {
		// Signal 0 probes for existence without delivering anything.
		if err := s.signaler.Signal(h.pid, 0); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return nil // already gone
			}
			return backoff.Permanent(err)
		}
		if err := s.signaler.Signal(h.pid, unix.SIGKILL); err != nil {
			return err
		}
		return errors.New("orphan still present after SIGKILL")
	}, policy)
	if err != nil {
		s.logger.Warn("Orphaned scan process could not be cleaned up",
			"handle", h.id, "channel", h.channel, "pid", h.pid, "error", err)
		return
	}
	s.logger.Info("Orphaned scan process cleaned up",
		"handle", h.id, "channel", h.channel, "pid", h.pid)
}

// outcomeStopMethod returns the stop method of a finished handle.
func (h *Handle) outcomeStopMethod() scantypes.StopMethod {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome.StopMethod
}

// setStopMethod updates the recorded stop method after a fallback.
func (h *Handle) setStopMethod(method scantypes.StopMethod) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopMethod = method
}
