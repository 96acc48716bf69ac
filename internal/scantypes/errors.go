package scantypes

import (
	"errors"
	"fmt"
	"strings"
)

// Error definitions for the scan supervision core. These form the failure
// taxonomy surfaced to external collaborators; package-level errors wrap
// them with context where useful.
var (
	// ErrValidationRejected is returned when a proposed command failed the
	// whitelist checks. Always local and safe to log in full.
	ErrValidationRejected = errors.New("command validation rejected")

	// ErrElevationDenied is returned when the user declined the elevation
	// prompt or authentication failed.
	ErrElevationDenied = errors.New("privilege elevation denied")

	// ErrElevationUnavailable is returned when the elevation mechanism is
	// missing or misconfigured. This is a setup error and is not retried.
	ErrElevationUnavailable = errors.New("elevation mechanism unavailable")

	// ErrProcessExitedAbnormally is returned when a scan process exits
	// non-zero without a stop request having been issued.
	ErrProcessExitedAbnormally = errors.New("scan process exited abnormally")

	// ErrForcedTimeout is returned when the watchdog escalation triggered and
	// channel cleanup was forced.
	ErrForcedTimeout = errors.New("stop escalated to forced timeout")

	// ErrChannelBusy is returned when a scan is requested on a channel that
	// already has a live process. The request is rejected, never queued.
	ErrChannelBusy = errors.New("channel already has a live scan")

	// ErrUnknownChannel is returned for operations on a channel ID the
	// coordinator was not configured with.
	ErrUnknownChannel = errors.New("unknown scan channel")

	// ErrUnknownScanKind is returned when no trusted template exists for the
	// requested scan kind.
	ErrUnknownScanKind = errors.New("unknown scan kind")
)

// ProcessError carries diagnostic context for an abnormal process exit.
type ProcessError struct {
	Channel    ChannelID
	ExitCode   int
	OutputTail []string
}

// Error implements the error interface.
func (e *ProcessError) Error() string {
	msg := fmt.Sprintf("scan on channel %q exited abnormally with code %d", e.Channel, e.ExitCode)
	if len(e.OutputTail) > 0 {
		msg += ": " + strings.Join(e.OutputTail, " / ")
	}
	return msg
}

// Unwrap returns the taxonomy sentinel for errors.Is matching.
func (e *ProcessError) Unwrap() error {
	return ErrProcessExitedAbnormally
}
