// Package elevation wraps the OS elevation mechanism used to launch and
// terminate privileged scan processes. Commands are always passed as an
// exact argv; no code path in this package goes through a shell.
package elevation

import (
	"context"
	"io"

	"golang.org/x/sys/unix"
)

// Process is a handle to a launched privileged process.
type Process interface {
	// PID returns the OS process ID.
	PID() int

	// Stdout and Stderr expose the process output as byte streams.
	Stdout() io.Reader
	Stderr() io.Reader

	// Wait blocks until the process exits and returns its exit code. A
	// non-nil error indicates the wait itself failed, not a non-zero exit.
	Wait() (int, error)

	// Close releases the output streams, unblocking any pending reads. It
	// does not terminate the OS process and is safe to call more than once.
	Close() error
}

// Mechanism is the OS-level elevation mechanism. Implementations must pass
// argv through unmodified and must never invoke a shell.
type Mechanism interface {
	// Name identifies the mechanism for logging.
	Name() string

	// Available reports whether the mechanism can be used in this
	// environment. A non-nil error wraps scantypes.ErrElevationUnavailable.
	Available() error

	// Start launches argv with elevation. argv[0] is the absolute executable
	// path. Start may block while the user authenticates interactively, so
	// callers must pass a cancellable context.
	Start(ctx context.Context, argv []string, workDir string) (Process, error)

	// SignalElevated delivers a signal to pid through the elevation
	// mechanism. Used when a stop request falls outside the grace period.
	SignalElevated(ctx context.Context, pid int, sig unix.Signal) error
}

// Signaler delivers a signal without re-invoking the elevation mechanism.
// This is the cheap termination path available inside the grace period.
type Signaler interface {
	Signal(pid int, sig unix.Signal) error
}

// DirectSignaler sends signals with a plain kill(2).
type DirectSignaler struct{}

// Signal implements Signaler.
func (DirectSignaler) Signal(pid int, sig unix.Signal) error {
	return unix.Kill(pid, sig)
}
