//go:build !windows

package elevation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"time"

	"golang.org/x/sys/unix"

	"github.com/scanwarden/scanwarden/internal/common"
	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// Fixed paths for the polkit mechanism. These are deliberately absolute;
// the mechanism never consults PATH.
const (
	DefaultPkexecPath = "/usr/bin/pkexec"
	killPath          = "/bin/kill"
)

// pkexec exit codes for authentication outcomes (see pkexec(1)).
const (
	pkexecExitDismissed     = 126
	pkexecExitNotAuthorized = 127
)

// PkexecMechanism invokes commands through polkit's pkexec. One instance is
// shared by all channels; it keeps per-mechanism elevation metrics.
type PkexecMechanism struct {
	pkexecPath string
	fs         common.FileSystem
	logger     *slog.Logger
	metrics    Metrics
}

// NewPkexecMechanism creates a pkexec-backed mechanism. An empty pkexecPath
// selects DefaultPkexecPath.
func NewPkexecMechanism(pkexecPath string, fs common.FileSystem, logger *slog.Logger) *PkexecMechanism {
	if pkexecPath == "" {
		pkexecPath = DefaultPkexecPath
	}
	if fs == nil {
		fs = common.NewDefaultFileSystem()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PkexecMechanism{pkexecPath: pkexecPath, fs: fs, logger: logger}
}

// Name implements Mechanism.
func (m *PkexecMechanism) Name() string { return "pkexec" }

// Available implements Mechanism. It checks that the pkexec binary exists at
// its fixed path and is a regular executable file.
func (m *PkexecMechanism) Available() error {
	info, err := m.fs.Lstat(m.pkexecPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", scantypes.ErrElevationUnavailable, m.pkexecPath, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", scantypes.ErrElevationUnavailable, m.pkexecPath)
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", scantypes.ErrElevationUnavailable, m.pkexecPath)
	}
	return nil
}

// Start implements Mechanism. The supplied argv is passed to pkexec exactly
// as given; pkexec itself never interprets it through a shell.
func (m *PkexecMechanism) Start(ctx context.Context, argv []string, workDir string) (Process, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("%w: empty argv", scantypes.ErrElevationUnavailable)
	}
	if err := m.Available(); err != nil {
		m.metrics.RecordElevationFailure(err)
		return nil, err
	}

	start := time.Now()
	// #nosec G204 - argv was approved by the command validator before this call
	cmd := exec.CommandContext(ctx, m.pkexecPath, argv...)
	cmd.Dir = workDir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.metrics.RecordElevationFailure(err)
		return nil, fmt.Errorf("failed to open stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		m.metrics.RecordElevationFailure(err)
		return nil, fmt.Errorf("failed to open stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		m.metrics.RecordElevationFailure(err)
		return nil, fmt.Errorf("%w: %v", scantypes.ErrElevationUnavailable, err)
	}
	m.metrics.RecordElevationSuccess(time.Since(start))

	m.logger.Info("Privileged process started",
		"mechanism", m.Name(),
		"executable", argv[0],
		"pid", cmd.Process.Pid)

	return &pkexecProcess{cmd: cmd, stdout: stdout, stderr: stderr}, nil
}

// SignalElevated implements Mechanism. It re-invokes pkexec purely to
// deliver the signal; the argv is a fixed template, never user-derived.
func (m *PkexecMechanism) SignalElevated(ctx context.Context, pid int, sig unix.Signal) error {
	if err := m.Available(); err != nil {
		return err
	}

	sigName := unix.SignalName(sig)
	argv := []string{killPath, "-s", sigName, strconv.Itoa(pid)}
	// #nosec G204 - fixed template with a numeric pid and a signal name
	cmd := exec.CommandContext(ctx, m.pkexecPath, argv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && isDeniedExit(exitErr.ExitCode()) {
			return fmt.Errorf("%w: elevated signal delivery refused", scantypes.ErrElevationDenied)
		}
		return fmt.Errorf("elevated signal delivery failed: %w (output: %s)", err, out)
	}

	m.logger.Info("Elevated signal delivered", "pid", pid, "signal", sigName)
	return nil
}

// Metrics returns a snapshot of the mechanism's elevation metrics.
func (m *PkexecMechanism) Metrics() Metrics {
	return m.metrics.Snapshot()
}

// isDeniedExit reports whether a pkexec exit code means the user declined or
// was not authorized.
func isDeniedExit(code int) bool {
	return code == pkexecExitDismissed || code == pkexecExitNotAuthorized
}

// ClassifyExit maps a pkexec wrapper exit code to the error taxonomy. A nil
// return means the exit code belongs to the wrapped tool, not to pkexec.
func ClassifyExit(code int) error {
	if isDeniedExit(code) {
		return scantypes.ErrElevationDenied
	}
	return nil
}

// pkexecProcess adapts exec.Cmd to the Process interface.
type pkexecProcess struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr io.ReadCloser
}

func (p *pkexecProcess) PID() int          { return p.cmd.Process.Pid }
func (p *pkexecProcess) Stdout() io.Reader { return p.stdout }
func (p *pkexecProcess) Stderr() io.Reader { return p.stderr }

// Close releases the pipe readers so stream consumers unblock even when the
// process itself survives termination. cmd.Wait closes them too on a normal
// exit; the double close is harmless and ignored there.
func (p *pkexecProcess) Close() error {
	return errors.Join(p.stdout.Close(), p.stderr.Close())
}

// Wait blocks until exit. Non-zero exits are reported through the exit code,
// not the error.
func (p *pkexecProcess) Wait() (int, error) {
	err := p.cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}
