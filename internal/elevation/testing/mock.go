// Package testing provides shared test doubles for the elevation mechanism.
package testing

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/scanwarden/scanwarden/internal/elevation"
)

// MockPID is the base process ID assigned to mock processes; each new mock
// process gets the next ID.
const MockPID = 4242

var nextPID atomic.Int64

// MockProcess is a controllable stand-in for a privileged process. Tests
// feed it output lines and decide when and how it exits.
type MockProcess struct {
	mu       sync.Mutex
	pid      int
	stdoutW  *io.PipeWriter
	stdoutR  *io.PipeReader
	stderrW  *io.PipeWriter
	stderrR  *io.PipeReader
	exited   chan struct{}
	exitCode int
	waitErr  error

	streamsClosed atomic.Bool

	// SignalsReceived records direct signals delivered via Signal.
	SignalsReceived []unix.Signal
	// IgnoreSignals makes the process survive termination signals, for
	// exercising watchdog escalation.
	IgnoreSignals bool
	// IgnoreKill additionally survives SIGKILL, forcing the forced-stop path.
	IgnoreKill bool
}

// NewMockProcess creates a mock process with open output pipes.
func NewMockProcess() *MockProcess {
	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	return &MockProcess{
		pid:     MockPID + int(nextPID.Add(1)) - 1,
		stdoutR: stdoutR,
		stdoutW: stdoutW,
		stderrR: stderrR,
		stderrW: stderrW,
		exited:  make(chan struct{}),
	}
}

// PID implements elevation.Process.
func (p *MockProcess) PID() int { return p.pid }

// Stdout implements elevation.Process.
func (p *MockProcess) Stdout() io.Reader { return p.stdoutR }

// Stderr implements elevation.Process.
func (p *MockProcess) Stderr() io.Reader { return p.stderrR }

// Wait implements elevation.Process.
func (p *MockProcess) Wait() (int, error) {
	<-p.exited
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode, p.waitErr
}

// Close implements elevation.Process. It closes the reader ends of both
// output pipes, unblocking any consumer still reading from them.
func (p *MockProcess) Close() error {
	p.streamsClosed.Store(true)
	_ = p.stdoutR.Close()
	_ = p.stderrR.Close()
	return nil
}

// StreamsClosed reports whether Close released the output streams.
func (p *MockProcess) StreamsClosed() bool {
	return p.streamsClosed.Load()
}

// EmitStdout writes one line to the process stdout stream. It blocks until a
// reader consumes the line, mirroring pipe semantics.
func (p *MockProcess) EmitStdout(line string) {
	_, _ = io.WriteString(p.stdoutW, line+"\n")
}

// EmitStderr writes one line to the process stderr stream.
func (p *MockProcess) EmitStderr(line string) {
	_, _ = io.WriteString(p.stderrW, line+"\n")
}

// Exit terminates the mock process with the given exit code and closes its
// output streams. Calling Exit more than once is a no-op.
func (p *MockProcess) Exit(code int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	select {
	case <-p.exited:
		return
	default:
	}
	p.exitCode = code
	_ = p.stdoutW.Close()
	_ = p.stderrW.Close()
	close(p.exited)
}

// Exited reports whether the process has exited.
func (p *MockProcess) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// deliverSignal applies signal semantics honoring the ignore flags. Signal 0
// is an existence probe and is recorded without terminating anything.
func (p *MockProcess) deliverSignal(sig unix.Signal) {
	p.mu.Lock()
	p.SignalsReceived = append(p.SignalsReceived, sig)
	ignore := p.IgnoreSignals || sig == 0
	if sig == unix.SIGKILL {
		ignore = p.IgnoreKill
	}
	p.mu.Unlock()

	if !ignore {
		p.Exit(143) // conventional 128+SIGTERM style exit
	}
}

// MockMechanism is a scripted elevation mechanism. It records the exact argv
// of every Start call so tests can assert byte identity with the approved
// CommandSpec.
type MockMechanism struct {
	mu sync.Mutex

	// StartedArgv records the argv of each Start call, in order.
	StartedArgv [][]string
	// StartedDirs records the working directory of each Start call.
	StartedDirs []string
	// ElevatedSignals records pid/signal pairs delivered via SignalElevated.
	ElevatedSignals []SignalRecord

	// Processes are returned by successive Start calls. When exhausted,
	// Start returns a fresh MockProcess.
	Processes []*MockProcess

	// StartErr, when set, makes Start fail without producing a process.
	StartErr error
	// AvailableErr, when set, is returned by Available.
	AvailableErr error
	// SignalElevatedErr, when set, makes SignalElevated fail.
	SignalElevatedErr error
	// StartGate, when set, blocks Start until the gate channel is closed or
	// the context is cancelled. Used to model interactive authentication.
	StartGate chan struct{}
	// IgnoreStartCancel makes a gated Start wait for the gate even after the
	// context is cancelled, modeling an authentication dialog that completes
	// despite the caller having asked to stop.
	IgnoreStartCancel bool

	started int
}

// SignalRecord is one elevated signal delivery.
type SignalRecord struct {
	PID    int
	Signal unix.Signal
}

// NewMockMechanism creates a mechanism that will hand out the given
// processes in order.
func NewMockMechanism(procs ...*MockProcess) *MockMechanism {
	return &MockMechanism{Processes: procs}
}

// Name implements elevation.Mechanism.
func (m *MockMechanism) Name() string { return "mock" }

// Available implements elevation.Mechanism.
func (m *MockMechanism) Available() error { return m.AvailableErr }

// Start implements elevation.Mechanism.
func (m *MockMechanism) Start(ctx context.Context, argv []string, workDir string) (elevation.Process, error) {
	if gate := m.StartGate; gate != nil {
		if m.IgnoreStartCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	argvCopy := make([]string, len(argv))
	copy(argvCopy, argv)
	m.StartedArgv = append(m.StartedArgv, argvCopy)
	m.StartedDirs = append(m.StartedDirs, workDir)

	if m.StartErr != nil {
		return nil, m.StartErr
	}

	var proc *MockProcess
	if m.started < len(m.Processes) {
		proc = m.Processes[m.started]
	} else {
		proc = NewMockProcess()
	}
	m.started++
	return proc, nil
}

// SignalElevated implements elevation.Mechanism.
func (m *MockMechanism) SignalElevated(_ context.Context, pid int, sig unix.Signal) error {
	m.mu.Lock()
	m.ElevatedSignals = append(m.ElevatedSignals, SignalRecord{PID: pid, Signal: sig})
	err := m.SignalElevatedErr
	procs := make([]*MockProcess, len(m.Processes))
	copy(procs, m.Processes)
	m.mu.Unlock()

	if err != nil {
		return err
	}
	for _, p := range procs {
		if p.PID() == pid {
			p.deliverSignal(sig)
		}
	}
	return nil
}

// MockSignaler records direct (non-elevated) signal deliveries and forwards
// them to the matching mock process.
type MockSignaler struct {
	mu        sync.Mutex
	Delivered []SignalRecord
	Processes []*MockProcess
	// Err, when set, makes Signal fail.
	Err error
}

// Signal implements elevation.Signaler.
func (s *MockSignaler) Signal(pid int, sig unix.Signal) error {
	s.mu.Lock()
	s.Delivered = append(s.Delivered, SignalRecord{PID: pid, Signal: sig})
	err := s.Err
	procs := make([]*MockProcess, len(s.Processes))
	copy(procs, s.Processes)
	s.mu.Unlock()

	if err != nil {
		return err
	}
	for _, p := range procs {
		if p.PID() == pid {
			p.deliverSignal(sig)
		}
	}
	return nil
}
