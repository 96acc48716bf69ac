package supervisor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanwarden/scanwarden/internal/authsession"
	"github.com/scanwarden/scanwarden/internal/cmdvalidate"
	elevtest "github.com/scanwarden/scanwarden/internal/elevation/testing"
	"github.com/scanwarden/scanwarden/internal/scantypes"
)

// fakeClock is a mutable time source shared with the supervisor under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	sup      *Supervisor
	sessions *authsession.Manager
	mech     *elevtest.MockMechanism
	signaler *elevtest.MockSignaler
	clock    *fakeClock
}

func newTestEnv(t *testing.T, procs ...*elevtest.MockProcess) *testEnv {
	t.Helper()

	validator, err := cmdvalidate.NewValidator(&cmdvalidate.Config{
		Rules: []cmdvalidate.ExecutableRule{
			{Path: "/usr/bin/clamscan", Flags: []string{"--recursive", "--infected", "--stdout"}},
			{Path: "/usr/bin/rkhunter", Flags: []string{"--check", "--sk", "--nocolors"}},
		},
		AllowedRoots: []string{"/home"},
	})
	require.NoError(t, err)

	sessions, err := authsession.NewManager(authsession.DefaultTiming(), nil)
	require.NoError(t, err)

	mech := elevtest.NewMockMechanism(procs...)
	signaler := &elevtest.MockSignaler{Processes: procs}
	clock := newFakeClock()

	sup, err := New(Options{
		Validator:       validator,
		Sessions:        sessions,
		Mechanism:       mech,
		Signaler:        signaler,
		Clock:           clock.Now,
		WatchdogTimeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)

	return &testEnv{sup: sup, sessions: sessions, mech: mech, signaler: signaler, clock: clock}
}

func malwareSpec() scantypes.CommandSpec {
	return scantypes.CommandSpec{
		ExecutablePath: "/usr/bin/clamscan",
		Args:           []string{"--recursive", "--infected", "/home/alice"},
		Domain:         "clamav",
	}
}

// awaitProgress reads events until one carries the wanted raw line.
func awaitProgress(t *testing.T, events <-chan scantypes.Event, line string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			require.True(t, ok, "stream closed before line %q", line)
			if ev.Kind == scantypes.EventProgress && ev.RawLine == line {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for line %q", line)
		}
	}
}

func awaitOutcome(t *testing.T, h *Handle) scantypes.Outcome {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("handle did not reach a terminal outcome")
	}
	outcome, ok := h.Outcome()
	require.True(t, ok)
	return outcome
}

func TestLaunch_PassesExactApprovedArgv(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	spec := malwareSpec()
	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, spec)
	require.NoError(t, err)

	require.Len(t, env.mech.StartedArgv, 1)
	assert.Equal(t, []string{"/usr/bin/clamscan", "--recursive", "--infected", "/home/alice"}, env.mech.StartedArgv[0])

	proc.Exit(0)
	awaitOutcome(t, h)
}

func TestLaunch_ValidatorRejectionNeverReachesElevation(t *testing.T) {
	env := newTestEnv(t)

	spec := scantypes.CommandSpec{
		ExecutablePath: "/usr/bin/clamscan",
		Args:           []string{"--recursive; rm -rf /"},
		Domain:         "clamav",
	}
	_, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, spec)
	assert.ErrorIs(t, err, scantypes.ErrValidationRejected)
	assert.ErrorIs(t, err, cmdvalidate.ErrDisallowedArgument)
	assert.Empty(t, env.mech.StartedArgv, "elevation must not be invoked for rejected commands")
}

func TestLaunch_SessionRecordedOnFirstOutput(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	assert.False(t, env.sessions.IsWithinGracePeriod("clamav", env.clock.Now()),
		"no session before the process produced output")

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("Scanning /home/alice ...")
	awaitProgress(t, sub.Events(), "Scanning /home/alice ...")

	assert.True(t, env.sessions.IsWithinGracePeriod("clamav", env.clock.Now()))

	proc.Exit(0)
	awaitOutcome(t, h)
}

func TestSupervise_NaturalExitCompletes(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("scanned 10 files: 40%")
	awaitProgress(t, sub.Events(), "scanned 10 files: 40%")
	proc.Exit(0)

	outcome := awaitOutcome(t, h)
	assert.Equal(t, scantypes.StateCompleted, outcome.State)
	assert.Equal(t, 0, outcome.ExitCode)
	assert.Equal(t, scantypes.StopMethodNone, outcome.StopMethod)
	assert.NoError(t, outcome.Err)
}

func TestSupervise_ProgressPercentParsed(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("progress: 42%")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.Kind != scantypes.EventProgress {
				continue
			}
			assert.Equal(t, 42, ev.Percent)
			assert.True(t, ev.HasPercent())
			proc.Exit(0)
			awaitOutcome(t, h)
			return
		case <-deadline:
			t.Fatal("no progress event received")
		}
	}
}

func TestSupervise_AbnormalExitCarriesOutputTail(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStderr("ERROR: database outdated")
	awaitProgress(t, sub.Events(), "ERROR: database outdated")
	proc.Exit(2)

	outcome := awaitOutcome(t, h)
	assert.Equal(t, scantypes.StateFailed, outcome.State)
	assert.Equal(t, 2, outcome.ExitCode)
	assert.ErrorIs(t, outcome.Err, scantypes.ErrProcessExitedAbnormally)
	assert.Contains(t, outcome.OutputTail, "ERROR: database outdated")
}

func TestSupervise_ElevationDeniedExitCode(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	proc.Exit(126)
	outcome := awaitOutcome(t, h)
	assert.Equal(t, scantypes.StateFailed, outcome.State)
	assert.ErrorIs(t, outcome.Err, scantypes.ErrElevationDenied)
}

func TestRequestStop_GracePeriodSelectsDirectPath(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("starting")
	awaitProgress(t, sub.Events(), "starting")

	// 10s after elevation success: inside the 30s grace window.
	env.clock.Advance(10 * time.Second)
	method, err := env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, scantypes.StopMethodDirect, method)

	outcome := awaitOutcome(t, h)
	assert.Equal(t, scantypes.StateStopped, outcome.State)
	assert.Equal(t, scantypes.StopMethodDirect, outcome.StopMethod)
	require.NotEmpty(t, env.signaler.Delivered)
	assert.Equal(t, h.PID(), env.signaler.Delivered[0].PID)
	assert.Empty(t, env.mech.ElevatedSignals)
}

func TestRequestStop_ExpiredGraceSelectsElevatedPath(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("starting")
	awaitProgress(t, sub.Events(), "starting")

	// 40s after elevation success: grace window gone.
	env.clock.Advance(40 * time.Second)
	method, err := env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, scantypes.StopMethodElevated, method)

	outcome := awaitOutcome(t, h)
	assert.Equal(t, scantypes.StateStopped, outcome.State)
	assert.Equal(t, scantypes.StopMethodElevated, outcome.StopMethod)
	require.NotEmpty(t, env.mech.ElevatedSignals)
	assert.Equal(t, h.PID(), env.mech.ElevatedSignals[0].PID)
}

func TestRequestStop_IsIdempotent(t *testing.T) {
	proc := elevtest.NewMockProcess()
	proc.IgnoreSignals = true
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	first, err := env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)
	second, err := env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	proc.Exit(143)
	awaitOutcome(t, h)
}

func TestWatchdog_ForcesStopWhenProcessIgnoresSignals(t *testing.T) {
	proc := elevtest.NewMockProcess()
	proc.IgnoreSignals = true
	proc.IgnoreKill = true
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	start := time.Now()
	_, err = env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)

	outcome := awaitOutcome(t, h)
	elapsed := time.Since(start)

	assert.Equal(t, scantypes.StateStopped, outcome.State)
	assert.Equal(t, scantypes.StopMethodForced, outcome.StopMethod)
	assert.ErrorIs(t, outcome.Err, scantypes.ErrForcedTimeout)
	assert.Less(t, elapsed, 2*time.Second, "forced stop must resolve within the watchdog bound")

	// The event stream is released: the subscription channel closes.
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not closed after forced stop")
		}
	}
}

func TestWatchdog_ForcedStopReleasesProcessStreams(t *testing.T) {
	proc := elevtest.NewMockProcess()
	proc.IgnoreSignals = true
	proc.IgnoreKill = true
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("running")
	awaitProgress(t, sub.Events(), "running")

	_, err = env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)

	outcome := awaitOutcome(t, h)
	require.Equal(t, scantypes.StopMethodForced, outcome.StopMethod)

	// The process never exits, yet the forced path must still release the
	// output pipes so the stream readers do not stay blocked on the orphan.
	assert.True(t, proc.StreamsClosed(),
		"process streams must be released when the watchdog forces the stop")
	assert.False(t, proc.Exited())
}

func TestWatchdog_EscalatesToSigkill(t *testing.T) {
	proc := elevtest.NewMockProcess()
	proc.IgnoreSignals = true // survives SIGTERM, dies on SIGKILL
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)

	_, err = env.sup.RequestStop(context.Background(), h)
	require.NoError(t, err)

	outcome := awaitOutcome(t, h)
	assert.Equal(t, scantypes.StateStopped, outcome.State)
	assert.NotEqual(t, scantypes.StopMethodForced, outcome.StopMethod,
		"SIGKILL worked, so the stop is not a forced reset")
}

func TestRequestStop_SiblingElevationDoesNotGrantGrace(t *testing.T) {
	procA := elevtest.NewMockProcess()
	procB := elevtest.NewMockProcess()
	env := newTestEnv(t, procA, procB)

	// Channel A elevates and records success in the shared domain.
	hA, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)
	subA := hA.Subscribe()
	defer subA.Cancel()
	procA.EmitStdout("A running")
	awaitProgress(t, subA.Events(), "A running")
	require.True(t, env.sessions.IsWithinGracePeriod("clamav", env.clock.Now()))

	// Channel B shares the domain but has produced no output, so its own
	// launch never recorded an elevation success.
	specB := malwareSpec()
	hB, err := env.sup.Launch(context.Background(), "secondary", specB)
	require.NoError(t, err)

	env.clock.Advance(5 * time.Second)
	method, err := env.sup.RequestStop(context.Background(), hB)
	require.NoError(t, err)
	assert.Equal(t, scantypes.StopMethodElevated, method,
		"A's elevation must not grant B the direct path")

	awaitOutcome(t, hB)
	procA.Exit(0)
	awaitOutcome(t, hA)
}

func TestRequestStop_AfterTerminalIsNoOp(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)
	proc.Exit(0)
	awaitOutcome(t, h)

	method, err := env.sup.RequestStop(context.Background(), h)
	assert.NoError(t, err)
	assert.Equal(t, scantypes.StopMethodNone, method)
	assert.Empty(t, env.signaler.Delivered)
	assert.Empty(t, env.mech.ElevatedSignals)
}

func TestHandle_RetainsLastProgressPercent(t *testing.T) {
	proc := elevtest.NewMockProcess()
	env := newTestEnv(t, proc)

	h, err := env.sup.Launch(context.Background(), scantypes.ChannelMalware, malwareSpec())
	require.NoError(t, err)
	assert.Equal(t, scantypes.PercentNone, h.LastProgressPercent(),
		"no percent before any output")

	sub := h.Subscribe()
	defer sub.Cancel()
	proc.EmitStdout("progress: 37%")
	awaitProgress(t, sub.Events(), "progress: 37%")
	assert.Equal(t, 37, h.LastProgressPercent())

	// A line without a figure keeps the previous value.
	proc.EmitStdout("still scanning /home/alice")
	awaitProgress(t, sub.Events(), "still scanning /home/alice")
	assert.Equal(t, 37, h.LastProgressPercent())

	proc.EmitStdout("progress: 80%")
	awaitProgress(t, sub.Events(), "progress: 80%")
	assert.Equal(t, 80, h.LastProgressPercent())

	proc.Exit(0)
	awaitOutcome(t, h)
	assert.Equal(t, 80, h.LastProgressPercent(),
		"last percent survives the terminal outcome")
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		line string
		want int
	}{
		{line: "progress: 42%", want: 42},
		{line: "42.7 % complete", want: 42},
		{line: "0%", want: 0},
		{line: "100%", want: 100},
		{line: "stage 1: 10% stage 2: 55%", want: 55},
		{line: "no figure here", want: scantypes.PercentNone},
		{line: "999% bogus", want: scantypes.PercentNone},
		{line: "", want: scantypes.PercentNone},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParsePercent(tt.line), "line %q", tt.line)
	}
}
