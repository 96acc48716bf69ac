// Package scantypes defines the shared data model for the scan supervision
// core: scan channels, scan kinds, command specifications, lifecycle states,
// and the event and error types exchanged between the validator, the
// authentication session manager, the process supervisor, and the lifecycle
// coordinator.
package scantypes

import "time"

// ChannelID identifies one independently controllable scan lane.
type ChannelID string

// Well-known channel IDs used by the default configuration. Callers may
// define additional channels; the coordinator treats IDs opaquely.
const (
	ChannelMalware ChannelID = "malware"
	ChannelRootkit ChannelID = "rootkit"
)

// ScanKind identifies which scanning tool a channel drives.
type ScanKind string

// Supported scan kinds
const (
	ScanKindMalware ScanKind = "malware_scan"
	ScanKindRootkit ScanKind = "rootkit_scan"
)

// PrivilegeDomain is a named scope of elevated capability. Session freshness
// is tracked per domain, so unrelated privileged actions never share state.
type PrivilegeDomain string

// CommandSpec is a fully validated, non-string-concatenated description of a
// privileged invocation. Specs are built only by the trusted templates in
// the scantemplate package, never from free-form user text.
type CommandSpec struct {
	// ExecutablePath is the absolute path of the tool to run. It must match
	// one of the configured allowlist entries byte for byte.
	ExecutablePath string

	// Args is the ordered argument vector, excluding the executable itself.
	Args []string

	// WorkDir is the working directory for the process, or empty to inherit.
	WorkDir string

	// Domain is the privilege domain this invocation elevates under.
	Domain PrivilegeDomain
}

// Argv returns the full argument vector including the executable path.
// The returned slice is a copy; mutating it does not affect the spec.
func (s CommandSpec) Argv() []string {
	argv := make([]string, 0, len(s.Args)+1)
	argv = append(argv, s.ExecutablePath)
	argv = append(argv, s.Args...)
	return argv
}

// ScanState represents the lifecycle state of a scan channel.
type ScanState int

// Channel lifecycle states. Terminal states always return the channel to
// StateIdle after observers have been notified.
const (
	StateIdle ScanState = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
	StateCompleted
	StateFailed
)

var stateNames = map[ScanState]string{
	StateIdle:      "idle",
	StateStarting:  "starting",
	StateRunning:   "running",
	StateStopping:  "stopping",
	StateStopped:   "stopped",
	StateCompleted: "completed",
	StateFailed:    "failed",
}

// String returns the lower-case name of the state.
func (s ScanState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal reports whether the state ends a scan. Terminal states are
// always followed by a reset to StateIdle.
func (s ScanState) IsTerminal() bool {
	return s == StateStopped || s == StateCompleted || s == StateFailed
}

// StopMethod records which termination path a stop request took.
type StopMethod int

// Termination paths for a stop request.
const (
	// StopMethodNone indicates the process exited without a stop request.
	StopMethodNone StopMethod = iota
	// StopMethodDirect indicates a signal was delivered without re-elevation,
	// permitted because the stop arrived within the grace period.
	StopMethodDirect
	// StopMethodElevated indicates the elevation mechanism was re-invoked to
	// deliver the termination signal.
	StopMethodElevated
	// StopMethodForced indicates the watchdog escalated and the channel was
	// reset regardless of the OS process state.
	StopMethodForced
)

// String returns the lower-case name of the stop method.
func (m StopMethod) String() string {
	switch m {
	case StopMethodDirect:
		return "direct"
	case StopMethodElevated:
		return "elevated"
	case StopMethodForced:
		return "forced"
	default:
		return "none"
	}
}

// Outcome summarizes how a scan process ended.
type Outcome struct {
	State      ScanState
	ExitCode   int
	StopMethod StopMethod
	StartedAt  time.Time
	FinishedAt time.Time
	// OutputTail holds the last retained output lines, captured for
	// diagnostics when the process exits abnormally.
	OutputTail []string
	// Err is the typed failure cause for StateFailed outcomes, nil otherwise.
	Err error
}
