package scantypes

import "time"

// EventKind distinguishes the payload carried by an Event.
type EventKind int

// Event kinds published on a channel's stream.
const (
	// EventProgress carries one raw output line and, when the line contained
	// a recognizable completion figure, a parsed percentage.
	EventProgress EventKind = iota
	// EventStateChange carries a lifecycle state transition.
	EventStateChange
)

// PercentNone marks the absence of a parsed progress percentage.
const PercentNone = -1

// Event is a single observation published on a scan channel's stream.
// Events for a given channel are delivered in the order they occurred;
// no ordering is guaranteed across channels.
type Event struct {
	Channel ChannelID
	Kind    EventKind
	At      time.Time

	// RawLine is the unmodified output line for EventProgress events.
	RawLine string
	// Percent is the parsed completion percentage in [0,100], or PercentNone.
	Percent int

	// From and To describe the transition for EventStateChange events.
	From ScanState
	To   ScanState
	// Outcome is set on the transition into a terminal state.
	Outcome *Outcome
}

// HasPercent reports whether the event carries a parsed percentage.
func (e Event) HasPercent() bool {
	return e.Kind == EventProgress && e.Percent != PercentNone
}
