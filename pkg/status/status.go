// Package status pkg/status/status.go holds the transition rules shared by
// the prober and the watchdog.
package status

import (
	"github.com/mfreeman451/statustracker/pkg/models"
)

// Reasons attached to terminal decisions in logs and metrics.
const (
	ReasonAdvanced         = "advanced"
	ReasonFirstObservation = "first_observation"
	ReasonTimeout          = "timeout"
	ReasonInterrupted      = "interrupted"
	ReasonNoHeartbeat      = "no_heartbeat"
	ReasonNoTerminalID     = "no_terminal_id"
)

// EndpointDecision says whether a probe result has to be persisted and
// whether the write refreshes lastChangeTimestamp.
type EndpointDecision struct {
	Changed bool
	Write   bool
	Stamp   bool
}

// DecideEndpoint applies the endpoint write policy. A flip is always written,
// an unreachable endpoint is re-affirmed on every tick and a steady reachable
// endpoint is left alone. lastChangeTimestamp marks the latest unreachable
// observation, so a recovery keeps the old one. With alwaysWrite every result
// is written and stamped.
func DecideEndpoint(previous, current, alwaysWrite bool) EndpointDecision {
	changed := previous != current

	return EndpointDecision{
		Changed: changed,
		Write:   alwaysWrite || changed || !current,
		Stamp:   alwaysWrite || !current,
	}
}

// Confirmation is the outcome of waiting for a heartbeat counter to advance.
type Confirmation struct {
	Live    bool
	Counter int64
	Reason  string
}

// ApplyConfirmation returns the terminal after a confirmation. The input is
// not modified.
func ApplyConfirmation(t *models.TerminalState, c Confirmation) models.TerminalState {
	next := t.Clone()
	next.Live = c.Live

	counter := c.Counter
	next.LastSeenCounter = &counter

	return next
}

// FirstObservation records counter without touching the liveness flag.
func FirstObservation(t *models.TerminalState, counter int64) models.TerminalState {
	next := t.Clone()
	next.LastSeenCounter = &counter

	return next
}

// TerminalChanged reports whether live or lastSeenCounter differ.
func TerminalChanged(before, after *models.TerminalState) bool {
	if before.Live != after.Live {
		return true
	}

	switch {
	case before.LastSeenCounter == nil && after.LastSeenCounter == nil:
		return false
	case before.LastSeenCounter == nil || after.LastSeenCounter == nil:
		return true
	default:
		return *before.LastSeenCounter != *after.LastSeenCounter
	}
}
