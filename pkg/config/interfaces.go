package config

import "time"

//go:generate mockgen -destination=mock_timeouts.go -package=config github.com/mfreeman451/statustracker/pkg/config TimeoutProvider

// Validator interface for configurations that need validation.
type Validator interface {
	Validate() error
}

// TimeoutProvider supplies the timeouts and tick intervals used by the
// engines. Implementations are expected to pick up edits between calls.
type TimeoutProvider interface {
	// ProbeTimeout bounds a single reachability probe.
	ProbeTimeout() time.Duration
	// TerminalTimeout bounds the confirmation wait for one terminal.
	TerminalTimeout() time.Duration
	ProberInterval() time.Duration
	WatchdogInterval() time.Duration
}
