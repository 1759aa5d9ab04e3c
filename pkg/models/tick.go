package models

import "time"

// Engine names used in logs, metrics and tick summaries.
const (
	EngineProber   = "prober"
	EngineWatchdog = "watchdog"
)

// TickSummary describes the outcome of one engine pass.
type TickSummary struct {
	Engine    string        `json:"engine"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`
	Changed   int           `json:"changed"`
	Writes    int           `json:"writes"`
	Skipped   int           `json:"skipped"`
	Failures  int           `json:"failures"`
	Error     string        `json:"error,omitempty"`
}
