// Package stats persists session and run statistics to sqlite. The
// engine writes through the store's recorder methods; the CLI reads
// summaries back out. Persistence failures never stop the engine.
package stats

import "time"

// Session is one bot session from start to stop.
type Session struct {
	ID         string
	Character  string
	StartedAt  time.Time
	EndedAt    *time.Time
	Runs       int
	Successes  int
	Deaths     int
	Chickens   int
	Errors     int
	ItemsFound int
}

// RunRecord is one completed run.
type RunRecord struct {
	ID          string
	SessionID   string
	Name        string
	Status      string
	StartedAt   time.Time
	Duration    time.Duration
	Kills       int
	ItemsPicked int
	Error       string
}

// ErrorRecord is one error event routed through the coordinator.
type ErrorRecord struct {
	ID        string
	SessionID string
	Kind      string
	Severity  string
	Origin    string
	Message   string
	At        time.Time
}

// Summary aggregates a session for display.
type Summary struct {
	Session     Session
	RunsByName  map[string]int
	AvgDuration time.Duration
	SuccessRate float64
}
