package game

import (
	"context"
	"time"
)

// RunStatus is the terminal status of a single run.
type RunStatus string

const (
	RunSucceeded RunStatus = "succeeded"
	RunDied      RunStatus = "died"
	RunChickened RunStatus = "chickened"
	RunFailed    RunStatus = "failed"
	RunTimedOut  RunStatus = "timed_out"
	RunAborted   RunStatus = "aborted"
)

// RunResult is what a domain handler reports back to the orchestration
// loop. The loop interprets it to pick the next transition; it is not
// retained by the core beyond that handoff.
type RunResult struct {
	Status      RunStatus
	Duration    time.Duration
	Kills       int
	ItemsPicked int
	Error       string
}

// LootFilter decides whether an identified drop is worth picking up.
// Pickit rule sets implement it; a nil filter picks everything.
type LootFilter interface {
	Wants(name, quality string, ethereal bool) bool
}

// Deps carries the collaborators a run is allowed to use. Runs see the
// world only through the two ports plus an abort check.
type Deps struct {
	Observer Observer
	Actor    Actor

	// Loot filters identified drops during the loot sweep. Nil means pick
	// up everything the sweep reaches.
	Loot LootFilter

	// Aborted reports whether the run has been preempted (chicken, death,
	// engine stop). Runs poll it between steps and bail out cooperatively;
	// nothing force-kills them.
	Aborted func() bool
}

// Preempted is a convenience guard for run implementations.
func (d Deps) Preempted() bool {
	return d.Aborted != nil && d.Aborted()
}

// Run is one executable farming or leveling route. The engine depends
// only on this interface; concrete routes live in pkg/game/runs.
type Run interface {
	Name() string
	Execute(ctx context.Context, deps Deps) RunResult
}
