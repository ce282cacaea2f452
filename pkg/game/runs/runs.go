// Package runs contains the concrete farming and leveling routes. Each
// route is a scripted sequence over the observation and action ports,
// polling the abort check between steps so a chicken or death preempts it
// within one step.
package runs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/d2herder/d2herder/pkg/game"
)

// registry maps run names to factories. Factories keep routes stateless
// across runs; every Execute starts fresh.
var registry = map[string]func() game.Run{
	"pindleskin": func() game.Run { return NewPindleskin() },
	"mephisto":   func() game.Run { return NewMephisto() },
	"leveling":   func() game.Run { return NewLeveling() },
}

// ForName returns a fresh run for the given name.
func ForName(name string) (game.Run, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown run %q (have %v)", name, Names())
	}
	return factory(), nil
}

// Names lists the registered run names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// step performs one action, honoring the abort check first. Returns
// (aborted, err).
func step(ctx context.Context, deps game.Deps, action game.Action) (bool, error) {
	if deps.Preempted() || ctx.Err() != nil {
		return true, nil
	}
	return false, deps.Actor.Perform(ctx, action)
}

// settle waits briefly between route steps so the client can catch up.
func settle(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return false
	case <-ctx.Done():
		return true
	}
}

// aborted builds the result for a cooperatively abandoned run.
func aborted(name string, started time.Time) game.RunResult {
	return game.RunResult{
		Status:   game.RunAborted,
		Duration: time.Since(started),
		Error:    name + " aborted",
	}
}

// failed builds the result for a route error.
func failed(err error, started time.Time) game.RunResult {
	return game.RunResult{
		Status:   game.RunFailed,
		Duration: time.Since(started),
		Error:    err.Error(),
	}
}
