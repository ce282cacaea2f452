package runs

import (
	"context"
	"time"

	"github.com/d2herder/d2herder/pkg/game"
)

// Leveling grinds a fixed area in circles instead of targeting one boss.
// It is open-ended, so it leans harder on the abort check than the
// farming routes: every lap checks it.
type Leveling struct {
	// Laps bounds the grind so a single run still terminates.
	Laps     int
	SkillKey string
}

// NewLeveling returns the route with stock settings.
func NewLeveling() *Leveling {
	return &Leveling{Laps: 8, SkillKey: "f1"}
}

// Name implements game.Run.
func (l *Leveling) Name() string { return "leveling" }

// Execute implements game.Run.
func (l *Leveling) Execute(ctx context.Context, deps game.Deps) game.RunResult {
	started := time.Now()

	circuit := [][2]int{
		{1200, 300}, {1200, 600}, {700, 600}, {700, 300},
	}

	kills := 0
	for lap := 0; lap < l.Laps; lap++ {
		for _, wp := range circuit {
			if stop, err := step(ctx, deps, game.MoveClick(wp[0], wp[1])); stop {
				return aborted(l.Name(), started)
			} else if err != nil {
				return failed(err, started)
			}
			if stop, err := step(ctx, deps, game.CastSkill(l.SkillKey, wp[0], wp[1])); stop {
				return aborted(l.Name(), started)
			} else if err != nil {
				return failed(err, started)
			}
			if settle(ctx, 200*time.Millisecond) {
				return aborted(l.Name(), started)
			}
			kills++
		}
	}

	return game.RunResult{
		Status:   game.RunSucceeded,
		Duration: time.Since(started),
		Kills:    kills,
	}
}
