package runs

import (
	"context"
	"time"

	"github.com/d2herder/d2herder/pkg/game"
)

// Mephisto runs Durance of Hate level 3: waypoint, teleport to the
// moat, kill across it, loot the council drop zone.
type Mephisto struct {
	AttackRounds int
	SkillKey     string
	TeleportKey  string
}

// NewMephisto returns the route with stock settings.
func NewMephisto() *Mephisto {
	return &Mephisto{AttackRounds: 10, SkillKey: "f1", TeleportKey: "f2"}
}

// Name implements game.Run.
func (m *Mephisto) Name() string { return "mephisto" }

// Execute implements game.Run.
func (m *Mephisto) Execute(ctx context.Context, deps game.Deps) game.RunResult {
	started := time.Now()

	// Waypoint to Durance 2, then teleport chain to the level 3 stairs.
	if stop, err := step(ctx, deps, game.MoveClick(720, 400)); stop {
		return aborted(m.Name(), started)
	} else if err != nil {
		return failed(err, started)
	}
	if settle(ctx, 600*time.Millisecond) {
		return aborted(m.Name(), started)
	}

	hops := [][2]int{{1100, 300}, {1150, 350}, {1100, 400}, {1050, 450}}
	for _, h := range hops {
		if stop, err := step(ctx, deps, game.CastSkill(m.TeleportKey, h[0], h[1])); stop {
			return aborted(m.Name(), started)
		} else if err != nil {
			return failed(err, started)
		}
		if settle(ctx, 250*time.Millisecond) {
			return aborted(m.Name(), started)
		}
	}

	// Moat trick position, then attack rounds across the water.
	if stop, err := step(ctx, deps, game.CastSkill(m.TeleportKey, 820, 480)); stop {
		return aborted(m.Name(), started)
	} else if err != nil {
		return failed(err, started)
	}

	kills := 0
	for round := 0; round < m.AttackRounds; round++ {
		if stop, err := step(ctx, deps, game.CastSkill(m.SkillKey, 1020, 360)); stop {
			return aborted(m.Name(), started)
		} else if err != nil {
			return failed(err, started)
		}
		if settle(ctx, 300*time.Millisecond) {
			return aborted(m.Name(), started)
		}
		kills++
	}

	items, result := loot(ctx, deps, m.Name(), started)
	if result != nil {
		return *result
	}

	return game.RunResult{
		Status:      game.RunSucceeded,
		Duration:    time.Since(started),
		Kills:       kills,
		ItemsPicked: items,
	}
}
