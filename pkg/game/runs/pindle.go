package runs

import (
	"context"
	"time"

	"github.com/d2herder/d2herder/pkg/game"
)

// Pindleskin is the shortest farming route: red portal in Harrogath,
// short corridor, one super-unique pack, loot, done.
type Pindleskin struct {
	// AttackRounds is how many cast cycles to spend on the pack.
	AttackRounds int

	// SkillKey is the bound attack skill.
	SkillKey string
}

// NewPindleskin returns the route with stock settings.
func NewPindleskin() *Pindleskin {
	return &Pindleskin{AttackRounds: 6, SkillKey: "f1"}
}

// Name implements game.Run.
func (p *Pindleskin) Name() string { return "pindleskin" }

// Execute implements game.Run.
func (p *Pindleskin) Execute(ctx context.Context, deps game.Deps) game.RunResult {
	started := time.Now()

	// Red portal sits next to Anya in town.
	route := []game.Action{
		game.MoveClick(1160, 340),
		game.Click(1205, 310),
	}
	for _, a := range route {
		if stop, err := step(ctx, deps, a); stop {
			return aborted(p.Name(), started)
		} else if err != nil {
			return failed(err, started)
		}
		if settle(ctx, 400*time.Millisecond) {
			return aborted(p.Name(), started)
		}
	}

	// Corridor toward the pack, then attack rounds on Pindle's position.
	approach := []game.Action{
		game.MoveClick(960, 260),
		game.MoveClick(960, 220),
	}
	for _, a := range approach {
		if stop, err := step(ctx, deps, a); stop {
			return aborted(p.Name(), started)
		} else if err != nil {
			return failed(err, started)
		}
	}

	kills := 0
	for round := 0; round < p.AttackRounds; round++ {
		if stop, err := step(ctx, deps, game.CastSkill(p.SkillKey, 960, 240)); stop {
			return aborted(p.Name(), started)
		} else if err != nil {
			return failed(err, started)
		}
		if settle(ctx, 300*time.Millisecond) {
			return aborted(p.Name(), started)
		}
		kills++
	}

	items, result := loot(ctx, deps, p.Name(), started)
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

// loot picks up the drops. Shared by the farming routes. When the frame
// carries identified items they are filtered through the pickit rules and
// clicked individually; without item recognition the sweep falls back to
// blind clicks over the likely drop zone.
func loot(ctx context.Context, deps game.Deps, name string, started time.Time) (int, *game.RunResult) {
	picked := 0

	if obs, err := deps.Observer.Observe(ctx); err == nil && len(obs.Items) > 0 {
		for _, it := range obs.Items {
			if deps.Loot != nil && !deps.Loot.Wants(it.Name, it.Quality, it.Ethereal) {
				continue
			}
			if stop, err := step(ctx, deps, game.Click(it.X, it.Y)); stop {
				r := aborted(name, started)
				return picked, &r
			} else if err != nil {
				r := failed(err, started)
				return picked, &r
			}
			picked++
		}
		return picked, nil
	}

	spots := [][2]int{{920, 220}, {1000, 240}, {960, 280}}
	for _, s := range spots {
		if stop, err := step(ctx, deps, game.Click(s[0], s[1])); stop {
			r := aborted(name, started)
			return picked, &r
		} else if err != nil {
			r := failed(err, started)
			return picked, &r
		}
		picked++
	}
	return picked, nil
}
