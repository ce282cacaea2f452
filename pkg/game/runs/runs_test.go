package runs

import (
	"context"
	"errors"
	"testing"

	"github.com/d2herder/d2herder/pkg/game"
)

func testDeps(actor game.Actor) game.Deps {
	return game.Deps{
		Observer: game.NewScriptedObserver(),
		Actor:    actor,
		Aborted:  func() bool { return false },
	}
}

func TestForNameUnknown(t *testing.T) {
	if _, err := ForName("baal"); err == nil {
		t.Fatal("expected error for unregistered run")
	}
}

func TestForNameReturnsFreshInstances(t *testing.T) {
	a, err := ForName("pindleskin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := ForName("pindleskin")
	if a == b {
		t.Fatal("expected distinct instances per call")
	}
}

func TestNamesSorted(t *testing.T) {
	names := Names()
	if len(names) != 3 {
		t.Fatalf("expected 3 registered runs, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}

func TestPindleskinSucceeds(t *testing.T) {
	actor := game.NewRecordingActor()
	run := &Pindleskin{AttackRounds: 1, SkillKey: "f1"}

	result := run.Execute(context.Background(), testDeps(actor))
	if result.Status != game.RunSucceeded {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.Kills == 0 {
		t.Error("expected at least one attack round counted")
	}
	if result.ItemsPicked == 0 {
		t.Error("expected the loot sweep to pick items")
	}
	if actor.Performed(game.KindCastSkill) != 1 {
		t.Errorf("expected 1 cast, got %d", actor.Performed(game.KindCastSkill))
	}
	if result.Duration == 0 {
		t.Error("expected duration to be reported")
	}
}

func TestRunAbortsCooperatively(t *testing.T) {
	actor := game.NewRecordingActor()
	deps := testDeps(actor)
	deps.Aborted = func() bool { return true }

	run := &Pindleskin{AttackRounds: 1, SkillKey: "f1"}
	result := run.Execute(context.Background(), deps)
	if result.Status != game.RunAborted {
		t.Fatalf("expected aborted, got %s", result.Status)
	}
	if len(actor.Actions()) != 0 {
		t.Errorf("aborted run must not act, performed %d actions", len(actor.Actions()))
	}
}

func TestRunAbortsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := &Leveling{Laps: 1, SkillKey: "f1"}
	result := run.Execute(ctx, testDeps(game.NewRecordingActor()))
	if result.Status != game.RunAborted {
		t.Fatalf("expected aborted on cancelled context, got %s", result.Status)
	}
}

func TestRunFailsOnActorError(t *testing.T) {
	actor := game.NewRecordingActor()
	actor.FailKind(game.KindMoveClick, errors.New("input layer down"))

	run := &Pindleskin{AttackRounds: 1, SkillKey: "f1"}
	result := run.Execute(context.Background(), testDeps(actor))
	if result.Status != game.RunFailed {
		t.Fatalf("expected failed, got %s", result.Status)
	}
	if result.Error == "" {
		t.Error("expected the actor error to be reported")
	}
}

type namePickit []string

func (f namePickit) Wants(name, _ string, _ bool) bool {
	for _, n := range f {
		if n == name {
			return true
		}
	}
	return false
}

func TestLootFiltersIdentifiedItems(t *testing.T) {
	drops := game.Observation{
		Label:      game.LabelInGame,
		Confidence: 1,
		Items: []game.Item{
			{Name: "Shako", Quality: "unique", X: 930, Y: 230},
			{Name: "Cracked Sash", Quality: "normal", X: 990, Y: 250},
		},
	}
	observer := game.NewScriptedObserver()
	observer.Hold = &drops

	actor := game.NewRecordingActor()
	deps := game.Deps{
		Observer: observer,
		Actor:    actor,
		Loot:     namePickit{"Shako"},
		Aborted:  func() bool { return false },
	}

	run := &Pindleskin{AttackRounds: 1, SkillKey: "f1"}
	result := run.Execute(context.Background(), deps)
	if result.Status != game.RunSucceeded {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.ItemsPicked != 1 {
		t.Fatalf("expected only the wanted drop picked, got %d", result.ItemsPicked)
	}

	var clickedWanted bool
	for _, a := range actor.Actions() {
		if a.Kind == game.KindClick && a.X == 930 && a.Y == 230 {
			clickedWanted = true
		}
		if a.Kind == game.KindClick && a.X == 990 && a.Y == 250 {
			t.Error("unwanted drop must not be clicked")
		}
	}
	if !clickedWanted {
		t.Error("expected a pickup click on the wanted drop")
	}
}

func TestLootWithoutFilterPicksEverything(t *testing.T) {
	drops := game.Observation{
		Label:      game.LabelInGame,
		Confidence: 1,
		Items: []game.Item{
			{Name: "Shako", Quality: "unique", X: 930, Y: 230},
			{Name: "Cracked Sash", Quality: "normal", X: 990, Y: 250},
		},
	}
	observer := game.NewScriptedObserver()
	observer.Hold = &drops

	deps := game.Deps{
		Observer: observer,
		Actor:    game.NewRecordingActor(),
		Aborted:  func() bool { return false },
	}

	run := &Pindleskin{AttackRounds: 1, SkillKey: "f1"}
	result := run.Execute(context.Background(), deps)
	if result.Status != game.RunSucceeded {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.Error)
	}
	if result.ItemsPicked != 2 {
		t.Fatalf("expected both drops picked without a filter, got %d", result.ItemsPicked)
	}
}

func TestLevelingBounded(t *testing.T) {
	actor := game.NewRecordingActor()
	run := &Leveling{Laps: 1, SkillKey: "f1"}

	result := run.Execute(context.Background(), testDeps(actor))
	if result.Status != game.RunSucceeded {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if got := actor.Performed(game.KindMoveClick); got != 4 {
		t.Errorf("expected 4 waypoint moves for one lap, got %d", got)
	}
}
