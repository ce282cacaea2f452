package recovery

import (
	"context"
	"testing"

	"github.com/d2herder/d2herder/pkg/bot"
	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *bot.Machine, *game.RecordingActor) {
	t.Helper()

	log := telemetry.NewTestLogger()
	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{})
	events := telemetry.NewPublisher(telemetry.EventsConfig{})

	machine := bot.NewMachine(bot.DefaultGraph(), log, metrics, events)
	machine.Force(bot.StateRunning)

	actor := game.NewRecordingActor()
	c := NewCoordinator(Options{Threshold: 3}, actor, machine, log, metrics, events)
	return c, machine, actor
}

func TestRecoverableErrorContinues(t *testing.T) {
	c, machine, actor := newTestCoordinator(t)

	res := c.Handle(context.Background(), NewEvent(KindStuck, bot.StateRunning, "pinned"))
	if res != ResolutionContinue {
		t.Fatalf("expected continue, got %s", res)
	}
	if actor.Performed(game.KindMoveClick) != 1 {
		t.Error("expected an unstick movement click")
	}
	if got := machine.Current(); got != bot.StateRunning {
		t.Errorf("recoverable error must not move the machine, got %s", got)
	}
}

func TestRecoverableEscalatesOnThirdOccurrence(t *testing.T) {
	c, machine, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if res := c.Handle(ctx, NewEvent(KindStuck, bot.StateRunning, "pinned")); res != ResolutionContinue {
			t.Fatalf("occurrence %d: expected continue, got %s", i+1, res)
		}
	}

	res := c.Handle(ctx, NewEvent(KindStuck, bot.StateRunning, "pinned"))
	if res != ResolutionEndRun {
		t.Fatalf("third occurrence must escalate to end-run, got %s", res)
	}
	if got := machine.Current(); got != bot.StateReturningToTown {
		t.Errorf("expected machine steered to %s, got %s", bot.StateReturningToTown, got)
	}
}

func TestMarkRecoveredResetsStreak(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	c.Handle(ctx, NewEvent(KindStuck, bot.StateRunning, "pinned"))
	c.Handle(ctx, NewEvent(KindStuck, bot.StateRunning, "pinned"))
	c.MarkRecovered(KindStuck)

	for i := 0; i < 2; i++ {
		if res := c.Handle(ctx, NewEvent(KindStuck, bot.StateRunning, "pinned")); res != ResolutionContinue {
			t.Fatalf("streak should have reset, got %s on occurrence %d", res, i+1)
		}
	}
}

func TestInventoryFullEndsRun(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	res := c.Handle(context.Background(), NewEvent(KindInventoryFull, bot.StateLooting, "bags full"))
	if res != ResolutionEndRun {
		t.Fatalf("inventory-full has no in-place recovery, expected end-run, got %s", res)
	}
}

func TestDeathEndsRun(t *testing.T) {
	c, machine, _ := newTestCoordinator(t)

	res := c.Handle(context.Background(), NewEvent(KindCharacterDeath, bot.StateFighting, "died"))
	if res != ResolutionEndRun {
		t.Fatalf("expected end-run, got %s", res)
	}
	if got := machine.Current(); got != bot.StateDead {
		t.Errorf("expected machine in %s, got %s", bot.StateDead, got)
	}
}

func TestDisconnectRestartsGame(t *testing.T) {
	c, machine, _ := newTestCoordinator(t)

	res := c.Handle(context.Background(), NewEvent(KindDisconnect, bot.StateRunning, "lost connection"))
	if res != ResolutionRestartGame {
		t.Fatalf("expected restart-game, got %s", res)
	}
	if got := machine.Current(); got != bot.StateDisconnected {
		t.Errorf("expected machine in %s, got %s", bot.StateDisconnected, got)
	}
}

func TestCriticalPausesUntilResume(t *testing.T) {
	c, machine, _ := newTestCoordinator(t)
	ctx := context.Background()

	res := c.Handle(ctx, NewEvent(KindProcessCrash, bot.StateRunning, "client gone"))
	if res != ResolutionPauseAndAlert {
		t.Fatalf("expected pause-and-alert, got %s", res)
	}
	if !c.Paused() {
		t.Fatal("coordinator must be paused after a critical error")
	}
	if got := machine.Current(); got != bot.StateError {
		t.Errorf("expected machine in %s, got %s", bot.StateError, got)
	}

	// Everything resolves to pause while paused; nothing auto-resumes.
	if res := c.Handle(ctx, NewEvent(KindStuck, bot.StateError, "pinned")); res != ResolutionPauseAndAlert {
		t.Fatalf("paused coordinator must keep pausing, got %s", res)
	}

	c.Resume()
	if c.Paused() {
		t.Fatal("expected resume to lift the pause")
	}
}

func TestRunErrorLimitGoesCritical(t *testing.T) {
	c, _, _ := newTestCoordinator(t)
	ctx := context.Background()

	// RunErrorLimit defaults to twice the threshold (6).
	var res Resolution
	for i := 0; i < 7; i++ {
		res = c.Handle(ctx, NewEvent(KindCharacterDeath, bot.StateFighting, "died"))
		if c.Paused() {
			break
		}
	}
	if res != ResolutionPauseAndAlert {
		t.Fatalf("expected run-ending storm to go critical, got %s", res)
	}
}

func TestRunCompletedResetsTally(t *testing.T) {
	c, machine, _ := newTestCoordinator(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		c.Handle(ctx, NewEvent(KindCharacterDeath, bot.StateFighting, "died"))
		machine.Force(bot.StateRunning)
	}
	c.RunCompleted(true)

	if res := c.Handle(ctx, NewEvent(KindCharacterDeath, bot.StateFighting, "died")); res != ResolutionEndRun {
		t.Fatalf("tally should have reset with the run, got %s", res)
	}
}

func TestBatchHandlesCriticalFirst(t *testing.T) {
	c, machine, actor := newTestCoordinator(t)

	evs := []ErrorEvent{
		NewEvent(KindStuck, bot.StateRunning, "pinned"),
		NewEvent(KindProcessCrash, bot.StateRunning, "client gone"),
	}
	res := c.HandleBatch(context.Background(), evs)
	if res != ResolutionPauseAndAlert {
		t.Fatalf("expected worst resolution, got %s", res)
	}
	if got := machine.Current(); got != bot.StateError {
		t.Errorf("expected machine in %s, got %s", bot.StateError, got)
	}
	// The critical event paused the coordinator before the stuck event was
	// processed, so no unstick click happened.
	if actor.Performed(game.KindMoveClick) != 0 {
		t.Error("lesser error must not act after a critical in the same batch")
	}
}

type recordingRequester struct {
	state    bot.State
	requests []bot.State
}

func (r *recordingRequester) RequestTransition(to bot.State, _ bot.Priority) error {
	r.requests = append(r.requests, to)
	return nil
}

func (r *recordingRequester) Current() bot.State { return r.state }

func TestRunEndingLeavesParkedMachineAlone(t *testing.T) {
	log := telemetry.NewTestLogger()
	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{})
	events := telemetry.NewPublisher(telemetry.EventsConfig{})

	req := &recordingRequester{state: bot.StateChickened}
	c := NewCoordinator(Options{Threshold: 3}, game.NewRecordingActor(), req, log, metrics, events)
	ctx := context.Background()

	// Failed chicken exit fallbacks arrive as run-ending action timeouts
	// while the machine already sits in Chickened. There is no edge out of
	// Chickened toward town, so the coordinator must not request one.
	ev := NewEvent(KindActionTimeout, bot.StateChickened, "exit fallback failed")
	ev.Severity = SeverityRunEnding
	if res := c.Handle(ctx, ev); res != ResolutionEndRun {
		t.Fatalf("expected end-run, got %s", res)
	}
	if len(req.requests) != 0 {
		t.Fatalf("parked machine must stay put, got requests %v", req.requests)
	}

	// A running machine still gets steered toward town.
	req.state = bot.StateRunning
	c.Handle(ctx, ev)
	if len(req.requests) != 1 || req.requests[0] != bot.StateReturningToTown {
		t.Errorf("expected a single steer to %s, got %v", bot.StateReturningToTown, req.requests)
	}
}

func TestUnclassifiedKindIsCritical(t *testing.T) {
	c, _, _ := newTestCoordinator(t)

	ev := ErrorEvent{Kind: Kind("meteor-strike"), Origin: bot.StateRunning, Message: "?"}
	if res := c.Handle(context.Background(), ev); res != ResolutionPauseAndAlert {
		t.Fatalf("unknown kinds must classify critical, got %s", res)
	}
}
