package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/d2herder/d2herder/pkg/bot"
	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/recovery"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

type sinkRecorder struct {
	events []recovery.ErrorEvent
}

func (s *sinkRecorder) Handle(_ context.Context, ev recovery.ErrorEvent) recovery.Resolution {
	s.events = append(s.events, ev)
	return recovery.ResolutionContinue
}

func vitals(health, mana float64) game.Observation {
	return game.Observation{
		Label:      game.LabelInGame,
		Confidence: 1,
		Readouts: map[string]float64{
			game.ReadoutHealthPercent: health,
			game.ReadoutManaPercent:   mana,
		},
	}
}

func newTestController(t *testing.T, obs game.Observer, actor game.Actor, cfg Config) (*Controller, *bot.Machine, *sinkRecorder) {
	t.Helper()

	log := telemetry.NewTestLogger()
	metrics := telemetry.NewMetrics(telemetry.MetricsConfig{})
	events := telemetry.NewPublisher(telemetry.EventsConfig{})

	machine := bot.NewMachine(bot.DefaultGraph(), log, metrics, events)
	machine.Force(bot.StateRunning)

	sink := &sinkRecorder{}
	c := NewController(cfg, obs, actor, machine, sink, log, metrics, events)
	return c, machine, sink
}

func TestEvaluateLadder(t *testing.T) {
	c, _, _ := newTestController(t, nil, nil, Config{HealthFloor: 30, WarningHealth: 50})

	cases := []struct {
		health float64
		want   Status
	}{
		{100, StatusSafe},
		{51, StatusSafe},
		{50, StatusWarning},
		{31, StatusWarning},
		{30, StatusCritical},
		{5, StatusCritical},
	}
	for _, tc := range cases {
		if got := c.evaluate(tc.health, 100); got != tc.want {
			t.Errorf("health %.0f: expected %s, got %s", tc.health, tc.want, got)
		}
	}
}

func TestManaFloorTriggersCritical(t *testing.T) {
	c, _, _ := newTestController(t, nil, nil, Config{HealthFloor: 30, ManaFloor: 20})

	if got := c.evaluate(80, 10); got != StatusCritical {
		t.Fatalf("expected critical on low mana, got %s", got)
	}
	c2, _, _ := newTestController(t, nil, nil, Config{HealthFloor: 30})
	if got := c2.evaluate(80, 10); got == StatusCritical {
		t.Fatal("mana floor of 0 must disable the mana chicken")
	}
}

func TestChickenOnCriticalHealth(t *testing.T) {
	low := vitals(20, 80)
	observer := game.NewScriptedObserver()
	observer.Hold = &low
	actor := game.NewRecordingActor()

	c, machine, _ := newTestController(t, observer, actor, Config{
		HealthFloor: 30,
		Interval:    time.Millisecond,
	})

	c.sample(context.Background())

	if !c.Chickened() {
		t.Fatal("expected chicken latch after critical sample")
	}
	if got := machine.Current(); got != bot.StateChickened {
		t.Fatalf("expected preemptive transition to %s, got %s", bot.StateChickened, got)
	}
	if actor.Performed(game.KindDrinkPotion) == 0 {
		t.Error("expected a rejuv attempt before the chicken")
	}
	if actor.Performed(game.KindExitMenu) != 1 {
		t.Error("expected the menu exit as the first escape fallback")
	}
}

func TestRejuvRecoveryAvoidsChicken(t *testing.T) {
	observer := game.NewScriptedObserver(
		vitals(20, 80), // sample that trips critical
		vitals(75, 80), // re-read after the rejuv
	)
	actor := game.NewRecordingActor()

	c, machine, _ := newTestController(t, observer, actor, Config{
		HealthFloor: 30,
		Interval:    time.Millisecond,
	})

	c.sample(context.Background())

	if c.Chickened() {
		t.Fatal("rejuv recovered vitals, chicken must not fire")
	}
	if got := machine.Current(); got != bot.StateRunning {
		t.Errorf("machine must stay in %s, got %s", bot.StateRunning, got)
	}
}

func TestWarningSipsWithCooldown(t *testing.T) {
	warn := vitals(45, 80)
	observer := game.NewScriptedObserver()
	observer.Hold = &warn
	actor := game.NewRecordingActor()

	c, _, _ := newTestController(t, observer, actor, Config{
		HealthFloor:    30,
		WarningHealth:  50,
		PotionCooldown: time.Hour,
	})

	ctx := context.Background()
	c.sample(ctx)
	c.sample(ctx)

	if got := actor.Performed(game.KindDrinkPotion); got != 1 {
		t.Fatalf("expected exactly one sip under cooldown, got %d", got)
	}
}

func TestChickenFiresOncePerGame(t *testing.T) {
	actor := game.NewRecordingActor()
	c, _, _ := newTestController(t, nil, actor, Config{HealthFloor: 30})

	ctx := context.Background()
	c.Chicken(ctx, "first")
	c.Chicken(ctx, "second")

	if got := actor.Performed(game.KindExitMenu); got != 1 {
		t.Fatalf("expected one escape sequence, got %d", got)
	}

	c.ResetForNewGame()
	c.Chicken(ctx, "new game")
	if got := actor.Performed(game.KindExitMenu); got != 2 {
		t.Fatalf("expected latch cleared for the new game, got %d escapes", got)
	}
}

func TestEscapeFallbackChain(t *testing.T) {
	actor := game.NewRecordingActor()
	actor.FailKind(game.KindExitMenu, errors.New("template not found"))

	c, _, sink := newTestController(t, nil, actor, Config{HealthFloor: 30})
	c.Chicken(context.Background(), "test")

	// Fallback one failed and was reported; fallback two (escape + fixed
	// click) succeeded, so the chain stopped there.
	if len(sink.events) != 1 {
		t.Fatalf("expected one fallback failure event, got %d", len(sink.events))
	}
	if sink.events[0].Severity != recovery.SeverityRunEnding {
		t.Errorf("fallback failure must be run-ending, got %s", sink.events[0].Severity)
	}
	if actor.Performed(game.KindClick) != 1 {
		t.Error("expected the fixed-position save-and-exit click")
	}
}

func TestEscapeExhaustionIsCritical(t *testing.T) {
	actor := game.NewRecordingActor()
	actor.FailKind(game.KindExitMenu, errors.New("template not found"))
	actor.FailKind(game.KindPressKey, errors.New("input dead"))
	actor.FailKind(game.KindClick, errors.New("input dead"))

	c, _, sink := newTestController(t, nil, actor, Config{HealthFloor: 30})
	c.Chicken(context.Background(), "test")

	if len(sink.events) != 4 {
		t.Fatalf("expected three fallback failures plus exhaustion, got %d", len(sink.events))
	}
	last := sink.events[len(sink.events)-1]
	if last.Severity != recovery.SeverityCritical {
		t.Fatalf("exhausting every fallback must be critical, got %s", last.Severity)
	}
}

func TestSampleSkippedOutsideGame(t *testing.T) {
	low := vitals(10, 80)
	observer := game.NewScriptedObserver()
	observer.Hold = &low
	actor := game.NewRecordingActor()

	c, machine, _ := newTestController(t, observer, actor, Config{HealthFloor: 30})
	machine.Force(bot.StateMainMenu)

	c.sample(context.Background())

	if c.Chickened() {
		t.Fatal("vitals must not be evaluated outside a game")
	}
}

func TestStartStop(t *testing.T) {
	observer := game.NewScriptedObserver()
	hold := vitals(90, 90)
	observer.Hold = &hold

	c, _, _ := newTestController(t, observer, game.NewRecordingActor(), Config{
		HealthFloor: 30,
		Interval:    time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	c.Stop()
}
