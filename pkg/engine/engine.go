// Package engine hosts the orchestration loop: one goroutine that ticks
// observe -> decide -> act against the state machine, with the health
// controller preempting it from the side and every fault routed through
// the recovery coordinator.
package engine

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/d2herder/d2herder/pkg/bot"
	"github.com/d2herder/d2herder/pkg/config"
	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/game/runs"
	"github.com/d2herder/d2herder/pkg/health"
	"github.com/d2herder/d2herder/pkg/recovery"
	"github.com/d2herder/d2herder/pkg/stats"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

// Recorder is the slice of the stats store the engine writes through.
// A nil Recorder disables persistence; the session still runs.
type Recorder interface {
	StartSession(ctx context.Context, character string) (string, error)
	EndSession(ctx context.Context, sessionID string) error
	RecordRun(ctx context.Context, rec stats.RunRecord) error
	RecordError(ctx context.Context, rec stats.ErrorRecord) error
}

// Engine owns the session: the state machine, the recovery coordinator,
// the health controller, and the tick loop that drives runs.
type Engine struct {
	cfg      *config.Config
	observer game.Observer
	actor    game.Actor

	machine     *bot.Machine
	coordinator *recovery.Coordinator
	healthCtrl  *health.Controller
	stuck       *recovery.StuckDetector
	town        *game.TownRoutine
	recorder    Recorder

	sessionID   string
	runIndex    int
	runsDone    int
	deaths      int
	consUnknown int

	// unknownGrace is how many consecutive unknown observations are
	// tolerated before they start counting as observation timeouts.
	unknownGrace int

	loot game.LootFilter

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.Publisher
}

// New wires an engine from its collaborators. recorder may be nil.
func New(
	cfg *config.Config,
	observer game.Observer,
	actor game.Actor,
	recorder Recorder,
	log *telemetry.Logger,
	metrics *telemetry.Metrics,
	events *telemetry.Publisher,
) *Engine {
	machine := bot.NewMachine(bot.DefaultGraph(), log, metrics, events)

	coordinator := recovery.NewCoordinator(recovery.Options{
		Threshold:     cfg.Recovery.RetryThreshold,
		RunErrorLimit: cfg.Recovery.RunErrorLimit,
		ActionTimeout: cfg.Recovery.ActionTimeout,
	}, actor, machine, log, metrics, events)

	healthCtrl := health.NewController(health.Config{
		HealthFloor:      cfg.Health.ChickenHealthPercent,
		ManaFloor:        cfg.Health.ChickenManaPercent,
		WarningHealth:    cfg.Health.PotionHealthPercent,
		Interval:         cfg.Health.CheckInterval,
		PotionCooldown:   cfg.Health.PotionCooldown,
		HealthPotionSlot: cfg.Health.HealthPotionSlot,
		RejuvPotionSlot:  cfg.Health.RejuvPotionSlot,
	}, observer, actor, machine, coordinator, log, metrics, events)

	return &Engine{
		cfg:          cfg,
		observer:     observer,
		actor:        actor,
		machine:      machine,
		coordinator:  coordinator,
		healthCtrl:   healthCtrl,
		stuck:        recovery.NewStuckDetector(cfg.Stuck.WindowSize, cfg.Stuck.EpsilonPixels),
		town:         game.DefaultTownRoutine(),
		recorder:     recorder,
		unknownGrace: cfg.Engine.UnknownGrace,
		log:          log.Component("engine"),
		metrics:      metrics,
		events:       events,
	}
}

// Machine exposes the state machine, read side only for callers.
func (e *Engine) Machine() *bot.Machine { return e.machine }

// Coordinator exposes the recovery coordinator, mainly for Resume.
func (e *Engine) Coordinator() *recovery.Coordinator { return e.coordinator }

// Resume lifts a critical pause.
func (e *Engine) Resume() { e.coordinator.Resume() }

// SetLootFilter installs the pickup filter handed to runs. A nil filter
// means runs pick up everything their sweep reaches.
func (e *Engine) SetLootFilter(f game.LootFilter) { e.loot = f }

// Run executes the session until ctx is cancelled, the run limit is hit,
// or a critical error pauses it and ctx ends before a resume.
func (e *Engine) Run(ctx context.Context) error {
	if e.recorder != nil {
		id, err := e.recorder.StartSession(ctx, e.cfg.Session.Character)
		if err != nil {
			return err
		}
		e.sessionID = id
		defer func() {
			_ = e.recorder.EndSession(context.Background(), e.sessionID)
		}()
	}

	e.machine.Force(bot.StateStarting)
	e.healthCtrl.Start(ctx)
	defer e.healthCtrl.Stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.loop(ctx) })

	err := g.Wait()
	e.machine.Force(bot.StateIdle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (e *Engine) loop(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.Engine.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.metrics.RecordTick()
			if e.coordinator.Paused() {
				continue
			}
			if done, err := e.tick(ctx); done || err != nil {
				return err
			}
		}
	}
}

// tick is one observe -> decide -> act iteration. Returns done when the
// session reached its run limit.
func (e *Engine) tick(ctx context.Context) (done bool, err error) {
	obs, ok := e.observe(ctx)
	if !ok {
		return false, nil
	}

	e.machine.SetObservation(obs)
	e.feedStuckDetector(ctx, obs)

	switch e.machine.Current() {
	case bot.StateStarting, bot.StateMainMenu, bot.StateCharacterSelect,
		bot.StateLobby, bot.StateCreatingGame, bot.StateJoiningGame,
		bot.StateLoading:
		e.navigate(ctx, obs)
	case bot.StateInTown:
		return e.townAndRun(ctx)
	case bot.StateDead, bot.StateChickened, bot.StateDisconnected:
		e.leaveAndRejoin(ctx, obs)
	case bot.StateStuck:
		// The coordinator's unstick click either worked or the detector
		// will flag again; rejoin the run either way.
		_ = e.machine.RequestTransition(bot.StateRunning, bot.PriorityNormal)
	}

	return false, nil
}

// observe classifies the current frame under the configured timeout and
// confidence floor. Timeouts and sustained unknowns are routed to the
// coordinator; a usable observation confirms any pending recovery.
func (e *Engine) observe(ctx context.Context) (game.Observation, bool) {
	octx, cancel := context.WithTimeout(ctx, e.cfg.Engine.ObserveTimeout)
	obs, err := e.observer.Observe(octx)
	cancel()

	if err != nil {
		// A hard port failure is never a classifier misfire: it counts
		// against the budget immediately and joins the unknown streak so
		// alternating errors and unknowns share one streak.
		e.consUnknown++
		ev := recovery.NewEvent(recovery.KindObservationTimeout, e.machine.Current(), err.Error())
		e.dispatch(ctx, ev)
		return game.Observation{}, false
	}

	obs = obs.Normalized(e.cfg.Engine.ConfidenceFloor)
	if obs.Unknown() {
		e.consUnknown++
		if e.consUnknown > e.unknownGrace {
			ev := recovery.NewEvent(recovery.KindObservationTimeout, e.machine.Current(),
				"sustained unknown observation")
			e.dispatch(ctx, ev)
		}
		return game.Observation{}, false
	}

	if e.consUnknown > 0 {
		e.coordinator.MarkRecovered(recovery.KindObservationTimeout)
	}
	e.consUnknown = 0

	// Death and disconnect screens persist for many ticks; count each
	// occurrence once, on the edge into the state.
	if obs.Label == game.LabelDeath {
		if e.machine.Current() != bot.StateDead {
			e.onDeath(ctx)
			return game.Observation{}, false
		}
		return obs, true
	}
	if obs.Label == game.LabelDisconnected {
		if e.machine.Current() != bot.StateDisconnected {
			ev := recovery.NewEvent(recovery.KindDisconnect, e.machine.Current(), "disconnect observed")
			e.dispatch(ctx, ev)
			return game.Observation{}, false
		}
		return obs, true
	}

	return obs, true
}

// feedStuckDetector samples position in field states and menu markers
// elsewhere, so a frozen menu is flagged the same way as a pinned
// character.
func (e *Engine) feedStuckDetector(ctx context.Context, obs game.Observation) {
	state := e.machine.Current()

	var sample recovery.PositionSample
	x, okX := obs.Readout(game.ReadoutPositionX)
	y, okY := obs.Readout(game.ReadoutPositionY)
	if state.InGame() && okX && okY {
		sample = recovery.PositionSample{X: x, Y: y}
	} else {
		sample = recovery.PositionSample{Marker: string(obs.Label)}
	}

	if ev := e.stuck.Observe(sample, state); ev != nil {
		if state.InGame() {
			_ = e.machine.RequestTransition(bot.StateStuck, bot.PriorityNormal)
		}
		e.dispatch(ctx, *ev)
	}
}

// navigate walks the menu flow toward a fresh game. One step per tick;
// the observation label tells us which screen we are actually on.
func (e *Engine) navigate(ctx context.Context, obs game.Observation) {
	actx, cancel := context.WithTimeout(ctx, e.cfg.Recovery.ActionTimeout)
	defer cancel()

	switch obs.Label {
	case game.LabelMainMenu:
		_ = e.machine.RequestTransition(bot.StateMainMenu, bot.PriorityNormal)
		e.act(ctx, actx, game.Click(960, 400))
	case game.LabelCharacterSelect:
		_ = e.machine.RequestTransition(bot.StateCharacterSelect, bot.PriorityNormal)
		e.act(ctx, actx, game.Click(640, 300))
		_ = e.machine.RequestTransition(bot.StateCreatingGame, bot.PriorityNormal)
	case game.LabelLobby:
		_ = e.machine.RequestTransition(bot.StateLobby, bot.PriorityNormal)
		e.act(ctx, actx, game.Click(1500, 820))
	case game.LabelCreateGame:
		_ = e.machine.RequestTransition(bot.StateCreatingGame, bot.PriorityNormal)
		e.act(ctx, actx, game.PressKey("enter"))
	case game.LabelLoading:
		_ = e.machine.RequestTransition(bot.StateLoading, bot.PriorityNormal)
	case game.LabelInTown, game.LabelInGame:
		if err := e.machine.RequestTransition(bot.StateInTown, bot.PriorityNormal); err == nil {
			e.healthCtrl.ResetForNewGame()
			e.stuck.Reset()
		}
	}
}

// leaveAndRejoin drives the machine out of a terminal in-game state and
// back into the menu flow.
func (e *Engine) leaveAndRejoin(ctx context.Context, obs game.Observation) {
	switch obs.Label {
	case game.LabelMainMenu, game.LabelCharacterSelect, game.LabelLobby, game.LabelCreateGame:
		_ = e.machine.RequestTransition(bot.StateMainMenu, bot.PriorityNormal)
	case game.LabelInTown, game.LabelInGame:
		// Death leaves the corpse in town after a resurrect click.
		if e.machine.Current() == bot.StateDead {
			_ = e.machine.RequestTransition(bot.StateInTown, bot.PriorityNormal)
		}
	default:
		actx, cancel := context.WithTimeout(ctx, e.cfg.Recovery.ActionTimeout)
		e.act(ctx, actx, game.ExitMenu())
		cancel()
	}
}

// townAndRun performs due town chores and then the next run. Blocking by
// design: the health controller and its preemptive transitions stay live
// on their own goroutine, and the run polls the machine between steps.
func (e *Engine) townAndRun(ctx context.Context) (done bool, err error) {
	deps := e.deps()

	if err := e.town.Execute(ctx, deps, game.TownNeeds{Heal: true, Stash: true}); err != nil {
		if !errors.Is(err, context.Canceled) {
			ev := recovery.NewEvent(recovery.KindActionTimeout, e.machine.Current(), err.Error())
			e.dispatch(ctx, ev)
		}
		return false, nil
	}

	if err := e.machine.RequestTransition(bot.StateRunning, bot.PriorityNormal); err != nil {
		return false, nil
	}

	result, name := e.executeRun(ctx, deps)
	e.finishRun(ctx, name, result)

	if e.cfg.Session.MaxRuns > 0 && e.runsDone >= e.cfg.Session.MaxRuns {
		e.log.Infof("run limit reached (%d), stopping", e.cfg.Session.MaxRuns)
		_ = e.machine.RequestTransition(bot.StateStopping, bot.PriorityNormal)
		return true, nil
	}
	return false, nil
}

func (e *Engine) executeRun(ctx context.Context, deps game.Deps) (game.RunResult, string) {
	names := e.cfg.Session.Runs
	name := names[e.runIndex%len(names)]
	e.runIndex++

	run, err := runs.ForName(name)
	if err != nil {
		return game.RunResult{Status: game.RunFailed, Error: err.Error()}, name
	}

	rctx := ctx
	var cancel context.CancelFunc
	if e.cfg.Engine.RunTimeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, e.cfg.Engine.RunTimeout)
		defer cancel()
	}

	_ = e.events.Publish(telemetry.RunStarted(e.sessionID, name))
	started := time.Now()
	result := run.Execute(rctx, deps)
	if result.Duration == 0 {
		result.Duration = time.Since(started)
	}

	if rctx.Err() != nil && errors.Is(rctx.Err(), context.DeadlineExceeded) {
		result.Status = game.RunTimedOut
	}

	// An abort on a chickened or dead machine reports what actually
	// ended the run, not the cooperative bailout.
	if result.Status == game.RunAborted {
		switch e.machine.Current() {
		case bot.StateChickened:
			result.Status = game.RunChickened
		case bot.StateDead:
			result.Status = game.RunDied
		}
	}

	return result, name
}

func (e *Engine) finishRun(ctx context.Context, name string, result game.RunResult) {
	e.runsDone++
	e.metrics.RecordRun(name, string(result.Status), result.Duration)
	_ = e.events.Publish(telemetry.RunFinished(e.sessionID, name, string(result.Status), result.Duration))
	if e.recorder != nil {
		_ = e.recorder.RecordRun(ctx, stats.RunRecord{
			SessionID:   e.sessionID,
			Name:        name,
			Status:      string(result.Status),
			StartedAt:   time.Now().Add(-result.Duration),
			Duration:    result.Duration,
			Kills:       result.Kills,
			ItemsPicked: result.ItemsPicked,
			Error:       result.Error,
		})
	}

	success := result.Status == game.RunSucceeded
	e.coordinator.RunCompleted(success)
	e.stuck.Reset()

	switch result.Status {
	case game.RunSucceeded:
		// Back to town for the next cycle.
		_ = e.machine.RequestTransition(bot.StateReturningToTown, bot.PriorityNormal)
		_ = e.machine.RequestTransition(bot.StateInTown, bot.PriorityNormal)
	case game.RunDied:
		e.onDeath(ctx)
	case game.RunTimedOut:
		ev := recovery.NewEvent(recovery.KindActionTimeout, e.machine.Current(), "run timed out")
		ev.Severity = recovery.SeverityRunEnding
		e.dispatch(ctx, ev)
	case game.RunFailed:
		ev := recovery.NewEvent(recovery.KindTemplateFail, e.machine.Current(), result.Error)
		e.dispatch(ctx, ev)
	}
}

// onDeath records the death, routes it as a run-ending error, and pauses
// the session when the death budget is spent.
func (e *Engine) onDeath(ctx context.Context) {
	e.deaths++
	e.metrics.RecordDeath()

	ev := recovery.NewEvent(recovery.KindCharacterDeath, e.machine.Current(), "character died")
	if e.cfg.Session.MaxDeaths > 0 && e.deaths >= e.cfg.Session.MaxDeaths {
		ev.Severity = recovery.SeverityCritical
		ev.Message = "death limit reached"
	}
	e.dispatch(ctx, ev)
}

// dispatch routes an error event through the coordinator, persists it,
// and applies the resolution.
func (e *Engine) dispatch(ctx context.Context, ev recovery.ErrorEvent) {
	res := e.coordinator.Handle(ctx, ev)
	if e.recorder != nil {
		_ = e.recorder.RecordError(ctx, stats.ErrorRecord{
			ID:        ev.ID,
			SessionID: e.sessionID,
			Kind:      string(ev.Kind),
			Severity:  string(ev.Severity),
			Origin:    ev.Origin.String(),
			Message:   ev.Message,
			At:        ev.At,
		})
	}
	e.apply(ctx, res)
}

// apply enacts a coordinator resolution. Continue needs nothing; the
// others steer the machine. PauseAndAlert is handled by the loop checking
// Paused each tick.
func (e *Engine) apply(ctx context.Context, res recovery.Resolution) {
	switch res {
	case recovery.ResolutionRestartGame:
		actx, cancel := context.WithTimeout(ctx, e.cfg.Recovery.ActionTimeout)
		e.act(ctx, actx, game.ExitMenu())
		cancel()
		e.stuck.Reset()
	case recovery.ResolutionEndRun:
		e.stuck.Reset()
	}
}

func (e *Engine) deps() game.Deps {
	return game.Deps{
		Observer: e.observer,
		Actor:    e.actor,
		Loot:     e.loot,
		Aborted: func() bool {
			switch e.machine.Current() {
			case bot.StateChickened, bot.StateDead, bot.StateStopping,
				bot.StateError, bot.StateDisconnected:
				return true
			}
			return false
		},
	}
}

// act performs one action and routes a failure as an action timeout.
func (e *Engine) act(ctx, actx context.Context, action game.Action) {
	if err := e.actor.Perform(actx, action); err != nil {
		ev := recovery.NewEvent(recovery.KindActionTimeout, e.machine.Current(), err.Error())
		e.dispatch(ctx, ev)
	}
}
