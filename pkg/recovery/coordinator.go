package recovery

import (
	"context"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/d2herder/d2herder/pkg/bot"
	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

// Resolution tells the caller what to do after an error was handled.
type Resolution string

const (
	// ResolutionContinue resumes normal operation.
	ResolutionContinue Resolution = "continue"

	// ResolutionEndRun terminates the current run; a fresh one starts
	// afterwards.
	ResolutionEndRun Resolution = "end_run"

	// ResolutionRestartGame leaves and recreates the game session.
	ResolutionRestartGame Resolution = "restart_game"

	// ResolutionPauseAndAlert stops the engine until externally resumed.
	ResolutionPauseAndAlert Resolution = "pause_and_alert"
)

// TransitionRequester is the slice of the state machine the coordinator
// needs: it requests transitions, it never writes state.
type TransitionRequester interface {
	RequestTransition(to bot.State, priority bot.Priority) error
	Current() bot.State
}

// Options configures a Coordinator.
type Options struct {
	// Threshold is the per-kind retry budget (default 3).
	Threshold int

	// RunErrorLimit caps run-ending errors per run before escalating to
	// critical. Zero means twice the threshold.
	RunErrorLimit int

	// ActionTimeout bounds each recovery action (default 2s).
	ActionTimeout time.Duration
}

// Coordinator is the single consumer of ErrorEvents. Each event moves
// through Detected -> Classified -> RecoveryAttempted -> Resolved or
// Escalated; escalation is monotonic, never the reverse.
type Coordinator struct {
	classification map[Kind]Severity
	budgets        *Budgets
	actor          game.Actor
	transitions    TransitionRequester

	threshold     int
	runErrorLimit int
	actionTimeout time.Duration

	paused atomic.Bool

	mu       sync.Mutex
	runTally int

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.Publisher
}

// NewCoordinator wires the coordinator to the action port and the state
// machine's transition entry point.
func NewCoordinator(
	opts Options,
	actor game.Actor,
	transitions TransitionRequester,
	log *telemetry.Logger,
	metrics *telemetry.Metrics,
	events *telemetry.Publisher,
) *Coordinator {
	if opts.Threshold <= 0 {
		opts.Threshold = 3
	}
	if opts.RunErrorLimit <= 0 {
		opts.RunErrorLimit = opts.Threshold * 2
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = 2 * time.Second
	}
	return &Coordinator{
		classification: DefaultClassification(),
		budgets:        NewBudgets(opts.Threshold),
		actor:          actor,
		transitions:    transitions,
		threshold:      opts.Threshold,
		runErrorLimit:  opts.RunErrorLimit,
		actionTimeout:  opts.ActionTimeout,
		log:            log.Component("recovery"),
		metrics:        metrics,
		events:         events,
	}
}

// Handle consumes one ErrorEvent and returns the resolution the caller
// must apply. While the coordinator is paused every event resolves to
// PauseAndAlert without further processing.
func (c *Coordinator) Handle(ctx context.Context, ev ErrorEvent) Resolution {
	sev := ev.Severity
	if sev == "" {
		sev = c.classify(ev.Kind)
	}

	c.log.Zerolog().Warn().
		Str("kind", string(ev.Kind)).
		Str("severity", string(sev)).
		Str("origin", ev.Origin.String()).
		Str("msg", ev.Message).
		Msg("error event")
	c.metrics.RecordError(string(ev.Kind), string(sev))
	_ = c.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeErrorDetected,
		Source:  "recovery",
		Message: ev.Message,
		Level:   telemetry.EventLevelWarning,
		Data: map[string]interface{}{
			"kind":     string(ev.Kind),
			"severity": string(sev),
			"origin":   ev.Origin.String(),
		},
	})

	if c.paused.Load() {
		return ResolutionPauseAndAlert
	}

	switch sev {
	case SeverityRecoverable:
		return c.handleRecoverable(ctx, ev)
	case SeverityRunEnding:
		return c.handleRunEnding(ev)
	default:
		return c.handleCritical(ev)
	}
}

// HandleBatch processes events detected in the same tick in severity
// order, Critical first, so a fatal condition is never masked by a lesser
// one resolving first. Returns the most drastic resolution.
func (c *Coordinator) HandleBatch(ctx context.Context, evs []ErrorEvent) Resolution {
	sorted := make([]ErrorEvent, len(evs))
	copy(sorted, evs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return c.severityOf(sorted[i]).rank() > c.severityOf(sorted[j]).rank()
	})

	worst := ResolutionContinue
	for _, ev := range sorted {
		if r := c.Handle(ctx, ev); resolutionRank(r) > resolutionRank(worst) {
			worst = r
		}
	}
	return worst
}

func (c *Coordinator) handleRecoverable(ctx context.Context, ev ErrorEvent) Resolution {
	if c.budgets.Fail(ev.Kind) {
		// Budget crossed: this occurrence escalates to run-ending, once.
		c.metrics.RecordEscalation(string(ev.Kind))
		_ = c.events.Publish(telemetry.Event{
			Type:    telemetry.EventTypeErrorEscalated,
			Source:  "recovery",
			Message: "retry budget exhausted, escalating",
			Level:   telemetry.EventLevelError,
			Data:    map[string]interface{}{"kind": string(ev.Kind)},
		})
		c.log.Zerolog().Error().
			Str("kind", string(ev.Kind)).
			Int("threshold", c.threshold).
			Msg("retry budget exhausted, escalating to run-ending")

		ev.Severity = SeverityRunEnding
		return c.handleRunEnding(ev)
	}

	if ev.Kind == KindInventoryFull {
		// No in-place recovery exists: hand off to end-of-run town logic.
		return ResolutionEndRun
	}

	c.attemptRecovery(ctx, ev)
	return ResolutionContinue
}

func (c *Coordinator) handleRunEnding(ev ErrorEvent) Resolution {
	c.mu.Lock()
	c.runTally++
	tally := c.runTally
	c.mu.Unlock()

	if tally > c.runErrorLimit {
		ev.Message = "run-level retries exhausted"
		return c.handleCritical(ev)
	}

	target := StateForRunEnd(ev.Kind)
	switch c.transitions.Current() {
	case target, bot.StateChickened, bot.StateDead, bot.StateDisconnected, bot.StateError:
		// Already parked in a run-end state; the engine's rejoin flow
		// owns the exit from here.
	default:
		if err := c.transitions.RequestTransition(target, bot.PriorityPreemptive); err != nil {
			c.log.Zerolog().Warn().
				Str("target", target.String()).
				Err(err).
				Msg("run-ending transition rejected")
		}
	}

	if ev.Kind == KindDisconnect || ev.Kind == KindProcessCrash {
		return ResolutionRestartGame
	}
	return ResolutionEndRun
}

func (c *Coordinator) handleCritical(ev ErrorEvent) Resolution {
	c.paused.Store(true)

	c.log.Zerolog().Error().
		Str("kind", string(ev.Kind)).
		Str("msg", ev.Message).
		Msg("CRITICAL: engine paused, manual resume required")
	_ = c.events.Publish(telemetry.Alert(
		"critical error (" + string(ev.Kind) + "): " + ev.Message + ", engine paused"))

	if err := c.transitions.RequestTransition(bot.StateError, bot.PriorityPreemptive); err != nil {
		c.log.Zerolog().Warn().Err(err).Msg("error-state transition rejected")
	}
	return ResolutionPauseAndAlert
}

// attemptRecovery performs the automatic recovery action for a kind.
// Attempts are not confirmations: budgets reset only when the engine
// reports the fault gone via MarkRecovered.
func (c *Coordinator) attemptRecovery(ctx context.Context, ev ErrorEvent) {
	actx, cancel := context.WithTimeout(ctx, c.actionTimeout)
	defer cancel()

	var err error
	switch ev.Kind {
	case KindStuck:
		// Escape in a random direction; the next position samples decide
		// whether it worked.
		x := 400 + rand.IntN(1100)
		y := 200 + rand.IntN(600)
		err = c.actor.Perform(actx, game.MoveClick(x, y))
	case KindActionTimeout:
		// Close whatever UI swallowed the action.
		err = c.actor.Perform(actx, game.PressKey("escape"))
	case KindObservationTimeout, KindTemplateFail:
		// The screen may have been mid-transition; give it a beat.
		select {
		case <-time.After(300 * time.Millisecond):
		case <-actx.Done():
			err = actx.Err()
		}
	}

	if err != nil {
		c.log.Zerolog().Warn().
			Str("kind", string(ev.Kind)).
			Err(err).
			Msg("recovery action failed")
		return
	}
	c.log.Zerolog().Debug().Str("kind", string(ev.Kind)).Msg("recovery attempted")
}

// MarkRecovered confirms a recovery: the engine observed the fault gone
// (movement after stuck, a good observation after timeouts). Resets the
// kind's budget.
func (c *Coordinator) MarkRecovered(kind Kind) {
	if c.budgets.Consecutive(kind) == 0 {
		return
	}
	c.budgets.Reset(kind)
	_ = c.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeErrorRecovered,
		Source:  "recovery",
		Message: "recovered",
		Level:   telemetry.EventLevelInfo,
		Data:    map[string]interface{}{"kind": string(kind)},
	})
}

// RunCompleted resets per-run error accounting; a successful run also
// clears every retry budget.
func (c *Coordinator) RunCompleted(success bool) {
	c.mu.Lock()
	c.runTally = 0
	c.mu.Unlock()
	if success {
		c.budgets.ResetAll()
	}
}

// Paused reports whether the coordinator has stopped consuming.
func (c *Coordinator) Paused() bool { return c.paused.Load() }

// Resume lifts a critical pause. External operators call this through
// the CLI or a signal; the coordinator never resumes itself.
func (c *Coordinator) Resume() {
	if c.paused.CompareAndSwap(true, false) {
		c.log.Info("coordinator resumed")
	}
}

// Budgets exposes the budget set for tests and the engine's read side.
func (c *Coordinator) Budgets() *Budgets { return c.budgets }

func (c *Coordinator) classify(kind Kind) Severity {
	if sev, ok := c.classification[kind]; ok {
		return sev
	}
	return SeverityCritical
}

func (c *Coordinator) severityOf(ev ErrorEvent) Severity {
	if ev.Severity != "" {
		return ev.Severity
	}
	return c.classify(ev.Kind)
}

// StateForRunEnd maps a run-ending kind to the state the machine should
// land in while the run is torn down.
func StateForRunEnd(kind Kind) bot.State {
	switch kind {
	case KindCharacterDeath:
		return bot.StateDead
	case KindDisconnect:
		return bot.StateDisconnected
	default:
		return bot.StateReturningToTown
	}
}

func resolutionRank(r Resolution) int {
	switch r {
	case ResolutionPauseAndAlert:
		return 3
	case ResolutionRestartGame:
		return 2
	case ResolutionEndRun:
		return 1
	default:
		return 0
	}
}
