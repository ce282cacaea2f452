// Package health runs the preemption controller: an independently
// scheduled monitor that samples the character's vitals and, on crossing
// the configured floor, forces the highest-priority transition the system
// knows (the chicken) and drives the escape sequence.
//
// The controller owns no bot state. It only requests transitions through
// the machine's single mutation point, which is what keeps the preemption
// race-free.
package health

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/d2herder/d2herder/pkg/bot"
	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/recovery"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

// Status is the controller's reading of the current vitals.
type Status string

const (
	StatusSafe     Status = "safe"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// Config holds the controller's thresholds and cadences.
type Config struct {
	// HealthFloor is the chicken threshold in percent.
	HealthFloor float64

	// ManaFloor chickens on low mana when > 0; 0 disables it.
	ManaFloor float64

	// WarningHealth is where potion sipping starts. Zero defaults to
	// HealthFloor + 20, capped at 60.
	WarningHealth float64

	// Interval is the sampling cadence, independent of the main loop's
	// tick rate and typically shorter.
	Interval time.Duration

	// SampleTimeout bounds each observation call.
	SampleTimeout time.Duration

	// ActionTimeout bounds each action during the escape sequence. The
	// controller never blocks on the action port longer than this before
	// moving to the next fallback.
	ActionTimeout time.Duration

	// PotionCooldown spaces potion sips.
	PotionCooldown time.Duration

	// Belt slots.
	HealthPotionSlot int
	RejuvPotionSlot  int

	// SaveExitX/Y is the fixed Save & Exit button position used by the
	// second escape fallback.
	SaveExitX int
	SaveExitY int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 100 * time.Millisecond
	}
	if c.SampleTimeout <= 0 {
		c.SampleTimeout = 500 * time.Millisecond
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 2 * time.Second
	}
	if c.PotionCooldown <= 0 {
		c.PotionCooldown = time.Second
	}
	if c.WarningHealth <= 0 {
		c.WarningHealth = c.HealthFloor + 20
		if c.WarningHealth > 60 {
			c.WarningHealth = 60
		}
	}
	if c.HealthPotionSlot <= 0 {
		c.HealthPotionSlot = 1
	}
	if c.RejuvPotionSlot <= 0 {
		c.RejuvPotionSlot = 3
	}
	if c.SaveExitX == 0 && c.SaveExitY == 0 {
		c.SaveExitX, c.SaveExitY = 960, 540
	}
	return c
}

// ErrorSink consumes the ErrorEvents the controller emits for failed
// escape fallbacks. In production this is the recovery coordinator.
type ErrorSink interface {
	Handle(ctx context.Context, ev recovery.ErrorEvent) recovery.Resolution
}

// Controller samples vitals on its own schedule and preempts the main
// loop when the safety floor is crossed.
//
// Degraded modes: with a nil observer the controller idles (it cannot
// read vitals, so it never chickens); with a nil actor the chicken still
// forces the state transition but skips the escape sequence.
type Controller struct {
	cfg         Config
	observer    game.Observer
	actor       game.Actor
	transitions recovery.TransitionRequester
	errors      ErrorSink

	lastPotion time.Time
	chickened  atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	log     *telemetry.Logger
	metrics *telemetry.Metrics
	events  *telemetry.Publisher
}

// NewController wires the controller. observer and actor may be nil (see
// degraded modes above); transitions and errors must not be.
func NewController(
	cfg Config,
	observer game.Observer,
	actor game.Actor,
	transitions recovery.TransitionRequester,
	errors ErrorSink,
	log *telemetry.Logger,
	metrics *telemetry.Metrics,
	events *telemetry.Publisher,
) *Controller {
	return &Controller{
		cfg:         cfg.withDefaults(),
		observer:    observer,
		actor:       actor,
		transitions: transitions,
		errors:      errors,
		log:         log.Component("health"),
		metrics:     metrics,
		events:      events,
	}
}

// Start launches the sampling loop. Returns immediately; Stop or ctx
// cancellation bound its lifetime.
func (c *Controller) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.loop(ctx)
	c.log.Infof("health controller started (floor %.0f%%)", c.cfg.HealthFloor)
}

// Stop halts sampling and waits for the loop to exit.
func (c *Controller) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

// ResetForNewGame clears the chicken latch after a game has been left and
// a new one joined.
func (c *Controller) ResetForNewGame() {
	c.chickened.Store(false)
}

// Chickened reports whether the latch has fired for the current game.
func (c *Controller) Chickened() bool { return c.chickened.Load() }

func (c *Controller) loop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample(ctx)
		}
	}
}

func (c *Controller) sample(ctx context.Context) {
	if c.observer == nil || c.chickened.Load() {
		return
	}
	// Vitals only exist inside a game; menus and loading screens have
	// nothing to sample.
	if !c.transitions.Current().InGame() {
		return
	}

	health, mana, status := c.read(ctx)
	if status == StatusUnknown {
		return
	}
	c.metrics.SetVitals(health, mana)

	switch status {
	case StatusCritical:
		c.handleCritical(ctx, health, mana)
	case StatusWarning:
		c.sip(ctx, c.cfg.HealthPotionSlot)
	}
}

func (c *Controller) read(ctx context.Context) (health, mana float64, status Status) {
	octx, cancel := context.WithTimeout(ctx, c.cfg.SampleTimeout)
	defer cancel()

	obs, err := c.observer.Observe(octx)
	if err != nil {
		return 0, 0, StatusUnknown
	}

	h, ok := obs.Readout(game.ReadoutHealthPercent)
	if !ok {
		return 0, 0, StatusUnknown
	}
	m, _ := obs.Readout(game.ReadoutManaPercent)

	return h, m, c.evaluate(h, m)
}

func (c *Controller) evaluate(health, mana float64) Status {
	if health <= c.cfg.HealthFloor {
		return StatusCritical
	}
	if c.cfg.ManaFloor > 0 && mana <= c.cfg.ManaFloor {
		return StatusCritical
	}
	if health <= c.cfg.WarningHealth {
		return StatusWarning
	}
	return StatusSafe
}

func (c *Controller) handleCritical(ctx context.Context, health, mana float64) {
	c.log.Zerolog().Warn().
		Float64("health", health).
		Float64("floor", c.cfg.HealthFloor).
		Msg("vitals critical")

	// One rejuv may still save the run; re-read before committing to the
	// chicken.
	if c.sip(ctx, c.cfg.RejuvPotionSlot) {
		select {
		case <-time.After(c.cfg.Interval):
		case <-ctx.Done():
			return
		}
		if _, _, status := c.read(ctx); status != StatusCritical && status != StatusUnknown {
			c.log.Info("rejuv recovered vitals, chicken avoided")
			return
		}
	}

	c.Chicken(ctx, fmt.Sprintf("health %.0f%% below floor %.0f%%", health, c.cfg.HealthFloor))
}

// sip drinks from a belt slot unless the cooldown is still running.
func (c *Controller) sip(ctx context.Context, slot int) bool {
	if c.actor == nil || time.Since(c.lastPotion) < c.cfg.PotionCooldown {
		return false
	}
	actx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
	defer cancel()
	if err := c.actor.Perform(actx, game.DrinkPotion(slot)); err != nil {
		c.log.Zerolog().Warn().Int("slot", slot).Err(err).Msg("potion failed")
		return false
	}
	c.lastPotion = time.Now()
	return true
}

// Chicken forces the emergency exit: a preemptive transition to the
// escape state, then the layered exit sequence. Fires at most once per
// game.
func (c *Controller) Chicken(ctx context.Context, reason string) {
	if !c.chickened.CompareAndSwap(false, true) {
		return
	}

	c.log.Zerolog().Warn().Str("reason", reason).Msg("CHICKEN")
	c.metrics.RecordChicken()
	_ = c.events.Publish(telemetry.Event{
		Type:    telemetry.EventTypeChicken,
		Source:  "health",
		Message: "emergency exit: " + reason,
		Level:   telemetry.EventLevelWarning,
		Data:    map[string]interface{}{"reason": reason},
	})

	if err := c.transitions.RequestTransition(bot.StateChickened, bot.PriorityPreemptive); err != nil {
		c.log.Zerolog().Error().Err(err).Msg("chicken transition rejected")
	}

	c.escape(ctx)
}

// escape walks the ordered exit fallbacks: template-based menu exit,
// fixed-position Save & Exit click, repeated escape presses. Each attempt
// is bounded by ActionTimeout; a failed attempt emits a run-ending
// ErrorEvent and the next fallback is tried. Exhausting all of them is
// critical.
func (c *Controller) escape(ctx context.Context) {
	if c.actor == nil {
		return
	}

	fallbacks := []struct {
		name string
		run  func(context.Context) error
	}{
		{"menu_exit", func(actx context.Context) error {
			return c.actor.Perform(actx, game.ExitMenu())
		}},
		{"fixed_click", func(actx context.Context) error {
			if err := c.actor.Perform(actx, game.PressKey("escape")); err != nil {
				return err
			}
			return c.actor.Perform(actx, game.Click(c.cfg.SaveExitX, c.cfg.SaveExitY))
		}},
		{"escape_spam", func(actx context.Context) error {
			for i := 0; i < 3; i++ {
				if err := c.actor.Perform(actx, game.PressKey("escape")); err != nil {
					return err
				}
			}
			return nil
		}},
	}

	for _, fb := range fallbacks {
		actx, cancel := context.WithTimeout(ctx, c.cfg.ActionTimeout)
		err := fb.run(actx)
		cancel()
		if err == nil {
			c.log.Infof("escape sequence succeeded (%s)", fb.name)
			return
		}

		ev := recovery.NewEvent(recovery.KindActionTimeout, c.transitions.Current(),
			"chicken fallback "+fb.name+" failed: "+err.Error())
		ev.Severity = recovery.SeverityRunEnding
		c.errors.Handle(ctx, ev)
	}

	ev := recovery.NewEvent(recovery.KindActionTimeout, c.transitions.Current(),
		"all chicken fallbacks exhausted")
	ev.Severity = recovery.SeverityCritical
	c.errors.Handle(ctx, ev)
}
