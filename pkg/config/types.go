// Package config loads, validates, and watches the session configuration.
// A single YAML file drives the whole engine; validation happens once at
// load and the rest of the system trusts the values.
package config

import (
	"time"

	"github.com/d2herder/d2herder/pkg/telemetry"
)

// Config is the root session configuration.
type Config struct {
	// Session configures run selection and session-level limits.
	Session SessionConfig `yaml:"session" validate:"required"`

	// Health configures the health preemption controller.
	Health HealthConfig `yaml:"health"`

	// Recovery configures error classification budgets and timeouts.
	Recovery RecoveryConfig `yaml:"recovery"`

	// Stuck configures the no-progress detector.
	Stuck StuckConfig `yaml:"stuck"`

	// Engine configures the orchestration loop.
	Engine EngineConfig `yaml:"engine"`

	// Pickit points at the item pickup rules file, reloaded on change.
	Pickit PickitConfig `yaml:"pickit"`

	// Stats configures the statistics store.
	Stats StatsConfig `yaml:"stats"`

	// Telemetry configures logging, metrics, and the event stream.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// SessionConfig selects runs and bounds the session.
type SessionConfig struct {
	// Character is the character name used for game creation.
	Character string `yaml:"character" validate:"required"`

	// Runs lists the run names to cycle through, in order.
	Runs []string `yaml:"runs" validate:"required,min=1,dive,required"`

	// MaxRuns stops the session after this many runs; 0 means unlimited.
	MaxRuns int `yaml:"max_runs" validate:"gte=0"`

	// MaxDeaths pauses the session after this many deaths.
	MaxDeaths int `yaml:"max_deaths" validate:"gte=0"`

	// GameNamePrefix seeds generated game names.
	GameNamePrefix string `yaml:"game_name_prefix"`

	// GamePassword is the password for created games.
	GamePassword string `yaml:"game_password"`
}

// HealthConfig holds the preemption controller thresholds.
type HealthConfig struct {
	// ChickenHealthPercent is the emergency-exit floor.
	ChickenHealthPercent float64 `yaml:"chicken_health_percent" validate:"gte=0,lte=100"`

	// ChickenManaPercent chickens on low mana when > 0.
	ChickenManaPercent float64 `yaml:"chicken_mana_percent" validate:"gte=0,lte=100"`

	// PotionHealthPercent is where potion sipping starts.
	PotionHealthPercent float64 `yaml:"potion_health_percent" validate:"gte=0,lte=100"`

	// CheckInterval is the vitals sampling cadence.
	CheckInterval time.Duration `yaml:"check_interval"`

	// PotionCooldown spaces potion sips.
	PotionCooldown time.Duration `yaml:"potion_cooldown"`

	// HealthPotionSlot and RejuvPotionSlot are belt slots.
	HealthPotionSlot int `yaml:"health_potion_slot" validate:"gte=0,lte=4"`
	RejuvPotionSlot  int `yaml:"rejuv_potion_slot" validate:"gte=0,lte=4"`
}

// RecoveryConfig bounds automatic error recovery.
type RecoveryConfig struct {
	// RetryThreshold is the per-kind consecutive-failure budget.
	RetryThreshold int `yaml:"retry_threshold" validate:"gte=0"`

	// RunErrorLimit caps run-ending errors per run before going critical.
	RunErrorLimit int `yaml:"run_error_limit" validate:"gte=0"`

	// ActionTimeout bounds each recovery action.
	ActionTimeout time.Duration `yaml:"action_timeout"`
}

// StuckConfig tunes the no-progress detector.
type StuckConfig struct {
	// WindowSize is how many samples must agree before a stuck flag.
	WindowSize int `yaml:"window_size" validate:"gte=0"`

	// EpsilonPixels is the positional similarity radius.
	EpsilonPixels float64 `yaml:"epsilon_pixels" validate:"gte=0"`
}

// EngineConfig tunes the orchestration loop.
type EngineConfig struct {
	// TickInterval is the main loop cadence.
	TickInterval time.Duration `yaml:"tick_interval"`

	// ObserveTimeout bounds each observation call.
	ObserveTimeout time.Duration `yaml:"observe_timeout"`

	// ConfidenceFloor below which an observation is treated as unknown.
	ConfidenceFloor float64 `yaml:"confidence_floor" validate:"gte=0,lte=1"`

	// UnknownGrace is how many consecutive unknown observations are
	// tolerated before each one counts as an observation timeout. Zero
	// means every unknown counts.
	UnknownGrace int `yaml:"unknown_grace" validate:"gte=0"`

	// RunTimeout aborts a single run after this long; 0 disables it.
	RunTimeout time.Duration `yaml:"run_timeout"`
}

// PickitConfig locates the pickup rules.
type PickitConfig struct {
	// Path is the pickit rules file; empty disables pickit reloading.
	Path string `yaml:"path"`

	// WatchForChanges reloads rules when the file changes on disk.
	WatchForChanges bool `yaml:"watch_for_changes"`
}

// StatsConfig configures the statistics store.
type StatsConfig struct {
	// DatabasePath is the sqlite file; empty disables persistence.
	DatabasePath string `yaml:"database_path"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			Character:      "sorceress",
			Runs:           []string{"pindleskin"},
			MaxDeaths:      3,
			GameNamePrefix: "herd",
		},
		Health: HealthConfig{
			ChickenHealthPercent: 30,
			PotionHealthPercent:  50,
			CheckInterval:        100 * time.Millisecond,
			PotionCooldown:       time.Second,
			HealthPotionSlot:     1,
			RejuvPotionSlot:      3,
		},
		Recovery: RecoveryConfig{
			RetryThreshold: 3,
			RunErrorLimit:  6,
			ActionTimeout:  2 * time.Second,
		},
		Stuck: StuckConfig{
			WindowSize:    5,
			EpsilonPixels: 10,
		},
		Engine: EngineConfig{
			TickInterval:    200 * time.Millisecond,
			ObserveTimeout:  time.Second,
			ConfidenceFloor: 0.6,
			RunTimeout:      10 * time.Minute,
		},
		Stats: StatsConfig{
			DatabasePath: "d2herder.db",
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}
