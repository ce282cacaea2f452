package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d2herder/d2herder/pkg/config"
	"github.com/d2herder/d2herder/pkg/engine"
	"github.com/d2herder/d2herder/pkg/game"
	"github.com/d2herder/d2herder/pkg/stats"
	"github.com/d2herder/d2herder/pkg/telemetry"
)

func newStartCommand() *cobra.Command {
	var (
		dryRun   bool
		runNames []string
		count    int
	)

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a bot session",
		Long: `Start the orchestration loop with the configured runs and keep going
until interrupted, the run limit is reached, or a critical error pauses
the session.

With --dry-run the engine runs against a simulated game client: scripted
observations, recorded input. Useful for validating configuration and
watching the state machine without a game attached.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if verbose {
				cfg.Telemetry.Logging.Level = "debug"
			}
			if len(runNames) > 0 {
				cfg.Session.Runs = runNames
			}
			if count > 0 {
				cfg.Session.MaxRuns = count
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			log, err := telemetry.NewLogger(cfg.Telemetry.Logging)
			if err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			metrics := telemetry.NewMetrics(cfg.Telemetry.Metrics)
			if err := metrics.StartServer(); err != nil {
				return fmt.Errorf("starting metrics server: %w", err)
			}
			events := telemetry.NewPublisher(cfg.Telemetry.Events)
			defer events.Close()

			observer, actor, err := buildPorts(dryRun)
			if err != nil {
				return err
			}

			var recorder engine.Recorder
			if cfg.Stats.DatabasePath != "" {
				store, err := stats.NewStore(cfg.Stats.DatabasePath)
				if err != nil {
					return err
				}
				if err := store.Init(cmd.Context()); err != nil {
					return fmt.Errorf("opening stats database: %w", err)
				}
				defer store.Close()
				if err := store.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("migrating stats database: %w", err)
				}
				recorder = store
			}

			eng := engine.New(cfg, observer, actor, recorder, log, metrics, events)

			if cfg.Pickit.Path != "" {
				watcher, err := config.NewPickitWatcher(cfg.Pickit.Path, log)
				if err != nil {
					return fmt.Errorf("loading pickit rules: %w", err)
				}
				if cfg.Pickit.WatchForChanges {
					go watcher.Run(cmd.Context())
				}
				eng.SetLootFilter(watcher)
			}

			return eng.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "run against a simulated game client")
	cmd.Flags().StringSliceVar(&runNames, "run", nil, "override the configured run list")
	cmd.Flags().IntVar(&count, "count", 0, "stop after this many runs (overrides max_runs)")
	return cmd
}

// buildPorts returns the observation and action ports. Only the simulated
// pair ships here; a real client adapter registers itself by replacing
// this wiring.
func buildPorts(dryRun bool) (game.Observer, game.Actor, error) {
	if !dryRun {
		return nil, nil, fmt.Errorf("no game client adapter configured; use --dry-run for a simulated session")
	}

	town := game.Observation{
		Label:      game.LabelInTown,
		Confidence: 1,
		Readouts: map[string]float64{
			game.ReadoutHealthPercent: 100,
			game.ReadoutManaPercent:   100,
			game.ReadoutPositionX:     960,
			game.ReadoutPositionY:     540,
		},
	}
	observer := game.NewScriptedObserver(
		game.Observation{Label: game.LabelMainMenu, Confidence: 1},
		game.Observation{Label: game.LabelCharacterSelect, Confidence: 1},
		game.Observation{Label: game.LabelLoading, Confidence: 1},
	)
	observer.Hold = &town

	return observer, game.NewRecordingActor(), nil
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}
