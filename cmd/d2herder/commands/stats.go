package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/d2herder/d2herder/pkg/stats"
)

func newStatsCommand() *cobra.Command {
	var (
		sessionID string
		format    string
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show session statistics",
		Long:  `Show the summary of a recorded session, the most recent one by default.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Stats.DatabasePath == "" {
				return fmt.Errorf("statistics persistence is disabled (stats.database_path is empty)")
			}

			store, err := stats.NewStore(cfg.Stats.DatabasePath)
			if err != nil {
				return err
			}
			if err := store.Init(cmd.Context()); err != nil {
				return err
			}
			defer store.Close()
			if err := store.Migrate(cmd.Context()); err != nil {
				return err
			}

			if sessionID == "" {
				latest, err := store.LatestSession(cmd.Context())
				if err != nil {
					return err
				}
				if latest == nil {
					fmt.Println("no sessions recorded yet")
					return nil
				}
				sessionID = latest.ID
			}

			sum, err := store.Summarize(cmd.Context(), sessionID)
			if err != nil {
				return err
			}

			switch format {
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(sum)
			case "text", "":
				printSummary(sum)
				return nil
			default:
				return fmt.Errorf("unknown format %q (want text or json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "session ID (default: most recent)")
	cmd.Flags().StringVar(&format, "format", "text", "output format (text, json)")
	return cmd
}

func printSummary(sum *stats.Summary) {
	s := sum.Session
	ended := "running"
	if s.EndedAt != nil {
		ended = s.EndedAt.Format(time.RFC3339)
	}

	fmt.Printf("session %s (%s)\n", s.ID, s.Character)
	fmt.Printf("  started:  %s\n", s.StartedAt.Format(time.RFC3339))
	fmt.Printf("  ended:    %s\n", ended)
	fmt.Printf("  runs:     %d (%.0f%% success, avg %s)\n",
		s.Runs, sum.SuccessRate*100, sum.AvgDuration.Round(time.Second))
	fmt.Printf("  deaths:   %d  chickens: %d  errors: %d  items: %d\n",
		s.Deaths, s.Chickens, s.Errors, s.ItemsFound)
	for name, count := range sum.RunsByName {
		fmt.Printf("  %-12s %d\n", name, count)
	}
}
