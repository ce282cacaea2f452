package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/d2herder/d2herder/pkg/stats"
)

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a session is open and how it is doing",
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

			sess, err := store.LatestSession(cmd.Context())
			if err != nil {
				return err
			}
			if sess == nil {
				fmt.Println("no sessions recorded")
				return nil
			}

			if sess.EndedAt == nil {
				fmt.Printf("session %s open since %s (%s)\n",
					sess.ID, sess.StartedAt.Format(time.RFC3339),
					time.Since(sess.StartedAt).Round(time.Second))
			} else {
				fmt.Printf("no open session; last one ended %s\n",
					sess.EndedAt.Format(time.RFC3339))
			}
			fmt.Printf("  runs: %d  deaths: %d  chickens: %d  errors: %d\n",
				sess.Runs, sess.Deaths, sess.Chickens, sess.Errors)
			return nil
		},
	}
}
