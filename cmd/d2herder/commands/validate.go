package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d2herder/d2herder/pkg/config"
	"github.com/d2herder/d2herder/pkg/game/runs"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without starting a session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			for _, name := range cfg.Session.Runs {
				if _, err := runs.ForName(name); err != nil {
					return err
				}
			}

			if cfg.Pickit.Path != "" {
				rules, err := config.LoadPickit(cfg.Pickit.Path)
				if err != nil {
					return err
				}
				fmt.Printf("pickit: %d rules\n", len(rules.Rules))
			}

			fmt.Printf("configuration valid: character=%s runs=%v chicken=%.0f%%\n",
				cfg.Session.Character, cfg.Session.Runs, cfg.Health.ChickenHealthPercent)
			return nil
		},
	}
}
