package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/d2herder/d2herder/pkg/game/runs"
)

func newRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "List the available runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range runs.Names() {
				fmt.Println(name)
			}
			return nil
		},
	}
}
