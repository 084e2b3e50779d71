package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shoveld/internal/admin"
)

func newDropSetCmd() *cobra.Command {
	var skipInaccessible bool
	c := &cobra.Command{
		Use:   "drop-set NAME",
		Short: "Drop a replication set and unconfigure every database it touches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			opts := admin.DropSetOptions{SkipInaccessible: skipInaccessible}
			if err := orch.DropSet(cmdContext(), actor(), name, opts); err != nil {
				return fmt.Errorf("drop set %s: %w", name, err)
			}
			fmt.Printf("set %q dropped\n", name)
			return nil
		},
	}
	c.Flags().BoolVar(&skipInaccessible, "skip-inaccessible", false, "proceed even if some member databases cannot be reached")
	return c
}
