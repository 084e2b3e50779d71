package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpdateSetCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "update-set NAME",
		Short: "Update an existing replication set from a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			setCfg, err := loadSetConfiguration(file)
			if err != nil {
				return err
			}
			if err := orch.UpdateSet(cmdContext(), actor(), name, setCfg); err != nil {
				return fmt.Errorf("update set %s: %w", name, err)
			}
			fmt.Printf("set %q updated\n", name)
			return nil
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "path to the replication set configuration file (required)")
	_ = c.MarkFlagRequired("file")
	return c
}
