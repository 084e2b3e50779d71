package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCreateSetCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "create-set NAME",
		Short: "Create a replication set from a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			setCfg, err := loadSetConfiguration(file)
			if err != nil {
				return err
			}
			if err := orch.CreateSet(cmdContext(), actor(), name, setCfg); err != nil {
				return fmt.Errorf("create set %s: %w", name, err)
			}
			fmt.Printf("set %q created with %d database(s) and %d table(s)\n", name, len(setCfg.Databases), len(setCfg.Tables))
			return nil
		},
	}
	c.Flags().StringVarP(&file, "file", "f", "", "path to the replication set configuration file (required)")
	_ = c.MarkFlagRequired("file")
	return c
}
