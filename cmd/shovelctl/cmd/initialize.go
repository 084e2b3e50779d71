package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitializeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initialize",
		Short: "Initialize a new cluster in the coordination store",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := orch.InitializeCluster(cmdContext(), actor()); err != nil {
				return fmt.Errorf("initialize cluster: %w", err)
			}
			fmt.Printf("cluster %q initialized\n", cl.Name)
			return nil
		},
	}
}
