package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newUpgradeCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "upgrade VERSION",
		Short: "Upgrade the cluster's recorded software version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			newVersion := args[0]
			if err := orch.UpgradeCluster(cmdContext(), actor(), newVersion, force); err != nil {
				return fmt.Errorf("upgrade cluster to %s: %w", newVersion, err)
			}
			fmt.Printf("cluster %q upgraded to %s\n", cl.Name, newVersion)
			return nil
		},
	}
	c.Flags().BoolVar(&force, "force", false, "allow a downgrade or non-monotonic version change")
	return c
}
