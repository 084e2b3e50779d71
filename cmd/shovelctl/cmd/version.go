package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"shoveld/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print shovelctl's version",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Get()
			fmt.Println(info.Full())
			return nil
		},
	}
}
