// Package cmd implements the shovelctl command-line administration
// client: one cobra subcommand per orchestrator operation (initialize,
// create-set, update-set, drop-set, upgrade), sharing a coordination
// store handle, cluster handle, and orchestrator built once in
// PersistentPreRunE.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"shoveld/internal/admin"
	"shoveld/internal/cluster"
	"shoveld/internal/config"
	"shoveld/internal/coordstore"
	"shoveld/internal/logger"
	"shoveld/internal/metrics"
	"shoveld/internal/version"
)

var (
	cfgFile     string
	clusterName string

	cfg   *config.ShovelctlConfig
	log   *logger.Logger
	store *coordstore.Store
	cl    *cluster.Cluster
	orch  *admin.Orchestrator
)

var rootCmd = &cobra.Command{
	Use:   "shovelctl",
	Short: "Administers shoveld capture clusters",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		if cfgFile == "" {
			if path, created, err := config.GenerateConfigIfNotExists(config.AppShovelctl, "yaml"); err == nil && created {
				fmt.Fprintf(cmd.ErrOrStderr(), "created default config at: %s\n", path)
			}
		}

		var err error
		cfg, err = config.LoadShovelctl(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		log, err = logger.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("initialize logger: %w", err)
		}

		path := config.ExpandPath(cfg.CoordStore.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create coordination store directory: %w", err)
		}
		store, err = coordstore.Open(path)
		if err != nil {
			return fmt.Errorf("open coordination store: %w", err)
		}

		name := clusterName
		if name == "" {
			name = cfg.Cluster.Name
		}
		if name == "" {
			return fmt.Errorf("cluster name required: pass --cluster or set cluster.name in config")
		}
		cl = cluster.New(store, cfg.Cluster.CoordStorePrefix, name)

		m, _ := metrics.New()
		orch = admin.New(cl, version.Get().Version, log.Logger, logger.NopAuditLogger(), m)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if store != nil {
			_ = store.Close()
		}
		if log != nil {
			_ = log.Close()
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/shovelctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&clusterName, "cluster", "", "cluster name (overrides config)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newInitializeCmd())
	rootCmd.AddCommand(newCreateSetCmd())
	rootCmd.AddCommand(newUpdateSetCmd())
	rootCmd.AddCommand(newDropSetCmd())
	rootCmd.AddCommand(newUpgradeCmd())
}

func actor() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func cmdContext() context.Context {
	return context.Background()
}
