package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shoveld/internal/config"
	"shoveld/internal/logger"
	"shoveld/internal/version"
)

var (
	cfgFile     string
	showVersion bool
)

func init() {
	flag.StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/shoveld/config.yaml)")
	flag.BoolVar(&showVersion, "version", false, "show version")
}

func main() {
	flag.Parse()

	if showVersion {
		info := version.Get()
		fmt.Printf("shoveld %s\n", info.String())
		fmt.Println(info.Full())
		os.Exit(0)
	}

	if cfgFile == "" {
		path, created, err := config.GenerateConfigIfNotExists(config.AppShoveld, "yaml")
		if err == nil && created {
			stdlog.Printf("created default config at: %s", path)
		}
	}

	cfg, err := config.LoadShoveld(cfgFile)
	if err != nil {
		stdlog.Fatalf("failed to load config: %v", err)
	}
	cfg.DataDir = config.ExpandPath(cfg.DataDir)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		stdlog.Fatalf("failed to create data directory %q: %v", cfg.DataDir, err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		stdlog.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Close() }()

	var auditLog *logger.AuditLogger
	if cfg.Log.AuditPath != "" {
		auditLog, err = logger.NewAuditLogger(cfg.Log.AuditPath, cfg.Log.AuditMaxAgeDays)
		if err != nil {
			log.Warn("failed to initialize audit logger", "error", err)
		} else {
			defer func() { _ = auditLog.Close() }()
		}
	}

	log.Info("starting shoveld",
		"cluster", cfg.Cluster.Name,
		"log_level", cfg.Log.Level,
		"data_dir", cfg.DataDir,
		"metrics_enabled", cfg.Metrics.Enabled,
	)

	daemon := NewDaemon(cfg, log, auditLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := daemon.Start(ctx); err != nil {
		log.Error("failed to start daemon", "error", err)
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("received shutdown signal", "signal", sig.String())
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := daemon.Stop(shutdownCtx); err != nil {
		log.Error("error during shutdown", "error", err)
	}

	log.Info("shoveld stopped")
}
