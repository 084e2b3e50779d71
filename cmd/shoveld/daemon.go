package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shoveld/internal/cluster"
	"shoveld/internal/config"
	"shoveld/internal/coordinator"
	"shoveld/internal/coordstore"
	"shoveld/internal/logger"
	"shoveld/internal/metrics"
	"shoveld/internal/shovelerrors"
	"shoveld/internal/stream"
)

// Daemon owns the coordination store, the cluster handle, one
// Coordinator per configured database host, and the metrics HTTP
// listener. It is the process-level composition root for shoveld.
type Daemon struct {
	cfg      *config.ShoveldConfig
	log      *logger.Logger
	auditLog *logger.AuditLogger

	store *coordstore.Store
	cl    *cluster.Cluster
	reg   *prometheus.Registry
	m     *metrics.Registry

	metricsSrv *http.Server

	mu           sync.Mutex
	coordinators []*coordinator.Coordinator
	wg           sync.WaitGroup
}

// NewDaemon builds a Daemon from cfg. Nothing is opened or started until
// Start is called.
func NewDaemon(cfg *config.ShoveldConfig, log *logger.Logger, auditLog *logger.AuditLogger) *Daemon {
	return &Daemon{cfg: cfg, log: log, auditLog: auditLog}
}

// Start opens the coordination store, builds a Coordinator per
// configured database host, subscribes each to its configured sets, and
// (if enabled) starts the Prometheus metrics listener.
func (d *Daemon) Start(ctx context.Context) error {
	path := config.ExpandPath(d.cfg.CoordStore.Path)
	store, err := coordstore.Open(path)
	if err != nil {
		return fmt.Errorf("open coordination store: %w", err)
	}
	d.store = store
	d.cl = cluster.New(store, d.cfg.Cluster.CoordStorePrefix, d.cfg.Cluster.Name)

	d.m, d.reg = metrics.New()

	if d.cfg.Metrics.Enabled {
		if err := d.startMetricsServer(); err != nil {
			return err
		}
	}

	identity := fmt.Sprintf("%s-%d", hostname(), os.Getpid())

	for _, host := range d.cfg.Databases {
		conn, err := pgx.Connect(ctx, host.DSN)
		if err != nil {
			return fmt.Errorf("connect to %s: %w", shovelerrors.RedactDSN(host.DSN), err)
		}

		co := coordinator.New(host.DSN, conn, d.cl, d.store, d.log.Logger, d.m, stream.NewLogSink(d.log.Logger))
		d.mu.Lock()
		d.coordinators = append(d.coordinators, co)
		d.mu.Unlock()

		d.wg.Add(1)
		go func(co *coordinator.Coordinator) {
			defer d.wg.Done()
			co.Run(ctx)
		}(co)

		consumerGroup := host.ConsumerGroup
		if consumerGroup == "" {
			consumerGroup = "default"
		}
		for _, set := range host.Sets {
			subCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			err := co.Subscribe(subCtx, set, coordinator.SubscribeConfig{
				ConsumerGroup: consumerGroup,
				Identifier:    identity + "-" + uuid.NewString()[:8],
			})
			cancel()
			if err != nil {
				d.log.Error("failed to subscribe", "database", shovelerrors.RedactDSN(host.DSN), "set", set, "error", err)
			}
		}
	}

	d.log.Info("shoveld started", "databases", len(d.cfg.Databases), "cluster", d.cfg.Cluster.Name)
	return nil
}

// Stop unsubscribes every set, stops every Coordinator, and shuts down
// the metrics listener, honoring ctx's deadline.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	coordinators := d.coordinators
	d.mu.Unlock()

	for _, co := range coordinators {
		co.Stop(ctx)
	}
	d.wg.Wait()

	if d.metricsSrv != nil {
		_ = d.metricsSrv.Shutdown(ctx)
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	return nil
}

func (d *Daemon) startMetricsServer() error {
	addr := fmt.Sprintf("%s:%d", d.cfg.Metrics.Host, d.cfg.Metrics.Port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	d.metricsSrv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		if err := d.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.log.Error("metrics server error", "error", err)
		}
	}()

	d.log.Info("metrics listening", "addr", addr)
	return nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
