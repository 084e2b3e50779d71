// Package consumer implements the per-(database, set) consumer actor of
// §4.G: it acquires an ownership lease, registers with the queue
// extension, and drains reserved batches into a bounded hand-off slot
// for its owning Coordinator to finish.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"

	"shoveld/internal/cluster"
	"shoveld/internal/coordstore"
	"shoveld/internal/metrics"
	"shoveld/internal/postgres"
	"shoveld/internal/queue"
	"shoveld/internal/shovelerrors"
)

// State is one of the consumer's lifecycle states.
type State int32

const (
	StateStarting State = iota
	StateAcquiringLease
	StateRegistering
	StateRunning
	StateDraining
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateAcquiringLease:
		return "acquiring_lease"
	case StateRegistering:
		return "registering"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// BatchHandoff is the value passed through the hand-off slot: the
// reserved batch's events and the callback that finishes it. Finish runs
// on the Coordinator's shared connection accessor, never the Consumer's.
type BatchHandoff struct {
	BatchID int64
	Events  []queue.Event
	Finish  func(ctx context.Context) error
}

// Config names the identity and target of one Consumer.
type Config struct {
	Database      string // dsn, used only as a metrics/log label
	Set           string
	ConsumerGroup string
	Identifier    string // lease holder / queue consumer identity
	LeaseTTL      time.Duration
	LeasePollEvery time.Duration
}

// Consumer owns one capture group on one database.
type Consumer struct {
	cfg   Config
	cl    *cluster.Cluster
	store *coordstore.Store
	conn  func() *postgres.SharedConn
	queue *queue.Client
	log   *slog.Logger
	m     *metrics.Registry

	handoff chan BatchHandoff
	stop    chan struct{}
	stopped sync.Once

	state atomic.Int32

	errMu sync.Mutex
	err   error
}

// New builds a Consumer for cfg. connAccessor returns the Coordinator's
// shared connection — Consumers reach it through this accessor rather
// than a direct back-reference to their Coordinator (§9).
func New(cfg Config, cl *cluster.Cluster, store *coordstore.Store, connAccessor func() *postgres.SharedConn, log *slog.Logger, m *metrics.Registry) *Consumer {
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 30 * time.Second
	}
	if cfg.LeasePollEvery <= 0 {
		cfg.LeasePollEvery = 50 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &Consumer{
		cfg:     cfg,
		cl:      cl,
		store:   store,
		conn:    connAccessor,
		queue:   queue.New(),
		log:     log,
		m:       m,
		handoff: make(chan BatchHandoff, 1),
		stop:    make(chan struct{}),
	}
}

// State returns the consumer's current lifecycle state.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Handoff is the bounded capacity-1 slot the Coordinator drains.
func (c *Consumer) Handoff() <-chan BatchHandoff {
	return c.handoff
}

// Stop requests the consumer exit at its next opportunity. Safe to call
// more than once and from any goroutine.
func (c *Consumer) Stop() {
	c.stopped.Do(func() { close(c.stop) })
}

// Err returns the terminal error, if the consumer ended in StateFailed.
func (c *Consumer) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *Consumer) setState(s State) {
	c.state.Store(int32(s))
	if c.m != nil {
		c.m.ConsumerState.WithLabelValues(c.cfg.Database, c.cfg.Set, c.cfg.ConsumerGroup).Set(metrics.ConsumerStateCode(s.String()))
	}
}

func (c *Consumer) fail(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
	c.setState(StateFailed)
	c.log.Error("consumer failed", "database", c.cfg.Database, "set", c.cfg.Set, "consumer_group", c.cfg.ConsumerGroup, "error", err)
}

// Run drives the consumer's lifecycle to completion. It blocks until
// Stop is called, ctx is cancelled, or a fatal error occurs, and closes
// its hand-off channel on every exit path.
func (c *Consumer) Run(ctx context.Context) {
	defer close(c.handoff)

	c.setState(StateStarting)
	leasePath := c.cl.LeaseRoot(c.cfg.ConsumerGroup, c.cfg.Set)

	c.setState(StateAcquiringLease)
	lease, err := coordstore.AcquireLease(ctx, c.store, leasePath, c.cfg.Identifier, c.cfg.LeaseTTL, c.cfg.LeasePollEvery)
	if err != nil {
		if ctx.Err() != nil {
			c.setState(StateStopped)
			return
		}
		c.fail(err)
		return
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = lease.Release(releaseCtx)
	}()

	queueName := c.cl.QueueName(c.cfg.Set)
	consumerName := fmt.Sprintf("%s_%s", c.cfg.ConsumerGroup, c.cfg.Identifier)

	c.setState(StateRegistering)
	if err := c.conn().WithTx(ctx, func(tx pgx.Tx) error {
		return c.queue.RegisterConsumer(ctx, tx, queueName, consumerName)
	}); err != nil {
		c.fail(err)
		return
	}

	c.setState(StateRunning)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			c.setState(StateDraining)
			c.setState(StateStopped)
			return
		case <-ctx.Done():
			c.setState(StateDraining)
			c.setState(StateStopped)
			return
		case <-ticker.C:
		}

		held, err := lease.StillHeld(ctx)
		if err != nil {
			c.fail(err)
			return
		}
		if !held {
			c.fail(&shovelerrors.LeaseLost{Path: leasePath})
			return
		}

		if len(c.handoff) > 0 {
			continue // slot occupied; a next_batch_info call now would be meaningless
		}

		var info queue.BatchInfo
		var events []queue.Event
		err = c.conn().WithTx(ctx, func(tx pgx.Tx) error {
			var err error
			info, err = c.queue.NextBatch(ctx, tx, queueName, consumerName)
			if err != nil || !info.Found {
				return err
			}
			events, err = c.queue.BatchEvents(ctx, tx, info.ID)
			return err
		})
		if err != nil {
			c.fail(err)
			return
		}
		if !info.Found {
			continue
		}

		batchID := info.ID
		select {
		case c.handoff <- BatchHandoff{
			BatchID: batchID,
			Events:  events,
			Finish: func(finishCtx context.Context) error {
				return c.conn().WithTx(finishCtx, func(tx pgx.Tx) error {
					return c.queue.FinishBatch(finishCtx, tx, batchID)
				})
			},
		}:
		case <-c.stop:
			c.setState(StateStopped)
			return
		case <-ctx.Done():
			c.setState(StateStopped)
			return
		}
	}
}
