// Package coordinator implements the per-database supervisor of §4.H:
// one Coordinator owns a single shared connection to one managed
// database and supervises a Consumer per subscribed set, draining each
// Consumer's hand-off slot back onto that same connection.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"shoveld/internal/cluster"
	"shoveld/internal/consumer"
	"shoveld/internal/coordstore"
	"shoveld/internal/metrics"
	"shoveld/internal/postgres"
	"shoveld/internal/shovelerrors"
	"shoveld/internal/stream"
)

type commandKind int

const (
	cmdSubscribe commandKind = iota
	cmdUnsubscribe
)

func (k commandKind) kindString() string {
	if k == cmdSubscribe {
		return "subscribe"
	}
	return "unsubscribe"
}

// command is one subscribe/unsubscribe request, paired with a channel
// the caller blocks on for the result.
type command struct {
	kind   commandKind
	set    string
	cfg    SubscribeConfig
	result chan error
}

// SubscribeConfig names the consumer identity a subscribe command spins
// up a Consumer under.
type SubscribeConfig struct {
	ConsumerGroup string
	Identifier    string
}

// Coordinator supervises every Consumer reading from one database.
type Coordinator struct {
	Database string

	cl    *cluster.Cluster
	store *coordstore.Store
	log   *slog.Logger
	m     *metrics.Registry

	conn *postgres.SharedConn

	nodeID uuid.UUID
	pub    *stream.Publisher

	commands chan command
	stop     chan struct{}
	done     chan struct{}
}

// New builds a Coordinator around an already-open connection to
// database. conn is owned exclusively by the Coordinator from this point
// on; every Consumer it spins up reaches the connection only through the
// accessor handed to consumer.New.
//
// sink receives every batch the Coordinator's consumers drain, after it
// has passed the transaction validator and been regrouped (§4.I, §4.J).
// A nil sink falls back to stream.NewLogSink(log).
func New(database string, conn *pgx.Conn, cl *cluster.Cluster, store *coordstore.Store, log *slog.Logger, m *metrics.Registry, sink stream.DownstreamSink) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = stream.NewLogSink(log)
	}
	return &Coordinator{
		Database: database,
		cl:       cl,
		store:    store,
		log:      log,
		m:        m,
		conn:     postgres.NewSharedConn(conn),
		nodeID:   uuid.NewSHA1(uuid.Nil, []byte(database)),
		pub:      stream.NewPublisher(stream.NewPipeline(sink)),
		commands: make(chan command, 64),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe starts a Consumer for setName under the given consumer
// identity and blocks until the Consumer has been started. Lease
// acquisition and queue registration then run on the Consumer's own
// goroutine; Subscribe does not wait for them.
func (co *Coordinator) Subscribe(ctx context.Context, setName string, cfg SubscribeConfig) error {
	return co.send(ctx, command{kind: cmdSubscribe, set: setName, cfg: cfg})
}

// Unsubscribe stops the Consumer for setName, if any, and blocks until
// it has shut down.
func (co *Coordinator) Unsubscribe(ctx context.Context, setName string) error {
	return co.send(ctx, command{kind: cmdUnsubscribe, set: setName})
}

func (co *Coordinator) send(ctx context.Context, cmd command) error {
	cmd.result = make(chan error, 1)
	select {
	case co.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-co.done:
		return &shovelerrors.Cancelled{Command: cmd.kind.kindString()}
	}
	select {
	case err := <-cmd.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-co.done:
		return &shovelerrors.Cancelled{Command: cmd.kind.kindString()}
	}
}

// Stop shuts down the coordinator and every Consumer it supervises, then
// closes the shared connection. Blocks until everything has exited.
func (co *Coordinator) Stop(ctx context.Context) {
	close(co.stop)
	<-co.done
	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = co.conn.Close(closeCtx)
}

type supervisedConsumer struct {
	c      *consumer.Consumer
	cancel context.CancelFunc
	done   chan struct{}
}

// Run drives the coordinator's command loop until Stop is called or ctx
// is cancelled. It must run in its own goroutine.
func (co *Coordinator) Run(ctx context.Context) {
	defer close(co.done)

	active := make(map[string]*supervisedConsumer)
	defer func() {
		for set, sc := range active {
			co.stopConsumer(set, sc)
		}
	}()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case cmd := <-co.commands:
			co.handleCommand(ctx, active, cmd)

		case <-ticker.C:
			co.drainHandoffs(ctx, active)

		case <-co.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (co *Coordinator) handleCommand(ctx context.Context, active map[string]*supervisedConsumer, cmd command) {
	switch cmd.kind {
	case cmdSubscribe:
		if _, exists := active[cmd.set]; exists {
			cmd.result <- fmt.Errorf("coordinator: already subscribed to set %s", cmd.set)
			return
		}
		consCtx, cancel := context.WithCancel(ctx)
		c := consumer.New(consumer.Config{
			Database:      co.Database,
			Set:           cmd.set,
			ConsumerGroup: cmd.cfg.ConsumerGroup,
			Identifier:    cmd.cfg.Identifier,
		}, co.cl, co.store, func() *postgres.SharedConn { return co.conn }, co.log, co.m)

		done := make(chan struct{})
		go func() {
			defer close(done)
			c.Run(consCtx)
		}()
		active[cmd.set] = &supervisedConsumer{c: c, cancel: cancel, done: done}
		cmd.result <- nil

	case cmdUnsubscribe:
		sc, exists := active[cmd.set]
		if !exists {
			cmd.result <- nil
			return
		}
		co.stopConsumer(cmd.set, sc)
		delete(active, cmd.set)
		cmd.result <- nil
	}
}

func (co *Coordinator) stopConsumer(set string, sc *supervisedConsumer) {
	sc.c.Stop()
	sc.cancel()
	<-sc.done
	if err := sc.c.Err(); err != nil {
		co.log.Error("consumer exited with error", "database", co.Database, "set", set, "error", err)
	}
}

// drainHandoffs takes every consumer with a ready hand-off, publishes its
// events through the Coordinator's Publisher (§4.K, validated by §4.I and
// grouped by §4.J), and finishes it on the shared connection — the only
// place this Coordinator's goroutine touches the database (queue
// registration runs on each Consumer's own goroutine).
func (co *Coordinator) drainHandoffs(ctx context.Context, active map[string]*supervisedConsumer) {
	for set, sc := range active {
		select {
		case bh, ok := <-sc.c.Handoff():
			if !ok {
				continue // consumer exited; Run's deferred cleanup on Stop/ctx handles removal
			}
			if err := co.publish(bh); err != nil {
				co.log.Error("publish batch failed", "database", co.Database, "set", set, "batch_id", bh.BatchID, "error", err)
				if co.m != nil {
					co.m.ValidatorRejectionsTotal.WithLabelValues("transaction", err.Error()).Inc()
				}
			}
			if err := bh.Finish(ctx); err != nil {
				co.log.Error("finish batch failed", "database", co.Database, "set", set, "batch_id", bh.BatchID, "error", err)
				continue
			}
			if co.m != nil {
				co.m.ConsumerLagBatches.WithLabelValues(co.Database, set).Set(0)
			}
		default:
		}
	}
}

// publish runs bh's events through the Coordinator's Publisher: one
// begin, one Publish per event, and a Commit, or a Rollback on the first
// decode/validation failure. A validated-invalid batch still gets
// finished afterward — the trigger already wrote it and retrying it
// would only ever produce the same rejection.
func (co *Coordinator) publish(bh consumer.BatchHandoff) error {
	handle, err := co.pub.Batch(co.nodeID, uint64(bh.BatchID))
	if err != nil {
		return err
	}

	for _, ev := range bh.Events {
		mutation, err := decodeMutation(ev)
		if err != nil {
			_ = handle.Rollback()
			return err
		}
		if err := handle.Publish(mutation); err != nil {
			_ = handle.Rollback()
			return err
		}
	}

	return handle.Commit()
}
