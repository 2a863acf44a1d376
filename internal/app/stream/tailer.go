// Package stream tails the audit collection's change stream and feeds
// insert events to the activity pipeline in batches.
package stream

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dalemusser/kingsroom/internal/app/activity"
	"github.com/dalemusser/kingsroom/internal/app/system/timeouts"
	"github.com/dalemusser/kingsroom/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// BatchRunner processes one batch of change records.
// *activity.Coordinator satisfies it.
type BatchRunner interface {
	Run(ctx context.Context, batchID string, batch []activity.Record) (activity.Report, error)
}

// Config tunes batching.
type Config struct {
	// BatchSize is the maximum records per pipeline batch.
	BatchSize int
	// FlushInterval bounds how long a partial batch waits before it is
	// processed. Also used as the change stream's max await time.
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	return c
}

// Tailer watches the audit collection change stream, converts insert
// events to pipeline records, and runs the coordinator per batch. It
// restarts the stream with backoff after transient errors and only
// advances its resume position after a batch has been processed, so a
// failed batch (in fail-batch mode) is re-presented on restart.
//
// The resume position is held in memory only. A new process starts
// watching at the current point in the oplog, so audit inserts made
// while the process was down are not replayed; liveness is a
// best-effort signal and the next activity burst catches the user up.
type Tailer struct {
	coll   *mongo.Collection
	runner BatchRunner
	latest *activity.LatestReport
	cfg    Config
	log    *zap.Logger

	resumeToken bson.Raw
	running     atomic.Bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a Tailer over the given audit collection.
func New(coll *mongo.Collection, runner BatchRunner, latest *activity.LatestReport, cfg Config, log *zap.Logger) *Tailer {
	return &Tailer{
		coll:   coll,
		runner: runner,
		latest: latest,
		cfg:    cfg.withDefaults(),
		log:    log,
	}
}

// Start begins tailing in the background. Call Stop to shut down.
func (t *Tailer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.running.Store(true)

	t.wg.Add(1)
	go t.supervise(ctx)

	t.log.Info("audit change-stream tailer started",
		zap.String("collection", t.coll.Name()),
		zap.Int("batch_size", t.cfg.BatchSize),
		zap.Duration("flush_interval", t.cfg.FlushInterval))
}

// Stop shuts the tailer down, waiting up to the context's deadline.
func (t *Tailer) Stop(ctx context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.running.Store(false)
		t.log.Info("audit change-stream tailer stopped")
		return nil
	case <-ctx.Done():
		t.log.Warn("audit change-stream tailer shutdown timed out")
		return ctx.Err()
	}
}

// Running reports whether the tailer loop is alive. Used by health checks.
func (t *Tailer) Running() bool {
	return t.running.Load()
}

// supervise restarts the watch loop with backoff until the context ends.
func (t *Tailer) supervise(ctx context.Context) {
	defer t.wg.Done()
	defer t.running.Store(false)

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		err := t.watch(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			t.log.Warn("change stream interrupted, restarting",
				zap.Duration("backoff", backoff),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// auditChangeEvent is the slice of the change-stream document we consume.
type auditChangeEvent struct {
	OperationType string            `bson:"operationType"`
	FullDocument  models.AuditEntry `bson:"fullDocument"`
}

// recordFromEvent converts a change event into a pipeline record.
func recordFromEvent(ev auditChangeEvent) activity.Record {
	image := map[string]any{
		"userId": ev.FullDocument.UserID,
	}
	if !ev.FullDocument.CreatedAt.IsZero() {
		image["createdAt"] = ev.FullDocument.CreatedAt.UTC().Format(time.RFC3339)
	}
	return activity.Record{Kind: ev.OperationType, Image: image}
}

// watch opens the change stream and pumps batches until an error or
// cancellation. The resume token advances only after a successful batch.
func (t *Tailer) watch(ctx context.Context) error {
	matchInserts := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "operationType", Value: "insert"}}}},
	}
	opts := options.ChangeStream().SetMaxAwaitTime(t.cfg.FlushInterval)
	if t.resumeToken != nil {
		opts.SetResumeAfter(t.resumeToken)
	}

	cs, err := t.coll.Watch(ctx, matchInserts, opts)
	if err != nil {
		return err
	}
	defer cs.Close(context.Background())

	pending := make([]activity.Record, 0, t.cfg.BatchSize)
	for {
		// TryNext waits up to the max await time, so an idle stream
		// paces this loop at roughly the flush interval.
		for len(pending) < t.cfg.BatchSize && cs.TryNext(ctx) {
			var ev auditChangeEvent
			if err := cs.Decode(&ev); err != nil {
				t.log.Warn("undecodable change event, skipping", zap.Error(err))
				continue
			}
			pending = append(pending, recordFromEvent(ev))
		}
		if err := cs.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		if len(pending) == 0 {
			continue
		}
		if err := t.flush(ctx, pending); err != nil {
			return err
		}
		pending = pending[:0]
		t.resumeToken = cs.ResumeToken()
	}
}

// flush runs one batch through the coordinator.
func (t *Tailer) flush(ctx context.Context, batch []activity.Record) error {
	batchCtx, cancel := timeouts.WithTimeout(ctx, timeouts.Batch(), t.log, "activity batch")
	defer cancel()

	report, err := t.runner.Run(batchCtx, "", batch)
	if err != nil {
		return err
	}
	if t.latest != nil {
		t.latest.Set(report)
	}
	return nil
}
