// internal/app/activity/coordinator.go
package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dalemusser/kingsroom/internal/app/system/timeouts"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrBatchFailed is returned by Run in fail-batch mode when one or more
// user tasks failed. The transport should re-present the batch; the
// throttle and idempotent writes bound the resulting duplicates.
var ErrBatchFailed = errors.New("activity batch had failed user tasks")

// Store combines the reads and writes the pipeline needs from the user
// store. *userstore.Store satisfies it.
type Store interface {
	LivenessReader
	LivenessToucher
}

// Config tunes the pipeline.
type Config struct {
	// ThrottleIntervalMinutes is the minimum gap between two liveness
	// writes for the same user. 0 disables throttling.
	ThrottleIntervalMinutes int
	// MaxParallel bounds concurrent user tasks per batch. Keep it at or
	// below the Mongo connection pool size.
	MaxParallel int
	// FailBatchOnError makes Run return ErrBatchFailed when any user
	// task fails, so the transport replays the batch. Off by default:
	// writes are idempotent and replay only adds duplicates.
	FailBatchOnError bool
}

// Report summarizes one processed batch.
type Report struct {
	BatchID   string `json:"batch_id"`
	Processed int    `json:"processed"`
	Written   int    `json:"users_updated"`
	Throttled int    `json:"users_throttled"`
	Absent    int    `json:"users_absent"`
	Failed    int    `json:"users_failed"`
}

// Coordinator drives the ingestor, throttle oracle, and liveness writer
// for every deduplicated user in a batch.
type Coordinator struct {
	ingestor *Ingestor
	oracle   *Oracle
	writer   *Writer

	maxParallel int
	failBatch   bool
	log         *zap.Logger
}

// NewCoordinator wires the pipeline components around a user store.
func NewCoordinator(store Store, cfg Config, log *zap.Logger) *Coordinator {
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 16
	}
	return &Coordinator{
		ingestor:    NewIngestor(log),
		oracle:      NewOracle(store, cfg.ThrottleIntervalMinutes, log),
		writer:      NewWriter(store, log),
		maxParallel: maxParallel,
		failBatch:   cfg.FailBatchOnError,
		log:         log,
	}
}

type userResult struct {
	userID    string
	throttled bool
	outcome   Outcome
	err       error
}

// Run processes one change-stream batch and returns the batch report.
//
// User tasks run concurrently with all-settled semantics: a failure or
// panic in one task never cancels the others, and every task counts in
// exactly one report bucket. Each task gets a soft deadline derived from
// the remaining batch deadline so a single slow store call cannot starve
// the rest of the batch.
//
// The error return is nil unless FailBatchOnError is set and at least one
// task failed. batchID may be empty; one is generated.
func (c *Coordinator) Run(ctx context.Context, batchID string, batch []Record) (Report, error) {
	if batchID == "" {
		batchID = uuid.NewString()
	}

	deduped := c.ingestor.Dedupe(batch)

	c.log.Info("activity batch started",
		zap.String("batch_id", batchID),
		zap.Int("records", len(batch)),
		zap.Int("users", len(deduped)))

	report := Report{BatchID: batchID, Processed: len(batch)}
	taskBudget := timeouts.TaskBudget(ctx)

	results := make(chan userResult, len(deduped))
	sem := make(chan struct{}, c.maxParallel)
	var wg sync.WaitGroup

	for userID, ts := range deduped {
		wg.Add(1)
		go func(userID, ts string) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results <- userResult{
						userID:  userID,
						outcome: OutcomeFailed,
						err:     fmt.Errorf("user task panic: %v", r),
					}
				}
			}()

			sem <- struct{}{}
			defer func() { <-sem }()

			taskCtx, cancel := context.WithTimeout(ctx, taskBudget)
			defer cancel()

			if !c.oracle.ShouldWrite(taskCtx, userID) {
				results <- userResult{userID: userID, throttled: true}
				return
			}
			outcome, err := c.writer.Write(taskCtx, userID, ts)
			results <- userResult{userID: userID, outcome: outcome, err: err}
		}(userID, ts)
	}

	wg.Wait()
	close(results)

	for res := range results {
		switch {
		case res.throttled:
			report.Throttled++
			c.log.Debug("liveness write throttled",
				zap.String("batch_id", batchID),
				zap.String("user_id", res.userID))
		case res.outcome == OutcomeWritten:
			report.Written++
		case res.outcome == OutcomeAbsent:
			report.Absent++
			c.log.Info("audit entry for absent user",
				zap.String("batch_id", batchID),
				zap.String("user_id", res.userID))
		default:
			report.Failed++
			c.log.Error("liveness write failed",
				zap.String("batch_id", batchID),
				zap.String("user_id", res.userID),
				zap.Error(res.err))
		}
	}

	c.log.Info("activity batch finished",
		zap.String("batch_id", batchID),
		zap.Int("processed", report.Processed),
		zap.Int("users_updated", report.Written),
		zap.Int("users_throttled", report.Throttled),
		zap.Int("users_absent", report.Absent),
		zap.Int("users_failed", report.Failed))

	if c.failBatch && report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d users", ErrBatchFailed, report.Failed, len(deduped))
	}
	return report, nil
}
