// internal/app/activity/throttle.go
package activity

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// LivenessReader reads a user's current liveness timestamp.
// *userstore.Store satisfies it.
type LivenessReader interface {
	LastActiveAt(ctx context.Context, id string) (*time.Time, error)
}

// Oracle decides whether a liveness write is permitted for a user under
// the throttle interval.
//
// The throttle is advisory, not a correctness mechanism: at-least-once
// delivery and concurrent invocations make exact deduplication
// impossible. Its job is to bound the write rate per user to roughly one
// per interval under steady load, so every internal failure defaults to
// permitting the write (fail open) rather than silently losing activity.
type Oracle struct {
	reader          LivenessReader
	intervalMinutes int
	log             *zap.Logger
	now             func() time.Time
}

// NewOracle creates an Oracle. An interval of 0 disables throttling.
func NewOracle(reader LivenessReader, intervalMinutes int, log *zap.Logger) *Oracle {
	return &Oracle{
		reader:          reader,
		intervalMinutes: intervalMinutes,
		log:             log,
		now:             time.Now,
	}
}

// ShouldWrite reports whether a new liveness write is permitted for the
// user. It returns true when the user record or its last_active_at is
// absent, when throttling is disabled, or when the elapsed whole minutes
// since the last activity reach the interval. Read errors fail open.
func (o *Oracle) ShouldWrite(ctx context.Context, userID string) bool {
	if o.intervalMinutes <= 0 {
		return true
	}

	last, err := o.reader.LastActiveAt(ctx, userID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			// Absent record: let the writer report the authoritative outcome.
			return true
		}
		o.log.Warn("throttle read failed, permitting write",
			zap.String("user_id", userID),
			zap.Error(err))
		return true
	}
	if last == nil {
		return true
	}

	elapsed := int(o.now().Sub(*last).Minutes())
	return elapsed >= o.intervalMinutes
}
