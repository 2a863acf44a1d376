// internal/app/activity/writer.go
package activity

import (
	"context"
	"errors"
	"time"

	userstore "github.com/dalemusser/kingsroom/internal/app/store/users"
	"go.uber.org/zap"
)

// Outcome is the terminal state of one deduplicated user within a batch.
type Outcome int

const (
	// OutcomeWritten: the liveness timestamp was updated.
	OutcomeWritten Outcome = iota
	// OutcomeAbsent: no user record exists for the ID. Not an error; the
	// user was deleted or never existed and the audit entry is stale.
	OutcomeAbsent
	// OutcomeFailed: a transient store failure; the underlying cause is
	// preserved for logging.
	OutcomeFailed
)

// String returns the report label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeWritten:
		return "written"
	case OutcomeAbsent:
		return "absent"
	default:
		return "failed"
	}
}

// LivenessToucher performs the conditional liveness update.
// *userstore.Store satisfies it.
type LivenessToucher interface {
	TouchLastActive(ctx context.Context, id string, ts time.Time) error
}

// Writer issues conditional liveness writes and maps store results to
// pipeline outcomes.
type Writer struct {
	store LivenessToucher
	log   *zap.Logger
	now   func() time.Time
}

// NewWriter creates a Writer.
func NewWriter(store LivenessToucher, log *zap.Logger) *Writer {
	return &Writer{store: store, log: log, now: time.Now}
}

// Write updates last_active_at for the user to the given RFC 3339
// timestamp. The update only applies to an existing record; an absent
// record yields OutcomeAbsent with a nil error. Transient failures yield
// OutcomeFailed with the underlying error.
func (w *Writer) Write(ctx context.Context, userID, timestamp string) (Outcome, error) {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		// Producers occasionally send non-conforming timestamps; the
		// dedup step keeps them verbatim for ordering. Fall back to the
		// wall clock rather than dropping the liveness signal.
		w.log.Warn("unparseable activity timestamp, using wall clock",
			zap.String("user_id", userID),
			zap.String("timestamp", timestamp))
		ts = w.now()
	}

	if err := w.store.TouchLastActive(ctx, userID, ts); err != nil {
		if errors.Is(err, userstore.ErrUserNotFound) {
			return OutcomeAbsent, nil
		}
		return OutcomeFailed, err
	}
	return OutcomeWritten, nil
}
