// internal/app/activity/ingest.go
package activity

import (
	"time"

	"go.uber.org/zap"
)

// Ingestor turns a raw change-stream batch into a deduplicated
// userID → timestamp map.
type Ingestor struct {
	log *zap.Logger
	now func() time.Time
}

// NewIngestor creates an Ingestor.
func NewIngestor(log *zap.Logger) *Ingestor {
	return &Ingestor{log: log, now: time.Now}
}

// Dedupe filters the batch to insert records with an image, extracts
// (userId, createdAt) pairs, and keeps the lexicographic maximum
// createdAt per user. Records missing a userId are dropped with a
// diagnostic and never fail the batch. A record without createdAt falls
// back to the consumer's wall clock on first sight and never displaces
// an already recorded timestamp.
//
// Timestamps are RFC 3339 UTC strings, which order lexicographically at
// equal precision; non-conforming strings are retained verbatim and the
// comparison stays total.
func (i *Ingestor) Dedupe(batch []Record) map[string]string {
	deduped := make(map[string]string)

	for n, rec := range batch {
		if !rec.isInsert() || rec.Image == nil {
			continue
		}

		userID, ok := stringAttr(rec.Image, fieldUserID)
		if !ok || userID == "" {
			i.log.Warn("dropping audit record without userId",
				zap.Int("record", n),
				zap.String("kind", rec.Kind))
			continue
		}

		createdAt, hasCreatedAt := stringAttr(rec.Image, fieldCreatedAt)

		prev, seen := deduped[userID]
		switch {
		case !seen && hasCreatedAt:
			deduped[userID] = createdAt
		case !seen:
			deduped[userID] = i.now().UTC().Format(time.RFC3339)
		case hasCreatedAt && createdAt > prev:
			deduped[userID] = createdAt
		}
	}

	return deduped
}
