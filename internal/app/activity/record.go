// Package activity implements the user activity tracking pipeline: it
// consumes batches of change-stream records from the append-only audit
// log, collapses bursty per-user activity to at most one update per
// throttle window, and writes liveness timestamps to existing user
// records.
package activity

import "strings"

// Record kinds. The audit log is append-only, so only insert records are
// semantically relevant; modify and remove records are ignored.
const (
	KindInsert = "insert"
	KindModify = "modify"
	KindRemove = "remove"
)

// Image field names carried by audit-log change records.
const (
	fieldUserID    = "userId"
	fieldCreatedAt = "createdAt"
)

// Record is one change-stream record as delivered by the transport.
// Image maps attribute names to values; a value is either a plain JSON
// scalar or a document-store wire-form object such as {"S": "..."}.
type Record struct {
	Kind  string         `json:"kind"`
	Image map[string]any `json:"image,omitempty"`
}

// isInsert reports whether the record is an insert. Kind matching is
// case-insensitive because external producers deliver "INSERT" while the
// Mongo change stream delivers "insert".
func (r Record) isInsert() bool {
	return strings.EqualFold(r.Kind, KindInsert)
}

// stringAttr extracts a string attribute from a record image, accepting
// both a plain string and the {"S": "..."} wire form.
func stringAttr(image map[string]any, key string) (string, bool) {
	v, ok := image[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		if s, ok := t["S"].(string); ok {
			return s, true
		}
	}
	return "", false
}
