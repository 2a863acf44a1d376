// internal/app/system/indexes/indexes.go
package indexes

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Options tunes index creation.
type Options struct {
	// UserCollection / AuditCollection override the default collection
	// names. Empty means the defaults ("users", "audit_entries").
	UserCollection  string
	AuditCollection string

	// AuditRetention sets the TTL for audit entries. Zero disables the
	// TTL index (entries are kept forever).
	AuditRetention time.Duration
}

func (o Options) userCollection() string {
	if o.UserCollection != "" {
		return o.UserCollection
	}
	return "users"
}

func (o Options) auditCollection() string {
	if o.AuditCollection != "" {
		return o.AuditCollection
	}
	return "audit_entries"
}

// EnsureAll is called at startup. Each ensure* function is idempotent.
// We aggregate errors so any problem is visible and startup can fail fast.
func EnsureAll(ctx context.Context, db *mongo.Database, opts Options) error {
	var problems []string

	if err := ensureUsers(ctx, db, opts); err != nil {
		problems = append(problems, opts.userCollection()+": "+err.Error())
	}
	if err := ensureAuditEntries(ctx, db, opts); err != nil {
		problems = append(problems, opts.auditCollection()+": "+err.Error())
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func ensureUsers(ctx context.Context, db *mongo.Database, opts Options) error {
	coll := db.Collection(opts.userCollection())
	indexes := []mongo.IndexModel{
		// Recently-active queries (dashboards, liveness reports)
		{
			Keys:    bson.D{{Key: "last_active_at", Value: -1}},
			Options: options.Index().SetName("idx_users_last_active"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_users_role_status"),
		},
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}

func ensureAuditEntries(ctx context.Context, db *mongo.Database, opts Options) error {
	coll := db.Collection(opts.auditCollection())
	indexes := []mongo.IndexModel{
		// Per-user history, newest first
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_created"),
		},
		// Time-based queries
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_created"),
		},
	}
	if opts.AuditRetention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(opts.AuditRetention.Seconds())).
				SetName("idx_audit_ttl"),
		})
	}
	_, err := coll.Indexes().CreateMany(ctx, indexes)
	return err
}
