// internal/app/store/audit/store.go
package audit

import (
	"context"
	"time"

	"github.com/dalemusser/kingsroom/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection is the collection name for the append-only audit log.
const DefaultCollection = "audit_entries"

// Store manages the append-only audit log. Entries are only ever inserted;
// the activity tailer watches this collection's change stream.
type Store struct {
	c *mongo.Collection
}

// New creates an audit Store backed by the given collection name.
// An empty name uses DefaultCollection.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{c: db.Collection(collection)}
}

// Append inserts an audit entry, filling ID and CreatedAt if unset.
func (s *Store) Append(ctx context.Context, entry models.AuditEntry) (models.AuditEntry, error) {
	if entry.ID.IsZero() {
		entry.ID = primitive.NewObjectID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.c.InsertOne(ctx, entry)
	return entry, err
}

// Recent returns the newest entries, most recent first.
func (s *Store) Recent(ctx context.Context, limit int64) ([]models.AuditEntry, error) {
	cur, err := s.c.Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: "created_at", Value: -1}}).
			SetLimit(limit))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var entries []models.AuditEntry
	if err := cur.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// CountByUser returns the number of entries recorded for a user.
func (s *Store) CountByUser(ctx context.Context, userID string) (int64, error) {
	return s.c.CountDocuments(ctx, bson.M{"user_id": userID})
}

// Collection exposes the underlying collection for the change-stream tailer.
func (s *Store) Collection() *mongo.Collection {
	return s.c
}

// EnsureIndexes creates query indexes and, when retention is positive, a
// TTL index that expires old entries.
func (s *Store) EnsureIndexes(ctx context.Context, retention time.Duration) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_user_created"),
		},
		{
			Keys:    bson.D{{Key: "created_at", Value: -1}},
			Options: options.Index().SetName("idx_audit_created"),
		},
	}
	if retention > 0 {
		indexes = append(indexes, mongo.IndexModel{
			Keys: bson.D{{Key: "created_at", Value: 1}},
			Options: options.Index().
				SetExpireAfterSeconds(int32(retention.Seconds())).
				SetName("idx_audit_ttl"),
		})
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}
