// internal/app/store/users/userstore.go
package userstore

import (
	"context"
	"errors"
	"time"

	"github.com/dalemusser/kingsroom/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrUserNotFound is returned by TouchLastActive when no user record with
// the given ID exists. The activity pipeline never creates user records,
// so callers map this to an "absent user" outcome rather than an error.
var ErrUserNotFound = errors.New("user record does not exist")

// Store manages user records.
type Store struct {
	c *mongo.Collection
}

// New creates a user Store backed by the given collection name.
func New(db *mongo.Database, collection string) *Store {
	return &Store{c: db.Collection(collection)}
}

// GetByID loads a user by ID. Returns mongo.ErrNoDocuments if not found.
func (s *Store) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, err
	}
	return &u, nil
}

// LastActiveAt reads only the last_active_at field for a user.
// Returns (nil, nil) when the user exists but has never been active.
// Returns mongo.ErrNoDocuments when the user record is absent.
func (s *Store) LastActiveAt(ctx context.Context, id string) (*time.Time, error) {
	var doc struct {
		LastActiveAt *time.Time `bson:"last_active_at"`
	}
	proj := options.FindOne().SetProjection(bson.M{"last_active_at": 1})
	if err := s.c.FindOne(ctx, bson.M{"_id": id}, proj).Decode(&doc); err != nil {
		return nil, err
	}
	return doc.LastActiveAt, nil
}

// TouchLastActive sets last_active_at to ts and updated_at to now on an
// existing user record. It never inserts: when no record matches the ID,
// ErrUserNotFound is returned and the store is unchanged.
//
// The write is last-writer-wins on a monotonically advancing timestamp, so
// repeating it for the same user is safe.
func (s *Store) TouchLastActive(ctx context.Context, id string, ts time.Time) error {
	res, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{
			"last_active_at": ts.UTC(),
			"updated_at":     time.Now().UTC(),
		},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Create inserts a new user record. Used by seeding and tests; the
// activity pipeline itself never calls it.
func (s *Store) Create(ctx context.Context, u models.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	if u.UpdatedAt.IsZero() {
		u.UpdatedAt = now
	}
	_, err := s.c.InsertOne(ctx, u)
	return err
}

// EnsureIndexes creates indexes for liveness and role queries.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "last_active_at", Value: -1}},
			Options: options.Index().SetName("idx_users_last_active"),
		},
		{
			Keys:    bson.D{{Key: "role", Value: 1}, {Key: "status", Value: 1}},
			Options: options.Index().SetName("idx_users_role_status"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}
