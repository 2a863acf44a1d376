// internal/domain/models/user.go
package models

import "time"

// User represents players and staff of the tournament application.
//
// The _id is the opaque string identifier issued by the identity provider;
// this service never mints user IDs and never creates user records. The
// activity pipeline only rewrites LastActiveAt/UpdatedAt on records that
// already exist.
type User struct {
	ID       string `bson:"_id" json:"id"`
	FullName string `bson:"full_name,omitempty" json:"full_name,omitempty"`

	Role   string `bson:"role,omitempty" json:"role,omitempty"`     // admin | director | player
	Status string `bson:"status,omitempty" json:"status,omitempty"` // active, disabled

	// LastActiveAt is the liveness timestamp maintained by the activity
	// pipeline. Nil means the user has never been observed active.
	LastActiveAt *time.Time `bson:"last_active_at,omitempty" json:"last_active_at,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// User roles
const (
	RoleAdmin    = "admin"
	RoleDirector = "director"
	RolePlayer   = "player"
)
