// internal/app/bootstrap/appconfig.go
package bootstrap

import "time"

// AppConfig holds service-specific configuration for this WAFFLE app.
//
// These values come from environment variables, configuration files, or
// command-line flags (loaded in LoadConfig). They represent *app-level*
// configuration, not WAFFLE core configuration (ports, TLS, log level,
// CORS, and so on, which live in CoreConfig).
type AppConfig struct {
	// MongoDB connection configuration
	MongoURI         string // MongoDB connection string (e.g., mongodb://localhost:27017)
	MongoDatabase    string // Database name within MongoDB
	MongoMaxPoolSize uint64 // Maximum connections in pool (default: 100)
	MongoMinPoolSize uint64 // Minimum connections to keep warm (default: 10)

	// User store configuration.
	// UserCollection is required; startup fails fast when it is empty so
	// no batch is ever processed against a misconfigured store.
	UserCollection string

	// Audit log configuration
	AuditCollection string        // Append-only audit log collection (default: audit_entries)
	AuditRetention  time.Duration // TTL for audit entries; 0 keeps them forever

	// Activity pipeline configuration
	ThrottleIntervalMinutes  int  // Minimum gap between liveness writes per user; 0 disables throttling
	ActivityMaxParallel      int  // Concurrent user tasks per batch (keep <= Mongo pool size)
	ActivityFailBatchOnError bool // Reject batches with failed user tasks so the transport replays them

	// Change-stream tailer configuration
	TailerEnabled       bool          // Tail the audit collection and feed the pipeline
	TailerBatchSize     int           // Max records per pipeline batch
	TailerFlushInterval time.Duration // Max wait before a partial batch is processed

	// Store operation timeouts (see system/timeouts)
	TimeoutPing  time.Duration // Health check pings
	TimeoutShort time.Duration // Single-document reads and writes
	TimeoutBatch time.Duration // Whole change-stream batches

	// API key authentication (for external API consumers)
	// When set, enables Bearer token authentication for /api/* routes.
	APIKey string
}
