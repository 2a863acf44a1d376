// internal/app/bootstrap/config.go
package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/kingsroom/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	wafflemongo "github.com/dalemusser/waffle/pantry/mongo"
	"go.uber.org/zap"
)

// EnvVarPrefix is the prefix for environment variables.
const EnvVarPrefix = "KINGSROOM"

// appConfigKeys defines the configuration keys for this application.
// These are loaded via WAFFLE's config system with support for:
//   - Config files: mongo_uri, user_collection, etc.
//   - Environment variables: KINGSROOM_MONGO_URI, KINGSROOM_USER_COLLECTION, etc.
//   - Command-line flags: --mongo_uri, --user_collection, etc.
var appConfigKeys = []config.AppKey{
	{Name: "mongo_uri", Default: "mongodb://localhost:27017", Desc: "MongoDB connection URI"},
	{Name: "mongo_database", Default: "kingsroom", Desc: "MongoDB database name"},
	{Name: "mongo_max_pool_size", Default: 100, Desc: "MongoDB max connection pool size (default: 100)"},
	{Name: "mongo_min_pool_size", Default: 10, Desc: "MongoDB min connection pool size (default: 10)"},

	// User store configuration (user_collection is required; there is no
	// safe default because the pipeline writes into it)
	{Name: "user_collection", Default: "", Desc: "User collection name (required)"},

	// Audit log configuration
	{Name: "audit_collection", Default: "audit_entries", Desc: "Append-only audit log collection"},
	{Name: "audit_retention", Default: "720h", Desc: "TTL for audit entries (0 disables expiry)"},

	// Activity pipeline configuration
	{Name: "throttle_interval_minutes", Default: 5, Desc: "Min minutes between liveness writes per user (0 disables)"},
	{Name: "activity_max_parallel", Default: 16, Desc: "Concurrent user tasks per batch"},
	{Name: "activity_fail_batch_on_error", Default: false, Desc: "Reject batches with failed user tasks to trigger replay"},

	// Change-stream tailer configuration
	{Name: "tailer_enabled", Default: true, Desc: "Tail the audit collection change stream"},
	{Name: "tailer_batch_size", Default: 100, Desc: "Max change records per pipeline batch"},
	{Name: "tailer_flush_interval", Default: "1s", Desc: "Max wait before a partial batch is processed"},

	// Store operation timeouts
	{Name: "timeout_ping", Default: "2s", Desc: "Timeout for health check pings"},
	{Name: "timeout_short", Default: "5s", Desc: "Timeout for single-document reads and writes"},
	{Name: "timeout_batch", Default: "60s", Desc: "Timeout for processing a whole change-stream batch"},

	// API key configuration (for external API consumers using Bearer token auth)
	{Name: "api_key", Default: "", Desc: "API key for external API access (leave empty to disable API key auth)"},
}

// LoadConfig loads WAFFLE core config and app-specific config.
//
// It is called early in startup so that both WAFFLE and the app have
// access to configuration before any backends or handlers are built.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	coreCfg, appValues, err := config.LoadWithAppConfig(logger, EnvVarPrefix, appConfigKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}

	appCfg := AppConfig{
		MongoURI:         appValues.String("mongo_uri"),
		MongoDatabase:    appValues.String("mongo_database"),
		MongoMaxPoolSize: uint64(appValues.Int("mongo_max_pool_size")),
		MongoMinPoolSize: uint64(appValues.Int("mongo_min_pool_size")),

		UserCollection: appValues.String("user_collection"),

		AuditCollection: appValues.String("audit_collection"),
		AuditRetention:  appValues.Duration("audit_retention", 720*time.Hour),

		ThrottleIntervalMinutes:  appValues.Int("throttle_interval_minutes"),
		ActivityMaxParallel:      appValues.Int("activity_max_parallel"),
		ActivityFailBatchOnError: appValues.Bool("activity_fail_batch_on_error"),

		TailerEnabled:       appValues.Bool("tailer_enabled"),
		TailerBatchSize:     appValues.Int("tailer_batch_size"),
		TailerFlushInterval: appValues.Duration("tailer_flush_interval", time.Second),

		TimeoutPing:  appValues.Duration("timeout_ping", timeouts.DefaultPing),
		TimeoutShort: appValues.Duration("timeout_short", timeouts.DefaultShort),
		TimeoutBatch: appValues.Duration("timeout_batch", timeouts.DefaultBatch),

		APIKey: appValues.String("api_key"),
	}

	return coreCfg, appCfg, nil
}

// ValidateConfig performs app-specific config validation.
//
// A missing user_collection fails the whole invocation here, before any
// record is processed: the pipeline must never run against a default or
// guessed user store.
func ValidateConfig(coreCfg *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) error {
	if err := wafflemongo.ValidateURI(appCfg.MongoURI); err != nil {
		logger.Error("invalid MongoDB URI", zap.Error(err))
		return fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	if appCfg.UserCollection == "" {
		logger.Error("user_collection is not configured")
		return fmt.Errorf("user_collection is required (set %s_USER_COLLECTION)", EnvVarPrefix)
	}

	if appCfg.ThrottleIntervalMinutes < 0 {
		return fmt.Errorf("throttle_interval_minutes must be >= 0, got %d", appCfg.ThrottleIntervalMinutes)
	}

	return nil
}
