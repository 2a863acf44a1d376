// internal/app/bootstrap/startup.go
package bootstrap

import (
	"context"

	"github.com/dalemusser/kingsroom/internal/app/activity"
	"github.com/dalemusser/kingsroom/internal/app/store/audit"
	userstore "github.com/dalemusser/kingsroom/internal/app/store/users"
	"github.com/dalemusser/kingsroom/internal/app/stream"
	"github.com/dalemusser/kingsroom/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/config"
	"go.uber.org/zap"
)

// Pipeline pieces shared between Startup (which starts the tailer) and
// BuildHandler (which wires the HTTP API). Constructed once per process
// and reused across all invocations; none hold mutable shared state
// beyond the latest-report snapshot.
var (
	coordinator  *activity.Coordinator
	auditStore   *audit.Store
	latestReport = &activity.LatestReport{}
	tailer       *stream.Tailer
)

// Startup runs once after DB connections and schema setup are complete,
// but before the HTTP handler is built and requests are served.
//
// It builds the activity pipeline around the long-lived store clients
// and, unless disabled, starts the change-stream tailer that feeds the
// pipeline from the audit collection.
func Startup(ctx context.Context, coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) error {
	timeouts.Configure(timeouts.Config{
		Ping:  appCfg.TimeoutPing,
		Short: appCfg.TimeoutShort,
		Batch: appCfg.TimeoutBatch,
	})

	users := userstore.New(deps.MongoDatabase, appCfg.UserCollection)
	auditStore = audit.New(deps.MongoDatabase, appCfg.AuditCollection)

	coordinator = activity.NewCoordinator(users, activity.Config{
		ThrottleIntervalMinutes: appCfg.ThrottleIntervalMinutes,
		MaxParallel:             appCfg.ActivityMaxParallel,
		FailBatchOnError:        appCfg.ActivityFailBatchOnError,
	}, logger)

	logger.Info("activity pipeline configured",
		zap.Int("throttle_interval_minutes", appCfg.ThrottleIntervalMinutes),
		zap.Int("max_parallel", appCfg.ActivityMaxParallel),
		zap.Bool("fail_batch_on_error", appCfg.ActivityFailBatchOnError))

	if appCfg.TailerEnabled {
		tailer = stream.New(auditStore.Collection(), coordinator, latestReport, stream.Config{
			BatchSize:     appCfg.TailerBatchSize,
			FlushInterval: appCfg.TailerFlushInterval,
		}, logger)
		tailer.Start()
	} else {
		logger.Info("audit change-stream tailer disabled")
	}

	return nil
}
