// Package activityapi provides the activity-tracking API endpoints.
//
// Endpoints:
//   - POST /batch  - Run a change-record batch through the pipeline (API key)
//   - POST /audit  - Append an audit entry to the log (API key)
//   - GET  /report - Fetch the most recent batch report (API key)
//
// The batch endpoint exists for external producers that deliver
// change-stream batches directly (for example a bridge from another
// store's stream); in-cluster activity normally arrives through the
// audit collection and its change-stream tailer.
package activityapi

import (
	"context"
	"net/http"

	"github.com/dalemusser/kingsroom/internal/app/activity"
	"github.com/dalemusser/kingsroom/internal/app/store/audit"
	"github.com/dalemusser/kingsroom/internal/app/system/jsonutil"
	"github.com/dalemusser/kingsroom/internal/app/system/timeouts"
	"github.com/dalemusser/kingsroom/internal/domain/models"
	"go.uber.org/zap"
)

// Handler handles activity API requests.
type Handler struct {
	coordinator *activity.Coordinator
	auditStore  *audit.Store
	latest      *activity.LatestReport
	logger      *zap.Logger
}

// NewHandler creates a new activity API handler.
func NewHandler(coordinator *activity.Coordinator, auditStore *audit.Store, latest *activity.LatestReport, logger *zap.Logger) *Handler {
	return &Handler{
		coordinator: coordinator,
		auditStore:  auditStore,
		latest:      latest,
		logger:      logger,
	}
}

// batchRequest is the JSON body for POST /batch.
type batchRequest struct {
	BatchID string            `json:"batch_id,omitempty"`
	Records []activity.Record `json:"records"`
}

// RunBatch handles POST /batch: it runs the supplied change-record batch
// through the pipeline and returns the batch report.
func (h *Handler) RunBatch(w http.ResponseWriter, r *http.Request) {
	var in batchRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Batch())
	defer cancel()

	report, err := h.coordinator.Run(ctx, in.BatchID, in.Records)
	if err != nil {
		// Fail-batch mode: tell the producer to re-deliver.
		h.logger.Warn("batch rejected for replay",
			zap.String("batch_id", report.BatchID),
			zap.Int("users_failed", report.Failed),
			zap.Error(err))
		jsonutil.JSON(w, http.StatusInternalServerError, map[string]any{
			"error":  "batch had failed user tasks",
			"report": report,
		})
		return
	}

	if h.latest != nil {
		h.latest.Set(report)
	}
	jsonutil.OK(w, report)
}

// auditRequest is the JSON body for POST /audit.
type auditRequest struct {
	UserID string            `json:"user_id"`
	Action string            `json:"action"`
	Detail map[string]string `json:"detail,omitempty"`
}

// AppendAudit handles POST /audit: it appends one entry to the audit log.
// The change-stream tailer picks the entry up from there.
func (h *Handler) AppendAudit(w http.ResponseWriter, r *http.Request) {
	var in auditRequest
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, "Invalid JSON payload")
		return
	}
	if in.UserID == "" || in.Action == "" {
		jsonutil.BadRequest(w, "Missing required fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	entry, err := h.auditStore.Append(ctx, models.AuditEntry{
		UserID: in.UserID,
		Action: in.Action,
		Detail: in.Detail,
	})
	if err != nil {
		h.logger.Error("failed to append audit entry",
			zap.String("user_id", in.UserID),
			zap.String("action", in.Action),
			zap.Error(err))
		jsonutil.InternalError(w, "Failed to append audit entry")
		return
	}

	jsonutil.Created(w, entry)
}

// LatestReport handles GET /report: it returns the most recent batch
// report, or 404 when no batch has been processed yet.
func (h *Handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	report, ok := h.latest.Get()
	if !ok {
		jsonutil.NotFound(w, "No batch processed yet")
		return
	}
	jsonutil.OK(w, report)
}
