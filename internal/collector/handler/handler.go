package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"blaze/internal/collector/service"
	"blaze/internal/telemetry/analysis"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/httputil"
	"blaze/pkg/platform/middleware/admin"
)

// Service defines the collector operations behind the HTTP surface.
type Service interface {
	Ingest(ctx context.Context, batch models.Batch) (service.IngestResult, error)
	Results(ctx context.Context, expID id.ExperimentID) (analysis.Result, error)
}

// Handler serves the collection endpoint and the operator results endpoint.
type Handler struct {
	svc        Service
	logger     *slog.Logger
	adminToken string
	ingestMW   []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithIngestMiddleware wraps only the ingest route, e.g. with a rate limiter.
func WithIngestMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.ingestMW = append(h.ingestMW, mw...)
	}
}

func New(svc Service, logger *slog.Logger, adminToken string, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: logger, adminToken: adminToken}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the collector routes.
func (h *Handler) Register(r chi.Router) {
	r.With(h.ingestMW...).Post("/api/experiments", h.handleIngest)
	r.With(admin.RequireAdminToken(h.adminToken, h.logger)).
		Get("/api/experiments/{experimentID}/results", h.handleResults)
}

func (h *Handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)

	batch, err := httputil.DecodeJSON[models.Batch](r)
	if err != nil {
		h.logger.WarnContext(ctx, "invalid event batch",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	res, err := h.svc.Ingest(ctx, *batch)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeBadRequest) {
			h.logger.WarnContext(ctx, "rejected event batch", "request_id", requestID, "error", err)
			httputil.WriteError(w, err)
			return
		}
		h.logger.ErrorContext(ctx, "failed to ingest events", "request_id", requestID, "error", err)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to ingest events"))
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, res)
}

func (h *Handler) handleResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	expID, err := id.ParseExperimentID(chi.URLParam(r, "experimentID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.svc.Results(ctx, expID)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to compute results",
				"request_id", middleware.GetReqID(ctx),
				"experiment_id", expID,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, res)
}
