// Package handler exposes experiment definitions and server-side evaluation
// for edge workers that assign visitors before the page renders.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"blaze/internal/experiment/models"
	id "blaze/pkg/domain"
	"blaze/pkg/platform/httputil"
)

// Registry lists configured experiments.
type Registry interface {
	ListActive() []models.Experiment
}

// Evaluator assigns a visitor to experiments.
type Evaluator interface {
	EvaluateAll(ctx context.Context, visitorID id.VisitorID, experiments []models.Experiment) ([]models.Assignment, error)
}

type Handler struct {
	registry  Registry
	evaluator Evaluator
	logger    *slog.Logger
}

func New(registry Registry, evaluator Evaluator, logger *slog.Logger) *Handler {
	return &Handler{registry: registry, evaluator: evaluator, logger: logger}
}

// Register mounts the experiment routes.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/experiments/active", h.handleListActive)
	r.Get("/api/visitors/{visitorID}/assignments", h.handleAssignments)
}

type activeResponse struct {
	Experiments []models.Experiment `json:"experiments"`
}

type assignmentView struct {
	models.Assignment
	VariantConfig map[string]any `json:"variantConfig,omitempty"`
}

type assignmentsResponse struct {
	VisitorID   id.VisitorID     `json:"visitorId"`
	Assignments []assignmentView `json:"assignments"`
	// Degraded is set when assignments could not be persisted and may change
	// on the next request.
	Degraded bool `json:"degraded,omitempty"`
}

func (h *Handler) handleListActive(w http.ResponseWriter, r *http.Request) {
	active := h.registry.ListActive()
	if active == nil {
		active = []models.Experiment{}
	}
	httputil.WriteJSON(w, http.StatusOK, activeResponse{Experiments: active})
}

func (h *Handler) handleAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	visitorID, err := id.ParseVisitorID(chi.URLParam(r, "visitorID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	active := h.registry.ListActive()
	assignments, err := h.evaluator.EvaluateAll(ctx, visitorID, active)
	resp := assignmentsResponse{VisitorID: visitorID, Assignments: make([]assignmentView, 0, len(assignments))}
	if err != nil {
		resp.Degraded = true
		h.logger.WarnContext(ctx, "assignments served from memory",
			"request_id", middleware.GetReqID(ctx),
			"visitor_id", visitorID,
			"error", err,
		)
	}

	configs := make(map[id.ExperimentID]models.Experiment, len(active))
	for _, exp := range active {
		configs[exp.ID] = exp
	}
	for _, a := range assignments {
		view := assignmentView{Assignment: a}
		exp := configs[a.ExperimentID]
		if v, ok := exp.Variant(a.VariantID); ok {
			view.VariantConfig = v.Config
		}
		resp.Assignments = append(resp.Assignments, view)
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}
