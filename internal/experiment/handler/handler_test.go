package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blaze/internal/experiment/assignment"
	"blaze/internal/experiment/models"
	"blaze/internal/experiment/registry"
	"blaze/internal/storage"
)

func newRouter(t *testing.T, kv storage.KeyValueStore) chi.Router {
	t.Helper()
	reg, err := registry.New([]models.Experiment{
		{
			ID:                "cta_color",
			Status:            models.StatusActive,
			TrafficAllocation: 1,
			Variants: []models.Variant{
				{ID: "A", Weight: 0.5, Config: map[string]any{"button_color": "#BF5700"}},
				{ID: "B", Weight: 0.5, Config: map[string]any{"button_color": "#002244"}},
			},
		},
		{
			ID:                "hero_video",
			Status:            models.StatusPaused,
			TrafficAllocation: 1,
			Variants:          []models.Variant{{ID: "on", Weight: 1}},
		},
	})
	require.NoError(t, err)

	engine := assignment.NewEngine(assignment.NewKVStore(kv, assignment.WithVisitorNamespace()))
	r := chi.NewRouter()
	New(reg, engine, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(r)
	return r
}

func TestListActive(t *testing.T) {
	r := newRouter(t, storage.NewInMemoryStore())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/experiments/active", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp activeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Experiments, 1)
	assert.Equal(t, "cta_color", resp.Experiments[0].ID.String())
}

func TestAssignments_StableAcrossRequests(t *testing.T) {
	r := newRouter(t, storage.NewInMemoryStore())

	get := func() assignmentsResponse {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/visitors/v_123/assignments", nil))
		require.Equal(t, http.StatusOK, w.Code)
		var resp assignmentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		return resp
	}

	first := get()
	require.Len(t, first.Assignments, 1)
	assert.False(t, first.Degraded)
	assert.NotEmpty(t, first.Assignments[0].VariantConfig["button_color"])

	second := get()
	assert.Equal(t, first.Assignments[0].VariantID, second.Assignments[0].VariantID)
	assert.True(t, first.Assignments[0].AssignedAt.Equal(second.Assignments[0].AssignedAt))
}

func TestAssignments_DegradedWhenStoreFull(t *testing.T) {
	r := newRouter(t, storage.NewInMemoryStore(storage.WithQuota(1)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/visitors/v_123/assignments", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp assignmentsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Degraded)
	assert.Len(t, resp.Assignments, 1)
}

func TestAssignments_InvalidVisitor(t *testing.T) {
	r := newRouter(t, storage.NewInMemoryStore())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/visitors/bad%20id/assignments", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
