package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"blaze/internal/ratelimit/metrics"
	"blaze/internal/ratelimit/models"
	"blaze/internal/ratelimit/store"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }

func send(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/experiments", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPerIP_DeniesOverBudget(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := New(store.NewInMemory(), 2, time.Minute, discard, WithMetrics(m)).PerIP(http.HandlerFunc(ok))

	assert.Equal(t, http.StatusAccepted, send(h, "10.0.0.1:5000").Code)
	rec := send(h, "10.0.0.1:5001")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	rec = send(h, "10.0.0.1:5002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), `"error":"rate_limit_exceeded"`)

	// Another client still has budget.
	assert.Equal(t, http.StatusAccepted, send(h, "10.0.0.2:5000").Code)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.Decisions.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Decisions.WithLabelValues("denied")))
}

type brokenStore struct{}

func (brokenStore) Allow(context.Context, string, int, time.Duration) (*models.Result, error) {
	return nil, errors.New("redis down")
}

func TestPerIP_FailsOpen(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := New(brokenStore{}, 1, time.Minute, discard, WithMetrics(m)).PerIP(http.HandlerFunc(ok))

	for range 3 {
		assert.Equal(t, http.StatusAccepted, send(h, "10.0.0.1:5000").Code)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CheckErrors))
}

func TestPerIP_Disabled(t *testing.T) {
	h := New(brokenStore{}, 0, time.Minute, discard).PerIP(http.HandlerFunc(ok))
	rec := send(h, "10.0.0.1:5000")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}
