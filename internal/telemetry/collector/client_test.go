package collector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/circuit"
	"blaze/pkg/platform/sentinel"
)

func events(n int) []models.Event {
	out := make([]models.Event, n)
	for i := range out {
		out[i] = models.Event{
			ID:        id.NewEventID(),
			EventName: "page_view",
			Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			VisitorID: "v_1",
			SessionID: "s_1",
		}
	}
	return out
}

func TestDeliver_PostsBatch(t *testing.T) {
	var got models.Batch
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, Path, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sent := events(3)
	require.NoError(t, New(srv.URL+"/").Deliver(context.Background(), sent))
	require.Len(t, got.Events, 3)
	assert.Equal(t, sent[0].ID, got.Events[0].ID)
}

func TestDeliver_EmptyBatchIsNoop(t *testing.T) {
	c := New("http://127.0.0.1:0")
	assert.NoError(t, c.Deliver(context.Background(), nil))
}

func TestDeliver_Non2xxIsDeliveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New(srv.URL).Deliver(context.Background(), events(1))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDelivery))
	assert.Contains(t, err.Error(), "500")
}

func TestDeliver_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	err := New(srv.URL, WithTimeout(50*time.Millisecond)).Deliver(context.Background(), events(1))
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeDelivery))
}

func TestDeliver_BreakerOpensAndFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	breaker := circuit.New("collector", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := New(srv.URL, WithBreaker(breaker))

	for range 2 {
		require.Error(t, c.Deliver(context.Background(), events(1)))
	}
	require.True(t, breaker.IsOpen())

	err := c.Deliver(context.Background(), events(1))
	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}
