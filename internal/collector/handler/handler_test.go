package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"blaze/internal/collector/handler/mocks"
	"blaze/internal/collector/service"
	"blaze/internal/telemetry/analysis"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

const adminToken = "s3cret"

type HandlerSuite struct {
	suite.Suite
	svc    *mocks.MockService
	router chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.svc = mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.router = chi.NewRouter()
	New(s.svc, logger, adminToken).Register(s.router)
}

func (s *HandlerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) TestIngest_Accepted() {
	batch := models.Batch{Events: []models.Event{{
		ID:        id.NewEventID(),
		EventName: "page_view",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		VisitorID: "v_1",
		SessionID: "s_1",
	}}}
	body, err := json.Marshal(batch)
	s.Require().NoError(err)

	s.svc.EXPECT().Ingest(gomock.Any(), gomock.Any()).Return(service.IngestResult{Accepted: 1}, nil)

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/experiments", bytes.NewReader(body)))
	s.Equal(http.StatusAccepted, w.Code)
	s.JSONEq(`{"accepted":1,"duplicates":0,"rejected":0}`, w.Body.String())
}

func (s *HandlerSuite) TestIngest_MalformedBody() {
	w := s.do(httptest.NewRequest(http.MethodPost, "/api/experiments", bytes.NewReader([]byte(`{"events":`))))
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestIngest_NestedPropertyRejected() {
	raw := `{"events":[{"id":"0b7e1b1e-4a7b-4c55-9d55-3f1f7f0a9a11","eventName":"x","timestamp":"2026-03-01T12:00:00Z","visitorId":"v_1","sessionId":"s_1","properties":{"nested":{"a":1}}}]}`
	w := s.do(httptest.NewRequest(http.MethodPost, "/api/experiments", bytes.NewReader([]byte(raw))))
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestIngest_ServiceBadRequest() {
	s.svc.EXPECT().Ingest(gomock.Any(), gomock.Any()).
		Return(service.IngestResult{}, dErrors.New(dErrors.CodeBadRequest, "events array must not be empty"))

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/experiments", bytes.NewReader([]byte(`{"events":[]}`))))
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(w.Body.String(), "events array must not be empty")
}

func (s *HandlerSuite) TestIngest_InternalErrorHidesDetail() {
	s.svc.EXPECT().Ingest(gomock.Any(), gomock.Any()).
		Return(service.IngestResult{}, dErrors.Wrap(io.ErrUnexpectedEOF, dErrors.CodeInternal, "failed to store events"))

	w := s.do(httptest.NewRequest(http.MethodPost, "/api/experiments", bytes.NewReader([]byte(`{"events":[]}`))))
	s.Equal(http.StatusInternalServerError, w.Code)
	s.NotContains(w.Body.String(), "unexpected EOF")
}

func (s *HandlerSuite) TestResults_RequiresAdminToken() {
	w := s.do(httptest.NewRequest(http.MethodGet, "/api/experiments/cta_color/results", nil))
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerSuite) TestResults() {
	s.svc.EXPECT().Results(gomock.Any(), id.ExperimentID("cta_color")).Return(analysis.Result{
		ExperimentID: "cta_color",
		Variants: []analysis.VariantResult{{
			VariantID:  "A",
			SampleSize: 3,
			Metrics:    map[string]analysis.Ratio{"signup_rate": analysis.NewRatio(1, 0)},
		}},
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/cta_color/results", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	w := s.do(req)
	s.Require().Equal(http.StatusOK, w.Code)

	var resp map[string]any
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	variant := resp["variants"].([]any)[0].(map[string]any)
	metric := variant["metrics"].(map[string]any)["signup_rate"].(map[string]any)
	s.Nil(metric["value"])
	s.Equal(false, metric["defined"])
}

func (s *HandlerSuite) TestResults_NotFound() {
	s.svc.EXPECT().Results(gomock.Any(), id.ExperimentID("nope")).
		Return(analysis.Result{}, dErrors.New(dErrors.CodeNotFound, "experiment not found"))

	req := httptest.NewRequest(http.MethodGet, "/api/experiments/nope/results", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	s.Equal(http.StatusNotFound, s.do(req).Code)
}

func (s *HandlerSuite) TestIngest_MiddlewareWrapsOnlyIngest() {
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		})
	}
	router := chi.NewRouter()
	New(s.svc, slog.New(slog.NewTextHandler(io.Discard, nil)), adminToken, WithIngestMiddleware(deny)).Register(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/experiments", bytes.NewBufferString(`{"events":[]}`)))
	s.Equal(http.StatusTooManyRequests, w.Code)

	s.svc.EXPECT().Results(gomock.Any(), id.ExperimentID("cta_color")).Return(analysis.Result{ExperimentID: "cta_color"}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/experiments/cta_color/results", nil)
	req.Header.Set("X-Admin-Token", adminToken)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	s.Equal(http.StatusOK, w.Code)
}
