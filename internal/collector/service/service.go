// Package service implements the collector side of the event contract:
// validation, idempotent storage, enrichment, streaming and result queries.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"blaze/internal/collector/metrics"
	expmodels "blaze/internal/experiment/models"
	"blaze/internal/platform/tracing"
	"blaze/internal/telemetry/analysis"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/requestcontext"
)

// MaxBatchSize is the largest batch accepted in one request.
const MaxBatchSize = models.MaxBatchEvents

// EventStore persists events idempotently on event id.
type EventStore interface {
	// Save stores events not seen before and returns those it stored.
	Save(ctx context.Context, events []models.Event, receivedAt time.Time) ([]models.Event, error)
	ListByExperiment(ctx context.Context, expID id.ExperimentID, names []string) ([]models.Event, error)
}

// Publisher streams stored events downstream.
type Publisher interface {
	Publish(ctx context.Context, events []models.Event) error
}

// Experiments resolves experiment definitions for result queries.
type Experiments interface {
	Get(expID id.ExperimentID) (expmodels.Experiment, bool)
}

// IngestResult summarises one batch.
type IngestResult struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
}

// Service is safe for concurrent use.
type Service struct {
	store       EventStore
	publisher   Publisher
	experiments Experiments
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher streams accepted events. Without one, events are only stored.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		s.publisher = p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store EventStore, experiments Experiments, opts ...Option) *Service {
	s := &Service{
		store:       store,
		experiments: experiments,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest stores a batch. Invalid events are rejected individually so one bad
// event cannot make a client retry its whole batch forever. Events already
// stored are counted as duplicates and not published again.
func (s *Service) Ingest(ctx context.Context, batch models.Batch) (IngestResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "collector.ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("events.count", len(batch.Events)))

	if len(batch.Events) == 0 {
		return IngestResult{}, dErrors.New(dErrors.CodeBadRequest, "events array must not be empty")
	}
	if len(batch.Events) > MaxBatchSize {
		return IngestResult{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("at most %d events per batch", MaxBatchSize))
	}
	if s.metrics != nil {
		s.metrics.ObserveBatch(len(batch.Events))
	}

	var result IngestResult
	valid := make([]models.Event, 0, len(batch.Events))
	inBatch := make(map[id.EventID]struct{}, len(batch.Events))
	for i := range batch.Events {
		e := batch.Events[i]
		if err := e.Validate(); err != nil {
			result.Rejected++
			s.logger.WarnContext(ctx, "rejected event",
				"event_id", e.ID,
				"event_name", e.EventName,
				"error", err,
			)
			continue
		}
		if _, dup := inBatch[e.ID]; dup {
			result.Duplicates++
			continue
		}
		inBatch[e.ID] = struct{}{}
		valid = append(valid, e)
	}

	valid = enrich(valid, userAgentProperties(requestcontext.UserAgent(ctx)))

	var inserted []models.Event
	if len(valid) > 0 {
		var err error
		inserted, err = s.store.Save(ctx, valid, requestcontext.Now(ctx))
		if err != nil {
			return IngestResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store events")
		}
	}
	result.Accepted = len(inserted)
	result.Duplicates += len(valid) - len(inserted)

	if s.metrics != nil {
		s.metrics.AddIngested(result.Accepted)
		s.metrics.AddDuplicates(result.Duplicates)
		s.metrics.AddRejected(result.Rejected)
	}

	if s.publisher != nil && len(inserted) > 0 {
		if err := s.publisher.Publish(ctx, inserted); err != nil {
			// Stored events are the source of truth; the stream can be backfilled.
			if s.metrics != nil {
				s.metrics.IncPublishFailures()
			}
			s.logger.ErrorContext(ctx, "failed to publish events", "events", len(inserted), "error", err)
		}
	}

	span.SetAttributes(
		attribute.Int("events.accepted", result.Accepted),
		attribute.Int("events.duplicates", result.Duplicates),
		attribute.Int("events.rejected", result.Rejected),
	)
	return result, nil
}

// Results aggregates every stored event tagged with the experiment.
func (s *Service) Results(ctx context.Context, expID id.ExperimentID) (analysis.Result, error) {
	exp, ok := s.experiments.Get(expID)
	if !ok {
		return analysis.Result{}, dErrors.New(dErrors.CodeNotFound, "experiment not found")
	}
	events, err := s.store.ListByExperiment(ctx, expID, nil)
	if err != nil {
		return analysis.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load events")
	}
	return analysis.Aggregate(exp, events), nil
}
