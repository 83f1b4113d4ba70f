// Package pipeline records interaction events tagged with the visitor's
// experiment context and delivers them to the collector in ordered batches.
//
// Delivery is at-least-once. A flush drains the whole buffer before the network
// call, so events recorded while a batch is in flight always land in the next
// flush. The drained events are sent oldest first in requests of at most
// models.MaxBatchEvents. When a request fails, it and every chunk after it go
// back to the front of the buffer and are retried ahead of anything recorded
// later.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	expmodels "blaze/internal/experiment/models"
	"blaze/internal/platform/config"
	"blaze/internal/platform/tracing"
	"blaze/internal/telemetry/archive"
	"blaze/internal/telemetry/buffer"
	"blaze/internal/telemetry/metrics"
	"blaze/internal/telemetry/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
)

// Sender delivers one batch to the collector.
type Sender interface {
	Deliver(ctx context.Context, events []models.Event) error
}

// Source supplies the identity and experiment context stamped onto each event.
type Source interface {
	VisitorID() id.VisitorID
	SessionID() id.SessionID
	ExperimentContext() expmodels.Context
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	buf     *buffer.RingBuffer
	sender  Sender
	source  Source
	archive archive.Archive
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	batchSize     int
	flushInterval time.Duration
	finalTimeout  time.Duration

	// flushMu serializes flushes so a retried batch is always re-queued before
	// the next drain.
	flushMu sync.Mutex
	kick    chan struct{}

	dropMu      sync.Mutex
	lastDropped int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithArchive keeps delivered batches in a bounded local archive.
func WithArchive(a archive.Archive) Option {
	return func(p *Pipeline) {
		p.archive = a
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithClock overrides event timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New creates a pipeline. Zero values in cfg fall back to the defaults.
func New(sender Sender, source Source, cfg config.Telemetry, opts ...Option) *Pipeline {
	d := config.DefaultTelemetry()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = d.FlushTimeout
	}
	if cfg.MaxBuffered <= 0 {
		cfg.MaxBuffered = d.MaxBuffered
	}

	p := &Pipeline{
		buf:           buffer.New(cfg.MaxBuffered),
		sender:        sender,
		source:        source,
		logger:        slog.New(slog.DiscardHandler),
		now:           time.Now,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		finalTimeout:  cfg.FlushTimeout,
		kick:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record appends an event and returns it. It never blocks on delivery: when the
// buffer reaches the batch size a flush is requested from the Run loop.
func (p *Pipeline) Record(ctx context.Context, name string, props models.Properties) (models.Event, error) {
	clean, dropped := props.Sanitized()
	if len(dropped) > 0 {
		p.logger.WarnContext(ctx, "dropping non-primitive event properties",
			"event_name", name,
			"keys", dropped,
		)
	}
	if err := models.ValidateContent(name, clean); err != nil {
		return models.Event{}, err
	}

	event := models.Event{
		ID:                id.NewEventID(),
		EventName:         name,
		Timestamp:         p.now().UTC(),
		VisitorID:         p.source.VisitorID(),
		SessionID:         p.source.SessionID(),
		Properties:        clean,
		ExperimentContext: p.source.ExperimentContext(),
	}

	n := p.buf.Append(event)
	if p.metrics != nil {
		p.metrics.IncRecorded()
		p.metrics.SetBuffered(n)
	}
	p.reportDropped()

	if n >= p.batchSize {
		p.requestFlush()
	}
	return event, nil
}

// Flush delivers everything currently buffered, oldest first, in requests of at
// most models.MaxBatchEvents. On failure the undelivered events are put back at
// the front of the buffer and the delivery error returned.
func (p *Pipeline) Flush(ctx context.Context) (err error) {
	p.flushMu.Lock()
	defer p.flushMu.Unlock()

	pending := p.buf.Drain()
	if len(pending) == 0 {
		return nil
	}

	ctx, span := tracing.Tracer().Start(ctx, "telemetry.flush")
	span.SetAttributes(attribute.Int("events.count", len(pending)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "flush failed")
		}
		span.End()
	}()

	for len(pending) > 0 {
		chunk := pending[:min(len(pending), models.MaxBatchEvents)]
		if err := p.deliver(ctx, chunk); err != nil {
			p.buf.Prepend(pending)
			p.reportDropped()
			if p.metrics != nil {
				p.metrics.IncFlushFailures()
				p.metrics.SetBuffered(p.buf.Len())
			}
			p.logger.WarnContext(ctx, "event flush failed; batch re-queued",
				"events", len(pending),
				"buffered", p.buf.Len(),
				"error", err,
			)
			return dErrors.Wrap(err, dErrors.CodeDelivery, "flush events")
		}
		pending = pending[len(chunk):]
	}
	if p.metrics != nil {
		p.metrics.SetBuffered(p.buf.Len())
	}
	return nil
}

// deliver sends one request and archives it on success.
func (p *Pipeline) deliver(ctx context.Context, batch []models.Event) error {
	start := time.Now()
	err := p.sender.Deliver(ctx, batch)
	if p.metrics != nil {
		p.metrics.ObserveFlushDuration(time.Since(start).Seconds())
	}
	if err != nil {
		return err
	}

	if p.metrics != nil {
		p.metrics.AddDelivered(len(batch))
	}
	if p.archive != nil {
		if aerr := p.archive.Append(ctx, batch); aerr != nil {
			if p.metrics != nil {
				p.metrics.IncArchiveFailures()
			}
			p.logger.WarnContext(ctx, "failed to archive delivered events", "events", len(batch), "error", aerr)
		}
	}
	return nil
}

// Run flushes on the interval and whenever Record fills a batch. When ctx is
// cancelled it makes one final best-effort flush bounded by the flush timeout.
func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.finalTimeout)
			if err := p.Flush(final); err != nil {
				p.logger.WarnContext(final, "final flush failed", "buffered", p.buf.Len(), "error", err)
			}
			cancel()
			return nil
		case <-ticker.C:
			_ = p.Flush(ctx)
		case <-p.kick:
			_ = p.Flush(ctx)
		}
	}
}

// Buffered returns the number of events awaiting delivery.
func (p *Pipeline) Buffered() int {
	return p.buf.Len()
}

// Dropped returns how many events were discarded because the buffer was full.
func (p *Pipeline) Dropped() int64 {
	return p.buf.Dropped()
}

// Archive returns the configured archive, if any.
func (p *Pipeline) Archive() archive.Archive {
	return p.archive
}

func (p *Pipeline) requestFlush() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

func (p *Pipeline) reportDropped() {
	total := p.buf.Dropped()
	p.dropMu.Lock()
	delta := total - p.lastDropped
	p.lastDropped = total
	p.dropMu.Unlock()
	if delta <= 0 {
		return
	}
	if p.metrics != nil {
		p.metrics.AddDropped(delta)
	}
	p.logger.Warn("event buffer full; oldest events dropped", "dropped", delta)
}
