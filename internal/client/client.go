// Package client composes identity, assignment, activation and telemetry into
// one per-visitor context object. A Client corresponds to one page load: it
// evaluates active experiments once in Start, fires activations, and records
// events until Close.
package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"blaze/internal/experiment/activation"
	"blaze/internal/experiment/assignment"
	expmodels "blaze/internal/experiment/models"
	"blaze/internal/identity"
	"blaze/internal/platform/config"
	"blaze/internal/storage"
	"blaze/internal/telemetry/analysis"
	"blaze/internal/telemetry/archive"
	"blaze/internal/telemetry/models"
	"blaze/internal/telemetry/pipeline"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
)

// ExposureEvent is recorded once per experiment when an assignment is activated.
const ExposureEvent = "experiment_exposure"

var (
	// ErrDebugDisabled is returned by Debug unless debug mode is on.
	ErrDebugDisabled = errors.New("debug surface disabled")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("client already started")
	// ErrForgotten is returned by Track after Forget.
	ErrForgotten = errors.New("visitor data deleted")
)

// Experiments is the registry view a client needs.
type Experiments interface {
	ListActive() []expmodels.Experiment
	Get(expID id.ExperimentID) (expmodels.Experiment, bool)
	IDs() []id.ExperimentID
}

// Storage groups the visitor-scoped stores. Persistent outlives sessions;
// Session is cleared when the browsing session ends.
type Storage struct {
	Persistent storage.KeyValueStore
	Session    storage.KeyValueStore
}

// Client is safe for concurrent use after Start.
type Client struct {
	experiments Experiments
	resolver    *identity.Resolver
	engine      *assignment.Engine
	dispatcher  *activation.Dispatcher
	pipeline    *pipeline.Pipeline
	archive     archive.Archive
	logger      *slog.Logger
	debug       bool

	mu          sync.RWMutex
	ident       identity.Identity
	assignments []expmodels.Assignment
	started     bool
	forgotten   bool
	cancel      context.CancelFunc
	done        chan struct{}
}

type options struct {
	logger       *slog.Logger
	applicators  []activation.Applicator
	archive      archive.Archive
	store        assignment.Store
	engineOpts   []assignment.Option
	pipelineOpts []pipeline.Option
}

// Option configures a Client.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithApplicators registers presentation-side applicators.
func WithApplicators(applicators ...activation.Applicator) Option {
	return func(o *options) {
		o.applicators = append(o.applicators, applicators...)
	}
}

// WithArchive overrides the archive kept in persistent storage.
func WithArchive(a archive.Archive) Option {
	return func(o *options) {
		o.archive = a
	}
}

// WithAssignmentStore overrides the assignment store kept in persistent storage.
func WithAssignmentStore(s assignment.Store) Option {
	return func(o *options) {
		o.store = s
	}
}

func WithEngineOptions(opts ...assignment.Option) Option {
	return func(o *options) {
		o.engineOpts = append(o.engineOpts, opts...)
	}
}

func WithPipelineOptions(opts ...pipeline.Option) Option {
	return func(o *options) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// New wires a client. Nothing is read or evaluated until Start.
func New(experiments Experiments, store Storage, sender pipeline.Sender, cfg config.Telemetry, opts ...Option) *Client {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	if o.archive == nil {
		o.archive = archive.NewKVArchive(store.Persistent, cfg.ArchiveLimit)
	}
	if o.store == nil {
		o.store = assignment.NewKVStore(store.Persistent)
	}

	c := &Client{
		experiments: experiments,
		resolver:    identity.NewResolver(store.Persistent, store.Session, o.logger),
		engine:      assignment.NewEngine(o.store, append([]assignment.Option{assignment.WithLogger(o.logger)}, o.engineOpts...)...),
		dispatcher:  activation.NewDispatcher(o.applicators...),
		archive:     o.archive,
		logger:      o.logger,
		debug:       cfg.Debug,
	}
	pipeOpts := append([]pipeline.Option{
		pipeline.WithLogger(o.logger),
		pipeline.WithArchive(o.archive),
	}, o.pipelineOpts...)
	c.pipeline = pipeline.New(sender, c, cfg, pipeOpts...)
	return c
}

// Start resolves identity, evaluates every active experiment, fires
// activations and starts the flush loop. Storage failures degrade to in-memory
// state and are logged, never returned.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.started = true
	c.mu.Unlock()

	ident, _ := c.resolver.Resolve(ctx)

	active := c.experiments.ListActive()
	assigned, err := c.engine.EvaluateAll(ctx, ident.VisitorID, active)
	if err != nil {
		c.logger.WarnContext(ctx, "assignment persistence degraded", "visitor_id", ident.VisitorID, "error", err)
	}

	c.mu.Lock()
	c.ident = ident
	c.assignments = assigned
	c.mu.Unlock()

	for _, a := range assigned {
		exp, ok := c.experiments.Get(a.ExperimentID)
		if !ok {
			continue
		}
		if !c.dispatcher.Dispatch(exp, a) {
			continue
		}
		_, _ = c.pipeline.Record(ctx, ExposureEvent, models.Properties{
			"experiment_id": models.String(a.ExperimentID.String()),
			"variant_id":    models.String(a.VariantID.String()),
		})
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	c.mu.Lock()
	c.cancel = cancel
	c.done = done
	c.mu.Unlock()

	go func() {
		defer close(done)
		_ = c.pipeline.Run(runCtx)
	}()

	c.logger.InfoContext(ctx, "client started",
		"visitor_id", ident.VisitorID,
		"session_id", ident.SessionID,
		"assignments", len(assigned),
	)
	return nil
}

// Close stops the flush loop after one final best-effort flush.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return c.pipeline.Flush(ctx)
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Track records an interaction event tagged with the current experiment context.
func (c *Client) Track(ctx context.Context, name string, props models.Properties) (models.Event, error) {
	c.mu.RLock()
	forgotten := c.forgotten
	c.mu.RUnlock()
	if forgotten {
		return models.Event{}, ErrForgotten
	}
	e, err := c.pipeline.Record(ctx, name, props)
	if err != nil {
		c.logger.WarnContext(ctx, "event rejected", "event_name", name, "error", err)
	}
	return e, err
}

// Flush delivers buffered events now.
func (c *Client) Flush(ctx context.Context) error {
	return c.pipeline.Flush(ctx)
}

// VisitorID implements pipeline.Source.
func (c *Client) VisitorID() id.VisitorID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ident.VisitorID
}

// SessionID implements pipeline.Source.
func (c *Client) SessionID() id.SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ident.SessionID
}

// ExperimentContext implements pipeline.Source. The returned map is a copy.
func (c *Client) ExperimentContext() expmodels.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expmodels.ContextOf(c.assignments)
}

// Assignments returns the visitor's active assignments in registry order.
func (c *Client) Assignments() []expmodels.Assignment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]expmodels.Assignment(nil), c.assignments...)
}

// Variant returns the assigned variant for an experiment, if enrolled.
func (c *Client) Variant(expID id.ExperimentID) (id.VariantID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.assignments {
		if a.ExperimentID == expID {
			return a.VariantID, true
		}
	}
	return "", false
}

// Activations returns a channel of activations fired after the call. Subscribe
// before Start to see every activation of this page load.
func (c *Client) Activations() chan activation.Activation {
	return c.dispatcher.Subscribe()
}

// StopActivations unsubscribes and closes a channel from Activations.
func (c *Client) StopActivations(ch chan activation.Activation) {
	c.dispatcher.Unsubscribe(ch)
}

// Results aggregates an experiment from the local archive.
func (c *Client) Results(ctx context.Context, expID id.ExperimentID) (analysis.Result, error) {
	exp, ok := c.experiments.Get(expID)
	if !ok {
		return analysis.Result{}, dErrors.New(dErrors.CodeNotFound, "experiment not found")
	}
	events, err := c.archive.Snapshot(ctx)
	if err != nil {
		return analysis.Result{}, dErrors.Wrap(err, dErrors.CodeInternal, "read archive")
	}
	return analysis.Aggregate(exp, events), nil
}

// DebugSnapshot is the operator view of a client.
type DebugSnapshot struct {
	VisitorID      id.VisitorID           `json:"visitorId"`
	SessionID      id.SessionID           `json:"sessionId"`
	Assignments    []expmodels.Assignment `json:"assignments"`
	BufferedEvents int                    `json:"bufferedEvents"`
	DroppedEvents  int64                  `json:"droppedEvents"`
}

// Debug returns internal state when debug mode is enabled.
func (c *Client) Debug() (DebugSnapshot, error) {
	if !c.debug {
		return DebugSnapshot{}, ErrDebugDisabled
	}
	c.mu.RLock()
	snap := DebugSnapshot{
		VisitorID:   c.ident.VisitorID,
		SessionID:   c.ident.SessionID,
		Assignments: append([]expmodels.Assignment(nil), c.assignments...),
	}
	c.mu.RUnlock()
	snap.BufferedEvents = c.pipeline.Buffered()
	snap.DroppedEvents = c.pipeline.Dropped()
	return snap, nil
}

// Forget deletes the visitor's persisted assignments, archive and ids. Events
// already buffered are still delivered; later Track calls fail with
// ErrForgotten. The next Client mints a new visitor.
func (c *Client) Forget(ctx context.Context) error {
	visitorID := c.VisitorID()
	errs := []error{
		c.engine.Forget(ctx, visitorID, c.experiments.IDs()),
		c.archive.Clear(ctx),
		c.resolver.Forget(ctx),
	}

	c.mu.Lock()
	c.assignments = nil
	c.ident = identity.Identity{}
	c.forgotten = true
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "visitor data deleted", "visitor_id", visitorID)
	return errors.Join(errs...)
}
