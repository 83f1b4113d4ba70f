// Package assignment decides experiment enrollment and variant for a visitor.
//
// Enrollment is a pure function of (visitor, experiment): a stable hash gates the
// visitor against the traffic allocation, so every evaluator agrees without
// coordination. The variant itself is drawn once at random and then persisted;
// from then on the stored assignment is returned unchanged, even if weights move.
package assignment

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"blaze/internal/experiment/metrics"
	"blaze/internal/experiment/models"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/sentinel"
)

// defaultOverlayLimit bounds assignments held only in memory after store failures.
const defaultOverlayLimit = 10000

// Engine evaluates experiments for visitors. It is safe for concurrent use.
type Engine struct {
	store   Store
	draw    func() float64
	now     func() time.Time
	logger  *slog.Logger
	metrics *metrics.Metrics

	// overlay holds in-memory assignments, least recently used at the back.
	mu           sync.Mutex
	overlay      map[overlayKey]*list.Element
	recency      *list.List
	overlayLimit int
}

type overlayEntry struct {
	key        overlayKey
	assignment models.Assignment
}

type overlayKey struct {
	visitor    id.VisitorID
	experiment id.ExperimentID
}

// Option configures an Engine.
type Option func(*Engine)

// WithRandom overrides the variant draw source. fn must return values in [0,1).
func WithRandom(fn func() float64) Option {
	return func(e *Engine) {
		if fn != nil {
			e.draw = fn
		}
	}
}

// WithClock overrides the assignment timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a logger for degraded-mode warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithOverlayLimit bounds the in-memory fallback map. Past the limit the least
// recently evaluated visitor is evicted and may be re-drawn on its next Evaluate.
func WithOverlayLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.overlayLimit = n
		}
	}
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		draw:         rand.Float64,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
		overlay:      make(map[overlayKey]*list.Element),
		recency:      list.New(),
		overlayLimit: defaultOverlayLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate returns the visitor's assignment for exp, or nil when the experiment
// is not active or the visitor falls outside its traffic allocation.
//
// When the store cannot be read or written, Evaluate still returns a usable
// assignment held in memory for the engine's lifetime, together with a
// persistence_failure error the caller should log and otherwise ignore.
func (e *Engine) Evaluate(ctx context.Context, visitorID id.VisitorID, exp models.Experiment) (*models.Assignment, error) {
	if !exp.IsActive() || len(exp.Variants) == 0 {
		return nil, nil
	}
	if Bucket(visitorID, exp.ID) >= exp.TrafficAllocation {
		if e.metrics != nil {
			e.metrics.IncNotEnrolled(exp.ID.String())
		}
		return nil, nil
	}

	key := overlayKey{visitor: visitorID, experiment: exp.ID}
	if a, ok := e.fromOverlay(key); ok {
		return &a, nil
	}

	existing, err := e.store.Get(ctx, visitorID, exp.ID)
	if err == nil {
		return existing, nil
	}
	readFailed := !errors.Is(err, sentinel.ErrNotFound)

	variant := SelectVariant(exp.Variants, e.draw())
	fresh := models.Assignment{
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		AssignedAt:   e.now().UTC(),
	}

	if readFailed {
		// The store may already hold an assignment we cannot see; writing now could
		// shadow it, so keep this one in memory only.
		return e.degrade(ctx, key, fresh, err, "assignment store read failed")
	}

	stored, err := e.store.SaveIfAbsent(ctx, visitorID, fresh)
	if err != nil {
		return e.degrade(ctx, key, fresh, err, "assignment store write failed")
	}
	if stored.VariantID == fresh.VariantID && stored.AssignedAt.Equal(fresh.AssignedAt) && e.metrics != nil {
		e.metrics.IncEnrollment(exp.ID.String(), fresh.VariantID.String())
	}
	return stored, nil
}

// EvaluateAll evaluates every experiment and returns the enrolled assignments in
// input order. Persistence warnings are joined into the returned error.
func (e *Engine) EvaluateAll(ctx context.Context, visitorID id.VisitorID, experiments []models.Experiment) ([]models.Assignment, error) {
	var (
		out  []models.Assignment
		errs []error
	)
	for _, exp := range experiments {
		a, err := e.Evaluate(ctx, visitorID, exp)
		if err != nil {
			errs = append(errs, err)
		}
		if a != nil {
			out = append(out, *a)
		}
	}
	return out, errors.Join(errs...)
}

// Forget removes a visitor's assignments for the given experiments, from both the
// store and the in-memory overlay.
func (e *Engine) Forget(ctx context.Context, visitorID id.VisitorID, experimentIDs []id.ExperimentID) error {
	var errs []error
	e.mu.Lock()
	for _, expID := range experimentIDs {
		e.removeLocked(overlayKey{visitor: visitorID, experiment: expID})
	}
	e.mu.Unlock()
	for _, expID := range experimentIDs {
		if err := e.store.Delete(ctx, visitorID, expID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) degrade(ctx context.Context, key overlayKey, a models.Assignment, cause error, msg string) (*models.Assignment, error) {
	e.mu.Lock()
	if el, ok := e.overlay[key]; ok {
		// A concurrent Evaluate degraded first; keep its variant.
		a = el.Value.(*overlayEntry).assignment
		e.recency.MoveToFront(el)
	} else {
		for len(e.overlay) >= e.overlayLimit {
			e.removeLocked(e.recency.Back().Value.(*overlayEntry).key)
		}
		e.overlay[key] = e.recency.PushFront(&overlayEntry{key: key, assignment: a})
	}
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.IncPersistenceFailures()
	}
	e.logger.WarnContext(ctx, msg+"; using in-memory assignment",
		"experiment_id", a.ExperimentID,
		"visitor_id", key.visitor,
		"variant_id", a.VariantID,
		"error", cause,
	)
	return &a, dErrors.Wrap(cause, dErrors.CodePersistence, msg)
}

func (e *Engine) fromOverlay(key overlayKey) (models.Assignment, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	el, ok := e.overlay[key]
	if !ok {
		return models.Assignment{}, false
	}
	e.recency.MoveToFront(el)
	return el.Value.(*overlayEntry).assignment, true
}

func (e *Engine) removeLocked(key overlayKey) {
	if el, ok := e.overlay[key]; ok {
		e.recency.Remove(el)
		delete(e.overlay, key)
	}
}
