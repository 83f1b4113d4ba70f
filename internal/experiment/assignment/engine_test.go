package assignment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"blaze/internal/experiment/models"
	"blaze/internal/storage"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/sentinel"
)

func ctaColor() models.Experiment {
	return models.Experiment{
		ID:                "cta_color",
		Status:            models.StatusActive,
		TrafficAllocation: 1.0,
		Variants: []models.Variant{
			{ID: "A", Weight: 0.5},
			{ID: "B", Weight: 0.5},
		},
	}
}

// fixedDraws returns the given values in order, then repeats the last one.
func fixedDraws(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

type EngineSuite struct {
	suite.Suite
	ctx   context.Context
	kv    *storage.InMemoryStore
	store *KVStore
	now   time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.kv = storage.NewInMemoryStore()
	s.store = NewKVStore(s.kv, WithVisitorNamespace())
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *EngineSuite) newEngine(opts ...Option) *Engine {
	base := []Option{WithClock(func() time.Time { return s.now })}
	return NewEngine(s.store, append(base, opts...)...)
}

func (s *EngineSuite) TestEvaluate_SameVisitorSameVariant() {
	engine := s.newEngine()

	first, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().NoError(err)
	s.Require().NotNil(first)

	second, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().NoError(err)
	s.Equal(*first, *second)
	s.Equal(s.now, first.AssignedAt)
}

func (s *EngineSuite) TestEvaluate_EnrollmentIsDeterministic() {
	exp := ctaColor()
	exp.TrafficAllocation = 0.5

	for i := range 200 {
		visitor := id.VisitorID(fmt.Sprintf("visitor-%d", i))
		a1, err := NewEngine(NewKVStore(storage.NewInMemoryStore())).Evaluate(s.ctx, visitor, exp)
		s.Require().NoError(err)
		a2, err := NewEngine(NewKVStore(storage.NewInMemoryStore())).Evaluate(s.ctx, visitor, exp)
		s.Require().NoError(err)
		s.Equal(a1 == nil, a2 == nil, "enrollment decision differs for %s", visitor)
	}
}

func (s *EngineSuite) TestEvaluate_StableAfterWeightChange() {
	engine := s.newEngine(WithRandom(fixedDraws(0.1, 0.1)))
	exp := ctaColor()

	original, err := engine.Evaluate(s.ctx, "v1", exp)
	s.Require().NoError(err)
	s.Require().Equal(id.VariantID("A"), original.VariantID)

	// A fresh engine (new page view) with weights that would now pick B.
	exp.Variants[0].Weight = 0.01
	exp.Variants[1].Weight = 0.99
	later := s.newEngine(WithRandom(fixedDraws(0.1)))
	again, err := later.Evaluate(s.ctx, "v1", exp)
	s.Require().NoError(err)
	s.Equal(id.VariantID("A"), again.VariantID)
	s.Equal(original.AssignedAt, again.AssignedAt)
}

func (s *EngineSuite) TestEvaluate_NotEnrolledPersistsNothing() {
	exp := ctaColor()
	exp.TrafficAllocation = 0

	a, err := s.newEngine().Evaluate(s.ctx, "v1", exp)
	s.Require().NoError(err)
	s.Nil(a)
	s.Equal(0, s.kv.Len())
}

func (s *EngineSuite) TestEvaluate_PausedExperimentIgnored() {
	exp := ctaColor()
	exp.Status = models.StatusPaused

	a, err := s.newEngine().Evaluate(s.ctx, "v1", exp)
	s.Require().NoError(err)
	s.Nil(a)
	s.Equal(0, s.kv.Len())
}

func (s *EngineSuite) TestEvaluate_PersistsRecordUnderExperimentKey() {
	clientStore := storage.NewInMemoryStore()
	engine := NewEngine(NewKVStore(clientStore), WithClock(func() time.Time { return s.now }))

	a, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().NoError(err)

	raw, err := clientStore.Get(s.ctx, "exp_cta_color")
	s.Require().NoError(err)
	s.JSONEq(fmt.Sprintf(`{"experimentId":"cta_color","variantId":%q,"assignedAt":"2026-03-01T12:00:00Z"}`, a.VariantID), string(raw))
}

func (s *EngineSuite) TestEvaluate_WriteFailureDegradesToMemory() {
	full := storage.NewInMemoryStore(storage.WithQuota(1))
	engine := NewEngine(NewKVStore(full), WithRandom(fixedDraws(0.1, 0.9)))

	a, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
	s.ErrorIs(err, sentinel.ErrQuotaExceeded)
	s.Require().NotNil(a)
	s.Equal(id.VariantID("A"), a.VariantID)

	// Same engine keeps returning the in-memory assignment despite a new draw.
	again, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().NoError(err)
	s.Equal(*a, *again)
}

func (s *EngineSuite) TestEvaluate_ReadFailureDoesNotWrite() {
	store := &failingStore{getErr: sentinel.ErrUnavailable}
	engine := NewEngine(store)

	a, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
	s.Require().NotNil(a)
	s.Zero(store.saves)
}

func (s *EngineSuite) TestEvaluate_OverlayEvictsLeastRecentlyUsed() {
	store := &failingStore{getErr: sentinel.ErrUnavailable}
	engine := NewEngine(store, WithOverlayLimit(2), WithRandom(fixedDraws(0.1, 0.9, 0.1, 0.9)))
	exp := ctaColor()

	first, _ := engine.Evaluate(s.ctx, "v1", exp)
	_, _ = engine.Evaluate(s.ctx, "v2", exp)
	// v1 is in use again, so v2 becomes the eviction candidate.
	again, _ := engine.Evaluate(s.ctx, "v1", exp)
	s.Equal(first.VariantID, again.VariantID)
	_, _ = engine.Evaluate(s.ctx, "v3", exp)

	_, ok := engine.fromOverlay(overlayKey{visitor: "v2", experiment: exp.ID})
	s.False(ok)
	for _, v := range []id.VisitorID{"v1", "v3"} {
		_, ok := engine.fromOverlay(overlayKey{visitor: v, experiment: exp.ID})
		s.True(ok, v)
	}

	still, _ := engine.Evaluate(s.ctx, "v1", exp)
	s.Equal(first.VariantID, still.VariantID)
	s.Zero(store.saves)
}

func (s *EngineSuite) TestEvaluate_ConcurrentWriterWins() {
	// Another evaluator stored B first; our draw would have picked A.
	_, err := s.store.SaveIfAbsent(s.ctx, "v1", models.Assignment{ExperimentID: "cta_color", VariantID: "B", AssignedAt: s.now})
	s.Require().NoError(err)

	engine := NewEngine(&hideFirstGet{Store: s.store}, WithRandom(fixedDraws(0.1)))
	a, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().NoError(err)
	s.Equal(id.VariantID("B"), a.VariantID)
}

func (s *EngineSuite) TestForget() {
	engine := s.newEngine()
	_, err := engine.Evaluate(s.ctx, "v1", ctaColor())
	s.Require().NoError(err)
	s.Equal(1, s.kv.Len())

	s.Require().NoError(engine.Forget(s.ctx, "v1", []id.ExperimentID{"cta_color"}))
	s.Equal(0, s.kv.Len())
}

func (s *EngineSuite) TestEvaluateAll() {
	paused := ctaColor()
	paused.ID = "hero_video"
	paused.Status = models.StatusPaused

	got, err := s.newEngine().EvaluateAll(s.ctx, "v1", []models.Experiment{ctaColor(), paused})
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(id.ExperimentID("cta_color"), got[0].ExperimentID)
}

func TestEvaluate_WeightDistribution(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewKVStore(storage.NewInMemoryStore(), WithVisitorNamespace()))

	const n = 100000
	counts := map[id.VariantID]int{}
	for i := range n {
		a, err := engine.Evaluate(ctx, id.VisitorID(fmt.Sprintf("visitor-%d", i)), ctaColor())
		require.NoError(t, err)
		require.NotNil(t, a)
		counts[a.VariantID]++
	}
	for _, variant := range []id.VariantID{"A", "B"} {
		share := float64(counts[variant]) / n
		assert.InDelta(t, 0.5, share, 0.02, "variant %s share", variant)
	}
}

func TestEvaluate_ExampleSplit(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewKVStore(storage.NewInMemoryStore(), WithVisitorNamespace()))

	counts := map[id.VariantID]int{}
	for i := range 10000 {
		a, err := engine.Evaluate(ctx, id.VisitorID(fmt.Sprintf("v%d", i)), ctaColor())
		require.NoError(t, err)
		counts[a.VariantID]++
	}
	assert.GreaterOrEqual(t, counts["A"], 4800)
	assert.LessOrEqual(t, counts["A"], 5200)
	assert.Equal(t, 10000, counts["A"]+counts["B"])
}

func TestEvaluate_TrafficGating(t *testing.T) {
	ctx := context.Background()
	engine := NewEngine(NewKVStore(storage.NewInMemoryStore(), WithVisitorNamespace()))
	exp := ctaColor()
	exp.TrafficAllocation = 0.3

	const n = 100000
	enrolled := 0
	for i := range n {
		a, err := engine.Evaluate(ctx, id.VisitorID(fmt.Sprintf("visitor-%d", i)), exp)
		require.NoError(t, err)
		if a != nil {
			enrolled++
		}
	}
	assert.InDelta(t, 0.3, float64(enrolled)/n, 0.02)
}

type failingStore struct {
	getErr error
	saves  int
}

func (f *failingStore) Get(context.Context, id.VisitorID, id.ExperimentID) (*models.Assignment, error) {
	return nil, f.getErr
}

func (f *failingStore) SaveIfAbsent(_ context.Context, _ id.VisitorID, a models.Assignment) (*models.Assignment, error) {
	f.saves++
	return &a, nil
}

func (f *failingStore) Delete(context.Context, id.VisitorID, id.ExperimentID) error {
	return nil
}

// hideFirstGet simulates a race: the first read misses a record another
// evaluator has already written.
type hideFirstGet struct {
	Store
	hidden bool
}

func (h *hideFirstGet) Get(ctx context.Context, v id.VisitorID, e id.ExperimentID) (*models.Assignment, error) {
	if !h.hidden {
		h.hidden = true
		return nil, sentinel.ErrNotFound
	}
	return h.Store.Get(ctx, v, e)
}
