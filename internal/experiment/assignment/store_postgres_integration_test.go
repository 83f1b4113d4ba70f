//go:build integration

package assignment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"blaze/internal/experiment/assignment"
	"blaze/internal/experiment/models"
	id "blaze/pkg/domain"
	"blaze/pkg/platform/sentinel"
	"blaze/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *assignment.PostgresStore
	ctx      context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = assignment.NewPostgres(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "experiment_assignments"))
}

func (s *PostgresStoreSuite) TestSaveIfAbsentKeepsFirstRecord() {
	first := models.Assignment{
		ExperimentID: "cta_color",
		VariantID:    "A",
		AssignedAt:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	stored, err := s.store.SaveIfAbsent(s.ctx, "v1", first)
	s.Require().NoError(err)
	s.Equal(id.VariantID("A"), stored.VariantID)

	later := first
	later.VariantID = "B"
	later.AssignedAt = first.AssignedAt.Add(time.Hour)
	stored, err = s.store.SaveIfAbsent(s.ctx, "v1", later)
	s.Require().NoError(err)
	s.Equal(id.VariantID("A"), stored.VariantID)
	s.True(first.AssignedAt.Equal(stored.AssignedAt))

	got, err := s.store.Get(s.ctx, "v1", "cta_color")
	s.Require().NoError(err)
	s.Equal(id.VariantID("A"), got.VariantID)
}

func (s *PostgresStoreSuite) TestConcurrentEnginesAgree() {
	exp := models.Experiment{
		ID:                "cta_color",
		Status:            models.StatusActive,
		TrafficAllocation: 1,
		Variants:          []models.Variant{{ID: "A", Weight: 0.5}, {ID: "B", Weight: 0.5}},
	}

	const n = 16
	results := make([]id.VariantID, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			draw := 0.1
			if i%2 == 1 {
				draw = 0.9
			}
			engine := assignment.NewEngine(s.store, assignment.WithRandom(func() float64 { return draw }))
			a, err := engine.Evaluate(s.ctx, "v_race", exp)
			s.NoError(err)
			if a != nil {
				results[i] = a.VariantID
			}
		}()
	}
	wg.Wait()

	for _, v := range results {
		s.Equal(results[0], v)
	}
}

func (s *PostgresStoreSuite) TestDelete() {
	_, err := s.store.SaveIfAbsent(s.ctx, "v1", models.Assignment{ExperimentID: "cta_color", VariantID: "A", AssignedAt: time.Now()})
	s.Require().NoError(err)

	s.Require().NoError(s.store.Delete(s.ctx, "v1", "cta_color"))
	_, err = s.store.Get(s.ctx, "v1", "cta_color")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
