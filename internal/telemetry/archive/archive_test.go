package archive

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/suite"

	"blaze/internal/storage"
	"blaze/internal/telemetry/models"
	dErrors "blaze/pkg/domain-errors"
	id "blaze/pkg/domain"
)

func named(prefix string, n int) []models.Event {
	out := make([]models.Event, n)
	for i := range out {
		out[i] = models.Event{ID: id.NewEventID(), EventName: fmt.Sprintf("%s-%d", prefix, i)}
	}
	return out
}

type KVArchiveSuite struct {
	suite.Suite
	ctx   context.Context
	store *storage.InMemoryStore
}

func TestKVArchiveSuite(t *testing.T) {
	suite.Run(t, new(KVArchiveSuite))
}

func (s *KVArchiveSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = storage.NewInMemoryStore()
}

func (s *KVArchiveSuite) TestSnapshotEmpty() {
	got, err := NewKVArchive(s.store, 10).Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *KVArchiveSuite) TestAppendKeepsOrder() {
	a := NewKVArchive(s.store, 10)
	s.Require().NoError(a.Append(s.ctx, named("first", 2)))
	s.Require().NoError(a.Append(s.ctx, named("second", 1)))

	got, err := a.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, 3)
	s.Equal("first-0", got[0].EventName)
	s.Equal("second-0", got[2].EventName)
}

func (s *KVArchiveSuite) TestBoundedToLimitEvictingOldest() {
	a := NewKVArchive(s.store, DefaultLimit)
	s.Require().NoError(a.Append(s.ctx, named("old", 990)))
	s.Require().NoError(a.Append(s.ctx, named("new", 20)))

	got, err := a.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(got, DefaultLimit)
	s.Equal("old-10", got[0].EventName)
	s.Equal("new-19", got[len(got)-1].EventName)
}

func (s *KVArchiveSuite) TestCorruptArchiveIsReplaced() {
	s.Require().NoError(s.store.Set(s.ctx, Key, []byte("not json")))
	a := NewKVArchive(s.store, 10)
	s.Require().NoError(a.Append(s.ctx, named("e", 1)))

	got, err := a.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Len(got, 1)
}

func (s *KVArchiveSuite) TestQuotaFailureIsPersistenceError() {
	a := NewKVArchive(storage.NewInMemoryStore(storage.WithQuota(8)), 10)
	err := a.Append(s.ctx, named("e", 1))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
}

func (s *KVArchiveSuite) TestClear() {
	a := NewKVArchive(s.store, 10)
	s.Require().NoError(a.Append(s.ctx, named("e", 1)))
	s.Require().NoError(a.Clear(s.ctx))
	got, err := a.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Empty(got)
}
