//go:build integration

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"blaze/internal/storage"
	"blaze/pkg/platform/sentinel"
	"blaze/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	ctx   context.Context
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.ctx = context.Background()
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestGetSetDelete() {
	store := storage.NewRedisStore(s.redis.Client, storage.WithKeyPrefix("blaze:"))

	_, err := store.Get(s.ctx, "exp_cta_color")
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.Require().NoError(store.Set(s.ctx, "exp_cta_color", []byte(`{"variantId":"A"}`)))
	got, err := store.Get(s.ctx, "exp_cta_color")
	s.Require().NoError(err)
	s.JSONEq(`{"variantId":"A"}`, string(got))

	keys, err := s.redis.Keys(s.ctx, "blaze:*")
	s.Require().NoError(err)
	s.Equal([]string{"blaze:exp_cta_color"}, keys)

	s.Require().NoError(store.Delete(s.ctx, "exp_cta_color"))
	_, err = store.Get(s.ctx, "exp_cta_color")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestSetIfAbsentFirstWriterWins() {
	store := storage.NewRedisStore(s.redis.Client)

	ok, err := store.SetIfAbsent(s.ctx, "blaze_visitor_id", []byte("v_first"))
	s.Require().NoError(err)
	s.True(ok)

	ok, err = store.SetIfAbsent(s.ctx, "blaze_visitor_id", []byte("v_second"))
	s.Require().NoError(err)
	s.False(ok)

	got, err := store.Get(s.ctx, "blaze_visitor_id")
	s.Require().NoError(err)
	s.Equal("v_first", string(got))
}

func (s *RedisStoreSuite) TestTTLSlidesOnRead() {
	store := storage.NewRedisStore(s.redis.Client, storage.WithTTL(time.Minute))
	s.Require().NoError(store.Set(s.ctx, "blaze_session_id", []byte("s_1")))

	s.Require().NoError(s.redis.Client.Expire(s.ctx, "blaze_session_id", 5*time.Second).Err())
	_, err := store.Get(s.ctx, "blaze_session_id")
	s.Require().NoError(err)

	ttl, err := s.redis.Client.TTL(s.ctx, "blaze_session_id").Result()
	s.Require().NoError(err)
	s.Greater(ttl, 30*time.Second)
}

func (s *RedisStoreSuite) TestPrefixedViewsAreIsolated() {
	base := storage.NewRedisStore(s.redis.Client)
	a := storage.WithPrefix(base, "visitor-a:")
	b := storage.WithPrefix(base, "visitor-b:")

	s.Require().NoError(a.Set(s.ctx, "blaze_visitor_id", []byte("v_a")))
	_, err := b.Get(s.ctx, "blaze_visitor_id")
	s.ErrorIs(err, sentinel.ErrNotFound)
}
