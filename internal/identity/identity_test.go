package identity

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"

	"blaze/internal/storage"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/sentinel"
)

type ResolverSuite struct {
	suite.Suite
	ctx        context.Context
	persistent *storage.InMemoryStore
	session    *storage.InMemoryStore
	resolver   *Resolver
}

func TestResolverSuite(t *testing.T) {
	suite.Run(t, new(ResolverSuite))
}

func (s *ResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.persistent = storage.NewInMemoryStore()
	s.session = storage.NewInMemoryStore()
	s.resolver = NewResolver(s.persistent, s.session, nil)
}

func (s *ResolverSuite) TestMintsAndPersists() {
	ident, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(ident.VisitorID.String(), "v_"))
	s.True(strings.HasPrefix(ident.SessionID.String(), "s_"))

	raw, err := s.persistent.Get(s.ctx, VisitorKey)
	s.Require().NoError(err)
	s.Equal(ident.VisitorID.String(), string(raw))
}

func (s *ResolverSuite) TestStableAcrossResolves() {
	first, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)
	second, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *ResolverSuite) TestNewSessionKeepsVisitor() {
	first, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)

	// A new browser session: session storage is empty, local storage is not.
	next := NewResolver(s.persistent, storage.NewInMemoryStore(), nil)
	second, err := next.Resolve(s.ctx)
	s.Require().NoError(err)
	s.Equal(first.VisitorID, second.VisitorID)
	s.NotEqual(first.SessionID, second.SessionID)
}

func (s *ResolverSuite) TestMalformedVisitorReplaced() {
	s.Require().NoError(s.persistent.Set(s.ctx, VisitorKey, []byte("not a valid id!")))
	ident, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(ident.VisitorID.String(), "v_"))
}

func (s *ResolverSuite) TestStorageFailureStillReturnsIds() {
	resolver := NewResolver(storage.NewInMemoryStore(storage.WithQuota(1)), s.session, nil)
	ident, err := resolver.Resolve(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePersistence))
	s.ErrorIs(err, sentinel.ErrQuotaExceeded)
	s.False(ident.VisitorID.IsNil())
	s.False(ident.SessionID.IsNil())
}

func (s *ResolverSuite) TestForget() {
	first, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)

	s.Require().NoError(s.resolver.Forget(s.ctx))
	s.Require().NoError(s.resolver.Forget(s.ctx))

	second, err := s.resolver.Resolve(s.ctx)
	s.Require().NoError(err)
	s.NotEqual(first.VisitorID, second.VisitorID)
}
