package assignment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"blaze/internal/experiment/models"
	"blaze/internal/storage"
	id "blaze/pkg/domain"
	"blaze/pkg/platform/sentinel"
)

// Store persists assignments keyed by (visitor, experiment). Get returns
// sentinel.ErrNotFound when none exists. SaveIfAbsent never overwrites: it
// returns whichever assignment is stored after the call.
type Store interface {
	Get(ctx context.Context, visitorID id.VisitorID, experimentID id.ExperimentID) (*models.Assignment, error)
	SaveIfAbsent(ctx context.Context, visitorID id.VisitorID, a models.Assignment) (*models.Assignment, error)
	Delete(ctx context.Context, visitorID id.VisitorID, experimentID id.ExperimentID) error
}

// KeyPrefix is the per-experiment key of a persisted assignment record.
const KeyPrefix = "exp_"

// KVStore keeps assignment records as JSON under exp_{experimentId}.
type KVStore struct {
	kv         storage.KeyValueStore
	perVisitor bool
}

// KVOption configures a KVStore.
type KVOption func(*KVStore)

// WithVisitorNamespace scopes keys by visitor, for stores shared by many visitors
// (server-side Redis). A client-local store already belongs to one visitor.
func WithVisitorNamespace() KVOption {
	return func(s *KVStore) {
		s.perVisitor = true
	}
}

func NewKVStore(kv storage.KeyValueStore, opts ...KVOption) *KVStore {
	s := &KVStore{kv: kv}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KVStore) key(visitorID id.VisitorID, experimentID id.ExperimentID) string {
	if s.perVisitor {
		return "visitor:" + visitorID.String() + ":" + KeyPrefix + experimentID.String()
	}
	return KeyPrefix + experimentID.String()
}

func (s *KVStore) Get(ctx context.Context, visitorID id.VisitorID, experimentID id.ExperimentID) (*models.Assignment, error) {
	raw, err := s.kv.Get(ctx, s.key(visitorID, experimentID))
	if err != nil {
		return nil, err
	}
	var a models.Assignment
	if err := json.Unmarshal(raw, &a); err != nil {
		return nil, fmt.Errorf("decode assignment %s: %w", experimentID, err)
	}
	if a.ExperimentID != experimentID || a.VariantID.IsNil() {
		return nil, fmt.Errorf("corrupt assignment record for %s", experimentID)
	}
	return &a, nil
}

func (s *KVStore) SaveIfAbsent(ctx context.Context, visitorID id.VisitorID, a models.Assignment) (*models.Assignment, error) {
	raw, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode assignment: %w", err)
	}
	wrote, err := s.kv.SetIfAbsent(ctx, s.key(visitorID, a.ExperimentID), raw)
	if err != nil {
		return nil, err
	}
	if wrote {
		return &a, nil
	}
	existing, err := s.Get(ctx, visitorID, a.ExperimentID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// Deleted between the two calls; the caller may retry.
		return nil, fmt.Errorf("assignment vanished during save: %w", sentinel.ErrConflict)
	}
	return existing, err
}

func (s *KVStore) Delete(ctx context.Context, visitorID id.VisitorID, experimentID id.ExperimentID) error {
	return s.kv.Delete(ctx, s.key(visitorID, experimentID))
}
