// Package archive keeps a bounded local copy of delivered events for
// debugging. Archive writes are best-effort: a failure never affects delivery.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"blaze/internal/storage"
	"blaze/internal/telemetry/models"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/sentinel"
)

// Key is the storage key holding the archived events.
const Key = "blaze_event_archive"

// DefaultLimit is the number of most recent events retained.
const DefaultLimit = 1000

// Archive stores the most recent delivered events, oldest first.
type Archive interface {
	Append(ctx context.Context, events []models.Event) error
	Snapshot(ctx context.Context) ([]models.Event, error)
	Clear(ctx context.Context) error
}

// KVArchive stores the archive as one JSON array in a KeyValueStore, matching
// the browser-storage layout. Appends are serialized in-process.
type KVArchive struct {
	mu    sync.Mutex
	store storage.KeyValueStore
	limit int
}

// NewKVArchive creates an archive retaining at most limit events.
func NewKVArchive(store storage.KeyValueStore, limit int) *KVArchive {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &KVArchive{store: store, limit: limit}
}

// Append adds events and evicts the oldest beyond the limit. An unreadable
// existing archive is replaced rather than blocking new entries.
func (a *KVArchive) Append(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	existing, err := a.load(ctx)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		existing = nil
	}

	merged := append(existing, events...)
	merged = Trim(merged, a.limit)

	raw, err := json.Marshal(merged)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "encode archive")
	}
	if err := a.store.Set(ctx, Key, raw); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "write archive")
	}
	return nil
}

// Snapshot returns the archived events, oldest first. A missing archive is empty.
func (a *KVArchive) Snapshot(ctx context.Context) ([]models.Event, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	events, err := a.load(ctx)
	if errors.Is(err, sentinel.ErrNotFound) {
		return []models.Event{}, nil
	}
	return events, err
}

func (a *KVArchive) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store.Delete(ctx, Key)
}

func (a *KVArchive) load(ctx context.Context) ([]models.Event, error) {
	raw, err := a.store.Get(ctx, Key)
	if err != nil {
		return nil, err
	}
	var events []models.Event
	if err := json.Unmarshal(raw, &events); err != nil {
		return nil, fmt.Errorf("decode archive: %w", err)
	}
	return events, nil
}

// Trim keeps the last limit events.
func Trim(events []models.Event, limit int) []models.Event {
	if len(events) <= limit {
		return events
	}
	return events[len(events)-limit:]
}
