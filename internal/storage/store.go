// Package storage provides the key-value stores behind visitor identity,
// assignments and the local event archive. Stores are interface-driven so the
// assignment and telemetry logic never touches a concrete backend.
package storage

import (
	"context"
)

// KeyValueStore is a durable or ephemeral byte store. Get returns
// sentinel.ErrNotFound for missing keys; Set may return sentinel.ErrQuotaExceeded.
type KeyValueStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetIfAbsent writes only when the key is missing and reports whether it wrote.
	SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error)
	Delete(ctx context.Context, key string) error
}

// prefixed scopes every key under a fixed prefix, e.g. one visitor's namespace
// inside a shared Redis.
type prefixed struct {
	store  KeyValueStore
	prefix string
}

// WithPrefix returns a view of store whose keys are prefixed.
func WithPrefix(store KeyValueStore, prefix string) KeyValueStore {
	return &prefixed{store: store, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) ([]byte, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key string, value []byte) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) SetIfAbsent(ctx context.Context, key string, value []byte) (bool, error) {
	return p.store.SetIfAbsent(ctx, p.prefix+key, value)
}

func (p *prefixed) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, p.prefix+key)
}
