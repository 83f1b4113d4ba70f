// Package identity resolves the durable visitor id and the session id used to
// key assignments and tag events.
package identity

import (
	"context"
	"errors"
	"log/slog"

	"blaze/internal/storage"
	id "blaze/pkg/domain"
	dErrors "blaze/pkg/domain-errors"
	"blaze/pkg/platform/sentinel"
)

// Storage keys.
const (
	VisitorKey = "blaze_visitor_id"
	SessionKey = "blaze_session_id"
)

// Identity is the visitor and session an evaluation runs for.
type Identity struct {
	VisitorID id.VisitorID `json:"visitorId"`
	SessionID id.SessionID `json:"sessionId"`
}

// Resolver reads or mints ids. The visitor id lives in persistent storage and
// survives sessions; the session id lives in session-scoped storage.
type Resolver struct {
	persistent storage.KeyValueStore
	session    storage.KeyValueStore
	logger     *slog.Logger
}

// NewResolver creates a resolver. A nil logger discards warnings.
func NewResolver(persistent, session storage.KeyValueStore, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Resolver{persistent: persistent, session: session, logger: logger}
}

// Resolve returns the current identity, creating ids that are missing or
// malformed. When storage fails the minted ids are still returned, joined with
// a persistence_failure error; they then last only as long as the caller keeps them.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	visitorRaw, verr := resolve(ctx, r.persistent, VisitorKey, func() string { return id.NewVisitorID().String() }, func(s string) error {
		_, err := id.ParseVisitorID(s)
		return err
	})
	sessionRaw, serr := resolve(ctx, r.session, SessionKey, func() string { return id.NewSessionID().String() }, func(s string) error {
		_, err := id.ParseSessionID(s)
		return err
	})

	ident := Identity{VisitorID: id.VisitorID(visitorRaw), SessionID: id.SessionID(sessionRaw)}
	err := errors.Join(verr, serr)
	if err != nil {
		r.logger.WarnContext(ctx, "identity storage unavailable; using ephemeral ids",
			"visitor_id", ident.VisitorID,
			"error", err,
		)
	}
	return ident, err
}

// Forget removes both ids so the next Resolve mints a new identity.
func (r *Resolver) Forget(ctx context.Context) error {
	return errors.Join(
		deleteIgnoringMissing(ctx, r.persistent, VisitorKey),
		deleteIgnoringMissing(ctx, r.session, SessionKey),
	)
}

func resolve(ctx context.Context, store storage.KeyValueStore, key string, mint func() string, valid func(string) error) (string, error) {
	raw, err := store.Get(ctx, key)
	switch {
	case err == nil && valid(string(raw)) == nil:
		return string(raw), nil
	case err == nil:
		// Malformed value: overwrite rather than key assignments on it.
		fresh := mint()
		if werr := store.Set(ctx, key, []byte(fresh)); werr != nil {
			return fresh, dErrors.Wrap(werr, dErrors.CodePersistence, "replace "+key)
		}
		return fresh, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return mint(), dErrors.Wrap(err, dErrors.CodePersistence, "read "+key)
	}

	fresh := mint()
	wrote, err := store.SetIfAbsent(ctx, key, []byte(fresh))
	if err != nil {
		return fresh, dErrors.Wrap(err, dErrors.CodePersistence, "write "+key)
	}
	if wrote {
		return fresh, nil
	}
	// Another tab or request minted one first.
	raw, err = store.Get(ctx, key)
	if err != nil {
		return fresh, dErrors.Wrap(err, dErrors.CodePersistence, "reread "+key)
	}
	return string(raw), nil
}

func deleteIgnoringMissing(ctx context.Context, store storage.KeyValueStore, key string) error {
	if err := store.Delete(ctx, key); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	return nil
}
