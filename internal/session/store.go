package session

import (
	"context"
	"errors"
)

// ErrMissing is returned by Get when the key holds no value.
var ErrMissing = errors.New("session key missing")

// Backend keeps per-session key/value data. Durability, expiry and isolation
// are up to the implementation.
type Backend interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Remember(ctx context.Context, sessionID, key string, value []byte) error
	Forget(ctx context.Context, sessionID, key string) error
}

// Store is a Backend bound to one session. Handles are cheap and are
// created per request.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Remember(ctx context.Context, key string, value []byte) error
	Forget(ctx context.Context, key string) error
}

type scoped struct {
	backend   Backend
	sessionID string
}

func ForSession(backend Backend, sessionID string) Store {
	return scoped{backend: backend, sessionID: sessionID}
}

func (s scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.backend.Get(ctx, s.sessionID, key)
}

func (s scoped) Remember(ctx context.Context, key string, value []byte) error {
	return s.backend.Remember(ctx, s.sessionID, key, value)
}

func (s scoped) Forget(ctx context.Context, key string) error {
	return s.backend.Forget(ctx, s.sessionID, key)
}
