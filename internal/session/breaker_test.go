package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyBackend struct {
	m     sync.Mutex
	err   error
	calls int
}

func (f *flakyBackend) Get(context.Context, string, string) ([]byte, error) {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return nil, ErrMissing
}

func (f *flakyBackend) Remember(context.Context, string, string, []byte) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls++
	return f.err
}

func (f *flakyBackend) Forget(context.Context, string, string) error {
	f.m.Lock()
	defer f.m.Unlock()
	f.calls++
	return f.err
}

func TestBreaker_MissingDoesNotTrip(t *testing.T) {
	next := &flakyBackend{}
	b := NewBreakerBackend(next, BreakerSettings{ConsecutiveFailures: 2})

	for i := 0; i < 5; i++ {
		_, err := b.Get(context.Background(), "s", "k")
		assert.ErrorIs(t, err, ErrMissing)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
	assert.Equal(t, 5, next.calls)
}

func TestBreaker_OpensAfterFailures(t *testing.T) {
	next := &flakyBackend{err: errors.New("connection refused")}
	b := NewBreakerBackend(next, BreakerSettings{ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	ctx := context.Background()
	require.Error(t, b.Remember(ctx, "s", "k", nil))
	require.Error(t, b.Forget(ctx, "s", "k"))
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Get(ctx, "s", "k")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, next.calls, "open breaker must not reach the backend")
}

func TestBreaker_PassesValuesThrough(t *testing.T) {
	mem := NewMemoryBackend(time.Minute)
	t.Cleanup(func() { mem.Close() })
	b := NewBreakerBackend(mem, BreakerSettings{})

	ctx := context.Background()
	require.NoError(t, b.Remember(ctx, "s", "k", []byte("v")))
	got, err := b.Get(ctx, "s", "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}
