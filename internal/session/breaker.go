package session

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerBackend stops calling an unhealthy backend after a run of
// consecutive failures. Missing keys and caller cancellations are not
// failures.
type BreakerBackend struct {
	next Backend
	cb   *gobreaker.CircuitBreaker[[]byte]
}

type BreakerSettings struct {
	Name                string
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	OnStateChange       func(name string, from, to gobreaker.State)
}

func NewBreakerBackend(next Backend, s BreakerSettings) *BreakerBackend {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.OpenTimeout <= 0 {
		s.OpenTimeout = 10 * time.Second
	}
	if s.Name == "" {
		s.Name = "session-backend"
	}

	threshold := s.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: 1,
		Timeout:     s.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrMissing) ||
				errors.Is(err, context.Canceled)
		},
		OnStateChange: s.OnStateChange,
	})

	return &BreakerBackend{next: next, cb: cb}
}

func (b *BreakerBackend) Get(ctx context.Context, sessionID, key string) ([]byte, error) {
	return b.cb.Execute(func() ([]byte, error) {
		return b.next.Get(ctx, sessionID, key)
	})
}

func (b *BreakerBackend) Remember(ctx context.Context, sessionID, key string, value []byte) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Remember(ctx, sessionID, key, value)
	})
	return err
}

func (b *BreakerBackend) Forget(ctx context.Context, sessionID, key string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.next.Forget(ctx, sessionID, key)
	})
	return err
}

func (b *BreakerBackend) State() gobreaker.State {
	return b.cb.State()
}
