package poller

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/domain"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gotest.tools/v3/assert"
)

type fakeReader struct {
	mu       sync.Mutex
	messages []kafkaGo.Message
	err      error
	closed   bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafkaGo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return kafkaGo.Message{}, f.err
	}
	if len(f.messages) == 0 {
		return kafkaGo.Message{}, errors.New("no more messages")
	}
	m := f.messages[0]
	f.messages = f.messages[1:]
	return m, nil
}

func (f *fakeReader) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func event(t *testing.T, v any) kafkaGo.Message {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return kafkaGo.Message{Value: data}
}

func seedCart(t *testing.T, backend session.Backend, sessionID string) *cart.Storage {
	ctx := context.Background()
	s := cart.NewStorage(session.ForSession(backend, sessionID))
	require.NoError(t, s.AddToCart(ctx, 1, 1, nil, nil))
	require.NoError(t, s.AddToCart(ctx, 2, 1, nil, domain.Options{domain.CheckedOption: false}))
	require.NoError(t, s.AddCoupon(ctx, 10))
	return s
}

func TestHandleNext_ClearsCheckedAndCoupons(t *testing.T) {
	ctx := context.Background()
	backend := session.NewMemoryBackend(time.Minute)
	defer backend.Close()

	s := seedCart(t, backend, "abc")
	other := seedCart(t, backend, "other")

	reg := prometheus.NewRegistry()
	m := metrics.NewServerMetrics(reg)
	reader := &fakeReader{messages: []kafkaGo.Message{event(t, CheckoutEvent{SessionID: "abc"})}}
	p := newPoller(backend, reader, zap.NewNop(), m)

	assert.NilError(t, p.handleNext(ctx))

	items, err := s.StoredItems(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(items), 1)
	assert.Equal(t, items[0].Key, "2")

	coupons, err := s.Coupons(ctx)
	assert.NilError(t, err)
	assert.Equal(t, len(coupons), 0)

	// other sessions are untouched
	count, err := other.Count(ctx)
	assert.NilError(t, err)
	assert.Equal(t, count, 2)

	assert.Equal(t, testutil.ToFloat64(m.CheckoutsCleared.WithLabelValues("cleared")), 1.0)
}

func TestHandleNext_SkipsMalformed(t *testing.T) {
	ctx := context.Background()
	backend := session.NewMemoryBackend(time.Minute)
	defer backend.Close()

	s := seedCart(t, backend, "abc")

	reg := prometheus.NewRegistry()
	m := metrics.NewServerMetrics(reg)
	reader := &fakeReader{messages: []kafkaGo.Message{
		{Value: []byte("not json")},
		event(t, map[string]any{"user_id": "123"}),
	}}
	p := newPoller(backend, reader, zap.NewNop(), m)

	assert.NilError(t, p.handleNext(ctx))
	assert.NilError(t, p.handleNext(ctx))

	count, err := s.Count(ctx)
	assert.NilError(t, err)
	assert.Equal(t, count, 2)
	assert.Equal(t, testutil.ToFloat64(m.CheckoutsCleared.WithLabelValues("malformed")), 2.0)
}

func TestHandleNext_ReadError(t *testing.T) {
	reader := &fakeReader{err: errors.New("broker gone")}
	p := newPoller(session.NewMemoryBackend(time.Minute), reader, zap.NewNop(), nil)

	assert.ErrorContains(t, p.handleNext(context.Background()), "broker gone")
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{err: errors.New("broker gone")}
	p := newPoller(session.NewMemoryBackend(time.Minute), reader, zap.NewNop(), nil)

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
	}

	p.Close()
	assert.Assert(t, reader.closed)
}
