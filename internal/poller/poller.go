package poller

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_cart/storefront-service/internal/cart"
	"github.com/fjod/go_cart/storefront-service/internal/metrics"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic   = "checkout-outbox"
	GroupID = "storefront-cart"

	retryDelay = time.Second
)

// CheckoutEvent is the part of a checkout-outbox message the cart needs.
type CheckoutEvent struct {
	SessionID string `json:"session_id"`
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Poller empties the checked part of a cart and its coupons once the
// session has checked out.
type Poller struct {
	backend session.Backend
	reader  messageReader
	log     *zap.Logger
	metrics *metrics.ServerMetrics
}

func NewPoller(backend session.Backend, log *zap.Logger, m *metrics.ServerMetrics, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
	return newPoller(backend, reader, log, m)
}

func newPoller(backend session.Backend, reader messageReader, log *zap.Logger, m *metrics.ServerMetrics) *Poller {
	return &Poller{backend: backend, reader: reader, log: log, metrics: m}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.handleNext(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn("error reading message", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryDelay):
			}
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

// handleNext processes one message. Only read failures are returned;
// malformed events are logged and skipped.
func (p *Poller) handleNext(ctx context.Context) error {
	m, err := p.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	log := p.log.With(zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset))

	var event CheckoutEvent
	if err := json.Unmarshal(m.Value, &event); err != nil {
		log.Warn("error parsing message", zap.Error(err))
		p.count("malformed")
		return nil
	}
	if event.SessionID == "" {
		log.Warn("missing or invalid session_id")
		p.count("malformed")
		return nil
	}

	if err := p.clear(ctx, event.SessionID); err != nil {
		log.Error("failed to clear cart", zap.String("session_id", event.SessionID), zap.Error(err))
		p.count("failed")
		return nil
	}

	log.Info("cleared checked out cart", zap.String("session_id", event.SessionID))
	p.count("cleared")
	return nil
}

func (p *Poller) clear(ctx context.Context, sessionID string) error {
	s := cart.NewStorage(session.ForSession(p.backend, sessionID))

	errChecked := s.ClearChecked(ctx)
	errCoupons := s.ClearCoupons(ctx)
	if errors.Is(errCoupons, session.ErrMissing) {
		errCoupons = nil
	}
	return errors.Join(errChecked, errCoupons)
}

func (p *Poller) count(outcome string) {
	if p.metrics != nil {
		p.metrics.CheckoutsCleared.WithLabelValues(outcome).Inc()
	}
}
