package poller

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/go_cart/storefront-service/internal/session"
	"github.com/redis/go-redis/v9"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
	"go.uber.org/zap"
)

func setupKafka(t *testing.T) string {
	ctx := context.Background()

	// Start Kafka container using testcontainers Kafka module
	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	})

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	return brokers[0]
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestPoller_ConsumesCheckoutEvents(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping kafka integration test in short mode")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	backend := session.NewRedisBackend(client)

	s := seedCart(t, backend, "abc")

	broker := setupKafka(t)
	createTopic(t, broker, Topic)

	w := &kafkaGo.Writer{
		Addr:                   kafkaGo.TCP(broker),
		Topic:                  Topic,
		Balancer:               &kafkaGo.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	msg := event(t, map[string]any{
		"checkout_id": "chId",
		"session_id":  "abc",
		"currency":    "eur",
	})
	msg.Key = []byte("chId")
	require.NoError(t, w.WriteMessages(ctx, msg))
	w.Close()

	p := NewPoller(backend, zap.NewNop(), nil, broker)
	defer p.Close()
	go p.Run(ctx)

	require.Eventually(t, func() bool {
		count, err := s.Count(ctx)
		return err == nil && count == 1 // only the unchecked line is left
	}, 30*time.Second, 500*time.Millisecond)

	require.Eventually(t, func() bool {
		coupons, err := s.Coupons(ctx)
		return err == nil && len(coupons) == 0
	}, 15*time.Second, 500*time.Millisecond)
}
