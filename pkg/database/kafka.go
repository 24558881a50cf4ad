package database

import (
	"context"
	"fmt"
	"time"

	"social_chat_service/pkg/logger"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// NewKafkaWriterWithRetry dial a broker to confirm reachability, then build the writer.
// Messages are keyed by conversation id, Hash keeps one conversation on one partition.
func NewKafkaWriterWithRetry(ctx context.Context, k KafkaConnection) (*kafka.Writer, error) {
	if len(k.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}

	var err error
	for attempt := 1; attempt <= k.RetryCount; attempt++ {
		var conn *kafka.Conn
		conn, err = kafka.DialContext(ctx, "tcp", k.Brokers[0])
		if err == nil {
			_ = conn.Close()
			logger.Log.Info("Kafka broker reachable", zap.Int("attempt", attempt), zap.Strings("brokers", k.Brokers))
			return &kafka.Writer{
				Addr:                   kafka.TCP(k.Brokers...),
				Topic:                  k.Topic,
				Balancer:               &kafka.Hash{},
				BatchTimeout:           10 * time.Millisecond,
				AllowAutoTopicCreation: true,
			}, nil
		}

		logger.Log.Warn("Kafka dial failed, retrying...",
			zap.Int("attempt", attempt),
			zap.Int("max", k.RetryCount),
			zap.Error(err),
		)
		sleep(ctx, k.RetryInterval)
	}

	return nil, fmt.Errorf("kafka: dial failed after %d attempts: %w", k.RetryCount, err)
}
