package repository

import (
	"context"
	"encoding/json"

	"social_chat_service/internal/chat/domain"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
)

// MessageWriter kafka.Writer subset
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaEventPublisher JSON events keyed by conversation id
type KafkaEventPublisher struct {
	writer MessageWriter
}

// NewKafkaEventPublisher create KafkaEventPublisher
func NewKafkaEventPublisher(w MessageWriter) *KafkaEventPublisher {
	return &KafkaEventPublisher{writer: w}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, evt domain.Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return errors.Wrap(err, "kafkaPublisher.Publish: ")
	}
	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(evt.ConversationID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(evt.Type)},
		},
	})
	return errors.Wrap(err, "kafkaPublisher.Publish: ")
}
