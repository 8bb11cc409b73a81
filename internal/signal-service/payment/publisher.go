package payment

import (
	"context"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/football-signals/internal/shared/kafka"
	"github.com/radieske/football-signals/pkg/contracts/events"
)

// KafkaPublisher emits PaymentCredited keyed by user id.
type KafkaPublisher struct {
	w *kafka.Writer
}

func NewKafkaPublisher(w *kafka.Writer) *KafkaPublisher { return &KafkaPublisher{w: w} }

func (p *KafkaPublisher) PublishCredited(ctx context.Context, ev events.PaymentCredited) error {
	return sharedkafka.WriteJSON(ctx, p.w, ev.UserID, ev)
}
