package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/radieske/football-signals/internal/notifier/pubsub"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/internal/signal-service/repo"
	"github.com/radieske/football-signals/pkg/contracts/events"
)

const KindPaymentCredited = "payment_credited"

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type SentLog interface {
	RecordSentSignal(ctx context.Context, s repo.SentSignal) error
}

type RecentCache interface {
	Push(ctx context.Context, userID string, v any) error
}

type Broadcaster interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Processor consumes delivered signals and credited payments from Kafka, logs them,
// caches them per user and republishes them for the WebSocket hub.
type Processor struct {
	Log         *zap.Logger
	Reader      MessageReader
	DLQ         MessageWriter // optional, receives undecodable messages
	Sent        SentLog
	Recent      RecentCache
	Broadcaster Broadcaster
	Channel     string

	PaymentsTopic string

	OnConsumed  func()
	OnPersisted func()
	OnError     func(stage string)
}

func (p *Processor) fail(stage string) {
	if p.OnError != nil {
		p.OnError(stage)
	}
}

// Run reads until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		m, err := p.Reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.Log.Warn("kafka read failed", zap.Error(err))
			p.fail("read")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if p.OnConsumed != nil {
			p.OnConsumed()
		}
		p.Handle(ctx, m)
	}
}

// Handle processes one message. Failures are logged and counted, never retried.
func (p *Processor) Handle(ctx context.Context, m kafka.Message) {
	var err error
	if p.PaymentsTopic != "" && m.Topic == p.PaymentsTopic {
		err = p.handlePayment(ctx, m)
	} else {
		err = p.handleSignal(ctx, m)
	}
	if err != nil {
		p.Log.Warn("message dropped", zap.String("topic", m.Topic), zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func (p *Processor) handleSignal(ctx context.Context, m kafka.Message) error {
	var ev events.SignalDelivered
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.UserID == "" {
		p.fail("decode")
		p.deadLetter(ctx, m)
		return fmt.Errorf("invalid signal message: %v", err)
	}

	if ev.Kind == events.KindMatch && ev.Match != nil {
		if err := p.Sent.RecordSentSignal(ctx, repo.SentSignal{
			DeliveryID: ev.DeliveryID,
			UserID:     ev.UserID,
			Kind:       ev.Kind,
			MatchKey:   matchKey(ev.Match),
			SentAt:     ev.Ts,
		}); err != nil {
			// the cache and the push still go out
			p.Log.Warn("db insert sent signal failed", zap.Error(err))
			p.fail("db_sent")
		} else if p.OnPersisted != nil {
			p.OnPersisted()
		}
	}

	if p.Recent != nil {
		if err := p.Recent.Push(ctx, ev.UserID, ev); err != nil {
			p.Log.Warn("redis recent push failed", zap.Error(err))
			p.fail("cache")
		}
	}

	return p.publish(ctx, pubsub.WSUpdate{UserID: ev.UserID, Type: ev.Kind, Payload: ev})
}

func (p *Processor) handlePayment(ctx context.Context, m kafka.Message) error {
	var ev events.PaymentCredited
	if err := json.Unmarshal(m.Value, &ev); err != nil || ev.UserID == "" {
		p.fail("decode")
		p.deadLetter(ctx, m)
		return fmt.Errorf("invalid payment message: %v", err)
	}
	return p.publish(ctx, pubsub.WSUpdate{UserID: ev.UserID, Type: KindPaymentCredited, Payload: ev})
}

func (p *Processor) publish(ctx context.Context, upd pubsub.WSUpdate) error {
	b, err := json.Marshal(upd)
	if err != nil {
		return err
	}
	if err := p.Broadcaster.Publish(ctx, p.Channel, b); err != nil {
		p.fail("publish")
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (p *Processor) deadLetter(ctx context.Context, m kafka.Message) {
	if p.DLQ == nil {
		return
	}
	err := p.DLQ.WriteMessages(ctx, kafka.Message{
		Key:   m.Key,
		Value: m.Value,
		Headers: []kafka.Header{
			{Key: "source_topic", Value: []byte(m.Topic)},
		},
	})
	if err != nil {
		p.Log.Error("dlq write failed", zap.Error(err))
		p.fail("dlq")
	}
}

func matchKey(mp *events.MatchPayload) string {
	return match.Match{
		HomeTeam:  mp.HomeTeam,
		AwayTeam:  mp.AwayTeam,
		SourceID:  mp.Source,
		StartTime: mp.StartTime,
	}.Key().String()
}
