package delivery

import (
	"context"

	"github.com/segmentio/kafka-go"

	sharedkafka "github.com/radieske/football-signals/internal/shared/kafka"
	"github.com/radieske/football-signals/internal/signal-service/match"
	"github.com/radieske/football-signals/pkg/contracts/events"
)

// Sink receives approved deliveries. Formatting happens downstream.
type Sink interface {
	Send(ctx context.Context, ev events.SignalDelivered) error
}

// KafkaSink publishes to the signals topic keyed by user, so one user's signals keep
// their order.
type KafkaSink struct {
	Writer *kafka.Writer
}

func NewKafkaSink(w *kafka.Writer) *KafkaSink { return &KafkaSink{Writer: w} }

func (s *KafkaSink) Send(ctx context.Context, ev events.SignalDelivered) error {
	return sharedkafka.WriteJSON(ctx, s.Writer, ev.UserID, ev)
}

// Payload converts a match for the wire.
func Payload(m match.Match) *events.MatchPayload {
	return &events.MatchPayload{
		HomeTeam:  m.HomeTeam,
		AwayTeam:  m.AwayTeam,
		League:    m.League,
		Source:    m.SourceID,
		OddsA:     m.OddsA,
		OddsB:     m.OddsB,
		StartTime: m.StartTime,
	}
}
