package repository

import (
	"context"

	"TradePilot/internal/domain/models"
	"TradePilot/internal/domain/repository"
	pkgkafka "TradePilot/pkg/kafka"
)

// KafkaPublisher implements repository.DecisionPublisher. Events are
// keyed by instrument so per-instrument ordering survives partitioning.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

// NewKafkaPublisher creates the decision event publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) repository.DecisionPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishDecision(ctx context.Context, snap models.SignalSnapshot) error {
	return p.producer.Publish(ctx, p.topic, []byte(snap.Instrument), map[string]interface{}{
		"instrument":     snap.Instrument,
		"time":           snap.Time,
		"signal":         snap.Prediction.Signal.String(),
		"confidence":     snap.Prediction.Confidence,
		"trend_strength": snap.Prediction.TrendStrength,
		"allowed":        snap.Decision.Allow,
		"reason":         snap.Decision.Reason,
		"size":           snap.Decision.Size,
		"executed":       snap.Executed,
		"version":        snap.Version,
	})
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
