package repository

import (
	"context"

	"BrentShift/internal/domain/models"
	pkgkafka "BrentShift/pkg/kafka"
)

// KafkaResultPublisher sends each completed analysis to a topic, keyed by
// series hash so reruns of the same series stay on one partition.
type KafkaResultPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaResultPublisher(producer *pkgkafka.Producer, topic string) *KafkaResultPublisher {
	return &KafkaResultPublisher{producer: producer, topic: topic}
}

func (p *KafkaResultPublisher) PublishResult(ctx context.Context, rec *models.ChangePointRecord) error {
	return p.producer.PublishJSON(ctx, p.topic, rec.SeriesHash, rec.Summary())
}

func (p *KafkaResultPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// NopResultPublisher drops results; used when Kafka is disabled.
type NopResultPublisher struct{}

func (NopResultPublisher) PublishResult(context.Context, *models.ChangePointRecord) error { return nil }

func (NopResultPublisher) Close() error { return nil }
