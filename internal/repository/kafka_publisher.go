package repository

import (
	"context"
	"fmt"

	"MarketScan/internal/domain/models"
	domrepo "MarketScan/internal/domain/repository"
	pkgkafka "MarketScan/pkg/kafka"
	"MarketScan/pkg/util"
)

// KafkaPublisher emits one message per ranked vector, keyed by symbol so
// per-symbol ordering holds across runs, plus a run-summary message keyed by
// the run date.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) PublishRun(ctx context.Context, run *models.ScanRun) error {
	runDate := run.RunDate.Format(util.DateLayout)

	msgs := make([]pkgkafka.Message, 0, len(run.Vectors)+1)
	for rank, v := range run.Vectors {
		msgs = append(msgs, pkgkafka.Message{
			Key: []byte(v.Symbol),
			Value: map[string]interface{}{
				"run_date": runDate,
				"rank":     rank + 1,
				"vector":   v,
			},
		})
	}
	msgs = append(msgs, pkgkafka.Message{
		Key: []byte(runDate),
		Value: map[string]interface{}{
			"run_date":     runDate,
			"generated_at": run.GeneratedAt,
			"ranked":       len(run.Vectors),
			"omitted":      run.Omitted,
			"universe":     run.Universe,
		},
	})

	if err := p.producer.PublishBatch(ctx, p.topic, msgs); err != nil {
		return fmt.Errorf("publish run %s: %w", runDate, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ domrepo.Publisher = (*KafkaPublisher)(nil)
