package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/shubham-shewale/price-broadcast/pkg/models"
)

var _ TickPublisher = (*KafkaTickPublisher)(nil)

type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaTickPublisher writes one message per snapshot, keyed by symbol so a
// symbol's ticks stay ordered within a partition.
type KafkaTickPublisher struct {
	writer KafkaWriter
}

func NewKafkaTickPublisher(writer KafkaWriter) *KafkaTickPublisher {
	return &KafkaTickPublisher{writer: writer}
}

// NewKafkaWriter returns a batching writer for the tick topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func (k *KafkaTickPublisher) PublishTick(ctx context.Context, snapshots []models.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(snapshots))
	for _, s := range snapshots {
		payload, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("marshal tick %s: %w", s.Symbol, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(s.Symbol),
			Value: payload,
			Time:  s.LastUpdated,
		})
	}

	if err := k.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish tick: %w", err)
	}
	return nil
}

func (k *KafkaTickPublisher) Close() error {
	return k.writer.Close()
}
