package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ppiankov/sanctum/internal/model"
	"github.com/segmentio/kafka-go"
)

// splitCompletedEvent is the wire form of a completed split.
type splitCompletedEvent struct {
	OriginRef       string    `json:"originRef"`
	ActID           int       `json:"actId"`
	PrimaryAmount   string    `json:"primaryAmount"`
	SecondaryAmount string    `json:"secondaryAmount"`
	Remainder       string    `json:"remainder"`
	PrimaryTxRef    string    `json:"primaryTxRef"`
	SecondaryTxRef  string    `json:"secondaryTxRef"`
	CompletedAt     time.Time `json:"completedAt"`
}

// KafkaPublisher writes completion events to a single topic, keyed by
// origin ref so replays for one contribution stay ordered.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (p *KafkaPublisher) PublishSplitCompleted(ctx context.Context, record *model.SplitRecord) error {
	event := splitCompletedEvent{
		OriginRef:       record.OriginRef,
		ActID:           record.ActID,
		PrimaryAmount:   record.PrimaryAmount.String(),
		SecondaryAmount: record.SecondaryAmount.String(),
		Remainder:       record.Remainder.String(),
		PrimaryTxRef:    record.PrimaryTxRef,
		SecondaryTxRef:  record.SecondaryTxRef,
		CompletedAt:     record.CompletedAt,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal split event: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.OriginRef),
		Value: data,
	})
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

var _ Publisher = (*KafkaPublisher)(nil)
