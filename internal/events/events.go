// Package events publishes split lifecycle notifications for downstream
// consumers (accounting, dashboards). Publication is best effort: a
// broker outage never blocks or rolls back a split.
package events

import (
	"context"

	"github.com/ppiankov/sanctum/internal/model"
)

// Publisher emits a notification after both legs of a split land.
type Publisher interface {
	PublishSplitCompleted(ctx context.Context, record *model.SplitRecord) error
	Close() error
}

// New returns a Kafka publisher when brokers are configured, otherwise a
// no-op.
func New(cfg model.EventsConfig) Publisher {
	if len(cfg.Brokers) == 0 {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishSplitCompleted(context.Context, *model.SplitRecord) error { return nil }
func (NopPublisher) Close() error                                                    { return nil }
