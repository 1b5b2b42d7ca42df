package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/scriptify-cm/event-qr-platform/internal/domain"
	"github.com/scriptify-cm/event-qr-platform/internal/metrics"
	"github.com/scriptify-cm/event-qr-platform/pkg/logger"
)

const publishTimeout = 5 * time.Second

// MessageProducer is the part of the Kafka producer the services use
type MessageProducer interface {
	ProduceJSON(ctx context.Context, topic, key string, v any, headers map[string]string) error
	Close()
}

// EventPublisher defines the interface for publishing ticket events
type EventPublisher interface {
	// Publish writes one lifecycle or security event
	Publish(ctx context.Context, event *domain.TicketEvent) error

	// Close closes the event publisher
	Close() error
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Topic       string
	ServiceName string
}

// KafkaEventPublisher implements EventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(producer MessageProducer, cfg *EventPublisherConfig) *KafkaEventPublisher {
	topic := "ticket-validation-events"
	serviceName := "ticket-gate"
	if cfg != nil {
		if cfg.Topic != "" {
			topic = cfg.Topic
		}
		if cfg.ServiceName != "" {
			serviceName = cfg.ServiceName
		}
	}
	return &KafkaEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}
}

// Publish publishes a ticket event keyed by reservation
func (p *KafkaEventPublisher) Publish(ctx context.Context, event *domain.TicketEvent) error {
	headers := map[string]string{
		"event_type":   string(event.EventType),
		"event_id":     event.EventID,
		"source":       p.serviceName,
		"content_type": "application/json",
	}
	if err := p.producer.ProduceJSON(ctx, p.topic, event.Key(), event, headers); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.EventType, err)
	}
	return nil
}

// Close closes the underlying producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// NoOpEventPublisher drops events; used when Kafka is disabled
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// Publish is a no-op
func (p *NoOpEventPublisher) Publish(ctx context.Context, event *domain.TicketEvent) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}

// publishDetached hands an event to the publisher after the state change committed.
// It runs on its own deadline so an expiring request does not drop the event.
// Delivery failures are logged and counted; they never undo the transition.
func publishDetached(ctx context.Context, pub EventPublisher, event *domain.TicketEvent) {
	if pub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := pub.Publish(ctx, event); err != nil {
		metrics.PublishFailuresTotal.WithLabelValues("events").Inc()
		logger.Get().WarnContext(ctx, "failed to publish ticket event",
			zap.String("event_type", string(event.EventType)),
			zap.String("event_id", event.EventID),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err),
		)
	}
}
