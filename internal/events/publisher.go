package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventPublisher publishes domain events to the message broker.
type EventPublisher interface {
	PublishEvent(ctx context.Context, topic string, eventType string, data interface{}) error
	Close() error
}

// WatermillPublisher publishes events through a watermill publisher, either
// Kafka or the in-process gochannel pub/sub.
type WatermillPublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewKafkaPublisher creates a publisher backed by Kafka.
func NewKafkaPublisher(brokers []string, logger *slog.Logger) (*WatermillPublisher, error) {
	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:   brokers,
			Marshaler: kafka.DefaultMarshaler{},
		},
		watermill.NewSlogLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka publisher: %w", err)
	}

	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}, nil
}

// NewGoChannelPublisher creates an in-process publisher. Used when no broker
// is configured, typically in development.
func NewGoChannelPublisher(logger *slog.Logger) *WatermillPublisher {
	publisher := gochannel.NewGoChannel(
		gochannel.Config{},
		watermill.NewSlogLogger(logger),
	)

	return &WatermillPublisher{
		publisher: publisher,
		logger:    logger,
	}
}

// PublishEvent wraps data in the event envelope and publishes it.
func (p *WatermillPublisher) PublishEvent(ctx context.Context, topic string, eventType string, data interface{}) error {
	event := NewEvent(eventType, data)

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(event.ID, payload)
	msg.SetContext(ctx)
	msg.Metadata.Set("event_type", eventType)

	if err := p.publisher.Publish(topic, msg); err != nil {
		p.logger.Error("Failed to publish event",
			"error", err,
			"topic", topic,
			"event_type", eventType)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Debug("Event published",
		"topic", topic,
		"event_type", eventType,
		"event_id", event.ID)

	return nil
}

// Close shuts down the underlying publisher.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}

// MockEventPublisher records events in memory for tests.
type MockEventPublisher struct {
	mu     sync.Mutex
	events []Event
	logger *slog.Logger
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) PublishEvent(ctx context.Context, topic string, eventType string, data interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	event := NewEvent(eventType, data)
	m.events = append(m.events, event)
	m.logger.Debug("Mock event published", "topic", topic, "event_type", eventType)
	return nil
}

// GetPublishedEvents returns a copy of all recorded events.
func (m *MockEventPublisher) GetPublishedEvents() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// ClearEvents drops all recorded events.
func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}

func (m *MockEventPublisher) Close() error {
	return nil
}
