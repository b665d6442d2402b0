package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// KafkaPublisher hands events to an async kafka writer. Publish never waits
// for the broker; delivery failures are logged by the writer's completion
// callback.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string, topic string, log *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			Async:        true,
			Completion:   logFailures(log),
		},
	}
}

// Publish keys messages by event key so one order's events stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := buildMessage(ctx, event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func buildMessage(ctx context.Context, event Event) (kafka.Message, error) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	value, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	headers := []kafka.Header{{Key: "event-type", Value: []byte(event.Type)}}
	return kafka.Message{
		Key:     []byte(event.Key),
		Value:   value,
		Headers: injectTrace(ctx, headers),
		Time:    event.At,
	}, nil
}

func logFailures(log *slog.Logger) func([]kafka.Message, error) {
	if log == nil {
		log = slog.Default()
	}
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range messages {
			log.Warn("event delivery failed", "type", headerValue(m.Headers, "event-type"), "key", string(m.Key), "error", err)
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func injectTrace(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	for k, v := range carrier {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return headers
}
