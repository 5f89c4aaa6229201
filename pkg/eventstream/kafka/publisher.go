// Package kafka publishes client events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/logger"
)

const defaultWriteTimeout = 10 * time.Second

// Config configures the Kafka publisher.
type Config struct {
	// Brokers are the bootstrap broker addresses, "host:port".
	Brokers []string

	// Topic receives every event.
	Topic string

	// WriteTimeout bounds a single publish. Defaults to 10s.
	WriteTimeout time.Duration

	Logger *slog.Logger
}

// messageWriter is the subset of *kafkago.Writer used by the publisher.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes JSON events to Kafka. Turn events are keyed by chat id
// and job events by job id, so each entity's events stay ordered within a
// partition.
type Publisher struct {
	writer       messageWriter
	topic        string
	writeTimeout time.Duration
	logger       *slog.Logger
}

// NewPublisher validates c and creates a Publisher backed by a
// kafka-go Writer.
func NewPublisher(c Config) (*Publisher, error) {
	brokers := make([]string, 0, len(c.Brokers))
	for _, b := range c.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka publisher requires at least one broker")
	}
	if strings.TrimSpace(c.Topic) == "" {
		return nil, errors.New("kafka publisher requires a topic")
	}

	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        c.Topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return newPublisher(w, c), nil
}

func newPublisher(w messageWriter, c Config) *Publisher {
	timeout := c.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}
	return &Publisher{
		writer:       w,
		topic:        c.Topic,
		writeTimeout: timeout,
		logger:       logger.OrNop(c.Logger),
	}
}

// PublishTurn writes a turn event keyed by chat id.
func (p *Publisher) PublishTurn(ctx context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.write(ctx, "chat:"+strconv.FormatInt(event.ChatID, 10), event.Envelope, event)
}

// PublishJob writes a job event keyed by job id.
func (p *Publisher) PublishJob(ctx context.Context, event *eventstream.JobTransitionEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.write(ctx, "job:"+strconv.FormatInt(event.JobID, 10), event.Envelope, event)
}

// Close flushes pending writes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) write(ctx context.Context, key string, env eventstream.Envelope, event any) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshalling %s event: %w", env.EventType, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	msg := kafkago.Message{
		Key:   []byte(key),
		Value: value,
		Time:  env.EmittedAt,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(env.EventType)},
			{Key: "event_id", Value: []byte(env.EventID)},
			{Key: "schema_version", Value: []byte(strconv.Itoa(env.SchemaVersion))},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("writing %s event to %s: %w", env.EventType, p.topic, err)
	}

	p.logger.Debug("event published",
		"topic", p.topic,
		"event_type", env.EventType,
		"event_id", env.EventID,
	)
	return nil
}
