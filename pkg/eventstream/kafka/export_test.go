package kafka

import kafkago "github.com/segmentio/kafka-go"

// NewPublisherWithWriter exposes the writer seam to tests.
func NewPublisherWithWriter(w messageWriter, c Config) *Publisher {
	return newPublisher(w, c)
}

// Message aliases the kafka-go message for test doubles.
type Message = kafkago.Message
