package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/eventstream/kafka"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

var _ = Describe("Publisher", func() {
	Describe("NewPublisher", func() {
		It("requires a broker", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{" "}, Topic: "events"})
			Expect(err).To(MatchError(ContainSubstring("broker")))
		})

		It("requires a topic", func() {
			_, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}})
			Expect(err).To(MatchError(ContainSubstring("topic")))
		})

		It("creates a publisher without dialing", func() {
			p, err := kafka.NewPublisher(kafka.Config{Brokers: []string{"localhost:9092"}, Topic: "events"})
			Expect(err).NotTo(HaveOccurred())
			Expect(p.Close()).To(Succeed())
		})
	})

	Describe("publishing", func() {
		var (
			w   *recordingWriter
			p   *kafka.Publisher
			ctx context.Context
		)

		BeforeEach(func() {
			w = &recordingWriter{}
			p = kafka.NewPublisherWithWriter(w, kafka.Config{Topic: "events"})
			ctx = context.Background()
		})

		It("rejects nil events", func() {
			Expect(p.PublishTurn(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
			Expect(p.PublishJob(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
			Expect(w.messages).To(BeEmpty())
		})

		It("keys turn events by chat id", func() {
			event := eventstream.NewTurnCompletedEvent(chat.TurnContext{ChatID: 12}, eventstream.TurnDone, time.Now(), time.Now())
			Expect(p.PublishTurn(ctx, event)).To(Succeed())

			Expect(w.messages).To(HaveLen(1))
			msg := w.messages[0]
			Expect(string(msg.Key)).To(Equal("chat:12"))
			Expect(header(msg, "event_type")).To(Equal(eventstream.EventTypeTurnCompleted))
			Expect(header(msg, "event_id")).To(Equal(event.EventID))

			var decoded eventstream.TurnCompletedEvent
			Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
			Expect(decoded.ChatID).To(Equal(int64(12)))
			Expect(decoded.Outcome).To(Equal(eventstream.TurnDone))
		})

		It("keys job events by job id", func() {
			event := eventstream.NewJobTransitionEvent(chat.DownloadJob{ID: 3, ModelID: 7, Status: chat.JobDone}, chat.JobRunning)
			Expect(p.PublishJob(ctx, event)).To(Succeed())

			Expect(w.messages).To(HaveLen(1))
			Expect(string(w.messages[0].Key)).To(Equal("job:3"))
			Expect(header(w.messages[0], "event_type")).To(Equal(eventstream.EventTypeJobTransition))
		})

		It("wraps writer failures", func() {
			w.err = errors.New("broker down")
			event := eventstream.NewJobTransitionEvent(chat.DownloadJob{ID: 1}, "")

			err := p.PublishJob(ctx, event)
			Expect(err).To(MatchError(ContainSubstring("broker down")))
		})

		It("closes the writer", func() {
			Expect(p.Close()).To(Succeed())
			Expect(w.closed).To(BeTrue())
		})
	})
})
