package worker_test

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/eventstream/worker"
)

// recordingPublisher records events; when gate is non-nil every publish
// blocks until it is closed.
type recordingPublisher struct {
	mu     sync.Mutex
	turns  []*eventstream.TurnCompletedEvent
	jobs   []*eventstream.JobTransitionEvent
	gate   chan struct{}
	err    error
	closed bool
}

func (r *recordingPublisher) wait() {
	if r.gate != nil {
		<-r.gate
	}
}

func (r *recordingPublisher) PublishTurn(_ context.Context, e *eventstream.TurnCompletedEvent) error {
	r.wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, e)
	return r.err
}

func (r *recordingPublisher) PublishJob(_ context.Context, e *eventstream.JobTransitionEvent) error {
	r.wait()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, e)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func turnEvent(chatID int64) *eventstream.TurnCompletedEvent {
	return eventstream.NewTurnCompletedEvent(chat.TurnContext{ChatID: chatID}, eventstream.TurnDone, time.Now(), time.Now())
}

var _ = Describe("Worker Pool", func() {
	var (
		pub *recordingPublisher
		ctx context.Context
	)

	BeforeEach(func() {
		pub = &recordingPublisher{}
		ctx = context.Background()
	})

	It("requires a publisher", func() {
		_, err := worker.NewPool(&worker.Config{})
		Expect(err).To(HaveOccurred())
	})

	It("drains queued events on Close and closes the publisher", func() {
		wp, err := worker.NewPool(&worker.Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		for i := range 10 {
			Expect(wp.PublishTurn(ctx, turnEvent(int64(i)))).To(Succeed())
		}
		Expect(wp.PublishJob(ctx, eventstream.NewJobTransitionEvent(chat.DownloadJob{ID: 1}, ""))).To(Succeed())

		Expect(wp.Close()).To(Succeed())
		Expect(pub.turns).To(HaveLen(10))
		Expect(pub.jobs).To(HaveLen(1))
		Expect(pub.closed).To(BeTrue())
	})

	It("drops events when the queue is full", func() {
		pub.gate = make(chan struct{})
		wp, err := worker.NewPool(&worker.Config{Publisher: pub, NumWorkers: 1, QueueSize: 1})
		Expect(err).NotTo(HaveOccurred())

		// The single worker takes the first event and blocks on the gate;
		// the second fills the queue.
		Expect(wp.PublishTurn(ctx, turnEvent(1))).To(Succeed())
		Eventually(func() bool { return wp.Enqueue(worker.Job{Turn: turnEvent(2)}) }).Should(BeTrue())

		Expect(wp.PublishTurn(ctx, turnEvent(3))).To(MatchError(worker.ErrQueueFull))

		close(pub.gate)
		Expect(wp.Close()).To(Succeed())
		Expect(pub.turns).To(HaveLen(2))
	})

	It("rejects nil events and events after Close", func() {
		wp, err := worker.NewPool(&worker.Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.PublishTurn(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))
		Expect(wp.PublishJob(ctx, nil)).To(MatchError(eventstream.ErrNilEvent))

		Expect(wp.Close()).To(Succeed())
		Expect(wp.Close()).To(Succeed())
		Expect(wp.PublishTurn(ctx, turnEvent(1))).To(MatchError(worker.ErrClosed))
	})

	It("keeps running when the publisher fails", func() {
		pub.err = errors.New("broker down")
		wp, err := worker.NewPool(&worker.Config{Publisher: pub})
		Expect(err).NotTo(HaveOccurred())

		Expect(wp.PublishTurn(ctx, turnEvent(1))).To(Succeed())
		Expect(wp.PublishTurn(ctx, turnEvent(2))).To(Succeed())
		Expect(wp.Close()).To(Succeed())
		Expect(pub.turns).To(HaveLen(2))
	})
})
