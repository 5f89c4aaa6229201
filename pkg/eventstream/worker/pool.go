// Package worker provides an asynchronous worker pool that hands events to an
// eventstream.Publisher off the caller's goroutine.
//
// The pool decouples broker round trips from the turn and poll paths: a slow
// or unreachable broker never delays a chat turn or a job refresh.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/logger"
)

var (
	defaultNumWorkers     uint = 2
	defaultJobQueueSize   uint = 256
	defaultPublishTimeout      = 15 * time.Second
)

// ErrQueueFull is returned when an event is dropped because the queue is at
// capacity.
var ErrQueueFull = errors.New("event queue full, event dropped")

// ErrClosed is returned for events submitted after Close.
var ErrClosed = errors.New("worker pool closed")

// Job is a unit of work for the worker pool. Exactly one field is set.
type Job struct {
	Turn *eventstream.TurnCompletedEvent
	Job  *eventstream.JobTransitionEvent
}

func (j Job) eventType() string {
	switch {
	case j.Turn != nil:
		return j.Turn.EventType
	case j.Job != nil:
		return j.Job.EventType
	default:
		return ""
	}
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives every event. Required.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// PublishTimeout bounds each publish call (defaults to 15s).
	PublishTimeout time.Duration

	Logger *slog.Logger
}

// Pool publishes events asynchronously. It implements eventstream.Publisher
// so it can stand in for the backend it wraps.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ eventstream.Publisher = (*Pool)(nil)

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, errors.New("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.PublishTimeout <= 0 {
		c.PublishTimeout = defaultPublishTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	return p.enqueue(job) == nil
}

// PublishTurn enqueues a turn event. It never blocks.
func (p *Pool) PublishTurn(_ context.Context, event *eventstream.TurnCompletedEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.enqueue(Job{Turn: event})
}

// PublishJob enqueues a job event. It never blocks.
func (p *Pool) PublishJob(_ context.Context, event *eventstream.JobTransitionEvent) error {
	if event == nil {
		return eventstream.ErrNilEvent
	}
	return p.enqueue(Job{Job: event})
}

func (p *Pool) enqueue(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- job:
		p.logger.Debug("event queued", "event_type", job.eventType())
		return nil
	default:
		p.logger.Error("event not queued, queue full, event dropped", "event_type", job.eventType())
		return ErrQueueFull
	}
}

// Close stops accepting events, waits for queued events to drain, then
// closes the wrapped publisher.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
	return p.config.Publisher.Close()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("worker stopped", "worker_id", id)
}

func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	var err error
	switch {
	case job.Turn != nil:
		err = p.config.Publisher.PublishTurn(ctx, job.Turn)
	case job.Job != nil:
		err = p.config.Publisher.PublishJob(ctx, job.Job)
	default:
		err = eventstream.ErrNilEvent
	}

	if err != nil {
		p.logger.Error("async event publish failed",
			"event_type", job.eventType(),
			"error", err,
		)
	}
}
