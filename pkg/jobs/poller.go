// Package jobs keeps a local snapshot of the service's model download jobs,
// refreshed on a cadence that speeds up while any job is in progress.
package jobs

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/papercomputeco/ggchat/pkg/chat"
	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ggchat/pkg/logger"
)

const (
	// DefaultActiveInterval is the refresh interval while a job is active.
	DefaultActiveInterval = time.Second

	// DefaultIdleInterval is the refresh interval otherwise.
	DefaultIdleInterval = 3 * time.Second
)

// ErrStaleRefresh is returned by a refresh that completed after a newer one
// was issued. Its result is discarded.
var ErrStaleRefresh = errors.New("stale job refresh discarded")

// Lister fetches the current job snapshot. *client.Client implements it.
type Lister interface {
	ListJobs(ctx context.Context) ([]chat.DownloadJob, error)
}

// Transition is a status change observed between two snapshots. From is
// empty for a job seen for the first time.
type Transition struct {
	Job  chat.DownloadJob
	From chat.JobStatus
}

// Observer receives every applied snapshot with the transitions it caused.
type Observer func(jobs []chat.DownloadJob, transitions []Transition)

// Config configures a Poller.
type Config struct {
	Lister Lister

	ActiveInterval time.Duration
	IdleInterval   time.Duration

	// Publisher receives a JobTransitionEvent per transition. Defaults to a
	// no-op.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Poller owns the job snapshot. Stored records are replaced wholesale on
// each successful refresh and never mutated.
type Poller struct {
	lister         Lister
	activeInterval time.Duration
	idleInterval   time.Duration
	publisher      eventstream.Publisher
	logger         *slog.Logger

	mu     sync.Mutex
	jobs   []chat.DownloadJob
	issued uint64
	loaded bool

	observersMu sync.Mutex
	observers   map[int]Observer
	nextObs     int

	trigger chan struct{}
}

// New returns a Poller with an empty snapshot.
func New(cfg Config) (*Poller, error) {
	if cfg.Lister == nil {
		return nil, errors.New("job poller requires a lister")
	}

	active := cfg.ActiveInterval
	if active <= 0 {
		active = DefaultActiveInterval
	}
	idle := cfg.IdleInterval
	if idle <= 0 {
		idle = DefaultIdleInterval
	}

	publisher := cfg.Publisher
	if publisher == nil {
		publisher = nop.NewPublisher()
	}

	return &Poller{
		lister:         cfg.Lister,
		activeInterval: active,
		idleInterval:   idle,
		publisher:      publisher,
		logger:         logger.OrNop(cfg.Logger),
		observers:      make(map[int]Observer),
		trigger:        make(chan struct{}, 1),
	}, nil
}

// Refresh fetches a snapshot and replaces the local list with it. A failed
// fetch keeps the previous snapshot. A fetch that completes after a newer
// Refresh was issued is discarded with ErrStaleRefresh.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.Lock()
	p.issued++
	gen := p.issued
	p.mu.Unlock()

	fetched, err := p.lister.ListJobs(ctx)
	if err != nil {
		p.logger.Warn("job refresh failed, keeping previous snapshot", "error", err)
		return fmt.Errorf("refreshing jobs: %w", err)
	}

	p.mu.Lock()
	if gen != p.issued {
		p.mu.Unlock()
		p.logger.Debug("discarding stale job refresh", "gen", gen)
		return ErrStaleRefresh
	}
	prev := p.jobs
	p.jobs = slices.Clone(fetched)
	p.loaded = true
	snapshot := slices.Clone(p.jobs)
	p.mu.Unlock()

	transitions := p.diff(prev, snapshot)
	p.notify(snapshot, transitions)
	for _, t := range transitions {
		p.logger.Info("job transition",
			"job_id", t.Job.ID,
			"model_id", t.Job.ModelID,
			"from", t.From,
			"to", t.Job.Status,
		)
		if err := p.publisher.PublishJob(ctx, eventstream.NewJobTransitionEvent(t.Job, t.From)); err != nil {
			p.logger.Warn("publishing job event", "job_id", t.Job.ID, "error", err)
		}
	}
	return nil
}

// Run refreshes until ctx is done, waiting Interval between refreshes. The
// interval is re-evaluated after every refresh. Trigger cuts a wait short.
func (p *Poller) Run(ctx context.Context) error {
	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}

		timer := time.NewTimer(p.Interval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-p.trigger:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Trigger requests an immediate refresh from Run. It never blocks; triggers
// issued while one is already queued are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Interval is the wait before the next refresh: short while any job is
// active, long otherwise.
func (p *Poller) Interval() time.Duration {
	if p.HasActive() {
		return p.activeInterval
	}
	return p.idleInterval
}

// Loaded reports whether any refresh has succeeded yet.
func (p *Poller) Loaded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loaded
}

// Jobs returns a copy of the current snapshot.
func (p *Poller) Jobs() []chat.DownloadJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.jobs)
}

// LatestByModel returns the most recent job per model.
func (p *Poller) LatestByModel() map[int64]chat.DownloadJob {
	return LatestByModel(p.Jobs())
}

// LatestForModel returns the most recent job for modelID.
func (p *Poller) LatestForModel(modelID int64) (chat.DownloadJob, bool) {
	return LatestForModel(p.Jobs(), modelID)
}

// HasActive reports whether any job is pending or running.
func (p *Poller) HasActive() bool {
	return HasActive(p.Jobs())
}

// Active returns the pending or running jobs.
func (p *Poller) Active() []chat.DownloadJob {
	return Active(p.Jobs())
}

// Subscribe registers fn for every applied snapshot. The returned func
// unregisters it.
func (p *Poller) Subscribe(fn Observer) func() {
	p.observersMu.Lock()
	id := p.nextObs
	p.nextObs++
	p.observers[id] = fn
	p.observersMu.Unlock()

	return func() {
		p.observersMu.Lock()
		delete(p.observers, id)
		p.observersMu.Unlock()
	}
}

func (p *Poller) notify(jobs []chat.DownloadJob, transitions []Transition) {
	p.observersMu.Lock()
	fns := make([]Observer, 0, len(p.observers))
	for _, fn := range p.observers {
		fns = append(fns, fn)
	}
	p.observersMu.Unlock()

	for _, fn := range fns {
		fn(slices.Clone(jobs), slices.Clone(transitions))
	}
}

// diff returns the status changes from prev to next, ordered by job id, and
// logs progress regressions of active jobs.
func (p *Poller) diff(prev, next []chat.DownloadJob) []Transition {
	before := make(map[int64]chat.DownloadJob, len(prev))
	for _, j := range prev {
		before[j.ID] = j
	}

	var transitions []Transition
	for _, j := range next {
		old, seen := before[j.ID]
		switch {
		case !seen:
			transitions = append(transitions, Transition{Job: j})
		case old.Status != j.Status:
			transitions = append(transitions, Transition{Job: j, From: old.Status})
		case j.Status.IsActive() && j.ProgressBytes < old.ProgressBytes:
			p.logger.Warn("job progress went backwards",
				"job_id", j.ID,
				"previous_bytes", old.ProgressBytes,
				"current_bytes", j.ProgressBytes,
			)
		}
	}

	slices.SortFunc(transitions, func(a, b Transition) int {
		return cmp.Compare(a.Job.ID, b.Job.ID)
	})
	return transitions
}
