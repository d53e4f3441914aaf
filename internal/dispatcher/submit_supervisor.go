package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

const (
	defaultPopTimeout   = 60 * time.Second
	defaultPoolIdleAge  = time.Hour
	defaultReapInterval = time.Hour
	// How long dispatch waits on a saturated pool channel before handing the
	// task back to the durable queue.
	defaultSendTimeout = time.Second
)

// SubmitSupervisor consumes the submit queue, demultiplexes submission ids to
// per-site pools and reaps idle pools. One instance runs per process.
type SubmitSupervisor struct {
	queue    domain.SubmitQueue
	subs     domain.SubmissionRepository
	registry *site.Registry
	log      *slog.Logger

	popTimeout   time.Duration
	idleAge      time.Duration
	reapInterval time.Duration
	sendTimeout  time.Duration

	// pools and chans are touched only by the Run goroutine; stopping is
	// shared with the reap goroutines.
	pools    map[string]*pool
	chans    map[string]chan int64
	mu       sync.Mutex
	stopping map[string]*pool
	lastReap time.Time
}

// NewSubmitSupervisor wires the submit-side supervisor.
func NewSubmitSupervisor(queue domain.SubmitQueue, subs domain.SubmissionRepository, registry *site.Registry, log *slog.Logger) *SubmitSupervisor {
	return &SubmitSupervisor{
		queue:        queue,
		subs:         subs,
		registry:     registry,
		log:          log.With(slog.String("component", "submit_supervisor")),
		popTimeout:   defaultPopTimeout,
		idleAge:      defaultPoolIdleAge,
		reapInterval: defaultReapInterval,
		sendTimeout:  defaultSendTimeout,
		pools:        map[string]*pool{},
		chans:        map[string]chan int64{},
		stopping:     map[string]*pool{},
	}
}

// SetTimings overrides the queue and reaping intervals; used from config.
func (s *SubmitSupervisor) SetTimings(popTimeout, idleAge, reapInterval time.Duration) {
	s.popTimeout = popTimeout
	s.idleAge = idleAge
	s.reapInterval = reapInterval
}

// Run blocks until ctx is cancelled, then stops all pools and returns.
func (s *SubmitSupervisor) Run(ctx context.Context) error {
	s.bootstrap(ctx)
	s.lastReap = time.Now()
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}
		s.maybeReap()
		id, err := s.queue.Pop(ctx, s.popTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				observability.QueuePopsTotal.WithLabelValues("submit", "idle").Inc()
				continue
			}
			if ctx.Err() != nil {
				s.shutdown()
				return nil
			}
			// Corrupt payloads and transient store errors are both
			// log-and-continue; the queue entry is already consumed.
			s.log.Warn("submit queue pop failed", slog.Any("error", err))
			observability.QueuePopsTotal.WithLabelValues("submit", "error").Inc()
			continue
		}
		observability.QueuePopsTotal.WithLabelValues("submit", "ok").Inc()
		s.dispatch(ctx, id)
	}
}

// bootstrap re-enqueues submissions left non-terminal by a previous process,
// so a restart is transparent to in-flight work.
func (s *SubmitSupervisor) bootstrap(ctx context.Context) {
	ids, err := s.subs.ListUnfinished(ctx)
	if err != nil {
		s.log.Error("bootstrap scan failed", slog.Any("error", err))
		return
	}
	for _, id := range ids {
		if err := s.queue.Push(ctx, id); err != nil {
			s.log.Error("bootstrap re-enqueue failed", slog.Int64("id", id), slog.Any("error", err))
		}
	}
	if len(ids) > 0 {
		s.log.Info("re-enqueued unfinished submissions", slog.Int("count", len(ids)))
	}
}

func (s *SubmitSupervisor) dispatch(ctx context.Context, id int64) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("submission not found, dropping", slog.Int64("id", id))
			return
		}
		s.log.Error("load submission failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	if !s.registry.Supports(sub.OJName) {
		s.log.Warn("no account serves site", slog.Int64("id", id), slog.String("site", sub.OJName))
		s.fail(ctx, id, sub.OJName)
		return
	}
	ch := s.ensurePool(ctx, sub.OJName)
	if ch == nil {
		s.log.Warn("no pool could be constructed", slog.Int64("id", id), slog.String("site", sub.OJName))
		s.fail(ctx, id, sub.OJName)
		return
	}
	select {
	case ch <- id:
	case <-ctx.Done():
	case <-time.After(s.sendTimeout):
		// A saturated site must not stall dispatch for every other site; the
		// task goes back to the durable queue and is retried on a later pop.
		s.log.Warn("pool channel full, re-enqueueing", slog.Int64("id", id), slog.String("site", sub.OJName))
		if err := s.queue.Push(ctx, id); err != nil {
			s.log.Error("re-enqueue failed", slog.Int64("id", id), slog.Any("error", err))
		}
	}
}

// ensurePool returns the site's shared channel, constructing the pool on
// first use. One submitter (with its poller) starts per account whose login
// succeeds; nil means every login failed.
func (s *SubmitSupervisor) ensurePool(ctx context.Context, ojName string) chan int64 {
	if ch, ok := s.chans[ojName]; ok {
		return ch
	}
	ch := make(chan int64, 64)
	var workers []worker
	for _, cred := range s.registry.Accounts(ojName) {
		client, err := s.registry.NewClient(ctx, ojName, cred)
		if err != nil {
			s.log.Warn("account unusable", slog.String("site", ojName), slog.String("username", cred.Username), slog.Any("error", err))
			continue
		}
		sub := NewSubmitter(ojName, client, s.subs, s.log, ch)
		sub.Start(ctx)
		workers = append(workers, sub)
	}
	if len(workers) == 0 {
		return nil
	}
	p := newPool(ojName, workers)
	s.pools[ojName] = p
	s.chans[ojName] = ch
	observability.PoolsRunning.WithLabelValues("submit").Inc()
	s.log.Info("pool started", slog.String("site", ojName), slog.String("pool", p.tag), slog.Int("accounts", len(workers)))
	return ch
}

func (s *SubmitSupervisor) fail(ctx context.Context, id int64, ojName string) {
	if err := s.subs.UpdateVerdict(ctx, id, domain.VerdictSubmitFail, 0, 0); err != nil {
		s.log.Error("persist verdict failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	observability.SubmissionsFailedTotal.WithLabelValues(ojName, domain.VerdictSubmitFail).Inc()
}

// maybeReap stops pools older than the idle threshold. Stopping drains the
// workers, so it runs off the supervisor goroutine; the stopping set keeps
// the pool visible until its workers have exited.
func (s *SubmitSupervisor) maybeReap() {
	if time.Since(s.lastReap) < s.reapInterval {
		return
	}
	s.lastReap = time.Now()
	for name, p := range s.pools {
		if time.Since(p.startTime) < s.idleAge {
			continue
		}
		delete(s.pools, name)
		delete(s.chans, name)
		s.mu.Lock()
		s.stopping[p.tag] = p
		s.mu.Unlock()
		observability.PoolsRunning.WithLabelValues("submit").Dec()
		s.log.Info("reaping idle pool", slog.String("site", name), slog.String("pool", p.tag))
		go func(p *pool) {
			p.stopAll()
			s.mu.Lock()
			delete(s.stopping, p.tag)
			s.mu.Unlock()
		}(p)
	}
}

// shutdown stops every pool synchronously.
func (s *SubmitSupervisor) shutdown() {
	for name, p := range s.pools {
		delete(s.pools, name)
		delete(s.chans, name)
		observability.PoolsRunning.WithLabelValues("submit").Dec()
		p.stopAll()
	}
}
