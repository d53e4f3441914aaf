package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// CrawlSupervisor consumes the crawl queue, validates the JSON payloads and
// demultiplexes tasks to per-site crawler pools. Same structural pattern as
// the submit supervisor.
type CrawlSupervisor struct {
	queue    domain.CrawlQueue
	problems domain.ProblemRepository
	contests domain.ContestRepository
	registry *site.Registry
	validate *validator.Validate
	log      *slog.Logger

	popTimeout   time.Duration
	idleAge      time.Duration
	reapInterval time.Duration
	sendTimeout  time.Duration

	pools    map[string]*pool
	chans    map[string]chan domain.CrawlTask
	mu       sync.Mutex
	stopping map[string]*pool
	lastReap time.Time
}

// NewCrawlSupervisor wires the crawl-side supervisor.
func NewCrawlSupervisor(queue domain.CrawlQueue, problems domain.ProblemRepository, contests domain.ContestRepository, registry *site.Registry, log *slog.Logger) *CrawlSupervisor {
	return &CrawlSupervisor{
		queue:        queue,
		problems:     problems,
		contests:     contests,
		registry:     registry,
		validate:     validator.New(),
		log:          log.With(slog.String("component", "crawl_supervisor")),
		popTimeout:   defaultPopTimeout,
		idleAge:      defaultPoolIdleAge,
		reapInterval: defaultReapInterval,
		sendTimeout:  defaultSendTimeout,
		pools:        map[string]*pool{},
		chans:        map[string]chan domain.CrawlTask{},
		stopping:     map[string]*pool{},
	}
}

// SetTimings overrides the queue and reaping intervals; used from config.
func (s *CrawlSupervisor) SetTimings(popTimeout, idleAge, reapInterval time.Duration) {
	s.popTimeout = popTimeout
	s.idleAge = idleAge
	s.reapInterval = reapInterval
}

// Run blocks until ctx is cancelled, then stops all pools and returns.
func (s *CrawlSupervisor) Run(ctx context.Context) error {
	s.lastReap = time.Now()
	for {
		if ctx.Err() != nil {
			s.shutdown()
			return nil
		}
		s.maybeReap()
		raw, err := s.queue.Pop(ctx, s.popTimeout)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				observability.QueuePopsTotal.WithLabelValues("crawl", "idle").Inc()
				continue
			}
			if ctx.Err() != nil {
				s.shutdown()
				return nil
			}
			s.log.Warn("crawl queue pop failed", slog.Any("error", err))
			observability.QueuePopsTotal.WithLabelValues("crawl", "error").Inc()
			continue
		}
		observability.QueuePopsTotal.WithLabelValues("crawl", "ok").Inc()
		task, ok := s.decode(raw)
		if !ok {
			continue
		}
		s.dispatch(ctx, task)
	}
}

// decode parses and validates one payload. Corrupt or incomplete tasks are
// logged and dropped; the process never crashes on bad input.
func (s *CrawlSupervisor) decode(raw []byte) (domain.CrawlTask, bool) {
	var task domain.CrawlTask
	if err := json.Unmarshal(raw, &task); err != nil {
		s.log.Warn("corrupt crawl payload", slog.String("payload", string(raw)), slog.Any("error", err))
		return task, false
	}
	if err := s.validate.Struct(task); err != nil {
		s.log.Warn("invalid crawl task", slog.String("payload", string(raw)), slog.Any("error", err))
		return task, false
	}
	if task.Type == CrawlTypeProblem && !task.All && task.ProblemID == "" {
		s.log.Warn("crawl task missing problem_id", slog.String("payload", string(raw)))
		return task, false
	}
	return task, true
}

func (s *CrawlSupervisor) dispatch(ctx context.Context, task domain.CrawlTask) {
	if !s.registry.Supports(task.OJName) {
		s.log.Warn("no account serves site", slog.String("site", task.OJName))
		return
	}
	ch := s.ensurePool(ctx, task.OJName)
	if ch == nil {
		s.log.Warn("no pool could be constructed", slog.String("site", task.OJName))
		return
	}
	select {
	case ch <- task:
	case <-ctx.Done():
	case <-time.After(s.sendTimeout):
		// Same overflow rule as the submit side: re-enqueue rather than block
		// the pop loop on one saturated site.
		s.log.Warn("pool channel full, re-enqueueing", slog.String("site", task.OJName))
		if err := s.queue.Push(ctx, task); err != nil {
			s.log.Error("re-enqueue failed", slog.String("site", task.OJName), slog.Any("error", err))
		}
	}
}

func (s *CrawlSupervisor) ensurePool(ctx context.Context, ojName string) chan domain.CrawlTask {
	if ch, ok := s.chans[ojName]; ok {
		return ch
	}
	ch := make(chan domain.CrawlTask, 64)
	var workers []worker
	for _, cred := range s.registry.Accounts(ojName) {
		client, err := s.registry.NewClient(ctx, ojName, cred)
		if err != nil {
			s.log.Warn("account unusable", slog.String("site", ojName), slog.String("username", cred.Username), slog.Any("error", err))
			continue
		}
		cr := NewCrawler(ojName, client, s.problems, s.contests, s.log, ch)
		cr.Start(ctx)
		workers = append(workers, cr)
	}
	if len(workers) == 0 {
		return nil
	}
	p := newPool(ojName, workers)
	s.pools[ojName] = p
	s.chans[ojName] = ch
	observability.PoolsRunning.WithLabelValues("crawl").Inc()
	s.log.Info("pool started", slog.String("site", ojName), slog.String("pool", p.tag), slog.Int("accounts", len(workers)))
	return ch
}

func (s *CrawlSupervisor) maybeReap() {
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
		observability.PoolsRunning.WithLabelValues("crawl").Dec()
		s.log.Info("reaping idle pool", slog.String("site", name), slog.String("pool", p.tag))
		go func(p *pool) {
			p.stopAll()
			s.mu.Lock()
			delete(s.stopping, p.tag)
			s.mu.Unlock()
		}(p)
	}
}

func (s *CrawlSupervisor) shutdown() {
	for name, p := range s.pools {
		delete(s.pools, name)
		delete(s.chans, name)
		observability.PoolsRunning.WithLabelValues("crawl").Dec()
		p.stopAll()
	}
}
