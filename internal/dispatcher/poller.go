// Package dispatcher hosts the queue supervisors and the per-account worker
// pools that move submissions through the submit / poll state machine and
// execute crawl tasks.
package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// Poller lifecycle errors.
var (
	ErrNotStarted = errors.New("poller not started")
	ErrStopping   = errors.New("poller stopping")
)

const (
	defaultPollAttempts = 120
	defaultBackoffUnit  = time.Second
)

// Poller tracks submitted runs for one bot account until a terminal verdict
// lands. Each accepted submission polls on its own goroutine; the n-th poll
// of a run waits n backoff units before firing, so a run is abandoned as
// Judge Failed after roughly two hours.
type Poller struct {
	site   string
	client domain.SiteClient
	subs   domain.SubmissionRepository
	log    *slog.Logger

	attempts    int
	backoffUnit time.Duration

	mu      sync.Mutex
	started bool
	stopped bool

	tasks  chan int64
	stopCh chan struct{}
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewPoller builds a poller for one account on one oj_name.
func NewPoller(site string, client domain.SiteClient, subs domain.SubmissionRepository, log *slog.Logger) *Poller {
	return &Poller{
		site:        site,
		client:      client,
		subs:        subs,
		log:         log.With(slog.String("component", "poller"), slog.String("site", site)),
		attempts:    defaultPollAttempts,
		backoffUnit: defaultBackoffUnit,
		tasks:       make(chan int64, 64),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Start launches the scheduler loop.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	go p.loop(ctx)
}

// AddTask enqueues a polling task for a submission id. It returns immediately;
// the poll runs asynchronously.
func (p *Poller) AddTask(submissionID int64) error {
	p.mu.Lock()
	started, stopped := p.started, p.stopped
	p.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	if stopped {
		return ErrStopping
	}
	select {
	case p.tasks <- submissionID:
		return nil
	case <-p.stopCh:
		return ErrStopping
	}
}

// Stop halts the scheduler and waits for pending polls to drain. Callable
// once after Start.
func (p *Poller) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	close(p.stopCh)
	<-p.done
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-p.stopCh:
			p.drain(ctx)
			return
		case id := <-p.tasks:
			p.wg.Add(1)
			go p.pollOne(ctx, id)
		}
	}
}

// drain starts polls for tasks accepted before the stop signal, so Stop never
// abandons a buffered submission as Being Judged.
func (p *Poller) drain(ctx context.Context) {
	for {
		select {
		case id := <-p.tasks:
			p.wg.Add(1)
			go p.pollOne(ctx, id)
		default:
			return
		}
	}
}

// pollOne runs one submission to a terminal verdict. Tasks whose row does not
// belong to this poller (wrong site, no run id, already terminal) are no-ops.
func (p *Poller) pollOne(ctx context.Context, id int64) {
	defer p.wg.Done()

	sub, err := p.subs.Get(ctx, id)
	if err != nil {
		p.log.Warn("load submission failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	if sub.RunID == nil || sub.OJName != p.site || sub.Verdict != domain.VerdictBeingJudged {
		return
	}
	runID := *sub.RunID
	hints := domain.StatusHints{UserID: sub.UserID, ProblemID: sub.ProblemID}

	for n := 0; n < p.attempts; n++ {
		if n > 0 {
			time.Sleep(time.Duration(n) * p.backoffUnit)
		}
		observability.PollAttemptsTotal.WithLabelValues(p.site).Inc()

		st, err := p.client.GetSubmitStatus(ctx, runID, hints)
		if err != nil {
			if errors.Is(err, domain.ErrLoginRequired) {
				if uerr := p.client.UpdateCookies(ctx); uerr != nil {
					p.log.Warn("re-auth failed during poll", slog.Int64("id", id), slog.Any("error", uerr))
					p.finalize(ctx, id, domain.VerdictJudgeFail)
					return
				}
				// A successful re-auth does not consume a backoff step.
				n--
				continue
			}
			p.log.Warn("poll failed", slog.Int64("id", id), slog.String("run_id", runID), slog.Any("error", err))
			p.finalize(ctx, id, domain.VerdictJudgeFail)
			return
		}
		if st == nil || domain.IsNonTerminalVerdict(st.Verdict) {
			continue
		}
		if err := p.subs.UpdateVerdict(ctx, id, st.Verdict, st.ExeTime, st.ExeMem); err != nil {
			p.log.Error("persist verdict failed", slog.Int64("id", id), slog.Any("error", err))
			return
		}
		observability.VerdictsTerminalTotal.WithLabelValues(p.site).Inc()
		p.log.Info("verdict", slog.Int64("id", id), slog.String("verdict", st.Verdict))
		return
	}
	p.log.Warn("poll attempts exhausted", slog.Int64("id", id), slog.String("run_id", runID))
	p.finalize(ctx, id, domain.VerdictJudgeFail)
}

func (p *Poller) finalize(ctx context.Context, id int64, verdict string) {
	if err := p.subs.UpdateVerdict(ctx, id, verdict, 0, 0); err != nil {
		p.log.Error("persist verdict failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	observability.SubmissionsFailedTotal.WithLabelValues(p.site, verdict).Inc()
}
