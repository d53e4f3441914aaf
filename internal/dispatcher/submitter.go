package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

const (
	defaultRecvTimeout = 60 * time.Second
	// Fixed per-account rate limit between upstream submits.
	defaultSubmitGap = 5 * time.Second
)

// Submitter turns queued submissions into submitted-and-tracked ones for one
// bot account. It owns exactly one Poller, started with it and stopped after
// the worker loop exits. Instances of the same site share their input channel.
type Submitter struct {
	site   string
	client domain.SiteClient
	subs   domain.SubmissionRepository
	poller *Poller
	log    *slog.Logger

	tasks  chan int64
	stopCh chan struct{}
	done   chan struct{}

	recvTimeout time.Duration
	submitGap   time.Duration
}

// NewSubmitter builds a submitter consuming from the site's shared channel.
func NewSubmitter(site string, client domain.SiteClient, subs domain.SubmissionRepository, log *slog.Logger, tasks chan int64) *Submitter {
	return &Submitter{
		site:        site,
		client:      client,
		subs:        subs,
		poller:      NewPoller(site, client, subs, log),
		log:         log.With(slog.String("component", "submitter"), slog.String("site", site)),
		tasks:       tasks,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
		recvTimeout: defaultRecvTimeout,
		submitGap:   defaultSubmitGap,
	}
}

// Start launches the poller and the worker loop.
func (s *Submitter) Start(ctx context.Context) {
	s.poller.Start(ctx)
	go s.loop(ctx)
}

// Stop halts the worker loop, then stops the poller so pending polls drain.
func (s *Submitter) Stop() {
	close(s.stopCh)
	<-s.done
	s.poller.Stop()
}

func (s *Submitter) loop(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-s.stopCh:
			return
		case id := <-s.tasks:
			s.handle(ctx, id)
			s.pause(s.submitGap)
		case <-time.After(s.recvTimeout):
			// Idle tick so the stop flag is observed.
		}
	}
}

// handle drives one submission through phase 0 -> 1. Replays of already
// finished submissions are dropped by the verdict check.
func (s *Submitter) handle(ctx context.Context, id int64) {
	sub, err := s.subs.Get(ctx, id)
	if err != nil {
		s.log.Warn("load submission failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	switch sub.Verdict {
	case domain.VerdictQueuing:
	case domain.VerdictBeingJudged:
		// Already submitted upstream, e.g. re-enqueued across a restart.
		if err := s.poller.AddTask(id); err != nil {
			s.log.Warn("poller rejected task", slog.Int64("id", id), slog.Any("error", err))
		}
		return
	default:
		return
	}

	runID, err := s.client.SubmitProblem(ctx, sub.ProblemID, sub.Language, sub.SourceCode)
	if err != nil {
		if errors.Is(err, domain.ErrLoginRequired) {
			if uerr := s.client.UpdateCookies(ctx); uerr != nil {
				s.log.Warn("re-auth failed during submit", slog.Int64("id", id), slog.Any("error", uerr))
				s.fail(ctx, id)
				return
			}
			s.requeue(id)
			return
		}
		s.log.Warn("submit failed", slog.Int64("id", id), slog.Any("error", err))
		s.fail(ctx, id)
		return
	}

	botID, err := s.client.UserID()
	if err != nil {
		s.log.Warn("bot user id unavailable", slog.Any("error", err))
	}
	if err := s.subs.MarkSubmitted(ctx, id, runID, botID); err != nil {
		s.log.Error("record submitted run failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	observability.SubmissionsSubmittedTotal.WithLabelValues(s.site).Inc()
	s.log.Info("submitted", slog.Int64("id", id), slog.String("run_id", runID))
	if err := s.poller.AddTask(id); err != nil {
		s.log.Warn("poller rejected task", slog.Int64("id", id), slog.Any("error", err))
	}
}

func (s *Submitter) fail(ctx context.Context, id int64) {
	if err := s.subs.UpdateVerdict(ctx, id, domain.VerdictSubmitFail, 0, 0); err != nil {
		s.log.Error("persist verdict failed", slog.Int64("id", id), slog.Any("error", err))
		return
	}
	observability.SubmissionsFailedTotal.WithLabelValues(s.site, domain.VerdictSubmitFail).Inc()
}

// requeue puts the id back on the shared channel after a session refresh.
func (s *Submitter) requeue(id int64) {
	select {
	case s.tasks <- id:
	case <-s.stopCh:
	}
}

func (s *Submitter) pause(d time.Duration) {
	select {
	case <-time.After(d):
	case <-s.stopCh:
	}
}
