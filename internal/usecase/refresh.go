// Package usecase holds the refresh orchestration that feeds the crawl queue:
// per-contest cooldowns, the recent-contest sweep and the site-wide problem
// refresh.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// Cooldowns and windows for contest refreshing.
const (
	contestRefreshCooldown = time.Hour
	contestStartGrace      = time.Hour
	recentRefreshCooldown  = time.Hour
	// Contests whose start is within this window of now get scheduled.
	recentScheduleWindow = 6 * time.Hour
)

// RecentContestFetcher lists the contests visible on a site's public index.
type RecentContestFetcher func(ctx context.Context) ([]domain.ContestInfo, error)

// RefreshService decides which refreshes are worth enqueueing. It never
// scrapes itself; the crawler pools do the work.
type RefreshService struct {
	contests domain.ContestRepository
	crawl    domain.CrawlQueue
	marks    domain.RefreshRegistry
	fetchers map[string]RecentContestFetcher
	practice []string
	log      *slog.Logger
}

// NewRefreshService wires the refresh orchestration. fetchers maps contest
// sites to their recent-contest listing; practice lists the sites swept by
// the problem-all refresh.
func NewRefreshService(contests domain.ContestRepository, crawl domain.CrawlQueue, marks domain.RefreshRegistry, fetchers map[string]RecentContestFetcher, practice []string, log *slog.Logger) *RefreshService {
	return &RefreshService{
		contests: contests,
		crawl:    crawl,
		marks:    marks,
		fetchers: fetchers,
		practice: practice,
		log:      log.With(slog.String("component", "refresh")),
	}
}

// RefreshContest enqueues a contest refresh unless the per-contest cooldown
// suppresses it. The mark is written when the task is enqueued, so duplicate
// requests inside the cooldown enqueue at most one crawl task.
func (s *RefreshService) RefreshContest(ctx context.Context, c domain.Contest) error {
	cid, err := strconv.ParseInt(c.ContestID, 10, 64)
	if err != nil {
		return fmt.Errorf("op=refresh.RefreshContest: contest id %q: %w", c.ContestID, err)
	}
	if s.suppressed(ctx, cid, c) {
		s.log.Debug("contest refresh suppressed", slog.String("contest", c.OJName))
		return nil
	}
	task := domain.CrawlTask{OJName: c.OJName, Type: "contest"}
	if err := s.crawl.Push(ctx, task); err != nil {
		return fmt.Errorf("op=refresh.RefreshContest: %w", err)
	}
	if err := s.marks.MarkContestRefresh(ctx, cid, time.Now()); err != nil {
		s.log.Warn("mark contest refresh failed", slog.String("contest", c.OJName), slog.Any("error", err))
	}
	s.log.Info("contest refresh enqueued", slog.String("contest", c.OJName))
	return nil
}

// suppressed applies the cooldown rules: a refresh inside the last hour is
// redundant unless the contest starts (or started) within the grace window.
// The grace also covers the retry for contests that still have an empty
// problem list minutes before the start.
func (s *RefreshService) suppressed(ctx context.Context, cid int64, c domain.Contest) bool {
	last, err := s.marks.LastContestRefresh(ctx, cid)
	if err != nil || last.IsZero() {
		return false
	}
	if time.Since(last) >= contestRefreshCooldown {
		return false
	}
	return time.Until(c.StartTime) > contestStartGrace
}

// RefreshRecentContest syncs the public contest indexes and then sweeps the
// stored contests, scheduling refreshes for those near their start. Only the
// index fetch is guarded by the global recent-refresh mark; the sweep runs on
// every beat, so a contest inside the start grace keeps refreshing per beat.
func (s *RefreshService) RefreshRecentContest(ctx context.Context) error {
	last, err := s.marks.LastRecentRefresh(ctx)
	if err != nil || last.IsZero() || time.Since(last) >= recentRefreshCooldown {
		s.syncRecentIndex(ctx)
		if err := s.marks.MarkRecentRefresh(ctx, time.Now()); err != nil {
			s.log.Warn("mark recent refresh failed", slog.Any("error", err))
		}
	} else {
		s.log.Debug("recent-contest index sync suppressed")
	}

	rows, err := s.contests.ListUpcoming(ctx)
	if err != nil {
		return fmt.Errorf("op=refresh.RefreshRecentContest: %w", err)
	}
	for _, c := range rows {
		if !shouldSchedule(c) {
			continue
		}
		if err := s.RefreshContest(ctx, c); err != nil {
			s.log.Warn("contest refresh enqueue failed", slog.String("contest", c.OJName), slog.Any("error", err))
		}
	}
	return nil
}

// syncRecentIndex upserts whatever the public contest indexes currently list.
func (s *RefreshService) syncRecentIndex(ctx context.Context) {
	for siteName, fetch := range s.fetchers {
		infos, err := fetch(ctx)
		if err != nil {
			s.log.Warn("recent contest listing failed", slog.String("site", siteName), slog.Any("error", err))
			continue
		}
		for _, info := range infos {
			c := contestRow(info)
			if err := s.contests.Upsert(ctx, c); err != nil {
				s.log.Warn("contest upsert failed", slog.String("contest", c.OJName), slog.Any("error", err))
			}
		}
	}
}

// RefreshProblemAll enqueues a full problem sweep for every practice site.
func (s *RefreshService) RefreshProblemAll(ctx context.Context) error {
	for _, siteName := range s.practice {
		task := domain.CrawlTask{OJName: siteName, Type: "problem", All: true}
		if err := s.crawl.Push(ctx, task); err != nil {
			return fmt.Errorf("op=refresh.RefreshProblemAll: site %s: %w", siteName, err)
		}
		s.log.Info("problem-all refresh enqueued", slog.String("site", siteName))
	}
	return nil
}

// shouldSchedule keeps the sweep focused on contests near their start.
func shouldSchedule(c domain.Contest) bool {
	if c.Status == domain.ContestEnded {
		return false
	}
	d := time.Until(c.StartTime)
	if d < 0 {
		d = -d
	}
	return d <= recentScheduleWindow
}

func contestRow(info domain.ContestInfo) domain.Contest {
	// The public index only shows start times; an unknown end collapses onto
	// the start so the row satisfies start <= end.
	if info.EndTime < info.StartTime {
		info.EndTime = info.StartTime
	}
	return domain.Contest{
		OJName:    domain.CloneName(info.Site, info.ContestID),
		Site:      info.Site,
		ContestID: info.ContestID,
		Title:     info.Title,
		Public:    info.Public,
		Status:    info.Status,
		StartTime: time.Unix(info.StartTime, 0).UTC(),
		EndTime:   time.Unix(info.EndTime, 0).UTC(),
	}
}
