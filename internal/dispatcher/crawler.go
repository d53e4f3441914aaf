package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/observability"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// Crawl task types on the wire.
const (
	CrawlTypeProblem = "problem"
	CrawlTypeContest = "contest"
)

// Minimum age of a problem row before it is re-crawled.
const defaultProblemCooldown = 10 * time.Minute

// Crawler executes problem and contest refresh tasks for one bot account,
// persisting normalized records. Instances of the same site share their input
// channel.
type Crawler struct {
	site     string
	client   domain.SiteClient
	problems domain.ProblemRepository
	contests domain.ContestRepository
	log      *slog.Logger

	tasks  chan domain.CrawlTask
	stopCh chan struct{}
	done   chan struct{}

	recvTimeout     time.Duration
	problemCooldown time.Duration
}

// NewCrawler builds a crawler consuming from the site's shared channel.
func NewCrawler(site string, client domain.SiteClient, problems domain.ProblemRepository, contests domain.ContestRepository, log *slog.Logger, tasks chan domain.CrawlTask) *Crawler {
	return &Crawler{
		site:            site,
		client:          client,
		problems:        problems,
		contests:        contests,
		log:             log.With(slog.String("component", "crawler"), slog.String("site", site)),
		tasks:           tasks,
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
		recvTimeout:     defaultRecvTimeout,
		problemCooldown: defaultProblemCooldown,
	}
}

// Start launches the worker loop.
func (c *Crawler) Start(ctx context.Context) {
	go c.loop(ctx)
}

// Stop halts the worker loop.
func (c *Crawler) Stop() {
	close(c.stopCh)
	<-c.done
}

func (c *Crawler) loop(ctx context.Context) {
	defer close(c.done)
	for {
		select {
		case <-c.stopCh:
			return
		case task := <-c.tasks:
			c.handle(ctx, task)
		case <-time.After(c.recvTimeout):
		}
	}
}

// handle runs one task. LoginRequired refreshes the session and requeues the
// task so it survives the session bounce; connection errors drop the task and
// leave the retry to the next scheduled tick.
func (c *Crawler) handle(ctx context.Context, task domain.CrawlTask) {
	var err error
	switch {
	case task.Type == CrawlTypeContest:
		err = c.refreshContest(ctx)
	case task.All || task.ProblemID == "":
		err = c.crawlAll(ctx)
	default:
		err = c.updateProblem(ctx, task.ProblemID)
	}
	if err == nil {
		observability.CrawlTasksTotal.WithLabelValues(c.site, task.Type, "ok").Inc()
		return
	}
	if errors.Is(err, domain.ErrLoginRequired) {
		if uerr := c.client.UpdateCookies(ctx); uerr == nil {
			c.requeue(task)
			return
		}
		c.log.Warn("re-auth failed, dropping crawl task", slog.String("type", task.Type), slog.Any("error", err))
		observability.CrawlTasksTotal.WithLabelValues(c.site, task.Type, "dropped").Inc()
		return
	}
	c.log.Warn("crawl task failed", slog.String("type", task.Type), slog.Any("error", err))
	observability.CrawlTasksTotal.WithLabelValues(c.site, task.Type, "dropped").Inc()
}

// updateProblem refreshes one problem row. A site that reports no such
// problem leaves the stored row untouched. Rows updated within the cooldown
// window are skipped.
func (c *Crawler) updateProblem(ctx context.Context, problemID string) error {
	if old, err := c.problems.Get(ctx, c.site, problemID); err == nil {
		if time.Since(old.LastUpdate) < c.problemCooldown {
			return nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	rec, err := c.client.GetProblem(ctx, problemID)
	if err != nil {
		return err
	}
	if rec == nil {
		c.log.Info("problem not found upstream", slog.String("problem_id", problemID))
		return nil
	}
	return c.problems.Upsert(ctx, c.site, problemID, *rec)
}

func (c *Crawler) crawlAll(ctx context.Context) error {
	ids, err := c.client.GetProblemList(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := c.updateProblem(ctx, id); err != nil {
			if errors.Is(err, domain.ErrLoginRequired) {
				return err
			}
			c.log.Warn("problem update failed", slog.String("problem_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// refreshContest re-scrapes the contest page, upserts the contest row and
// crawls the contest's problems. Only valid on contest clients.
func (c *Crawler) refreshContest(ctx context.Context) error {
	cc, ok := c.client.(domain.ContestSiteClient)
	if !ok {
		c.log.Warn("contest task on practice client, skipping")
		return nil
	}
	if err := cc.RefreshContestInfo(ctx); err != nil {
		return err
	}
	info := cc.GetContestInfo()
	if err := c.contests.Upsert(ctx, contestFromInfo(info)); err != nil {
		return err
	}
	return c.crawlAll(ctx)
}

func (c *Crawler) requeue(task domain.CrawlTask) {
	select {
	case c.tasks <- task:
	case <-c.stopCh:
	}
}

// contestFromInfo converts a scraped snapshot into the persisted row. The
// problem list serializes as [(display_label, oj_name, problem_id), ...].
func contestFromInfo(info domain.ContestInfo) domain.Contest {
	ojName := domain.CloneName(info.Site, info.ContestID)
	list := make([][3]string, 0, len(info.ProblemList))
	for i, pid := range info.ProblemList {
		list = append(list, [3]string{problemLabel(i), ojName, pid})
	}
	b, _ := json.Marshal(list)
	return domain.Contest{
		OJName:    ojName,
		Site:      info.Site,
		ContestID: info.ContestID,
		Title:     info.Title,
		Public:    info.Public,
		Status:    info.Status,
		StartTime: time.Unix(info.StartTime, 0).UTC(),
		EndTime:   time.Unix(info.EndTime, 0).UTC(),
		Problems:  string(b),
	}
}

// problemLabel yields A..Z, AA.. for display positions.
func problemLabel(i int) string {
	label := ""
	for {
		label = string(rune('A'+i%26)) + label
		i = i/26 - 1
		if i < 0 {
			return label
		}
	}
}
