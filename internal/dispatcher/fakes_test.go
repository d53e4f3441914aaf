package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// fakeSubRepo is an in-memory SubmissionRepository recording verdict history.
type fakeSubRepo struct {
	mu      sync.Mutex
	subs    map[int64]*domain.Submission
	history map[int64][]string
}

func newFakeSubRepo(subs ...domain.Submission) *fakeSubRepo {
	r := &fakeSubRepo{subs: map[int64]*domain.Submission{}, history: map[int64][]string{}}
	for i := range subs {
		s := subs[i]
		r.subs[s.ID] = &s
	}
	return r
}

func (r *fakeSubRepo) Get(_ context.Context, id int64) (domain.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return domain.Submission{}, fmt.Errorf("fake: %w", domain.ErrNotFound)
	}
	return *s, nil
}

func (r *fakeSubRepo) UpdateVerdict(_ context.Context, id int64, verdict string, exeTime, exeMem int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("fake: %w", domain.ErrNotFound)
	}
	s.Verdict = verdict
	s.ExeTime = exeTime
	s.ExeMem = exeMem
	r.history[id] = append(r.history[id], verdict)
	return nil
}

func (r *fakeSubRepo) MarkSubmitted(_ context.Context, id int64, runID, botUserID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[id]
	if !ok {
		return fmt.Errorf("fake: %w", domain.ErrNotFound)
	}
	rid := runID
	s.RunID = &rid
	s.UserID = botUserID
	s.Verdict = domain.VerdictBeingJudged
	r.history[id] = append(r.history[id], domain.VerdictBeingJudged)
	return nil
}

func (r *fakeSubRepo) ListUnfinished(context.Context) ([]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []int64
	for id, s := range r.subs {
		if s.Verdict == domain.VerdictQueuing || s.Verdict == domain.VerdictBeingJudged {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeSubRepo) verdict(id int64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[id].Verdict
}

func (r *fakeSubRepo) verdictHistory(id int64) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.history[id]...)
}

// fakeClient implements domain.SiteClient with pluggable hooks and counters.
type fakeClient struct {
	mu   sync.Mutex
	name string
	user string

	submitFn func() (string, error)
	statusFn func() (*domain.SubmitStatus, error)
	updateFn func() error
	getFn    func(problemID string) (*domain.ProblemRecord, error)
	listFn   func() ([]string, error)

	submitCalls int
	statusCalls int
	updateCalls int
}

func (c *fakeClient) Name() string       { return c.name }
func (c *fakeClient) ClientType() string { return domain.ClientPractice }

func (c *fakeClient) UserID() (string, error) { return c.user, nil }

func (c *fakeClient) Login(context.Context, string, string) error { return nil }

func (c *fakeClient) UpdateCookies(context.Context) error {
	c.mu.Lock()
	c.updateCalls++
	fn := c.updateFn
	c.mu.Unlock()
	if fn == nil {
		return nil
	}
	return fn()
}

func (c *fakeClient) GetProblem(_ context.Context, problemID string) (*domain.ProblemRecord, error) {
	if c.getFn == nil {
		return nil, nil
	}
	return c.getFn(problemID)
}

func (c *fakeClient) GetProblemList(context.Context) ([]string, error) {
	if c.listFn == nil {
		return nil, nil
	}
	return c.listFn()
}

func (c *fakeClient) SubmitProblem(context.Context, string, string, string) (string, error) {
	c.mu.Lock()
	c.submitCalls++
	fn := c.submitFn
	c.mu.Unlock()
	if fn == nil {
		return "", fmt.Errorf("fake: %w", domain.ErrSubmit)
	}
	return fn()
}

func (c *fakeClient) GetSubmitStatus(context.Context, string, domain.StatusHints) (*domain.SubmitStatus, error) {
	c.mu.Lock()
	c.statusCalls++
	fn := c.statusFn
	c.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn()
}

func (c *fakeClient) calls() (submit, status, update int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitCalls, c.statusCalls, c.updateCalls
}

// fakeContestClient adds the contest operations on top of fakeClient.
type fakeContestClient struct {
	fakeClient
	contestID string
	info      domain.ContestInfo
	refreshed int
}

func (c *fakeContestClient) ClientType() string               { return domain.ClientContest }
func (c *fakeContestClient) ContestID() string                { return c.contestID }
func (c *fakeContestClient) GetContestInfo() domain.ContestInfo { return c.info }

func (c *fakeContestClient) RefreshContestInfo(context.Context) error {
	c.refreshed++
	return nil
}

// fakeProblemRepo is an in-memory ProblemRepository.
type fakeProblemRepo struct {
	mu    sync.Mutex
	rows  map[string]domain.Problem
	saves int
}

func newFakeProblemRepo() *fakeProblemRepo {
	return &fakeProblemRepo{rows: map[string]domain.Problem{}}
}

func (r *fakeProblemRepo) key(ojName, problemID string) string { return ojName + "/" + problemID }

func (r *fakeProblemRepo) Get(_ context.Context, ojName, problemID string) (domain.Problem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[r.key(ojName, problemID)]
	if !ok {
		return domain.Problem{}, fmt.Errorf("fake: %w", domain.ErrNotFound)
	}
	return p, nil
}

func (r *fakeProblemRepo) Upsert(_ context.Context, ojName, problemID string, rec domain.ProblemRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	r.rows[r.key(ojName, problemID)] = domain.Problem{
		OJName: ojName, ProblemID: problemID, LastUpdate: time.Now(), ProblemRecord: rec,
	}
	return nil
}

func (r *fakeProblemRepo) saved() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// fakeContestRepo is an in-memory ContestRepository.
type fakeContestRepo struct {
	mu   sync.Mutex
	rows map[string]domain.Contest
}

func newFakeContestRepo() *fakeContestRepo {
	return &fakeContestRepo{rows: map[string]domain.Contest{}}
}

func (r *fakeContestRepo) GetByOJName(_ context.Context, ojName string) (domain.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[ojName]
	if !ok {
		return domain.Contest{}, fmt.Errorf("fake: %w", domain.ErrNotFound)
	}
	return c, nil
}

func (r *fakeContestRepo) Upsert(_ context.Context, c domain.Contest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[c.OJName] = c
	return nil
}

func (r *fakeContestRepo) ListUpcoming(context.Context) ([]domain.Contest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Contest
	for _, c := range r.rows {
		if c.Status != domain.ContestEnded {
			out = append(out, c)
		}
	}
	return out, nil
}

// fakeTaskQueue is an in-memory CrawlQueue recording pushed tasks.
type fakeTaskQueue struct {
	mu    sync.Mutex
	tasks []domain.CrawlTask
}

func (q *fakeTaskQueue) Push(_ context.Context, task domain.CrawlTask) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *fakeTaskQueue) Pop(context.Context, time.Duration) ([]byte, error) {
	return nil, fmt.Errorf("fake: %w", domain.ErrNotFound)
}

func (q *fakeTaskQueue) pushed() []domain.CrawlTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.CrawlTask(nil), q.tasks...)
}

// fakeSubmitQueue is an in-memory SubmitQueue.
type fakeSubmitQueue struct {
	mu  sync.Mutex
	ids []int64
}

func (q *fakeSubmitQueue) Push(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, id)
	return nil
}

func (q *fakeSubmitQueue) Pop(ctx context.Context, timeout time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.ids) > 0 {
			id := q.ids[0]
			q.ids = q.ids[1:]
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()
		if time.Now().After(deadline) || ctx.Err() != nil {
			return 0, fmt.Errorf("fake: %w", domain.ErrNotFound)
		}
		time.Sleep(time.Millisecond)
	}
}

func (q *fakeSubmitQueue) pushed() []int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]int64(nil), q.ids...)
}
