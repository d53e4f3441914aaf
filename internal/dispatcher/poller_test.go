package dispatcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func beingJudged(id int64, site, runID string) domain.Submission {
	return domain.Submission{
		ID: id, OJName: site, ProblemID: "1000", Language: "C++",
		RunID: &runID, Verdict: domain.VerdictBeingJudged,
	}
}

func newTestPoller(client domain.SiteClient, repo domain.SubmissionRepository) *Poller {
	p := NewPoller("hdu", client, repo, testLogger())
	p.attempts = 5
	p.backoffUnit = 0
	return p
}

func TestPollerPersistsTerminalVerdict(t *testing.T) {
	repo := newFakeSubRepo(beingJudged(42, "hdu", "9999"))
	var calls int
	var mu sync.Mutex
	client := &fakeClient{name: "hdu", statusFn: func() (*domain.SubmitStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return nil, nil
		}
		return &domain.SubmitStatus{Verdict: "Accepted", ExeTime: 15, ExeMem: 1024}, nil
	}}
	p := newTestPoller(client, repo)
	p.Start(context.Background())
	require.NoError(t, p.AddTask(42))

	require.Eventually(t, func() bool {
		return repo.verdict(42) == "Accepted"
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	sub, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 15, sub.ExeTime)
	assert.Equal(t, 1024, sub.ExeMem)
}

func TestPollerSkipsForeignAndFinishedRows(t *testing.T) {
	runID := "9999"
	repo := newFakeSubRepo(
		domain.Submission{ID: 1, OJName: "scu", RunID: &runID, Verdict: domain.VerdictBeingJudged},
		domain.Submission{ID: 2, OJName: "hdu", Verdict: domain.VerdictBeingJudged},
		domain.Submission{ID: 3, OJName: "hdu", RunID: &runID, Verdict: "Accepted"},
	)
	client := &fakeClient{name: "hdu"}
	p := newTestPoller(client, repo)
	p.Start(context.Background())
	require.NoError(t, p.AddTask(1))
	require.NoError(t, p.AddTask(2))
	require.NoError(t, p.AddTask(3))
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	_, status, _ := client.calls()
	assert.Zero(t, status)
	assert.Equal(t, domain.VerdictBeingJudged, repo.verdict(1))
	assert.Equal(t, "Accepted", repo.verdict(3))
}

func TestPollerConnectionErrorFailsJudge(t *testing.T) {
	repo := newFakeSubRepo(beingJudged(42, "hdu", "9999"))
	client := &fakeClient{name: "hdu", statusFn: func() (*domain.SubmitStatus, error) {
		return nil, fmt.Errorf("op=test: %w", domain.ErrConnection)
	}}
	p := newTestPoller(client, repo)
	p.Start(context.Background())
	require.NoError(t, p.AddTask(42))

	require.Eventually(t, func() bool {
		return repo.verdict(42) == domain.VerdictJudgeFail
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	// One failing poll is enough; no retries afterwards.
	_, status, _ := client.calls()
	assert.Equal(t, 1, status)
}

func TestPollerLoginRequiredRefreshesAndContinues(t *testing.T) {
	repo := newFakeSubRepo(beingJudged(42, "hdu", "9999"))
	var calls int
	var mu sync.Mutex
	client := &fakeClient{name: "hdu", statusFn: func() (*domain.SubmitStatus, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, fmt.Errorf("op=test: %w", domain.ErrLoginRequired)
		}
		return &domain.SubmitStatus{Verdict: "Wrong Answer"}, nil
	}}
	p := newTestPoller(client, repo)
	p.Start(context.Background())
	require.NoError(t, p.AddTask(42))

	require.Eventually(t, func() bool {
		return repo.verdict(42) == "Wrong Answer"
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	_, _, updates := client.calls()
	assert.Equal(t, 1, updates)
}

func TestPollerLoginRefreshFailureFailsJudge(t *testing.T) {
	repo := newFakeSubRepo(beingJudged(42, "hdu", "9999"))
	client := &fakeClient{
		name: "hdu",
		statusFn: func() (*domain.SubmitStatus, error) {
			return nil, fmt.Errorf("op=test: %w", domain.ErrLoginRequired)
		},
		updateFn: func() error {
			return fmt.Errorf("op=test: %w", domain.ErrConnection)
		},
	}
	p := newTestPoller(client, repo)
	p.Start(context.Background())
	require.NoError(t, p.AddTask(42))

	require.Eventually(t, func() bool {
		return repo.verdict(42) == domain.VerdictJudgeFail
	}, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestPollerExhaustionFailsJudge(t *testing.T) {
	repo := newFakeSubRepo(beingJudged(42, "hdu", "9999"))
	client := &fakeClient{name: "hdu", statusFn: func() (*domain.SubmitStatus, error) {
		return &domain.SubmitStatus{Verdict: domain.VerdictRunning}, nil
	}}
	p := newTestPoller(client, repo)
	p.attempts = 3
	p.Start(context.Background())
	require.NoError(t, p.AddTask(42))

	require.Eventually(t, func() bool {
		return repo.verdict(42) == domain.VerdictJudgeFail
	}, time.Second, 5*time.Millisecond)
	p.Stop()

	_, status, _ := client.calls()
	assert.Equal(t, 3, status)
}

func TestPollerStopDrainsPendingTasks(t *testing.T) {
	const n = 60
	subs := make([]domain.Submission, 0, n)
	for i := int64(1); i <= n; i++ {
		subs = append(subs, beingJudged(i, "hdu", fmt.Sprintf("rid-%d", i)))
	}
	repo := newFakeSubRepo(subs...)
	client := &fakeClient{name: "hdu", statusFn: func() (*domain.SubmitStatus, error) {
		return &domain.SubmitStatus{Verdict: "Accepted"}, nil
	}}
	p := newTestPoller(client, repo)
	p.Start(context.Background())
	for i := int64(1); i <= n; i++ {
		require.NoError(t, p.AddTask(i))
	}

	// Stop must run the tasks still buffered in the scheduler, not drop them.
	p.Stop()

	for i := int64(1); i <= n; i++ {
		assert.Equal(t, "Accepted", repo.verdict(i), "submission %d", i)
	}
}

func TestPollerLifecycleErrors(t *testing.T) {
	repo := newFakeSubRepo()
	p := newTestPoller(&fakeClient{name: "hdu"}, repo)

	assert.ErrorIs(t, p.AddTask(1), ErrNotStarted)

	p.Start(context.Background())
	p.Stop()
	assert.ErrorIs(t, p.AddTask(1), ErrStopping)
}
