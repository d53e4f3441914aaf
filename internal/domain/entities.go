// Package domain holds the dispatcher's entities, verdict vocabulary and the
// ports implemented by adapters (repositories, queues, site clients).
package domain

import (
	"context"
	"regexp"
	"time"
)

// Verdicts written or inspected by the dispatcher. Terminal verdicts from the
// upstream sites (Accepted, Wrong Answer, ...) are propagated verbatim and
// stay opaque here.
const (
	VerdictQueuing     = "Queuing"
	VerdictBeingJudged = "Being Judged"
	VerdictCompiling   = "Compiling"
	VerdictRunning     = "Running"
	VerdictSubmitFail  = "Submit Failed"
	VerdictJudgeFail   = "Judge Failed"
)

// IsNonTerminalVerdict reports whether v still requires polling.
func IsNonTerminalVerdict(v string) bool {
	switch v {
	case VerdictQueuing, VerdictBeingJudged, VerdictCompiling, VerdictRunning, "":
		return true
	}
	return false
}

// Submission is one user submit routed through a bot account.
// Verdict transitions are monotonic toward a terminal state; once terminal the
// row is immutable except for counters maintained by the outer application.
type Submission struct {
	ID         int64
	UserID     string
	OJName     string
	ProblemID  string
	Language   string
	SourceCode string
	RunID      *string
	Verdict    string
	ExeTime    int
	ExeMem     int
	Shared     bool
	CreatedAt  time.Time
}

// ProblemRecord is what a site adapter scrapes for one problem. Empty fields
// mean "the site did not provide this"; persisted rows keep their old value.
type ProblemRecord struct {
	Title        string
	Description  string
	Input        string
	Output       string
	SampleInput  string
	SampleOutput string
	TimeLimitMS  int
	MemLimitKB   int
}

// Problem is the persisted form of a ProblemRecord, keyed by (oj_name, problem_id).
type Problem struct {
	OJName     string
	ProblemID  string
	LastUpdate time.Time
	ProblemRecord
}

// Contest statuses as reported by the upstream sites.
const (
	ContestPending = "Pending"
	ContestRunning = "Running"
	ContestEnded   = "Ended"
)

// ContestInfo is a site adapter's view of one contest. Start/End are unix
// timestamps (UTC) as scraped from the contest page.
type ContestInfo struct {
	Site        string
	ContestID   string
	Title       string
	Public      bool
	Status      string
	StartTime   int64
	EndTime     int64
	ProblemList []string
}

// Contest is the persisted contest row, keyed by its clone name
// ("<site>_ct_<id>"). Problems carries the serialized
// [(display_label, oj_name, problem_id), ...] list as JSON.
type Contest struct {
	OJName    string
	Site      string
	ContestID string
	Title     string
	Public    bool
	Status    string
	StartTime time.Time
	EndTime   time.Time
	Problems  string
}

var cloneNameRe = regexp.MustCompile(`^(.*?)_ct_([0-9]+)$`)

// ParseCloneName splits a contest clone name of form "<site>_ct_<id>".
// ok is false for plain practice site names.
func ParseCloneName(name string) (site, contestID string, ok bool) {
	m := cloneNameRe.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// CloneName builds the derived oj_name for a cloned contest.
func CloneName(site, contestID string) string {
	return site + "_ct_" + contestID
}

// SubmitStatus is one observation of a run on the upstream status page.
type SubmitStatus struct {
	Verdict string
	ExeTime int
	ExeMem  int
}

// StatusHints narrow upstream status listing pages to the submitting account
// and problem.
type StatusHints struct {
	UserID    string
	ProblemID string
}

// Client types exposed by site adapters.
const (
	ClientPractice = "practice"
	ClientContest  = "contest"
)

// SiteClient is the contract every upstream adapter implements. The dispatcher
// never touches site-specific HTML.
//
// GetProblem returns (nil, nil) when the site reports no such problem.
// GetSubmitStatus returns (nil, nil) while the record is not yet visible.
type SiteClient interface {
	Name() string
	UserID() (string, error)
	ClientType() string
	Login(ctx context.Context, username, password string) error
	UpdateCookies(ctx context.Context) error
	GetProblem(ctx context.Context, problemID string) (*ProblemRecord, error)
	GetProblemList(ctx context.Context) ([]string, error)
	SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error)
	GetSubmitStatus(ctx context.Context, runID string, hints StatusHints) (*SubmitStatus, error)
}

// ContestSiteClient composes the practice behavior with contest-scoped
// operations.
type ContestSiteClient interface {
	SiteClient
	ContestID() string
	GetContestInfo() ContestInfo
	RefreshContestInfo(ctx context.Context) error
}

// Repositories (ports)

type SubmissionRepository interface {
	Get(ctx context.Context, id int64) (Submission, error)
	UpdateVerdict(ctx context.Context, id int64, verdict string, exeTime, exeMem int) error
	// MarkSubmitted records phase 1: the upstream run id, the bot account
	// that owns the run and the Being Judged verdict.
	MarkSubmitted(ctx context.Context, id int64, runID, botUserID string) error
	// ListUnfinished returns ids of submissions whose verdict is Queuing or
	// Being Judged, oldest first.
	ListUnfinished(ctx context.Context) ([]int64, error)
}

type ProblemRepository interface {
	Get(ctx context.Context, ojName, problemID string) (Problem, error)
	// Upsert writes the row keyed by (ojName, problemID), keeping existing
	// non-empty fields when rec leaves them empty, and bumps last_update.
	Upsert(ctx context.Context, ojName, problemID string, rec ProblemRecord) error
}

type ContestRepository interface {
	GetByOJName(ctx context.Context, ojName string) (Contest, error)
	Upsert(ctx context.Context, c Contest) error
	// ListUpcoming returns contests that are not Ended, for the recent-contest
	// refresh sweep.
	ListUpcoming(ctx context.Context) ([]Contest, error)
}

// Queues (ports)

// CrawlTask is the wire payload of the crawl queue.
type CrawlTask struct {
	OJName    string `json:"oj_name" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=problem contest"`
	All       bool   `json:"all,omitempty"`
	ProblemID string `json:"problem_id,omitempty"`
}

// SubmitQueue carries submission ids between the front-end and the dispatcher.
type SubmitQueue interface {
	Push(ctx context.Context, submissionID int64) error
	// Pop blocks up to timeout; it returns ErrNotFound when nothing arrived.
	Pop(ctx context.Context, timeout time.Duration) (int64, error)
}

// CrawlQueue carries JSON crawl tasks. Pop returns the raw payload so the
// supervisor can log corrupt entries before dropping them.
type CrawlQueue interface {
	Push(ctx context.Context, task CrawlTask) error
	Pop(ctx context.Context, timeout time.Duration) ([]byte, error)
}

// RefreshRegistry tracks last-refresh marks used to suppress redundant crawls.
type RefreshRegistry interface {
	LastContestRefresh(ctx context.Context, contestID int64) (time.Time, error)
	MarkContestRefresh(ctx context.Context, contestID int64, at time.Time) error
	LastRecentRefresh(ctx context.Context) (time.Time, error)
	MarkRecentRefresh(ctx context.Context, at time.Time) error
}
