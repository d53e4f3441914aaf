// Package hdu adapts the HDU online judge (practice and contest endpoints)
// to the dispatcher's site client contract.
package hdu

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

const baseURL = "http://acm.hdu.edu.cn"

// SiteName is the stable identifier of the practice site.
const SiteName = "hdu"

var langID = map[string]string{
	"G++": "0", "GCC": "1", "C++": "2",
	"C": "3", "Pascal": "4", "Java": "5", "C#": "6",
}

var (
	signInRe      = regexp.MustCompile(`Sign In Your Account`)
	limitsRe      = regexp.MustCompile(`(?s)Time Limit:.*?[0-9]*/([0-9]*).*?MS.*?\(Java/Others\).*?Memory Limit:.*?[0-9]*/([0-9]*).*?K.*?\(Java/Others\)`)
	statusTableRe = regexp.MustCompile(`(?s)Run ID.*Judge Status.*Author`)
	problemVolRe  = regexp.MustCompile(`listproblem\.php\?vol=([0-9]+)`)
	problemRowRe  = regexp.MustCompile(`(?s)p\([^,()]+?,([^,()]+?)(?:,[^,()]+?){4}\);`)
	runtimeErrRe  = regexp.MustCompile(`Runtime Error`)
)

// sectionFields maps HDU panel titles onto problem record fields.
var sectionFields = map[string]func(*domain.ProblemRecord, string){
	"Problem Description": func(r *domain.ProblemRecord, v string) { r.Description = v },
	"Input":               func(r *domain.ProblemRecord, v string) { r.Input = v },
	"Output":              func(r *domain.ProblemRecord, v string) { r.Output = v },
	"Sample Input":        func(r *domain.ProblemRecord, v string) { r.SampleInput = v },
	"Sample Output":       func(r *domain.ProblemRecord, v string) { r.SampleOutput = v },
}

// Client serves both the practice site and contest instances; the contest
// variant carries a contest id and scoped URLs.
type Client struct {
	sess       *site.Session
	name       string
	clientType string
	contestID  string
	username   string
	password   string
	authed     bool

	contestInfo domain.ContestInfo
}

// NewClient constructs a practice client and logs in when a credential is
// provided.
func NewClient(ctx context.Context, cred config.Credential) (domain.SiteClient, error) {
	c := &Client{
		sess:       site.NewSession(),
		name:       SiteName,
		clientType: domain.ClientPractice,
	}
	if cred.Username != "" {
		if err := c.Login(ctx, cred.Username, cred.Password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Name returns the oj name this client serves.
func (c *Client) Name() string { return c.name }

// ClientType reports practice or contest.
func (c *Client) ClientType() string { return c.clientType }

// UserID returns the bot account id, or ErrLoginRequired when unauthenticated.
func (c *Client) UserID() (string, error) {
	if !c.authed {
		return "", fmt.Errorf("op=hdu.UserID: %w", domain.ErrLoginRequired)
	}
	return c.username, nil
}

// request performs one page fetch and sniffs the login wall.
func (c *Client) request(ctx context.Context, get bool, rawURL string, form url.Values) (string, error) {
	var (
		body string
		err  error
	)
	if get {
		body, err = c.sess.Get(ctx, rawURL)
	} else {
		body, err = c.sess.PostForm(ctx, rawURL, form)
	}
	if err != nil {
		return "", err
	}
	if signInRe.MatchString(body) {
		return "", fmt.Errorf("op=hdu.request: %w", domain.ErrLoginRequired)
	}
	return body, nil
}

// Login establishes a session. HDU answers a wrong credential with the login
// wall again, which maps to ErrLogin.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"login":    {"Sign in"},
		"username": {username},
		"userpass": {password},
	}
	if _, err := c.request(ctx, false, c.loginURL(), form); err != nil {
		if errors.Is(err, domain.ErrLoginRequired) {
			return fmt.Errorf("op=hdu.Login: user not exist or wrong password: %w", domain.ErrLogin)
		}
		return err
	}
	c.username = username
	c.password = password
	c.authed = true
	return nil
}

// UpdateCookies re-authenticates with the stored credential. Only
// ErrConnection can escape, per the client contract.
func (c *Client) UpdateCookies(ctx context.Context) error {
	if !c.authed {
		return fmt.Errorf("op=hdu.UpdateCookies: %w", domain.ErrConnection)
	}
	if err := c.Login(ctx, c.username, c.password); err != nil {
		if !errors.Is(err, domain.ErrConnection) {
			return fmt.Errorf("op=hdu.UpdateCookies: %w", domain.ErrConnection)
		}
		return err
	}
	return nil
}

// GetProblem fetches and parses one problem page. A "System Message" page
// means the problem does not exist and yields (nil, nil).
func (c *Client) GetProblem(ctx context.Context, problemID string) (*domain.ProblemRecord, error) {
	body, err := c.request(ctx, true, c.problemURL(problemID), nil)
	if err != nil {
		return nil, err
	}
	return parseProblem(body), nil
}

// GetProblemList walks the problem volumes and returns the sorted,
// de-duplicated id list. A volume fetch failure truncates the walk, matching
// upstream pagination behavior.
func (c *Client) GetProblemList(ctx context.Context) ([]string, error) {
	listURL := baseURL + "/listproblem.php"
	body, err := c.request(ctx, true, listURL, nil)
	if err != nil {
		return nil, err
	}
	volSet := map[int]struct{}{}
	for _, m := range problemVolRe.FindAllStringSubmatch(body, -1) {
		if v, err := strconv.Atoi(m[1]); err == nil {
			volSet[v] = struct{}{}
		}
	}
	vols := make([]int, 0, len(volSet))
	for v := range volSet {
		vols = append(vols, v)
	}
	sort.Ints(vols)

	seen := map[string]struct{}{}
	var ids []string
	for _, vol := range vols {
		page, err := c.request(ctx, true, fmt.Sprintf("%s?vol=%d", listURL, vol), nil)
		if err != nil {
			if errors.Is(err, domain.ErrConnection) {
				break
			}
			return nil, err
		}
		for _, m := range problemRowRe.FindAllStringSubmatch(page, -1) {
			id := strings.TrimSpace(m[1])
			if _, dup := seen[id]; !dup {
				seen[id] = struct{}{}
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// SubmitProblem posts the source and scrapes the freshly assigned run id from
// the status page.
func (c *Client) SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	if !c.authed {
		return "", fmt.Errorf("op=hdu.SubmitProblem: %w", domain.ErrLoginRequired)
	}
	lang, ok := langID[language]
	if !ok {
		return "", fmt.Errorf("op=hdu.SubmitProblem: language %q is not supported: %w", language, domain.ErrSubmit)
	}
	if c.clientType == domain.ClientContest {
		sourceCode = encodeSource(sourceCode)
	}
	form := url.Values{
		"problemid": {problemID},
		"language":  {lang},
		"usercode":  {sourceCode},
	}
	if c.clientType == domain.ClientContest {
		form.Set("submit", "Submit")
	} else {
		form.Set("check", "0")
	}
	body, err := c.request(ctx, false, c.submitURL(), form)
	if err != nil {
		return "", err
	}
	switch {
	case strings.Contains(body, "Code length is improper"):
		return "", fmt.Errorf("op=hdu.SubmitProblem: code length is too short: %w", domain.ErrSubmit)
	case strings.Contains(body, "Please don't re-submit in 5 seconds, thank you."):
		return "", fmt.Errorf("op=hdu.SubmitProblem: submit too frequently: %w", domain.ErrSubmit)
	case !strings.Contains(body, "Realtime Status"):
		return "", fmt.Errorf("op=hdu.SubmitProblem: submit failed unexpectedly: %w", domain.ErrSubmit)
	}

	status, err := c.request(ctx, true, c.statusURL("", problemID, c.username), nil)
	if err != nil {
		return "", err
	}
	runID := parseFreshRunID(status)
	if runID == "" {
		return "", fmt.Errorf("op=hdu.SubmitProblem: submit failed unexpectedly: %w", domain.ErrSubmit)
	}
	return runID, nil
}

// GetSubmitStatus locates the run on the status listing. Contest listings are
// paginated; the first few pages are scanned before reporting not-yet-visible.
func (c *Client) GetSubmitStatus(ctx context.Context, runID string, hints domain.StatusHints) (*domain.SubmitStatus, error) {
	statusURL := c.statusURL(runID, hints.ProblemID, hints.UserID)
	body, err := c.request(ctx, true, statusURL, nil)
	if err != nil {
		return nil, err
	}
	if st := findVerdict(body, runID); st != nil {
		return st, nil
	}
	if c.clientType == domain.ClientContest {
		for page := 2; page < 5; page++ {
			body, err := c.request(ctx, true, fmt.Sprintf("%s&page=%d", statusURL, page), nil)
			if err != nil {
				return nil, err
			}
			if st := findVerdict(body, runID); st != nil {
				return st, nil
			}
		}
	}
	return nil, nil
}

func (c *Client) loginURL() string {
	u := baseURL + "/userloginex.php?action=login"
	if c.clientType == domain.ClientContest {
		u += "&cid=" + c.contestID + "&notice=0"
	}
	return u
}

func (c *Client) submitURL() string {
	if c.clientType == domain.ClientContest {
		return baseURL + "/contests/contest_submit.php?action=submit&cid=" + c.contestID
	}
	return baseURL + "/submit.php?action=submit"
}

func (c *Client) statusURL(runID, problemID, userID string) string {
	if c.clientType == domain.ClientContest {
		return fmt.Sprintf("%s/contests/contest_status.php?cid=%s&pid=%s&user=%s&lang=0&status=0",
			baseURL, c.contestID, problemID, userID)
	}
	return fmt.Sprintf("%s/status.php?first=%s&pid=%s&user=%s&lang=0&status=0",
		baseURL, runID, problemID, userID)
}

func (c *Client) problemURL(problemID string) string {
	if c.clientType == domain.ClientContest {
		return baseURL + "/contests/contest_showproblem.php?pid=" + problemID + "&cid=" + c.contestID
	}
	return baseURL + "/showproblem.php?pid=" + problemID
}

// parseProblem extracts title, limits and the panel sections from a problem
// page. Returns nil when the page is the "System Message" placeholder.
func parseProblem(body string) *domain.ProblemRecord {
	var rec domain.ProblemRecord
	if m := limitsRe.FindStringSubmatch(body); m != nil {
		rec.TimeLimitMS, _ = strconv.Atoi(m[1])
		rec.MemLimitKB, _ = strconv.Atoi(m[2])
	}
	doc := parseHTML(body)
	if h1 := findFirst(doc, isTag("h1")); h1 != nil {
		rec.Title = strings.TrimSpace(nodeText(h1))
		if rec.Title == "System Message" {
			return nil
		}
	}
	panels := findAll(doc, func(n *html.Node) bool {
		return n.Data == "div" && strings.Contains(attrVal(n, "class"), "panel_title") && attrVal(n, "align") == "left"
	})
	for _, panel := range panels {
		set, ok := sectionFields[strings.TrimSpace(nodeText(panel))]
		if !ok {
			continue
		}
		content := nextElementSibling(panel)
		if content == nil || content.Data != "div" {
			continue
		}
		set(&rec, strings.TrimSpace(innerHTML(content)))
	}
	return &rec
}

// encodeSource reproduces the contest submit encoding:
// base64(percent-quote(source)).
func encodeSource(code string) string {
	return base64.StdEncoding.EncodeToString([]byte(pyQuote(code)))
}

// pyQuote percent-encodes like Python's urllib.parse.quote with the default
// safe set: unreserved characters and the slash pass through.
func pyQuote(s string) string {
	const hexdig = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') || (ch >= '0' && ch <= '9') ||
			ch == '_' || ch == '.' || ch == '-' || ch == '~' || ch == '/' {
			b.WriteByte(ch)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexdig[ch>>4])
		b.WriteByte(hexdig[ch&0xf])
	}
	return b.String()
}

// parseFreshRunID pulls the run id of the newest row on a status page.
func parseFreshRunID(body string) string {
	doc := parseHTML(body)
	table := findTableMatching(doc, statusTableRe)
	if table == nil {
		return ""
	}
	rows := centerRows(table)
	if len(rows) == 0 {
		return ""
	}
	cells := rowCells(rows[0])
	if len(cells) == 0 {
		return ""
	}
	return cells[0]
}

// findVerdict scans a status table for runID and returns its verdict row, or
// nil when the run is not visible on this page yet.
func findVerdict(body, runID string) *domain.SubmitStatus {
	doc := parseHTML(body)
	table := findTableMatching(doc, statusTableRe)
	if table == nil {
		return nil
	}
	for _, tr := range centerRows(table) {
		cells := rowCells(tr)
		if len(cells) < 6 || cells[0] != runID {
			continue
		}
		exeTime, err1 := strconv.Atoi(strings.TrimSuffix(cells[4], "MS"))
		exeMem, err2 := strconv.Atoi(strings.TrimSuffix(cells[5], "K"))
		if err1 != nil || err2 != nil {
			continue
		}
		verdict := cells[2]
		if runtimeErrRe.MatchString(verdict) {
			verdict = "Runtime Error"
		}
		return &domain.SubmitStatus{Verdict: verdict, ExeTime: exeTime, ExeMem: exeMem}
	}
	return nil
}
