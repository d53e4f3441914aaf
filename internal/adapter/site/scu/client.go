// Package scu implements the Soochow/Sichuan University OJ (SOJ) adapter.
package scu

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

const (
	baseURL  = "http://acm.scu.edu.cn/soj"
	SiteName = "scu"
)

var (
	volumeRe = regexp.MustCompile(`\[(.*)\]`)
)

// CaptchaSolver resolves the submit captcha image to its code. SOJ reuses a
// small fixed set of captcha images, so a table of known md5 digests covers
// them in practice.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// HashSolver maps md5 hex digests of captcha images to their codes.
type HashSolver map[string]string

func (s HashSolver) Solve(ctx context.Context, image []byte) (string, error) {
	sum := md5.Sum(image)
	code, ok := s[hex.EncodeToString(sum[:])]
	if !ok {
		return "", fmt.Errorf("op=scu.Solve: unknown captcha image: %w", domain.ErrSubmit)
	}
	return code, nil
}

// Client is the SOJ practice client. SOJ has no contest mode.
type Client struct {
	sess     *site.Session
	solver   CaptchaSolver
	authed   bool
	username string
	password string
}

// NewClient constructs a practice client, logging in when a credential is
// provided. A nil solver makes every submit fail with a submit error.
func NewClient(ctx context.Context, cred config.Credential, solver CaptchaSolver) (domain.SiteClient, error) {
	c := &Client{sess: site.NewSession(), solver: solver}
	if cred.Username != "" {
		if err := c.Login(ctx, cred.Username, cred.Password); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) Name() string       { return SiteName }
func (c *Client) ClientType() string { return domain.ClientPractice }

func (c *Client) UserID() (string, error) {
	if !c.authed {
		return "", fmt.Errorf("op=scu.UserID: %w", domain.ErrLoginRequired)
	}
	return c.username, nil
}

// Login posts the login form. SOJ reports bad credentials with marker strings
// in the response body.
func (c *Client) Login(ctx context.Context, username, password string) error {
	form := url.Values{
		"back":     {"2"},
		"id":       {username},
		"password": {password},
		"submit":   {"login"},
	}
	body, err := c.sess.PostForm(ctx, baseURL+"/login.action", form)
	if err != nil {
		return err
	}
	if strings.Contains(body, "USER_NOT_EXIST") {
		return fmt.Errorf("op=scu.Login: %w", domain.ErrUserNotExist)
	}
	if strings.Contains(body, "PASSWORD_ERROR") {
		return fmt.Errorf("op=scu.Login: %w", domain.ErrPasswordError)
	}
	c.authed = true
	c.username = username
	c.password = password
	return nil
}

// UpdateCookies re-runs the login. Only connection errors escape; anything
// else here means the account itself went bad mid-flight.
func (c *Client) UpdateCookies(ctx context.Context) error {
	if !c.authed {
		return fmt.Errorf("op=scu.UpdateCookies: %w", domain.ErrConnection)
	}
	if err := c.Login(ctx, c.username, c.password); err != nil {
		if errors.Is(err, domain.ErrConnection) {
			return err
		}
		return fmt.Errorf("op=scu.UpdateCookies: %v: %w", err, domain.ErrConnection)
	}
	return nil
}

func (c *Client) checkLogin(ctx context.Context) (bool, error) {
	body, err := c.sess.Get(ctx, baseURL+"/update_user_form.action")
	if err != nil {
		return false, err
	}
	return !strings.Contains(body, "Please login first"), nil
}

// GetProblem fetches the problem page. SOJ only exposes the title outside of
// a rendered applet, so the record carries the title alone.
func (c *Client) GetProblem(ctx context.Context, problemID string) (*domain.ProblemRecord, error) {
	body, err := c.sess.Get(ctx, fmt.Sprintf("%s/problem.action?id=%s", baseURL, problemID))
	if err != nil {
		return nil, err
	}
	if strings.Contains(body, "No such problem") {
		return nil, nil
	}
	titleRe := regexp.MustCompile(fmt.Sprintf(`<title>%s: (.*?)</title>`, regexp.QuoteMeta(problemID)))
	m := titleRe.FindStringSubmatch(body)
	if m == nil {
		return nil, nil
	}
	return &domain.ProblemRecord{Title: m[1]}, nil
}

// GetProblemList walks the volume index and collects the numeric problem ids
// on each volume page.
func (c *Client) GetProblemList(ctx context.Context) ([]string, error) {
	index := baseURL + "/problems.action"
	body, err := c.sess.Get(ctx, index)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, vol := range parseVolumes(body) {
		page, err := c.sess.Get(ctx, fmt.Sprintf("%s?volume=%s", index, vol))
		if err != nil {
			return nil, err
		}
		ids = append(ids, parseProblemIDs(page)...)
	}
	sort.Strings(ids)
	return ids, nil
}

// SubmitProblem solves the captcha and posts the submit form, then scrapes
// the run id off the account's own status page.
func (c *Client) SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	if !c.authed {
		return "", fmt.Errorf("op=scu.SubmitProblem: %w", domain.ErrLoginRequired)
	}
	captcha, err := c.fetchCaptcha(ctx)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"problemId":  {problemID},
		"validation": {captcha},
		"language":   {language},
		"source":     {sourceCode},
		"submit":     {"Submit"},
	}
	body, err := c.sess.PostForm(ctx, baseURL+"/submit.action", form)
	if err != nil {
		return "", err
	}
	if strings.Contains(body, "ERROR") {
		ok, err := c.checkLogin(ctx)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", fmt.Errorf("op=scu.SubmitProblem: %w", domain.ErrLoginRequired)
		}
		return "", fmt.Errorf("op=scu.SubmitProblem: submit rejected: %w", domain.ErrSubmit)
	}
	statusURL := fmt.Sprintf("%s/solutions.action?userId=%s&problemId=%s", baseURL, url.QueryEscape(c.username), problemID)
	page, err := c.sess.Get(ctx, statusURL)
	if err != nil {
		return "", err
	}
	cells := firstStatusRow(page)
	if len(cells) == 0 || cells[0] == "" {
		return "", fmt.Errorf("op=scu.SubmitProblem: run id not found on status page: %w", domain.ErrSubmit)
	}
	return cells[0], nil
}

// GetSubmitStatus reads the status row for runID. A row that cannot be
// parsed yet reads as not visible.
func (c *Client) GetSubmitStatus(ctx context.Context, runID string, _ domain.StatusHints) (*domain.SubmitStatus, error) {
	page, err := c.sess.Get(ctx, fmt.Sprintf("%s/solutions.action?from=%s", baseURL, runID))
	if err != nil {
		return nil, err
	}
	cells := firstStatusRow(page)
	// Columns 5.. are verdict, language, run time, run memory; SOJ orders
	// time before memory after the verdict and language cells.
	if len(cells) < 8 {
		return nil, nil
	}
	exeTime, err1 := strconv.Atoi(cells[6])
	exeMem, err2 := strconv.Atoi(cells[7])
	if cells[5] == "" || err1 != nil || err2 != nil {
		return nil, nil
	}
	return &domain.SubmitStatus{Verdict: cells[5], ExeTime: exeTime, ExeMem: exeMem}, nil
}

func (c *Client) fetchCaptcha(ctx context.Context) (string, error) {
	if c.solver == nil {
		return "", fmt.Errorf("op=scu.fetchCaptcha: no captcha solver configured: %w", domain.ErrSubmit)
	}
	img, err := c.sess.Get(ctx, baseURL+"/validation_code")
	if err != nil {
		return "", err
	}
	return c.solver.Solve(ctx, []byte(img))
}
