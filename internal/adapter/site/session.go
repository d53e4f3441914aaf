// Package site provides the bot-account registry, the client factory and the
// shared HTTP session used by the per-site adapters.
package site

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// Request timeouts. Logins and contest pages are slower upstream.
const (
	DefaultTimeout = 5 * time.Second
	SlowTimeout    = 10 * time.Second
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0 Safari/537.36"

// Session is a cookie-carrying HTTP session for one bot account on one site.
// Transport failures and timeouts map to domain.ErrConnection.
type Session struct {
	client *http.Client
}

// NewSession builds a session with a fresh cookie jar.
func NewSession() *Session {
	jar, _ := cookiejar.New(nil)
	return &Session{client: &http.Client{Jar: jar}}
}

func (s *Session) do(ctx context.Context, method, rawURL string, body url.Values, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var rd io.Reader
	if body != nil {
		rd = strings.NewReader(body.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return "", fmt.Errorf("op=site.request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("op=site.request: %q: %w", rawURL, domain.ErrConnection)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("op=site.request: %q: %w", rawURL, domain.ErrConnection)
	}
	return string(b), nil
}

// Get fetches a page with the default timeout.
func (s *Session) Get(ctx context.Context, rawURL string) (string, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, DefaultTimeout)
}

// GetSlow fetches a page with the extended timeout (contest pages).
func (s *Session) GetSlow(ctx context.Context, rawURL string) (string, error) {
	return s.do(ctx, http.MethodGet, rawURL, nil, SlowTimeout)
}

// PostForm submits a form with the extended timeout (logins, submits).
func (s *Session) PostForm(ctx context.Context, rawURL string, form url.Values) (string, error) {
	return s.do(ctx, http.MethodPost, rawURL, form, SlowTimeout)
}
