package hdu

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/adapter/site"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

var (
	contestTableRe = regexp.MustCompile(`(?s)Solved.*Title.*Ratio`)
	contestInfoRe  = regexp.MustCompile(`(?s)Start.*Time.*Contest.*Type.*Contest.*Status`)
	contestMetaRe  = regexp.MustCompile(`(?s)Start *?Time *?: *?([0-9]{4})-([0-9]{2})-([0-9]{2}) *?([0-9]{2}):([0-9]{2}):([0-9]{2}).*?` +
		`End *?Time *?: *?([0-9]{4})-([0-9]{2})-([0-9]{2}) *?([0-9]{2}):([0-9]{2}):([0-9]{2}).*?` +
		`Contest *?Type *?:(.*?)Contest *?Status.*?:(.*?)Current.*?Server.*?Time`)
	contestTimeRe = regexp.MustCompile(`([0-9]{4})-([0-9]{2})-([0-9]{2}) *?([0-9]{2}):([0-9]{2}):([0-9]{2})`)
)

// HDU renders contest times in local UTC+8.
var hduZone = time.FixedZone("UTC+8", 8*3600)

// ContestClient binds the shared client to one contest id.
type ContestClient struct {
	Client
}

// NewContestClient constructs a contest client, logs in when a credential is
// provided and loads the contest page once.
func NewContestClient(ctx context.Context, cred config.Credential, contestID string) (domain.SiteClient, error) {
	if contestID == "" {
		return nil, fmt.Errorf("op=hdu.NewContestClient: contest id is required: %w", domain.ErrInternal)
	}
	c := &ContestClient{Client: Client{
		sess:       site.NewSession(),
		name:       domain.CloneName(SiteName, contestID),
		clientType: domain.ClientContest,
		contestID:  contestID,
	}}
	c.contestInfo = domain.ContestInfo{Site: SiteName, ContestID: contestID, Public: true, Status: domain.ContestPending}
	if cred.Username != "" {
		if err := c.Login(ctx, cred.Username, cred.Password); err != nil {
			return nil, err
		}
	}
	if err := c.RefreshContestInfo(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// ContestID returns the bound contest id.
func (c *ContestClient) ContestID() string { return c.contestID }

// GetContestInfo returns the last refreshed contest snapshot.
func (c *ContestClient) GetContestInfo() domain.ContestInfo { return c.contestInfo }

// GetProblemList serves the cached contest problem list; contest problem ids
// only exist on the contest page.
func (c *ContestClient) GetProblemList(ctx context.Context) ([]string, error) {
	return append([]string(nil), c.contestInfo.ProblemList...), nil
}

// GetProblem requires a session for private contests.
func (c *ContestClient) GetProblem(ctx context.Context, problemID string) (*domain.ProblemRecord, error) {
	if !c.contestInfo.Public && !c.authed {
		return nil, fmt.Errorf("op=hdu.contest.GetProblem: %w", domain.ErrLoginRequired)
	}
	return c.Client.GetProblem(ctx, problemID)
}

// SubmitProblem refuses submits outside the contest window.
func (c *ContestClient) SubmitProblem(ctx context.Context, problemID, language, sourceCode string) (string, error) {
	if err := c.RefreshContestInfo(ctx); err != nil {
		return "", err
	}
	switch c.contestInfo.Status {
	case domain.ContestPending:
		return "", fmt.Errorf("op=hdu.contest.SubmitProblem: contest has not begun: %w", domain.ErrSubmit)
	case domain.ContestEnded:
		return "", fmt.Errorf("op=hdu.contest.SubmitProblem: contest is ended: %w", domain.ErrSubmit)
	}
	return c.Client.SubmitProblem(ctx, problemID, language, sourceCode)
}

// GetSubmitStatus requires a session for private contests.
func (c *ContestClient) GetSubmitStatus(ctx context.Context, runID string, hints domain.StatusHints) (*domain.SubmitStatus, error) {
	if !c.contestInfo.Public && !c.authed {
		return nil, fmt.Errorf("op=hdu.contest.GetSubmitStatus: %w", domain.ErrLoginRequired)
	}
	return c.Client.GetSubmitStatus(ctx, runID, hints)
}

// RefreshContestInfo re-scrapes the contest page. A "System Message" page
// means the contest id does not exist upstream.
func (c *ContestClient) RefreshContestInfo(ctx context.Context) error {
	pageURL := fmt.Sprintf("%s/contests/contest_show.php?cid=%s", baseURL, c.contestID)
	body, err := c.sess.GetSlow(ctx, pageURL)
	if err != nil {
		return err
	}
	if signInRe.MatchString(body) {
		return fmt.Errorf("op=hdu.contest.RefreshContestInfo: %w", domain.ErrLoginRequired)
	}
	if strings.Contains(body, "System Message") {
		return fmt.Errorf("op=hdu.contest.RefreshContestInfo: contest %s not exists: %w", c.contestID, domain.ErrConnection)
	}
	c.contestInfo.ProblemList = parseContestProblemIDs(body)

	doc := parseHTML(body)
	if h1 := findFirst(doc, isTag("h1")); h1 != nil {
		c.contestInfo.Title = strings.TrimSpace(nodeText(h1))
	}
	divs := findAll(doc, isTag("div"))
	for i := len(divs) - 1; i >= 0; i-- {
		text := nodeText(divs[i])
		if !contestInfoRe.MatchString(text) {
			continue
		}
		m := contestMetaRe.FindStringSubmatch(text)
		if m == nil {
			return nil
		}
		c.contestInfo.StartTime = toUnix(m[1:7])
		c.contestInfo.EndTime = toUnix(m[7:13])
		c.contestInfo.Public = strings.TrimSpace(m[13]) == "Public"
		c.contestInfo.Status = strings.TrimSpace(m[14])
		return nil
	}
	return nil
}

// GetRecentContest lists the contests visible on the public contest index.
func GetRecentContest(ctx context.Context) ([]domain.ContestInfo, error) {
	sess := site.NewSession()
	body, err := sess.Get(ctx, baseURL+"/contests/contest_list.php")
	if err != nil {
		if errors.Is(err, domain.ErrConnection) {
			return nil, nil
		}
		return nil, err
	}
	doc := parseHTML(body)
	table := findFirst(doc, func(n *html.Node) bool {
		return n.Data == "table" && strings.Contains(attrVal(n, "class"), "table_text")
	})
	if table == nil {
		return nil, nil
	}
	var out []domain.ContestInfo
	for _, tr := range centerRows(table) {
		cells := rowCells(tr)
		if len(cells) < 6 {
			continue
		}
		info := domain.ContestInfo{
			Site:      SiteName,
			ContestID: cells[0],
			Title:     cells[1],
			Status:    cells[4],
			Public:    cells[3] == "Public",
		}
		if m := contestTimeRe.FindStringSubmatch(cells[2]); m != nil {
			info.StartTime = toUnix(m[1:7])
		}
		out = append(out, info)
	}
	return out, nil
}

// toUnix converts six date components in HDU local time to a unix timestamp.
func toUnix(parts []string) int64 {
	nums := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		nums[i] = n
	}
	t := time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, hduZone)
	return t.Unix()
}

// parseContestProblemIDs reads the problem table on a contest page.
func parseContestProblemIDs(body string) []string {
	doc := parseHTML(body)
	table := findTableMatching(doc, contestTableRe)
	if table == nil {
		return nil
	}
	var ids []string
	for _, tr := range centerRows(table) {
		cells := rowCells(tr)
		if len(cells) >= 2 {
			ids = append(ids, cells[1])
		}
	}
	return ids
}
