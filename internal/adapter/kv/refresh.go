package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Refresh-mark keys. Values are unix timestamps as ASCII floats, matching the
// producer side of the wire contract.
const (
	contestMarkPrefix = "vjudge-last-refresh-contest-"
	recentMarkKey     = "vjudge-last-refresh-recent-contest"
	contestMarkTTL    = time.Hour
)

// RefreshMarks records last-refresh timestamps used to suppress redundant
// crawl work.
type RefreshMarks struct {
	rdb *redis.Client
}

// NewRefreshMarks wraps the refresh-mark keys.
func NewRefreshMarks(rdb *redis.Client) *RefreshMarks {
	return &RefreshMarks{rdb: rdb}
}

func (m *RefreshMarks) getMark(ctx context.Context, key string) (time.Time, error) {
	val, err := m.rdb.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("op=kv.refresh_get: %w", err)
	}
	ts, err := strconv.ParseFloat(val, 64)
	if err != nil {
		// Corrupt mark reads as never-refreshed.
		return time.Time{}, nil
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC(), nil
}

func formatMark(at time.Time) string {
	return strconv.FormatFloat(float64(at.UnixNano())/1e9, 'f', 6, 64)
}

// LastContestRefresh returns the last successful refresh time for a contest,
// or the zero time when no mark exists.
func (m *RefreshMarks) LastContestRefresh(ctx context.Context, contestID int64) (time.Time, error) {
	return m.getMark(ctx, contestMarkPrefix+strconv.FormatInt(contestID, 10))
}

// MarkContestRefresh records a successful contest refresh with a 1h TTL.
func (m *RefreshMarks) MarkContestRefresh(ctx context.Context, contestID int64, at time.Time) error {
	key := contestMarkPrefix + strconv.FormatInt(contestID, 10)
	if err := m.rdb.Set(ctx, key, formatMark(at), contestMarkTTL).Err(); err != nil {
		return fmt.Errorf("op=kv.refresh_mark_contest: %w", err)
	}
	return nil
}

// LastRecentRefresh returns the last recent-contest sync time.
func (m *RefreshMarks) LastRecentRefresh(ctx context.Context) (time.Time, error) {
	return m.getMark(ctx, recentMarkKey)
}

// MarkRecentRefresh records a recent-contest sync. The key carries no TTL.
func (m *RefreshMarks) MarkRecentRefresh(ctx context.Context, at time.Time) error {
	if err := m.rdb.Set(ctx, recentMarkKey, formatMark(at), 0).Err(); err != nil {
		return fmt.Errorf("op=kv.refresh_mark_recent: %w", err)
	}
	return nil
}
