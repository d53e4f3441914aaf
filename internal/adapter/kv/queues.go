// Package kv implements the durable work queues and refresh marks on Redis.
// Only atomic single-key operations are used (LPUSH, BRPOP, GET, SET with
// TTL); there are no distributed locks.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// Queue keys shared with the front-end and the periodic producer.
const (
	SubmitQueueKey = "vjudge-submitter-tasks"
	CrawlQueueKey  = "vjudge-crawler-tasks"
)

// NewClient builds a go-redis client from a redis:// URL.
func NewClient(redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("op=kv.NewClient: %w", err)
	}
	return redis.NewClient(opt), nil
}

// SubmitQueue is the Redis list of ASCII decimal submission ids.
type SubmitQueue struct {
	rdb *redis.Client
	key string
}

// NewSubmitQueue wraps the submit-task list.
func NewSubmitQueue(rdb *redis.Client) *SubmitQueue {
	return &SubmitQueue{rdb: rdb, key: SubmitQueueKey}
}

// Push enqueues a submission id for the dispatcher.
func (q *SubmitQueue) Push(ctx context.Context, submissionID int64) error {
	if err := q.rdb.LPush(ctx, q.key, strconv.FormatInt(submissionID, 10)).Err(); err != nil {
		return fmt.Errorf("op=kv.submit_push: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next submission id. A timeout surfaces as
// domain.ErrNotFound; a corrupt payload surfaces as a parse error carrying the
// raw payload so the supervisor can log and drop it.
func (q *SubmitQueue) Pop(ctx context.Context, timeout time.Duration) (int64, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, fmt.Errorf("op=kv.submit_pop: %w", domain.ErrNotFound)
		}
		return 0, fmt.Errorf("op=kv.submit_pop: %w", err)
	}
	id, err := strconv.ParseInt(res[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("op=kv.submit_pop: corrupt payload %q: %w", res[1], err)
	}
	return id, nil
}

// CrawlQueue is the Redis list of JSON crawl tasks.
type CrawlQueue struct {
	rdb *redis.Client
	key string
}

// NewCrawlQueue wraps the crawl-task list.
func NewCrawlQueue(rdb *redis.Client) *CrawlQueue {
	return &CrawlQueue{rdb: rdb, key: CrawlQueueKey}
}

// Push enqueues a crawl task.
func (q *CrawlQueue) Push(ctx context.Context, task domain.CrawlTask) error {
	b, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("op=kv.crawl_push: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, b).Err(); err != nil {
		return fmt.Errorf("op=kv.crawl_push: %w", err)
	}
	return nil
}

// Pop blocks up to timeout for the next raw task payload. A timeout surfaces
// as domain.ErrNotFound; decoding is left to the supervisor.
func (q *CrawlQueue) Pop(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.rdb.BRPop(ctx, timeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("op=kv.crawl_pop: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=kv.crawl_pop: %w", err)
	}
	return []byte(res[1]), nil
}
