package dispatcher

import (
	"time"

	"github.com/google/uuid"
)

// worker is the lifecycle shared by Submitter and Crawler. Stop blocks until
// the worker's loop (and any owned poller) has drained.
type worker interface {
	Stop()
}

// pool is the per-site collection of workers, one per bot account that could
// log in. Pools are created lazily on the first task for their site and
// reaped after the idle threshold.
type pool struct {
	site      string
	tag       string
	startTime time.Time
	workers   []worker
}

func newPool(site string, workers []worker) *pool {
	return &pool{
		site:      site,
		tag:       uuid.NewString(),
		startTime: time.Now(),
		workers:   workers,
	}
}

// stopAll stops the workers in order and returns once all have drained.
func (p *pool) stopAll() {
	for _, w := range p.workers {
		w.Stop()
	}
}
