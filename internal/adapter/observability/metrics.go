package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SubmissionsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_submissions_submitted_total",
			Help: "Total number of submissions handed to upstream sites",
		},
		[]string{"site"},
	)
	SubmissionsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_submissions_failed_total",
			Help: "Total number of submissions finalized as Submit Failed or Judge Failed",
		},
		[]string{"site", "verdict"},
	)
	VerdictsTerminalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_verdicts_terminal_total",
			Help: "Total number of terminal verdicts persisted by the poller",
		},
		[]string{"site"},
	)
	PollAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_poll_attempts_total",
			Help: "Total number of status poll attempts",
		},
		[]string{"site"},
	)
	CrawlTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_crawl_tasks_total",
			Help: "Total number of crawl tasks processed",
		},
		[]string{"site", "type", "outcome"},
	)
	PoolsRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dispatcher_pools_running",
			Help: "Number of running worker pools",
		},
		[]string{"kind"},
	)
	QueuePopsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatcher_queue_pops_total",
			Help: "Total number of queue pops by queue and outcome",
		},
		[]string{"queue", "outcome"},
	)
)

// InitMetrics registers all dispatcher metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(SubmissionsSubmittedTotal)
	prometheus.MustRegister(SubmissionsFailedTotal)
	prometheus.MustRegister(VerdictsTerminalTotal)
	prometheus.MustRegister(PollAttemptsTotal)
	prometheus.MustRegister(CrawlTasksTotal)
	prometheus.MustRegister(PoolsRunning)
	prometheus.MustRegister(QueuePopsTotal)
}
