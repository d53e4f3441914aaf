package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/config"
	"github.com/fairyhunter13/vjudge-dispatcher/internal/usecase"
)

// StartBeat schedules the periodic refresh producers. An empty spec disables
// its entry. The returned cron is already started; callers stop it on
// shutdown.
func StartBeat(ctx context.Context, cfg config.Config, svc *usecase.RefreshService, log *slog.Logger) (*cron.Cron, error) {
	c := cron.New()
	if cfg.BeatRecentContestSpec != "" {
		_, err := c.AddFunc(cfg.BeatRecentContestSpec, func() {
			if err := svc.RefreshRecentContest(ctx); err != nil {
				log.Warn("recent-contest beat failed", slog.Any("error", err))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("op=app.StartBeat: recent-contest spec: %w", err)
		}
	}
	if cfg.BeatProblemAllSpec != "" {
		_, err := c.AddFunc(cfg.BeatProblemAllSpec, func() {
			if err := svc.RefreshProblemAll(ctx); err != nil {
				log.Warn("problem-all beat failed", slog.Any("error", err))
			}
		})
		if err != nil {
			return nil, fmt.Errorf("op=app.StartBeat: problem-all spec: %w", err)
		}
	}
	c.Start()
	return c, nil
}
