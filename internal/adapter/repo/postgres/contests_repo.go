package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// ContestRepo persists contest rows keyed by their clone name.
type ContestRepo struct{ Pool PgxPool }

// NewContestRepo constructs a ContestRepo with the given pool.
func NewContestRepo(p PgxPool) *ContestRepo { return &ContestRepo{Pool: p} }

func scanContest(row pgx.Row) (domain.Contest, error) {
	var c domain.Contest
	err := row.Scan(&c.OJName, &c.Site, &c.ContestID, &c.Title, &c.Public, &c.Status,
		&c.StartTime, &c.EndTime, &c.Problems)
	return c, err
}

const contestCols = `oj_name, site, contest_id, COALESCE(title,''), public, COALESCE(status,'Pending'),
	             start_time, end_time, COALESCE(problems,'[]')`

// GetByOJName loads one contest row by clone name.
func (r *ContestRepo) GetByOJName(ctx context.Context, ojName string) (domain.Contest, error) {
	tracer := otel.Tracer("repo.contests")
	ctx, span := tracer.Start(ctx, "contests.GetByOJName")
	defer span.End()
	q := `SELECT ` + contestCols + ` FROM contests WHERE oj_name=$1`
	c, err := scanContest(r.Pool.QueryRow(ctx, q, ojName))
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Contest{}, fmt.Errorf("op=contest.get: %w", domain.ErrNotFound)
		}
		return domain.Contest{}, fmt.Errorf("op=contest.get: %w", err)
	}
	return c, nil
}

// Upsert writes the contest row keyed by (site, contest_id) and its clone
// name. An empty incoming problem list keeps the stored one; the index sweep
// never sees the list, only the contest page crawl does.
func (r *ContestRepo) Upsert(ctx context.Context, c domain.Contest) error {
	tracer := otel.Tracer("repo.contests")
	ctx, span := tracer.Start(ctx, "contests.Upsert")
	defer span.End()
	q := `INSERT INTO contests (oj_name, site, contest_id, title, public, status, start_time, end_time, problems)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	      ON CONFLICT (oj_name) DO UPDATE SET
	        site=EXCLUDED.site, contest_id=EXCLUDED.contest_id, title=EXCLUDED.title,
	        public=EXCLUDED.public, status=EXCLUDED.status,
	        start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
	        problems=CASE WHEN EXCLUDED.problems IN ('','[]','null')
	                      THEN contests.problems ELSE EXCLUDED.problems END`
	if _, err := r.Pool.Exec(ctx, q, c.OJName, c.Site, c.ContestID, c.Title, c.Public, c.Status,
		c.StartTime, c.EndTime, c.Problems); err != nil {
		return fmt.Errorf("op=contest.upsert: %w", err)
	}
	return nil
}

// ListUpcoming returns contests that have not ended yet, for the periodic
// refresh sweep.
func (r *ContestRepo) ListUpcoming(ctx context.Context) ([]domain.Contest, error) {
	tracer := otel.Tracer("repo.contests")
	ctx, span := tracer.Start(ctx, "contests.ListUpcoming")
	defer span.End()
	q := `SELECT ` + contestCols + ` FROM contests WHERE status <> $1 ORDER BY start_time`
	rows, err := r.Pool.Query(ctx, q, domain.ContestEnded)
	if err != nil {
		return nil, fmt.Errorf("op=contest.list_upcoming: %w", err)
	}
	defer rows.Close()
	var out []domain.Contest
	for rows.Next() {
		c, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("op=contest.list_upcoming: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=contest.list_upcoming: %w", err)
	}
	return out, nil
}
