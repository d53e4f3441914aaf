package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// ProblemRepo persists scraped problems keyed by (oj_name, problem_id).
type ProblemRepo struct{ Pool PgxPool }

// NewProblemRepo constructs a ProblemRepo with the given pool.
func NewProblemRepo(p PgxPool) *ProblemRepo { return &ProblemRepo{Pool: p} }

// Get loads one problem row.
func (r *ProblemRepo) Get(ctx context.Context, ojName, problemID string) (domain.Problem, error) {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Get")
	defer span.End()
	q := `SELECT oj_name, problem_id, last_update, COALESCE(title,''), COALESCE(description,''),
	             COALESCE(input,''), COALESCE(output,''), COALESCE(sample_input,''), COALESCE(sample_output,''),
	             COALESCE(time_limit,0), COALESCE(mem_limit,0)
	      FROM problems WHERE oj_name=$1 AND problem_id=$2`
	row := r.Pool.QueryRow(ctx, q, ojName, problemID)
	var p domain.Problem
	if err := row.Scan(&p.OJName, &p.ProblemID, &p.LastUpdate, &p.Title, &p.Description,
		&p.Input, &p.Output, &p.SampleInput, &p.SampleOutput, &p.TimeLimitMS, &p.MemLimitKB); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Problem{}, fmt.Errorf("op=problem.get: %w", domain.ErrNotFound)
		}
		return domain.Problem{}, fmt.Errorf("op=problem.get: %w", err)
	}
	return p, nil
}

// Upsert writes the problem row, preserving stored non-empty fields when the
// freshly scraped record leaves them empty. Enforced read-modify-write; the
// race between two crawlers resolves as last writer wins.
func (r *ProblemRepo) Upsert(ctx context.Context, ojName, problemID string, rec domain.ProblemRecord) error {
	tracer := otel.Tracer("repo.problems")
	ctx, span := tracer.Start(ctx, "problems.Upsert")
	defer span.End()

	old, err := r.Get(ctx, ojName, problemID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("op=problem.upsert: %w", err)
	}
	merged := mergeProblem(old.ProblemRecord, rec)

	q := `INSERT INTO problems (oj_name, problem_id, last_update, title, description, input, output,
	                            sample_input, sample_output, time_limit, mem_limit)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	      ON CONFLICT (oj_name, problem_id) DO UPDATE SET
	        last_update=EXCLUDED.last_update, title=EXCLUDED.title, description=EXCLUDED.description,
	        input=EXCLUDED.input, output=EXCLUDED.output, sample_input=EXCLUDED.sample_input,
	        sample_output=EXCLUDED.sample_output, time_limit=EXCLUDED.time_limit, mem_limit=EXCLUDED.mem_limit`
	_, err = r.Pool.Exec(ctx, q, ojName, problemID, time.Now().UTC(),
		merged.Title, merged.Description, merged.Input, merged.Output,
		merged.SampleInput, merged.SampleOutput, merged.TimeLimitMS, merged.MemLimitKB)
	if err != nil {
		return fmt.Errorf("op=problem.upsert: %w", err)
	}
	return nil
}

// mergeProblem keeps the old value for every field the new record left empty.
func mergeProblem(old, rec domain.ProblemRecord) domain.ProblemRecord {
	out := rec
	if out.Title == "" {
		out.Title = old.Title
	}
	if out.Description == "" {
		out.Description = old.Description
	}
	if out.Input == "" {
		out.Input = old.Input
	}
	if out.Output == "" {
		out.Output = old.Output
	}
	if out.SampleInput == "" {
		out.SampleInput = old.SampleInput
	}
	if out.SampleOutput == "" {
		out.SampleOutput = old.SampleOutput
	}
	if out.TimeLimitMS == 0 {
		out.TimeLimitMS = old.TimeLimitMS
	}
	if out.MemLimitKB == 0 {
		out.MemLimitKB = old.MemLimitKB
	}
	return out
}
