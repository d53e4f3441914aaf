package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/vjudge-dispatcher/internal/domain"
)

// SubmissionRepo persists and loads submissions using a minimal pgx pool.
type SubmissionRepo struct{ Pool PgxPool }

// NewSubmissionRepo constructs a SubmissionRepo with the given pool.
func NewSubmissionRepo(p PgxPool) *SubmissionRepo { return &SubmissionRepo{Pool: p} }

// Get loads a submission by id.
func (r *SubmissionRepo) Get(ctx context.Context, id int64) (domain.Submission, error) {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.Get")
	defer span.End()
	q := `SELECT id, COALESCE(user_id,''), oj_name, problem_id, language, source_code,
	             run_id, COALESCE(verdict,''), COALESCE(exe_time,0), COALESCE(exe_mem,0), shared, created_at
	      FROM submissions WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var s domain.Submission
	if err := row.Scan(&s.ID, &s.UserID, &s.OJName, &s.ProblemID, &s.Language, &s.SourceCode,
		&s.RunID, &s.Verdict, &s.ExeTime, &s.ExeMem, &s.Shared, &s.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Submission{}, fmt.Errorf("op=submission.get: %w", domain.ErrNotFound)
		}
		return domain.Submission{}, fmt.Errorf("op=submission.get: %w", err)
	}
	return s, nil
}

// UpdateVerdict writes a verdict transition together with the measured
// execution time and memory.
func (r *SubmissionRepo) UpdateVerdict(ctx context.Context, id int64, verdict string, exeTime, exeMem int) error {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.UpdateVerdict")
	defer span.End()
	q := `UPDATE submissions SET verdict=$2, exe_time=$3, exe_mem=$4 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, verdict, exeTime, exeMem); err != nil {
		return fmt.Errorf("op=submission.update_verdict: %w", err)
	}
	return nil
}

// MarkSubmitted records the upstream run id, the owning bot account and the
// Being Judged verdict in one write (phase 0 -> 1).
func (r *SubmissionRepo) MarkSubmitted(ctx context.Context, id int64, runID, botUserID string) error {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.MarkSubmitted")
	defer span.End()
	q := `UPDATE submissions SET run_id=$2, user_id=$3, verdict=$4 WHERE id=$1`
	if _, err := r.Pool.Exec(ctx, q, id, runID, botUserID, domain.VerdictBeingJudged); err != nil {
		return fmt.Errorf("op=submission.mark_submitted: %w", err)
	}
	return nil
}

// ListUnfinished returns ids of submissions still in a non-terminal dispatcher
// phase, oldest first. Used by the supervisor bootstrap after restart.
func (r *SubmissionRepo) ListUnfinished(ctx context.Context) ([]int64, error) {
	tracer := otel.Tracer("repo.submissions")
	ctx, span := tracer.Start(ctx, "submissions.ListUnfinished")
	defer span.End()
	q := `SELECT id FROM submissions WHERE verdict=$1 OR verdict=$2 ORDER BY id`
	rows, err := r.Pool.Query(ctx, q, domain.VerdictQueuing, domain.VerdictBeingJudged)
	if err != nil {
		return nil, fmt.Errorf("op=submission.list_unfinished: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("op=submission.list_unfinished: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=submission.list_unfinished: %w", err)
	}
	return ids, nil
}
