package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/quizrunner/internal/model"
)

// AttemptOutcomeRepository handles the attempt outcome log.
type AttemptOutcomeRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptOutcomeRepository creates a new AttemptOutcomeRepository.
func NewAttemptOutcomeRepository(pool *pgxpool.Pool) *AttemptOutcomeRepository {
	return &AttemptOutcomeRepository{pool: pool}
}

// Insert writes a single outcome. Re-recording the same session is ignored.
func (r *AttemptOutcomeRepository) Insert(ctx context.Context, o *model.AttemptOutcome) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_attempt_outcomes
		   (id, session_id, quiz_id, candidate_id, outcome, answered_count, elapsed_seconds,
		    score, percentage, correct_answers, total_questions, submissions, finished_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (session_id) DO NOTHING`,
		o.ID, o.SessionID, o.QuizID, o.CandidateID, o.Outcome, o.AnsweredCount, o.ElapsedSeconds,
		o.Score, o.Percentage, o.CorrectAnswers, o.TotalQuestions, o.Submissions, o.FinishedAt,
	)
	return err
}

// InsertBatch writes many outcomes in one statement using UNNEST.
func (r *AttemptOutcomeRepository) InsertBatch(ctx context.Context, batch []*model.AttemptOutcome) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	ids := make([]uuid.UUID, n)
	sessionIDs := make([]uuid.UUID, n)
	quizIDs := make([]string, n)
	candidateIDs := make([]string, n)
	outcomes := make([]string, n)
	answered := make([]int, n)
	elapsed := make([]int, n)
	scores := make([]*float64, n)
	percentages := make([]*float64, n)
	corrects := make([]*int, n)
	totals := make([]*int, n)
	submissions := make([]int, n)
	finishedAts := make([]time.Time, n)

	for i, o := range batch {
		ids[i] = o.ID
		sessionIDs[i] = o.SessionID
		quizIDs[i] = o.QuizID
		candidateIDs[i] = o.CandidateID
		outcomes[i] = string(o.Outcome)
		answered[i] = o.AnsweredCount
		elapsed[i] = o.ElapsedSeconds
		scores[i] = o.Score
		percentages[i] = o.Percentage
		corrects[i] = o.CorrectAnswers
		totals[i] = o.TotalQuestions
		submissions[i] = o.Submissions
		finishedAts[i] = o.FinishedAt
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO quiz_attempt_outcomes
		   (id, session_id, quiz_id, candidate_id, outcome, answered_count, elapsed_seconds,
		    score, percentage, correct_answers, total_questions, submissions, finished_at)
		 SELECT * FROM UNNEST(
		   $1::uuid[], $2::uuid[], $3::varchar[], $4::varchar[], $5::varchar[],
		   $6::int[], $7::int[], $8::float8[], $9::float8[], $10::int[], $11::int[],
		   $12::int[], $13::timestamptz[]
		 )
		 ON CONFLICT (session_id) DO NOTHING`,
		ids, sessionIDs, quizIDs, candidateIDs, outcomes, answered, elapsed,
		scores, percentages, corrects, totals, submissions, finishedAts,
	)
	if err != nil {
		return fmt.Errorf("bulk insert outcomes: %w", err)
	}
	return nil
}

// ListByCandidate returns a page of a candidate's outcomes, newest first, and the total count.
func (r *AttemptOutcomeRepository) ListByCandidate(ctx context.Context, candidateID string, limit, offset int) ([]model.AttemptOutcome, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_attempt_outcomes WHERE candidate_id = $1`, candidateID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count outcomes: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, quiz_id, candidate_id, outcome, answered_count, elapsed_seconds,
		        score, percentage, correct_answers, total_questions, submissions, finished_at
		 FROM quiz_attempt_outcomes
		 WHERE candidate_id = $1
		 ORDER BY finished_at DESC
		 LIMIT $2 OFFSET $3`, candidateID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []model.AttemptOutcome
	for rows.Next() {
		var o model.AttemptOutcome
		if err := rows.Scan(
			&o.ID, &o.SessionID, &o.QuizID, &o.CandidateID, &o.Outcome, &o.AnsweredCount, &o.ElapsedSeconds,
			&o.Score, &o.Percentage, &o.CorrectAnswers, &o.TotalQuestions, &o.Submissions, &o.FinishedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan outcome: %w", err)
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, total, rows.Err()
}
