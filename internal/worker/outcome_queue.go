package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
)

// OutcomeQueue records attempt outcomes by pushing them onto a Redis list that
// OutcomeWorker drains into PostgreSQL.
type OutcomeQueue struct {
	rdb *redis.Client
}

// NewOutcomeQueue creates a new OutcomeQueue.
func NewOutcomeQueue(rdb *redis.Client) *OutcomeQueue {
	return &OutcomeQueue{rdb: rdb}
}

// Record enqueues one outcome.
func (q *OutcomeQueue) Record(ctx context.Context, outcome model.AttemptOutcome) error {
	raw, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := q.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue outcome: %w", err)
	}
	return nil
}
