package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizrunner/internal/config"
	"github.com/stemsi/quizrunner/internal/model"
)

const (
	OutcomeBatchSize    = 50
	OutcomeBatchTimeout = 2 * time.Second
	OutcomePollTimeout  = 1 * time.Second
)

// OutcomeStore persists attempt outcomes.
type OutcomeStore interface {
	InsertBatch(ctx context.Context, batch []*model.AttemptOutcome) error
	Insert(ctx context.Context, o *model.AttemptOutcome) error
}

// OutcomeWorker consumes the outcome queue and writes batches to PostgreSQL.
type OutcomeWorker struct {
	store OutcomeStore
	rdb   *redis.Client
	log   zerolog.Logger
	done  chan struct{}
}

// NewOutcomeWorker creates a new OutcomeWorker.
func NewOutcomeWorker(store OutcomeStore, rdb *redis.Client, log zerolog.Logger) *OutcomeWorker {
	return &OutcomeWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "outcome_worker").Logger(),
		done:  make(chan struct{}),
	}
}

// Done is closed once Start has flushed and returned.
func (w *OutcomeWorker) Done() <-chan struct{} {
	return w.done
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

// Start runs the worker loop until ctx is cancelled. Call in a goroutine.
func (w *OutcomeWorker) Start(ctx context.Context) {
	defer close(w.done)
	w.log.Info().Msg("OutcomeWorker started")

	batch := make([]*model.AttemptOutcome, 0, OutcomeBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= OutcomeBatchSize || time.Since(lastFlush) >= OutcomeBatchTimeout) {
			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Int("pending", len(batch)).Msg("Shutdown requested, flushing and draining")
			w.flushSafe(context.Background(), batch)
			w.drain(context.Background())
			return
		default:
		}

		item, err := w.rdb.BLPop(ctx, OutcomePollTimeout, config.WorkerKey.PersistOutcomesQueue).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				w.log.Error().Err(err).Msg("BLPop error")
				time.Sleep(time.Second)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		o, err := decodeOutcome(item[1])
		if err != nil {
			w.log.Error().Err(err).Msg("Invalid outcome payload, dropped")
			continue
		}
		batch = append(batch, o)
	}
}

// ----------------------------------------------------------------
// Flush with one-by-one fallback
// ----------------------------------------------------------------

func (w *OutcomeWorker) flushSafe(ctx context.Context, batch []*model.AttemptOutcome) {
	if len(batch) == 0 {
		return
	}

	err := w.store.InsertBatch(ctx, batch)
	if err == nil {
		w.log.Debug().Int("count", len(batch)).Msg("Outcomes persisted")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk outcome insert failed, using fallback")

	for _, o := range batch {
		if err := w.store.Insert(ctx, o); err != nil {
			w.log.Error().Err(err).Str("session_id", o.SessionID.String()).Msg("Insert failed, requeueing")
			raw, _ := json.Marshal(o)
			w.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, raw)
		}
	}
}

// drain persists whatever is still queued before shutdown.
func (w *OutcomeWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistOutcomesQueue).Result()
		if err != nil {
			break
		}
		o, err := decodeOutcome(raw)
		if err != nil {
			w.log.Error().Err(err).Msg("Drain decode error")
			continue
		}
		if err := w.store.Insert(ctx, o); err != nil {
			w.log.Error().Err(err).Msg("Drain insert error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistOutcomesQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining outcomes")
	}
}

func decodeOutcome(raw string) (*model.AttemptOutcome, error) {
	var o model.AttemptOutcome
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, err
	}
	if o.SessionID == uuid.Nil || o.CandidateID == "" {
		return nil, errors.New("outcome missing session or candidate")
	}
	return &o, nil
}
