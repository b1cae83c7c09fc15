// internal/cache/redis.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jason-s-yu/rps/internal/game"
	"github.com/jason-s-yu/rps/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultQueueName is the Redis list round records are pushed to.
const DefaultQueueName = "rps_rounds"

// Connect returns a client for addr/db after a successful ping.
func Connect(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return rdb, nil
}

// RoundQueue publishes round records to a Redis list for the historian to
// persist. It satisfies the gateway's StatsRecorder.
type RoundQueue struct {
	rdb   *redis.Client
	queue string
	now   func() time.Time
}

// NewRoundQueue publishes to queue, or DefaultQueueName when queue is empty.
func NewRoundQueue(rdb *redis.Client, queue string) *RoundQueue {
	if queue == "" {
		queue = DefaultQueueName
	}
	return &RoundQueue{rdb: rdb, queue: queue, now: time.Now}
}

// Name is the Redis list the queue pushes to.
func (q *RoundQueue) Name() string { return q.queue }

// Record pushes one participant's side of a resolved round.
func (q *RoundQueue) Record(ctx context.Context, participant string, outcome game.Outcome, move game.Move) error {
	return q.Publish(ctx, models.RoundRecord{
		Participant: participant,
		Outcome:     outcome.String(),
		Move:        move.String(),
		PlayedAt:    q.now().UTC(),
	})
}

// Publish serializes rec and appends it to the queue.
func (q *RoundQueue) Publish(ctx context.Context, rec models.RoundRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal RoundRecord: %w", err)
	}
	if err := q.rdb.RPush(ctx, q.queue, data).Err(); err != nil {
		return fmt.Errorf("failed to RPush to Redis list '%s': %w", q.queue, err)
	}
	return nil
}

// Pop waits up to timeout for the next record. It returns (nil, nil) when the
// wait times out with the queue empty.
func (q *RoundQueue) Pop(ctx context.Context, timeout time.Duration) (*models.RoundRecord, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.queue).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("BLPop %s: %w", q.queue, err)
	}
	if len(res) < 2 {
		return nil, nil
	}

	var rec models.RoundRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("invalid round record: %w", err)
	}
	return &rec, nil
}
