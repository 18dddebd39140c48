package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// defaultPushTimeout bounds the LPUSH done on the request path.
const defaultPushTimeout = 2 * time.Second

// RedisQueue is a Dispatcher that persists intents on a Redis list.
// Dispatch is a single LPUSH. Run moves each intent onto a processing list
// with BLMOVE and removes it only after delivery ends, so an intent being
// sent when the process dies stays in Redis until Requeue puts it back.
// Delivery is at least once.
type RedisQueue struct {
	client       *redis.Client
	key          string
	processing   string
	sender       Sender
	maxRetries   int
	retryBackoff time.Duration
	pushTimeout  time.Duration
	log          *zap.Logger
}

// NewRedisQueue constructs a RedisQueue on the given list key. In-flight
// intents live on key+":processing".
func NewRedisQueue(client *redis.Client, key string, sender Sender, maxRetries int, retryBackoff time.Duration, log *zap.Logger) *RedisQueue {
	if retryBackoff <= 0 {
		retryBackoff = time.Second
	}
	return &RedisQueue{
		client:       client,
		key:          key,
		processing:   key + ":processing",
		sender:       sender,
		maxRetries:   maxRetries,
		retryBackoff: retryBackoff,
		pushTimeout:  defaultPushTimeout,
		log:          log,
	}
}

// Dispatch pushes the intent onto the list. It gives up after a short
// timeout so a stalled Redis cannot hold the caller.
func (q *RedisQueue) Dispatch(ctx context.Context, in Intent) error {
	data, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode intent: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, q.pushTimeout)
	defer cancel()
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("enqueue intent: %w", err)
	}
	return nil
}

// Requeue moves intents left on the processing list by an earlier run back
// onto the queue, oldest first. Call it once at startup before any Run.
// With several processes sharing a key, an intent another process is still
// sending may be delivered twice.
func (q *RedisQueue) Requeue(ctx context.Context) (int, error) {
	n := 0
	for {
		err := q.client.LMove(ctx, q.processing, q.key, "LEFT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return n, fmt.Errorf("requeue intents: %w", err)
		}
		n++
	}
	if n > 0 {
		q.log.Warn("requeued undelivered notifications", zap.Int("count", n))
	}
	return n, nil
}

// Run delivers intents until ctx is cancelled.
func (q *RedisQueue) Run(ctx context.Context) error {
	for {
		raw, err := q.client.BLMove(ctx, q.key, q.processing, "RIGHT", "LEFT", 5*time.Second).Result()
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			q.log.Error("notification queue read failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(q.retryBackoff):
			}
			continue
		}

		var in Intent
		if err := json.Unmarshal([]byte(raw), &in); err != nil {
			q.log.Error("dropping malformed intent", zap.Error(err))
			q.ack(ctx, raw)
			continue
		}
		deliver(ctx, q.sender, in, q.maxRetries, q.retryBackoff, q.log)
		if ctx.Err() != nil {
			// Interrupted mid-delivery; Requeue picks it up next start.
			return nil
		}
		q.ack(ctx, raw)
	}
}

func (q *RedisQueue) ack(ctx context.Context, raw string) {
	if err := q.client.LRem(ctx, q.processing, 1, raw).Err(); err != nil {
		q.log.Error("notification ack failed", zap.Error(err))
	}
}

// Len reports how many intents are waiting.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// InFlight reports how many intents are moved off the queue but not yet
// acknowledged.
func (q *RedisQueue) InFlight(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.processing).Result()
}
