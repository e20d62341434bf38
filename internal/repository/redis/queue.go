package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/insider-one/mailcourier/internal/domain"
)

const queueKey = "dispatch:queue"

// Queue implements domain.Queue using a Redis sorted set scored by due time
// in unix milliseconds. Jobs scheduled for the future stay invisible to
// Dequeue until their score passes.
type Queue struct {
	client *Client
}

// NewQueue creates a new Queue
func NewQueue(client *Client) *Queue {
	return &Queue{client: client}
}

// Enqueue adds a job due immediately
func (q *Queue) Enqueue(ctx context.Context, job *domain.DispatchJob) error {
	return q.add(ctx, job, time.Now())
}

// EnqueueAfter adds a job that becomes due after the given delay
func (q *Queue) EnqueueAfter(ctx context.Context, job *domain.DispatchJob, delay time.Duration) error {
	return q.add(ctx, job, time.Now().Add(delay))
}

func (q *Queue) add(ctx context.Context, job *domain.DispatchJob, dueAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch job: %w", err)
	}

	if err := q.client.client.ZAdd(ctx, queueKey, redis.Z{
		Score:  float64(dueAt.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	return nil
}

// EnqueueBatch adds multiple jobs due immediately
func (q *Queue) EnqueueBatch(ctx context.Context, jobs []*domain.DispatchJob) error {
	if len(jobs) == 0 {
		return nil
	}

	score := float64(time.Now().UnixMilli())
	members := make([]redis.Z, 0, len(jobs))
	for _, job := range jobs {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal dispatch job: %w", err)
		}
		members = append(members, redis.Z{Score: score, Member: string(data)})
	}

	if err := q.client.client.ZAdd(ctx, queueKey, members...).Err(); err != nil {
		return fmt.Errorf("failed to enqueue batch: %w", err)
	}

	return nil
}

// Dequeue removes and returns the next due job, or nil when none is due
func (q *Queue) Dequeue(ctx context.Context) (*domain.DispatchJob, error) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	results, err := q.client.client.ZRangeByScore(ctx, queueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: 1,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	if len(results) == 0 {
		return nil, nil // Nothing due yet
	}

	member := results[0]

	// Concurrent workers may read the same member; ZRem decides the winner.
	removed, err := q.client.client.ZRem(ctx, queueKey, member).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}
	if removed == 0 {
		return nil, nil // Lost the claim to another worker
	}

	var job domain.DispatchJob
	if err := json.Unmarshal([]byte(member), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dispatch job: %w", err)
	}

	return &job, nil
}

// Depth returns the number of jobs in the queue, due or not
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	count, err := q.client.client.ZCard(ctx, queueKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return count, nil
}
