package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("filevault-queue")

const dequeueBlock = 5 * time.Second

// RedisQueue is a durable queue on a Redis list pair: jobs wait on the
// pending list and sit on the processing list while a worker holds them.
// The BRPOPLPUSH hand-off keeps a crashed worker's job recoverable, which
// is where the at-least-once guarantee comes from.
type RedisQueue struct {
	client        *redis.Client
	pendingKey    string
	processingKey string
}

// NewRedisQueue returns a queue named name on the given client.
func NewRedisQueue(client *redis.Client, name string) *RedisQueue {
	key := "queue:" + name
	return &RedisQueue{
		client:        client,
		pendingKey:    key,
		processingKey: key + ":processing",
	}
}

// Enqueue appends a job to the pending list.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	ctx, span := tracer.Start(ctx, "queue.enqueue",
		trace.WithAttributes(
			attribute.String("job_id", job.ID),
			attribute.String("job_kind", string(job.Kind)),
		),
	)
	defer span.End()

	payload, err := json.Marshal(job)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.pendingKey, payload).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue moves one job from pending to processing and returns it.
// An empty queue returns (nil, nil) after the blocking window elapses.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	payload, err := q.client.BRPopLPush(ctx, q.pendingKey, q.processingKey, dequeueBlock).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		// Drop the entry so a corrupt payload cannot wedge the queue.
		q.client.LRem(ctx, q.processingKey, 1, payload)
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}
	job.raw = payload
	return &job, nil
}

// Ack removes a finished job from the processing list.
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	payload := job.raw
	if payload == "" {
		data, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}
		payload = string(data)
	}

	if err := q.client.LRem(ctx, q.processingKey, 1, payload).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Requeue puts a job back on the pending list with its attempt count
// bumped, and drops the in-flight entry.
func (q *RedisQueue) Requeue(ctx context.Context, job Job) error {
	if err := q.Ack(ctx, job); err != nil {
		return err
	}

	job.Attempts++
	job.raw = ""
	return q.Enqueue(ctx, job)
}

// Recover moves any leftover in-flight jobs back to pending. Run it at
// worker startup so jobs orphaned by a crash get redelivered.
func (q *RedisQueue) Recover(ctx context.Context) error {
	moved := 0
	for {
		_, err := q.client.RPopLPush(ctx, q.processingKey, q.pendingKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to recover in-flight jobs: %w", err)
		}
		moved++
	}
	if moved > 0 {
		log.Printf("Recovered %d in-flight jobs", moved)
	}
	return nil
}
