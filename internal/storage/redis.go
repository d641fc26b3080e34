package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const sessionKeyPrefix = "auth_"

// RedisClient wraps Redis operations with tracing. It backs the session
// store and hands out its raw client for the job queue.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(addr, password string, db int) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test the connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// Ping verifies Redis is reachable.
func (rc *RedisClient) Ping(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

// Client exposes the raw client for collaborators built on the same
// connection, such as the job queue.
func (rc *RedisClient) Client() *redis.Client {
	return rc.client
}

// Session resolves a token to a user id. A missing or expired session
// returns an empty id, not an error.
func (rc *RedisClient) Session(ctx context.Context, token string) (string, error) {
	ctx, span := tracer.Start(ctx, "redis.get_session")
	defer span.End()

	userID, err := rc.client.Get(ctx, sessionKeyPrefix+token).Result()
	if err == redis.Nil {
		span.SetAttributes(attribute.Bool("session_found", false))
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to get session: %w", err)
	}

	span.SetAttributes(attribute.Bool("session_found", true))
	return userID, nil
}

// SaveSession stores a token to user id mapping with the given TTL.
func (rc *RedisClient) SaveSession(ctx context.Context, token, userID string, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "redis.save_session",
		trace.WithAttributes(attribute.Int64("ttl_seconds", int64(ttl.Seconds()))),
	)
	defer span.End()

	if err := rc.client.Set(ctx, sessionKeyPrefix+token, userID, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession destroys a session token.
func (rc *RedisClient) DeleteSession(ctx context.Context, token string) error {
	ctx, span := tracer.Start(ctx, "redis.delete_session")
	defer span.End()

	if err := rc.client.Del(ctx, sessionKeyPrefix+token).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}
