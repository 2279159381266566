package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"carbonledger/models"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "identity:"

// Redis is an IdentityCache backed by Redis string keys holding JSON.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedis wraps client. Entries expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	return &Redis{client: client, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, userID string) (*models.User, error) {
	raw, err := r.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read identity %s: %w", userID, err)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode identity %s: %w", userID, err)
	}
	return &user, nil
}

func (r *Redis) Set(ctx context.Context, user *models.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("failed to encode identity %s: %w", user.UserID, err)
	}
	if err := r.client.Set(ctx, keyPrefix+user.UserID, raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store identity %s: %w", user.UserID, err)
	}
	return nil
}

func (r *Redis) Invalidate(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, keyPrefix+userID).Err(); err != nil {
		return fmt.Errorf("failed to invalidate identity %s: %w", userID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
