package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/constants"
	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisConfig holds configuration for RedisCache
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	MaxRecent int64
	Logger    *logrus.Logger
}

// RedisCache keeps the recent session events list and the pub/sub feed.
type RedisCache struct {
	client    *redis.Client
	maxRecent int64
	logger    *logrus.Logger
}

// NewRedisCache connects and pings Redis.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisCacheFromClient(client, cfg), nil
}

// NewRedisCacheFromClient wraps an existing client, sharing it with the
// flag store.
func NewRedisCacheFromClient(client *redis.Client, cfg RedisConfig) *RedisCache {
	if cfg.MaxRecent <= 0 {
		cfg.MaxRecent = constants.MaxRecentSessionEvents
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &RedisCache{client: client, maxRecent: cfg.MaxRecent, logger: cfg.Logger}
}

func (r *RedisCache) Client() *redis.Client { return r.client }

func (r *RedisCache) AddRecentEvent(ctx context.Context, ev *models.SessionEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentSessions, data)
	pipe.LTrim(ctx, constants.RedisKeyRecentSessions, 0, r.maxRecent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add recent event: %w", err)
	}
	return nil
}

func (r *RedisCache) GetRecentEvents(ctx context.Context, limit int64) ([]*models.SessionEvent, error) {
	if limit <= 0 || limit > r.maxRecent {
		limit = r.maxRecent
	}
	vals, err := r.client.LRange(ctx, constants.RedisKeyRecentSessions, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get recent events: %w", err)
	}

	out := make([]*models.SessionEvent, 0, len(vals))
	for _, v := range vals {
		var ev models.SessionEvent
		if err := json.Unmarshal([]byte(v), &ev); err != nil {
			r.logger.WithError(err).Warn("skipping malformed session event")
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
