package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ErrCacheMiss indicates the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// KVStore is an abstract KV store, so unit tests can swap out Redis.
type KVStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// RedisKVStore is the go-redis backed KV implementation.
type RedisKVStore struct {
	client *redis.Client
}

func NewRedisKVStore(client *redis.Client) *RedisKVStore {
	return &RedisKVStore{client: client}
}

func (r *RedisKVStore) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrCacheMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKVStore) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKVStore) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

const surveyKeySetKey = "billing-sync:survey-keys"

// SurveyKeyCache caches the reference key set between runs, so a bills
// upload does not have to page the whole survey_units table every time.
// A miss or a broken store is never fatal; callers fall back to the
// database.
type SurveyKeyCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

func NewSurveyKeyCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *SurveyKeyCache {
	return &SurveyKeyCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

// Load returns the cached key set, or ErrCacheMiss when absent.
func (c *SurveyKeyCache) Load(ctx context.Context) ([]string, error) {
	val, err := c.kv.Get(ctx, surveyKeySetKey)
	if err != nil {
		return nil, err
	}

	var ids []string
	if err := json.Unmarshal([]byte(val), &ids); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached key set: %w", err)
	}

	c.logger.Debug("Loaded survey key set from cache",
		zap.Int("keys", len(ids)),
	)
	return ids, nil
}

// Store replaces the cached key set.
func (c *SurveyKeyCache) Store(ctx context.Context, ids []string) error {
	jsonData, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("failed to marshal key set: %w", err)
	}

	if err := c.kv.Set(ctx, surveyKeySetKey, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set key set cache: %w", err)
	}

	c.logger.Debug("Stored survey key set in cache",
		zap.Int("keys", len(ids)),
		zap.Duration("ttl", c.ttl),
	)
	return nil
}

// Invalidate drops the cached key set after the reference table changes.
func (c *SurveyKeyCache) Invalidate(ctx context.Context) error {
	if err := c.kv.Del(ctx, surveyKeySetKey); err != nil {
		return fmt.Errorf("failed to invalidate key set cache: %w", err)
	}
	return nil
}
