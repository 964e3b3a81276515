package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "pawbox:storage:"

// RedisKV はRedisを使用したKV。
// 値はretention経過で自動失効するため、クリーンアップジョブは不要。
type RedisKV struct {
	client    redis.UniversalClient
	prefix    string
	retention time.Duration
}

// NewRedisKV はRedisKVを生成する。retentionが0以下の場合は失効させない。
func NewRedisKV(client redis.UniversalClient, retention time.Duration) *RedisKV {
	return &RedisKV{
		client:    client,
		prefix:    defaultRedisPrefix,
		retention: retention,
	}
}

// NewRedisClient はREDIS_URLからクライアントを生成する。
func NewRedisClient(redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func (r *RedisKV) redisKey(clientID, key string) string {
	return r.prefix + clientID + ":" + key
}

// Get は値を取得する。
func (r *RedisKV) Get(ctx context.Context, clientID, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.redisKey(clientID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return value, true, nil
}

// Set は値を上書き保存する。
func (r *RedisKV) Set(ctx context.Context, clientID, key, value string) error {
	ttl := r.retention
	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, r.redisKey(clientID, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete はキーを削除する。
func (r *RedisKV) Delete(ctx context.Context, clientID, key string) error {
	if err := r.client.Del(ctx, r.redisKey(clientID, key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Touch はTTLをretentionに張り直す。retentionが0以下の場合は何もしない。
func (r *RedisKV) Touch(ctx context.Context, clientID, key string) error {
	if r.retention <= 0 {
		return nil
	}
	if err := r.client.Expire(ctx, r.redisKey(clientID, key), r.retention).Err(); err != nil {
		return fmt.Errorf("redis expire: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KV = (*RedisKV)(nil)
