package flash

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/bonus-manager/internal/model"
)

const keyPrefix = "bonus-manager:notice:"

// RedisStore хранит уведомления в Redis.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient создаёт клиент Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewRedisStore создаёт хранилище уведомлений поверх клиента Redis.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func noticeKey(userID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}

// Put сохраняет уведомление пользователя с ограниченным временем жизни.
func (s *RedisStore) Put(ctx context.Context, userID int64, n model.Notice) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	if err := s.client.Set(ctx, noticeKey(userID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("set notice: %w", err)
	}
	return nil
}

// Pop атомарно читает и удаляет уведомление пользователя.
func (s *RedisStore) Pop(ctx context.Context, userID int64) (*model.Notice, error) {
	data, err := s.client.GetDel(ctx, noticeKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("getdel notice: %w", err)
	}

	var n model.Notice
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("unmarshal notice: %w", err)
	}
	return &n, nil
}
