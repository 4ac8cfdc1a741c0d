package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss - ключа нет в удалённом хранилище.
var ErrMiss = errors.New("cache miss")

// RemoteStore - второй уровень кэша, общий для нескольких рендереров.
type RemoteStore interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Set(ctx context.Context, key string, blob []byte, contentType string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

const (
	fieldBlob        = "blob"
	fieldContentType = "ct"

	scanCount = 200
)

// RedisStore хранит записи как hash {blob, ct} с EXPIRE.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore подключается по URL вида redis://host:6379/0 и проверяет соединение.
func NewRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, prefix), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	vals, err := r.client.HMGet(ctx, r.key(key), fieldBlob, fieldContentType).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, "", ErrMiss
		}
		return nil, "", fmt.Errorf("failed to get cache entry: %w", err)
	}

	blob, ok := vals[0].(string)
	if !ok {
		return nil, "", ErrMiss
	}
	ct, _ := vals[1].(string)
	return []byte(blob), ct, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, blob []byte, contentType string, ttl time.Duration) error {
	k := r.key(key)

	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, fieldBlob, blob, fieldContentType, contentType)
		p.Expire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set cache entry: %w", err)
	}
	return nil
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("failed to delete cache entries: %w", err)
	}
	return nil
}

// DeletePrefix удаляет все ключи с префиксом через SCAN, не блокируя redis как KEYS.
func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	iter := r.client.Scan(ctx, 0, matchPrefix(r.key(prefix)), scanCount).Iterator()

	var (
		batch   []string
		removed int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete cache entries: %w", err)
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= scanCount {
			if err := flush(); err != nil {
				return removed, err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, fmt.Errorf("failed to scan cache keys: %w", err)
	}
	if err := flush(); err != nil {
		return removed, err
	}
	return removed, nil
}

// matchPrefix экранирует glob-символы MATCH и добавляет *.
func matchPrefix(prefix string) string {
	var b strings.Builder
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}
