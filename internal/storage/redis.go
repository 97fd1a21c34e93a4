package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hyperjump/pdfinsight/internal/memory"
	"github.com/hyperjump/pdfinsight/internal/models"
)

// DefaultRedisKeyPrefix namespaces history lists in a shared Redis.
const DefaultRedisKeyPrefix = "pdfinsight:history:"

var _ memory.Store = (*RedisHistory)(nil)

// RedisHistory implements memory.Store with one Redis list of JSON turns per
// session key, so several server processes can share conversations.
type RedisHistory struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisHistory wraps client. ttl, when positive, expires a history that
// has not been appended to for that long.
func NewRedisHistory(client *redis.Client, prefix string, ttl time.Duration) *RedisHistory {
	if prefix == "" {
		prefix = DefaultRedisKeyPrefix
	}
	return &RedisHistory{client: client, prefix: prefix, ttl: ttl}
}

// DialRedisHistory connects to addr and verifies the connection with PING.
func DialRedisHistory(ctx context.Context, addr, password string, db int, prefix string, ttl time.Duration) (*RedisHistory, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return NewRedisHistory(client, prefix, ttl), nil
}

// redisKey escapes both parts so a ':' inside an id cannot collide with the separator.
func (r *RedisHistory) redisKey(key models.SessionKey) string {
	return r.prefix + url.QueryEscape(key.DocID) + ":" + url.QueryEscape(key.SessionID)
}

func (r *RedisHistory) parseKey(k string) (models.SessionKey, bool) {
	rest := strings.TrimPrefix(k, r.prefix)
	docPart, sessionPart, ok := strings.Cut(rest, ":")
	if !ok {
		return models.SessionKey{}, false
	}
	docID, err := url.QueryUnescape(docPart)
	if err != nil {
		return models.SessionKey{}, false
	}
	sessionID, err := url.QueryUnescape(sessionPart)
	if err != nil {
		return models.SessionKey{}, false
	}
	return models.SessionKey{DocID: docID, SessionID: sessionID}, true
}

// Load returns the turns for key in insertion order.
func (r *RedisHistory) Load(ctx context.Context, key models.SessionKey) ([]models.Turn, error) {
	raw, err := r.client.LRange(ctx, r.redisKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	turns := make([]models.Turn, 0, len(raw))
	for _, item := range raw {
		var t models.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append pushes turns in a single MULTI/EXEC transaction.
func (r *RedisHistory) Append(ctx context.Context, key models.SessionKey, turns ...models.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	values := make([]interface{}, len(turns))
	for i, t := range turns {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("encode turn: %w", err)
		}
		values[i] = data
	}
	k := r.redisKey(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, k, values...)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// Delete removes key's history.
func (r *RedisHistory) Delete(ctx context.Context, key models.SessionKey) error {
	if err := r.client.Del(ctx, r.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// Keys scans for every history under the prefix, ordered by doc id then session id.
func (r *RedisHistory) Keys(ctx context.Context) ([]models.SessionKey, error) {
	keys := make([]models.SessionKey, 0)
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if k, ok := r.parseKey(iter.Val()); ok {
			keys = append(keys, k)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan histories: %w", err)
	}
	memory.SortKeys(keys)
	return keys, nil
}

// Close closes the Redis client.
func (r *RedisHistory) Close() error {
	return r.client.Close()
}
