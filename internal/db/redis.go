package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/patrickwarner/moovie-ads/internal/models"
)

const (
	// FrequencyKeyPrefix prefixes the per visitor frequency map key.
	FrequencyKeyPrefix = "moovie_ad_frequency:"
	// ConfigUpdateChannel carries admin write notifications between instances.
	ConfigUpdateChannel = "ad-config-updates"

	displayKeyPrefix = "moovie_ad_display:"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

// FrequencyKey returns the Redis key holding a visitor's frequency map.
func FrequencyKey(visitorID string) string {
	return FrequencyKeyPrefix + visitorID
}

// LoadFrequencyMap reads a visitor's frequency map. A missing key yields an
// empty map.
func (r *RedisStore) LoadFrequencyMap(ctx context.Context, visitorID string) (models.FrequencyMap, error) {
	raw, err := r.Client.Get(ctx, FrequencyKey(visitorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.FrequencyMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get frequency map: %w", err)
	}
	m := models.FrequencyMap{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode frequency map: %w", err)
	}
	return m, nil
}

// SaveFrequencyMap overwrites a visitor's frequency map. ttl bounds the key
// lifetime so abandoned visitors do not accumulate.
func (r *RedisStore) SaveFrequencyMap(ctx context.Context, visitorID string, m models.FrequencyMap, ttl time.Duration) error {
	if len(m) == 0 {
		if err := r.Client.Del(ctx, FrequencyKey(visitorID)).Err(); err != nil {
			return fmt.Errorf("delete frequency map: %w", err)
		}
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode frequency map: %w", err)
	}
	if err := r.Client.Set(ctx, FrequencyKey(visitorID), raw, ttl).Err(); err != nil {
		return fmt.Errorf("set frequency map: %w", err)
	}
	return nil
}

// ErrFrequencyContention is returned when a frequency map update keeps losing
// optimistic transactions to concurrent writers.
var ErrFrequencyContention = errors.New("frequency map update contention")

const maxFrequencyTxRetries = 5

// UpdateFrequencyMap applies fn to a visitor's frequency map inside a
// WATCH/MULTI transaction, retrying when another writer races it. A corrupt
// stored value is replaced rather than blocking updates forever. When fn
// reports no change nothing is written.
func (r *RedisStore) UpdateFrequencyMap(ctx context.Context, visitorID string, ttl time.Duration, fn func(models.FrequencyMap) (models.FrequencyMap, bool)) error {
	key := FrequencyKey(visitorID)
	txf := func(tx *redis.Tx) error {
		m := models.FrequencyMap{}
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return fmt.Errorf("get frequency map: %w", err)
		default:
			if err := json.Unmarshal(raw, &m); err != nil {
				zap.L().Warn("discarding corrupt frequency map", zap.String("key", key), zap.Error(err))
				m = models.FrequencyMap{}
			}
		}

		next, changed := fn(m)
		if !changed {
			return nil
		}
		var payload []byte
		if len(next) > 0 {
			if payload, err = json.Marshal(next); err != nil {
				return fmt.Errorf("encode frequency map: %w", err)
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(next) == 0 {
				pipe.Del(ctx, key)
				return nil
			}
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxFrequencyTxRetries; i++ {
		err := r.Client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrFrequencyContention
}

// ClaimDisplay marks a display receipt nonce as used. It returns false when
// the nonce was already claimed.
func (r *RedisStore) ClaimDisplay(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	ok, err := r.Client.SetNX(ctx, displayKeyPrefix+nonce, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim display: %w", err)
	}
	return ok, nil
}

// UpdateMessage describes an admin write.
type UpdateMessage struct {
	Entity string `json:"entity"`
	Action string `json:"action"`
	ID     string `json:"id,omitempty"`
}

// PublishUpdate broadcasts an admin write on ConfigUpdateChannel.
func (r *RedisStore) PublishUpdate(ctx context.Context, msg UpdateMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal update message: %w", err)
	}
	if err := r.Client.Publish(ctx, ConfigUpdateChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish update message: %w", err)
	}
	return nil
}

// SubscribeUpdates calls fn for every message on ConfigUpdateChannel until
// ctx is cancelled. Malformed payloads are logged and skipped.
func (r *RedisStore) SubscribeUpdates(ctx context.Context, fn func(UpdateMessage)) error {
	sub := r.Client.Subscribe(ctx, ConfigUpdateChannel)
	defer func() {
		_ = sub.Close()
	}()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", ConfigUpdateChannel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var msg UpdateMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				zap.L().Warn("invalid update message", zap.String("payload", m.Payload), zap.Error(err))
				continue
			}
			fn(msg)
		}
	}
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
