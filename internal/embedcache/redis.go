package embedcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/ai"
)

// NewRedisClient parses redisURL and verifies connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

// WrapRedis shares embeddings between processes. Cache failures are logged and never fail the call.
func WrapRedis(e ai.Embedder, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) ai.Embedder {
	if e == nil || client == nil {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisEmbedder{next: e, client: client, ttl: ttl, logger: logger}
}

type redisEmbedder struct {
	next   ai.Embedder
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func (r *redisEmbedder) Embed(ctx context.Context, text string, taskType ai.TaskType) ([]float32, error) {
	key := buildCacheKey(r.next.ModelName(), taskType, text)

	data, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if values, ok := decodeVector(data); ok {
			r.logger.Debug("embedding cache hit (redis)", zap.String("task_type", string(taskType)))
			return values, nil
		}
		r.logger.Warn("discarding malformed cached embedding", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("embedding cache read failed", zap.Error(err))
	}

	res, err := r.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}

	if err := r.client.Set(ctx, key, encodeVector(res), r.ttl).Err(); err != nil {
		r.logger.Warn("failed to cache embedding", zap.Error(err))
	}
	return res, nil
}

func (r *redisEmbedder) ModelName() string {
	return r.next.ModelName()
}

func encodeVector(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, bool) {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil, false
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return values, true
}
