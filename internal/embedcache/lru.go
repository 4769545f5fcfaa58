package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/rhysr01/jobping/internal/ai"
)

// WrapLRU caches embeddings in process. Non-positive size or ttl disables the cache.
func WrapLRU(e ai.Embedder, size int, ttl time.Duration, logger *zap.Logger) ai.Embedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &lruEmbedder{
		next:   e,
		cache:  expirable.NewLRU[string, []float32](size, nil, ttl),
		logger: logger,
	}
}

type lruEmbedder struct {
	next   ai.Embedder
	cache  *expirable.LRU[string, []float32]
	logger *zap.Logger
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType ai.TaskType) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(key); ok {
		l.logger.Debug("embedding cache hit (lru)", zap.String("task_type", string(taskType)))
		return cloneEmbedding(cached), nil
	}
	res, err := l.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	l.cache.Add(key, cloneEmbedding(res))
	return res, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}
