package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/asknotes/internal/ai"
)

// WrapLruCacheToEmbedder keeps recent vectors in memory. Concurrent requests
// for the same text and task type share one upstream call.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next     ai.IEmbedder
	cache    *expirable.LRU[string, []float32]
	inflight singleflight.Group
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key, _, _ := buildCacheKey(l.next.ModelName(), taskType, text)
	if vec, ok := l.cache.Get(key); ok {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType))
		return cloneVector(vec), nil
	}
	v, err, shared := l.inflight.Do(key, func() (interface{}, error) {
		vec, err := l.next.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		l.cache.Add(key, cloneVector(vec))
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logutil.GetLogger(ctx).Debug("embedding shared with inflight call", zap.String("task_type", taskType))
	}
	return cloneVector(v.([]float32)), nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}

func cloneVector(vec []float32) []float32 {
	if len(vec) == 0 {
		return nil
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out
}
