package knowledge

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EmbeddingCache 向量缓存
type EmbeddingCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error
}

// RedisEmbeddingCache 基于Redis的向量缓存
type RedisEmbeddingCache struct {
	client *redis.Client
	prefix string
}

// NewRedisEmbeddingCache 创建Redis向量缓存
func NewRedisEmbeddingCache(client *redis.Client) *RedisEmbeddingCache {
	return &RedisEmbeddingCache{
		client: client,
		prefix: "knowledge:embedding:",
	}
}

func (c *RedisEmbeddingCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to get embedding from redis: %w", err)
	}

	var vector []float32
	if err := json.Unmarshal(raw, &vector); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached embedding: %w", err)
	}
	return vector, true, nil
}

func (c *RedisEmbeddingCache) Set(ctx context.Context, key string, vector []float32, ttl time.Duration) error {
	raw, err := json.Marshal(vector)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store embedding to redis: %w", err)
	}
	return nil
}

// CachedEmbedder 为Embedder增加缓存，缓存异常时直接回源
type CachedEmbedder struct {
	inner     Embedder
	cache     EmbeddingCache
	ttl       time.Duration
	namespace string
	logger    *zap.Logger
}

// NewCachedEmbedder 创建带缓存的Embedder，namespace用于区分模型
func NewCachedEmbedder(inner Embedder, cache EmbeddingCache, namespace string, ttl time.Duration, logger *zap.Logger) *CachedEmbedder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &CachedEmbedder{
		inner:     inner,
		cache:     cache,
		ttl:       ttl,
		namespace: namespace,
		logger:    logger,
	}
}

func (e *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)

	if vector, ok, err := e.cache.Get(ctx, key); err != nil {
		e.logger.Warn("Embedding cache lookup failed", zap.Error(err))
	} else if ok && len(vector) == e.inner.Dimensions() {
		return vector, nil
	}

	vector, err := e.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.Set(ctx, key, vector, e.ttl); err != nil {
		e.logger.Warn("Embedding cache store failed", zap.Error(err))
	}
	return vector, nil
}

func (e *CachedEmbedder) Dimensions() int {
	return e.inner.Dimensions()
}

func (e *CachedEmbedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%s:%d:%s", e.namespace, e.inner.Dimensions(), hex.EncodeToString(sum[:]))
}
