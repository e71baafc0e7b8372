package knowledge

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
)

// 向量存储提供方
const (
	VectorStoreMilvus = "milvus"
	VectorStoreMemory = "memory"
)

// VectorRecord 向量库中的一条记录，VectorID 由调用方生成
type VectorRecord struct {
	VectorID   string
	Vector     []float32
	DocumentID int64
	ChunkIndex int32
}

// SearchHit 检索命中
type SearchHit struct {
	VectorID   string  `json:"vector_id"`
	DocumentID int64   `json:"document_id"`
	ChunkIndex int32   `json:"chunk_index"`
	Score      float32 `json:"score"`
}

// VectorIndex 向量索引抽象
//
// EnsureCollection 只会真正执行一次，结果会被记住；Insert 和 Search
// 在首次调用时同样会经过这一步，初始化失败时返回 IndexUnavailable。
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Insert(ctx context.Context, record VectorRecord) error
	Search(ctx context.Context, query []float32, k int) ([]SearchHit, error)
	Ready() bool
}

// startupGate 保证初始化流程只成功或失败一次，并发调用方等待同一结果
//
// 调用方取消或超时不算初始化结果，下一次调用会重新执行。
type startupGate struct {
	runMu    sync.Mutex
	mu       sync.RWMutex
	finished bool
	err      error
}

func (g *startupGate) run(fn func() error) error {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	g.mu.RLock()
	finished, err := g.finished, g.err
	g.mu.RUnlock()
	if finished {
		return err
	}

	err = fn()
	if isContextError(err) {
		return err
	}
	g.mu.Lock()
	g.finished = true
	g.err = err
	g.mu.Unlock()
	return err
}

func (g *startupGate) ready() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.finished && g.err == nil
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// sortHitsByScore 按相似度降序排序，分数相同时保持原有顺序
func sortHitsByScore(hits []SearchHit) {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})
}
