package knowledge

import (
	"context"
	"fmt"
	"sync"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
)

// MemoryVectorIndex 进程内向量索引，精确余弦相似度检索
type MemoryVectorIndex struct {
	dimension int
	gate      startupGate
	mu        sync.RWMutex
	records   []VectorRecord
}

// NewMemoryVectorIndex 创建内存向量索引
func NewMemoryVectorIndex(dimension int) *MemoryVectorIndex {
	return &MemoryVectorIndex{dimension: dimension}
}

func (m *MemoryVectorIndex) EnsureCollection(ctx context.Context) error {
	return m.gate.run(func() error {
		if m.dimension <= 0 {
			return apperrors.NewIndexUnavailableError("setup", fmt.Errorf("invalid vector dimension %d", m.dimension))
		}
		return nil
	})
}

func (m *MemoryVectorIndex) Insert(ctx context.Context, record VectorRecord) error {
	if err := m.EnsureCollection(ctx); err != nil {
		return err
	}
	if len(record.Vector) != m.dimension {
		return apperrors.NewIndexUnavailableError("insert",
			fmt.Errorf("vector dimension %d does not match collection dimension %d", len(record.Vector), m.dimension))
	}

	vector := make([]float32, len(record.Vector))
	copy(vector, record.Vector)
	record.Vector = vector

	m.mu.Lock()
	m.records = append(m.records, record)
	m.mu.Unlock()
	return nil
}

func (m *MemoryVectorIndex) Search(ctx context.Context, query []float32, k int) ([]SearchHit, error) {
	if err := m.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	if len(query) != m.dimension {
		return nil, apperrors.NewIndexUnavailableError("search",
			fmt.Errorf("query dimension %d does not match collection dimension %d", len(query), m.dimension))
	}
	if k <= 0 {
		return []SearchHit{}, nil
	}

	m.mu.RLock()
	hits := make([]SearchHit, 0, len(m.records))
	for _, record := range m.records {
		hits = append(hits, SearchHit{
			VectorID:   record.VectorID,
			DocumentID: record.DocumentID,
			ChunkIndex: record.ChunkIndex,
			Score:      float32(cosineSimilarity(query, record.Vector)),
		})
	}
	m.mu.RUnlock()

	sortHitsByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *MemoryVectorIndex) Ready() bool {
	return m.gate.ready()
}

// Len 返回已写入的记录数
func (m *MemoryVectorIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}
