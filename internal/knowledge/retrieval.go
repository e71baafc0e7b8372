package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/models"
	"github.com/aihub/knowledge-qa/internal/repository"
	"go.uber.org/zap"
)

// NoRelevantInformation 没有可用分块时的固定回答
const NoRelevantInformation = "No relevant information found."

// Passage 解析后的检索结果
type Passage struct {
	DocumentID int64   `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	VectorID   string  `json:"vector_id"`
	Score      float32 `json:"score"`
	Content    string  `json:"content"`
}

// RetrievalPipeline 问题向量化、向量检索、分块解析
type RetrievalPipeline struct {
	store     repository.ChunkStore
	embedder  Embedder
	index     VectorIndex
	metrics   *Metrics
	logger    *zap.Logger
	topK      int
	dimension int
}

// NewRetrievalPipeline 创建检索流水线
func NewRetrievalPipeline(store repository.ChunkStore, embedder Embedder, index VectorIndex,
	metrics *Metrics, logger *zap.Logger, topK, dimension int) *RetrievalPipeline {
	if topK <= 0 {
		topK = 3
	}
	if dimension <= 0 {
		dimension = embedder.Dimensions()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalPipeline{
		store:     store,
		embedder:  embedder,
		index:     index,
		metrics:   metrics,
		logger:    logger,
		topK:      topK,
		dimension: dimension,
	}
}

// Answer 返回相似度最高且能解析到分块的内容
func (p *RetrievalPipeline) Answer(ctx context.Context, question string) (string, error) {
	start := time.Now()

	passages, err := p.retrieve(ctx, question, p.topK, 1)
	if err != nil {
		p.metrics.observeAnswer("error", time.Since(start))
		return "", err
	}
	if len(passages) == 0 {
		p.metrics.observeAnswer("no_match", time.Since(start))
		return NoRelevantInformation, nil
	}

	p.metrics.observeAnswer("answered", time.Since(start))
	p.logger.Debug("Question answered",
		zap.Int64("document_id", passages[0].DocumentID),
		zap.Int("chunk_index", passages[0].ChunkIndex),
		zap.Float32("score", passages[0].Score))
	return passages[0].Content, nil
}

// Retrieve 按相似度顺序返回全部可解析的分块，k<=0 时使用默认topK
func (p *RetrievalPipeline) Retrieve(ctx context.Context, question string, k int) ([]Passage, error) {
	if k <= 0 {
		k = p.topK
	}
	return p.retrieve(ctx, question, k, k)
}

func (p *RetrievalPipeline) retrieve(ctx context.Context, question string, k, limit int) ([]Passage, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, apperrors.NewInvalidInputError("question", "must not be empty")
	}

	vector, err := p.embedder.Embed(ctx, question)
	if err != nil {
		return nil, apperrors.NewRetrievalUnavailableError(apperrors.NewEmbeddingFailureError(err))
	}
	if len(vector) != p.dimension {
		return nil, apperrors.NewRetrievalUnavailableError(apperrors.NewEmbeddingFailureError(
			fmt.Errorf("embedding length %d, expected %d", len(vector), p.dimension)))
	}

	hits, err := p.index.Search(ctx, vector, k)
	if err != nil {
		return nil, apperrors.NewRetrievalUnavailableError(err)
	}

	resolver := newChunkResolver(p.store, p.logger)
	passages := make([]Passage, 0, len(hits))
	for _, hit := range hits {
		chunk, ok := resolver.resolve(ctx, hit)
		if !ok {
			p.metrics.skippedHit()
			continue
		}
		passages = append(passages, Passage{
			DocumentID: hit.DocumentID,
			ChunkIndex: chunk.ChunkIndex,
			VectorID:   chunk.VectorID,
			Score:      hit.Score,
			Content:    chunk.Content,
		})
		if len(passages) >= limit {
			break
		}
	}
	return passages, nil
}

// chunkResolver 单次请求内按文档缓存分块
type chunkResolver struct {
	store  repository.ChunkStore
	logger *zap.Logger
	cache  map[int64][]models.DocumentChunk
}

func newChunkResolver(store repository.ChunkStore, logger *zap.Logger) *chunkResolver {
	return &chunkResolver{
		store:  store,
		logger: logger,
		cache:  make(map[int64][]models.DocumentChunk),
	}
}

// resolve 查找命中对应的分块，查询失败或找不到时跳过该命中
func (r *chunkResolver) resolve(ctx context.Context, hit SearchHit) (models.DocumentChunk, bool) {
	chunks, ok := r.cache[hit.DocumentID]
	if !ok {
		var err error
		chunks, err = r.store.FindChunksByDocument(ctx, hit.DocumentID)
		if err != nil {
			r.logger.Warn("Chunk lookup failed, skipping hit",
				zap.Int64("document_id", hit.DocumentID),
				zap.String("vector_id", hit.VectorID),
				zap.Error(err))
		}
		r.cache[hit.DocumentID] = chunks
	}

	for _, chunk := range chunks {
		if chunk.ChunkIndex != int(hit.ChunkIndex) {
			continue
		}
		if hit.VectorID != "" && chunk.VectorID != hit.VectorID {
			continue
		}
		return chunk, true
	}

	r.logger.Debug("Search hit has no matching chunk",
		zap.Int64("document_id", hit.DocumentID),
		zap.Int32("chunk_index", hit.ChunkIndex),
		zap.String("vector_id", hit.VectorID))
	return models.DocumentChunk{}, false
}
