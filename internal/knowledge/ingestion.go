package knowledge

import (
	"context"
	"fmt"
	"time"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/events"
	"github.com/aihub/knowledge-qa/internal/models"
	"github.com/aihub/knowledge-qa/internal/repository"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// IngestionOptions 入库流水线参数
type IngestionOptions struct {
	Dimension   int
	MaxParallel int
}

// IngestionPipeline 文档入库：分块、向量化、写入向量索引、保存分块
//
// 向量索引与ChunkStore之间没有跨库事务。分块向量全部写入成功后才保存分块；
// 中途失败时已写入的向量不会回滚，文档状态被标记为failed。
type IngestionPipeline struct {
	store     repository.ChunkStore
	splitter  Splitter
	embedder  Embedder
	index     VectorIndex
	publisher events.Publisher
	metrics   *Metrics
	logger    *zap.Logger
	opts      IngestionOptions
}

// NewIngestionPipeline 创建入库流水线
func NewIngestionPipeline(store repository.ChunkStore, splitter Splitter, embedder Embedder, index VectorIndex,
	publisher events.Publisher, metrics *Metrics, logger *zap.Logger, opts IngestionOptions) *IngestionPipeline {
	if splitter == nil {
		splitter = ParagraphSplitter{}
	}
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 1
	}
	if opts.Dimension <= 0 {
		opts.Dimension = embedder.Dimensions()
	}
	return &IngestionPipeline{
		store:     store,
		splitter:  splitter,
		embedder:  embedder,
		index:     index,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
	}
}

// Ingest 保存文档并建立分块索引，空文档返回零个分块
func (p *IngestionPipeline) Ingest(ctx context.Context, content, title, contentType string) (*models.Document, error) {
	start := time.Now()

	doc, err := p.store.CreateDocument(ctx, title, content, contentType)
	if err != nil {
		return nil, err
	}
	logger := p.logger.With(zap.Int64("document_id", doc.ID))

	passages := p.splitter.Split(content)
	chunks, err := p.indexChunks(ctx, doc.ID, passages)
	if err == nil {
		err = p.store.SaveChunks(ctx, chunks)
	}
	if err != nil {
		p.markFailed(ctx, doc, err, logger)
		p.metrics.observeIngest(models.DocumentStatusFailed, 0, time.Since(start))
		if appErr := apperrors.GetAppError(err); appErr != nil && appErr.Details == nil {
			appErr.WithDetails(map[string]interface{}{"document_id": doc.ID})
		}
		return nil, err
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, models.DocumentStatusCompleted); err != nil {
		logger.Warn("Failed to mark document completed", zap.Error(err))
	} else {
		doc.Status = models.DocumentStatusCompleted
	}
	doc.Chunks = chunks

	p.metrics.observeIngest(models.DocumentStatusCompleted, len(chunks), time.Since(start))
	p.publish(ctx, events.DocumentEvent{
		Type:       events.EventDocumentIngested,
		DocumentID: doc.ID,
		Title:      doc.Title,
		Status:     doc.Status,
		ChunkCount: len(chunks),
	}, logger)

	logger.Info("Document ingested",
		zap.Int("chunks", len(chunks)),
		zap.Duration("elapsed", time.Since(start)))
	return doc, nil
}

// indexChunks 向量化全部分块后按分块顺序写入向量索引
func (p *IngestionPipeline) indexChunks(ctx context.Context, documentID int64, passages []string) ([]models.DocumentChunk, error) {
	if len(passages) == 0 {
		return nil, nil
	}

	vectors, err := p.embedAll(ctx, passages)
	if err != nil {
		return nil, err
	}

	chunks := make([]models.DocumentChunk, 0, len(passages))
	for i, passage := range passages {
		vectorID := uuid.NewString()
		record := VectorRecord{
			VectorID:   vectorID,
			Vector:     vectors[i],
			DocumentID: documentID,
			ChunkIndex: int32(i),
		}
		if err := p.index.Insert(ctx, record); err != nil {
			p.logger.Error("Vector insert failed",
				zap.Int64("document_id", documentID),
				zap.Int("chunk_index", i),
				zap.Int("inserted", len(chunks)),
				zap.Error(err))
			if !apperrors.IsAppError(err) {
				err = apperrors.NewIndexUnavailableError("insert", err)
			}
			return nil, err
		}

		chunks = append(chunks, models.DocumentChunk{
			DocumentID: documentID,
			Content:    passage,
			ChunkIndex: i,
			VectorID:   vectorID,
		})
	}
	return chunks, nil
}

// embedAll 并发度受MaxParallel限制，结果按分块下标存放
func (p *IngestionPipeline) embedAll(ctx context.Context, passages []string) ([][]float32, error) {
	vectors := make([][]float32, len(passages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.MaxParallel)
	for i, passage := range passages {
		g.Go(func() error {
			vector, err := p.embedder.Embed(gctx, passage)
			if err != nil {
				return apperrors.NewEmbeddingFailureError(fmt.Errorf("chunk %d: %w", i, err))
			}
			if len(vector) != p.opts.Dimension {
				return apperrors.NewEmbeddingFailureError(
					fmt.Errorf("chunk %d: embedding length %d, expected %d", i, len(vector), p.opts.Dimension))
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (p *IngestionPipeline) markFailed(ctx context.Context, doc *models.Document, cause error, logger *zap.Logger) {
	logger.Error("Document ingestion failed", zap.Error(cause))

	// 入库失败时ctx可能已取消，状态更新使用独立的超时
	statusCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.UpdateDocumentStatus(statusCtx, doc.ID, models.DocumentStatusFailed); err != nil {
		logger.Warn("Failed to mark document failed", zap.Error(err))
	} else {
		doc.Status = models.DocumentStatusFailed
	}

	p.publish(statusCtx, events.DocumentEvent{
		Type:       events.EventDocumentFailed,
		DocumentID: doc.ID,
		Title:      doc.Title,
		Status:     models.DocumentStatusFailed,
		Error:      cause.Error(),
	}, logger)
}

func (p *IngestionPipeline) publish(ctx context.Context, event events.DocumentEvent, logger *zap.Logger) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish document event", zap.String("type", event.Type), zap.Error(err))
	}
}
