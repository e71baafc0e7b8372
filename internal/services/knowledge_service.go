package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aihub/knowledge-qa/internal/config"
	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/events"
	"github.com/aihub/knowledge-qa/internal/knowledge"
	"github.com/aihub/knowledge-qa/internal/models"
	"github.com/aihub/knowledge-qa/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultContentType 未声明内容类型时使用
const DefaultContentType = "text/plain"

// Dependencies KnowledgeService 的外部依赖，Embedder 和 VectorIndex 为空时按配置创建
type Dependencies struct {
	Store       repository.ChunkStore
	Redis       *redis.Client
	Publisher   events.Publisher
	Registerer  prometheus.Registerer
	Logger      *zap.Logger
	Embedder    knowledge.Embedder
	VectorIndex knowledge.VectorIndex
}

// KnowledgeService 知识库服务，对外提供入库、查询文档和问答
type KnowledgeService struct {
	store     repository.ChunkStore
	index     knowledge.VectorIndex
	publisher events.Publisher
	ingestion *knowledge.IngestionPipeline
	retrieval *knowledge.RetrievalPipeline
	logger    *zap.Logger
}

// NewKnowledgeService 创建知识库服务实例
func NewKnowledgeService(ctx context.Context, cfg *config.Config, deps Dependencies) (*KnowledgeService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("chunk store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	kcfg := cfg.Knowledge
	splitter := knowledge.NewSplitter(kcfg.Splitter.Strategy, kcfg.Splitter.ChunkSize, kcfg.Splitter.ChunkOverlap)

	embedder := deps.Embedder
	if embedder == nil {
		embedder = selectEmbedder(cfg, deps.Redis, logger)
	}

	index := deps.VectorIndex
	if index == nil {
		var err error
		index, err = selectVectorIndex(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
	}

	var metrics *knowledge.Metrics
	if deps.Registerer != nil {
		metrics = knowledge.NewMetrics(deps.Registerer)
	}

	ingestion := knowledge.NewIngestionPipeline(deps.Store, splitter, embedder, index, publisher, metrics,
		logger.Named("ingestion"), knowledge.IngestionOptions{
			Dimension:   kcfg.VectorDimension,
			MaxParallel: kcfg.MaxParallel,
		})
	retrieval := knowledge.NewRetrievalPipeline(deps.Store, embedder, index, metrics,
		logger.Named("retrieval"), kcfg.TopK, kcfg.VectorDimension)

	return &KnowledgeService{
		store:     deps.Store,
		index:     index,
		publisher: publisher,
		ingestion: ingestion,
		retrieval: retrieval,
		logger:    logger,
	}, nil
}

func selectEmbedder(cfg *config.Config, redisClient *redis.Client, logger *zap.Logger) knowledge.Embedder {
	kcfg := cfg.Knowledge

	var embedder knowledge.Embedder
	switch kcfg.Embedding.Provider {
	case knowledge.EmbeddingProviderHashing:
		embedder = knowledge.NewHashingEmbedder(kcfg.VectorDimension)
	case knowledge.EmbeddingProviderNoop:
		embedder = &knowledge.NoopEmbedder{}
	default:
		embedder = knowledge.NewOpenAIEmbedder(cfg.AI.OpenAIAPIKey, cfg.AI.OpenAIBaseURL, kcfg.Embedding.Model, kcfg.VectorDimension)
		if _, ok := embedder.(*knowledge.NoopEmbedder); ok {
			logger.Warn("OpenAI API key not configured, embedding disabled")
		}
	}

	if redisClient == nil {
		return embedder
	}
	if _, ok := embedder.(*knowledge.NoopEmbedder); ok {
		return embedder
	}

	namespace := kcfg.Embedding.Provider
	if namespace == knowledge.EmbeddingProviderOpenAI {
		namespace = kcfg.Embedding.Model
	}
	ttl := time.Duration(cfg.Redis.TTL) * time.Second
	return knowledge.NewCachedEmbedder(embedder, knowledge.NewRedisEmbeddingCache(redisClient), namespace, ttl, logger.Named("embedding_cache"))
}

func selectVectorIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger) (knowledge.VectorIndex, error) {
	kcfg := cfg.Knowledge
	switch kcfg.VectorStore.Provider {
	case knowledge.VectorStoreMemory:
		return knowledge.NewMemoryVectorIndex(kcfg.VectorDimension), nil
	default:
		mcfg := kcfg.VectorStore.Milvus
		index, err := knowledge.NewMilvusVectorIndex(ctx, knowledge.MilvusOptions{
			Address:    mcfg.Address,
			Username:   mcfg.Username,
			Password:   mcfg.Password,
			Database:   mcfg.Database,
			UseTLS:     mcfg.TLS,
			Collection: mcfg.Collection,
			Dimension:  kcfg.VectorDimension,
			NList:      mcfg.NList,
			NProbe:     mcfg.NProbe,
			Shards:     int32(mcfg.Shards),
			Timeout:    time.Duration(mcfg.TimeoutSeconds) * time.Second,
		}, logger.Named("milvus"))
		if err != nil {
			return nil, err
		}
		return index, nil
	}
}

// EnsureIndex 初始化向量集合
func (s *KnowledgeService) EnsureIndex(ctx context.Context) error {
	return s.index.EnsureCollection(ctx)
}

// IndexReady 向量集合是否已初始化
func (s *KnowledgeService) IndexReady() bool {
	return s.index.Ready()
}

// Ingest 校验原始内容并入库
func (s *KnowledgeService) Ingest(ctx context.Context, raw []byte, title, contentType string) (*models.Document, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperrors.NewInvalidInputError("title", "must not be empty")
	}
	if utf8.RuneCountInString(title) > models.MaxTitleLength {
		return nil, apperrors.NewInvalidInputError("title", fmt.Sprintf("must be at most %d characters", models.MaxTitleLength))
	}
	if !utf8.Valid(raw) {
		return nil, apperrors.NewInvalidInputError("content", "must be valid UTF-8 text")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = DefaultContentType
	}
	if utf8.RuneCountInString(contentType) > models.MaxFileTypeLength {
		return nil, apperrors.NewInvalidInputError("content_type", fmt.Sprintf("must be at most %d characters", models.MaxFileTypeLength))
	}

	return s.ingestion.Ingest(ctx, string(raw), title, contentType)
}

// IngestReader 从reader读取全部内容后入库
func (s *KnowledgeService) IngestReader(ctx context.Context, r io.Reader, title, contentType string) (*models.Document, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.NewInvalidInputError("content", err.Error())
	}
	return s.Ingest(ctx, raw, title, contentType)
}

// GetDocument 获取文档及其分块
func (s *KnowledgeService) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	doc, err := s.store.GetDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	chunks, err := s.store.FindChunksByDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	doc.Chunks = chunks
	return doc, nil
}

// ListDocuments 列出全部文档
func (s *KnowledgeService) ListDocuments(ctx context.Context) ([]models.Document, error) {
	return s.store.ListDocuments(ctx)
}

// Answer 回答问题
func (s *KnowledgeService) Answer(ctx context.Context, question string) (string, error) {
	return s.retrieval.Answer(ctx, question)
}

// Retrieve 返回按相似度排序的分块
func (s *KnowledgeService) Retrieve(ctx context.Context, question string, k int) ([]knowledge.Passage, error) {
	return s.retrieval.Retrieve(ctx, question, k)
}

// Close 释放向量库连接和事件发布器
func (s *KnowledgeService) Close() error {
	var errs []error
	if closer, ok := s.index.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close vector index: %w", err))
		}
	}
	if err := s.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close publisher: %w", err))
	}
	return errors.Join(errs...)
}
