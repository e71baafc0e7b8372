package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"
)

// Milvus 集合字段
const (
	milvusFieldVectorID   = "vector_id"
	milvusFieldVector     = "vector"
	milvusFieldDocumentID = "document_id"
	milvusFieldChunkIndex = "chunk_index"

	milvusVectorIDMaxLength = 36
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Database   string
	UseTLS     bool
	Collection string
	Dimension  int
	NList      int
	NProbe     int
	Shards     int32
	Timeout    time.Duration
}

func (o *MilvusOptions) applyDefaults() {
	if o.Address == "" {
		o.Address = "localhost:19530"
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Collection == "" {
		o.Collection = "doc_vectors"
	}
	if o.Dimension <= 0 {
		o.Dimension = 1536
	}
	if o.NList <= 0 {
		o.NList = 1024
	}
	if o.NProbe <= 0 {
		o.NProbe = 16
	}
	if o.Shards <= 0 {
		o.Shards = 2
	}
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
}

// milvusClient 用到的 client.Client 子集
type milvusClient interface {
	HasCollection(ctx context.Context, collName string) (bool, error)
	CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error
	CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error
	LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error
	Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error)
	Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector,
		vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error)
	Close() error
}

// MilvusVectorIndex 基于Milvus的向量索引
type MilvusVectorIndex struct {
	client milvusClient
	opts   MilvusOptions
	gate   startupGate
	logger *zap.Logger
}

// NewMilvusVectorIndex 连接Milvus并创建向量索引，集合在首次使用时初始化
func NewMilvusVectorIndex(ctx context.Context, opts MilvusOptions, logger *zap.Logger) (*MilvusVectorIndex, error) {
	opts.applyDefaults()

	connectCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	milvusClient, err := client.NewClient(connectCtx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError("connect", fmt.Errorf("failed to create milvus client: %w", err))
	}

	return newMilvusVectorIndex(milvusClient, opts, logger), nil
}

func newMilvusVectorIndex(c milvusClient, opts MilvusOptions, logger *zap.Logger) *MilvusVectorIndex {
	opts.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MilvusVectorIndex{
		client: c,
		opts:   opts,
		logger: logger.With(zap.String("collection", opts.Collection)),
	}
}

// EnsureCollection 创建集合、构建索引并加载，已存在时只加载
func (s *MilvusVectorIndex) EnsureCollection(ctx context.Context) error {
	return s.gate.run(func() error {
		// 初始化结果被所有调用方共享，不跟随单个请求取消
		setupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.Timeout)
		defer cancel()
		return s.setupCollection(setupCtx)
	})
}

func (s *MilvusVectorIndex) setupCollection(ctx context.Context) error {
	name := s.opts.Collection

	// 检查集合是否存在
	exists, err := s.client.HasCollection(ctx, name)
	if err != nil {
		return apperrors.NewIndexUnavailableError("check collection", err)
	}

	if !exists {
		if err := s.client.CreateCollection(ctx, s.schema(), s.opts.Shards, client.WithConsistencyLevel(entity.ClStrong)); err != nil {
			return apperrors.NewIndexUnavailableError("create collection", err)
		}

		index, err := entity.NewIndexIvfFlat(entity.COSINE, s.opts.NList)
		if err != nil {
			return apperrors.NewIndexUnavailableError("create index", err)
		}
		// 同步构建索引
		if err := s.client.CreateIndex(ctx, name, milvusFieldVector, index, false); err != nil {
			return apperrors.NewIndexUnavailableError("create index", err)
		}
		s.logger.Info("Milvus collection created",
			zap.Int("dimension", s.opts.Dimension),
			zap.Int32("shards", s.opts.Shards),
			zap.Int("nlist", s.opts.NList))
	}

	if err := s.client.LoadCollection(ctx, name, false); err != nil {
		return apperrors.NewIndexUnavailableError("load collection", err)
	}

	s.logger.Info("Milvus collection loaded", zap.Bool("created", !exists))
	return nil
}

func (s *MilvusVectorIndex) schema() *entity.Schema {
	return &entity.Schema{
		CollectionName: s.opts.Collection,
		Description:    "Document chunk vectors",
		Fields: []*entity.Field{
			{
				Name:       milvusFieldVectorID,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": strconv.Itoa(milvusVectorIDMaxLength),
				},
			},
			{
				Name:     milvusFieldVector,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(s.opts.Dimension),
				},
			},
			{
				Name:     milvusFieldDocumentID,
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     milvusFieldChunkIndex,
				DataType: entity.FieldTypeInt32,
			},
		},
	}
}

func (s *MilvusVectorIndex) Insert(ctx context.Context, record VectorRecord) error {
	if err := s.EnsureCollection(ctx); err != nil {
		return err
	}
	if len(record.Vector) != s.opts.Dimension {
		return apperrors.NewIndexUnavailableError("insert",
			fmt.Errorf("vector dimension %d does not match collection dimension %d", len(record.Vector), s.opts.Dimension))
	}
	if record.VectorID == "" || len(record.VectorID) > milvusVectorIDMaxLength {
		return apperrors.NewIndexUnavailableError("insert", fmt.Errorf("invalid vector id %q", record.VectorID))
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	// 准备数据列
	vectorIDColumn := entity.NewColumnVarChar(milvusFieldVectorID, []string{record.VectorID})
	vectorColumn := entity.NewColumnFloatVector(milvusFieldVector, s.opts.Dimension, [][]float32{record.Vector})
	documentIDColumn := entity.NewColumnInt64(milvusFieldDocumentID, []int64{record.DocumentID})
	chunkIndexColumn := entity.NewColumnInt32(milvusFieldChunkIndex, []int32{record.ChunkIndex})

	if _, err := s.client.Insert(ctx, s.opts.Collection, "", vectorIDColumn, vectorColumn, documentIDColumn, chunkIndexColumn); err != nil {
		return apperrors.NewIndexUnavailableError("insert", err)
	}
	return nil
}

func (s *MilvusVectorIndex) Search(ctx context.Context, query []float32, k int) ([]SearchHit, error) {
	if err := s.EnsureCollection(ctx); err != nil {
		return nil, err
	}
	if len(query) != s.opts.Dimension {
		return nil, apperrors.NewIndexUnavailableError("search",
			fmt.Errorf("query dimension %d does not match collection dimension %d", len(query), s.opts.Dimension))
	}
	if k <= 0 {
		return []SearchHit{}, nil
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(s.opts.NProbe)
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError("search", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	searchResults, err := s.client.Search(
		ctx,
		s.opts.Collection,
		[]string{},
		"",
		[]string{milvusFieldDocumentID, milvusFieldChunkIndex},
		[]entity.Vector{entity.FloatVector(query)},
		milvusFieldVector,
		entity.COSINE,
		k,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClStrong),
	)
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError("search", err)
	}

	// 只有一个查询向量，取第一个结果
	if len(searchResults) == 0 {
		return []SearchHit{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, apperrors.NewIndexUnavailableError("search", result.Err)
	}

	hits, err := extractSearchHits(result)
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError("search", err)
	}

	sortHitsByScore(hits)
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// extractSearchHits 按字段名读取结果列
func extractSearchHits(result client.SearchResult) ([]SearchHit, error) {
	if result.ResultCount == 0 {
		return []SearchHit{}, nil
	}

	var vectorIDs []string
	if result.IDs != nil {
		idCol, ok := result.IDs.(*entity.ColumnVarChar)
		if !ok {
			return nil, fmt.Errorf("unexpected primary key column type %T", result.IDs)
		}
		vectorIDs = idCol.Data()
	}

	var documentIDs []int64
	var chunkIndexes []int32
	for _, field := range result.Fields {
		switch field.Name() {
		case milvusFieldDocumentID:
			if col, ok := field.(*entity.ColumnInt64); ok {
				documentIDs = col.Data()
			}
		case milvusFieldChunkIndex:
			if col, ok := field.(*entity.ColumnInt32); ok {
				chunkIndexes = col.Data()
			}
		}
	}

	if len(documentIDs) < result.ResultCount || len(chunkIndexes) < result.ResultCount || len(result.Scores) < result.ResultCount {
		return nil, fmt.Errorf("incomplete search result: %d hits, %d document ids, %d chunk indexes, %d scores",
			result.ResultCount, len(documentIDs), len(chunkIndexes), len(result.Scores))
	}

	hits := make([]SearchHit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		hit := SearchHit{
			DocumentID: documentIDs[i],
			ChunkIndex: chunkIndexes[i],
			Score:      result.Scores[i],
		}
		if i < len(vectorIDs) {
			hit.VectorID = vectorIDs[i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *MilvusVectorIndex) Ready() bool {
	return s.gate.ready()
}

// Close 关闭Milvus连接
func (s *MilvusVectorIndex) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
