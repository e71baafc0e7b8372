package knowledge

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockMilvusClient struct {
	mock.Mock
}

func (m *mockMilvusClient) HasCollection(ctx context.Context, collName string) (bool, error) {
	args := m.Called(ctx, collName)
	return args.Bool(0), args.Error(1)
}

func (m *mockMilvusClient) CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error {
	args := m.Called(ctx, schema, shardsNum)
	return args.Error(0)
}

func (m *mockMilvusClient) CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error {
	args := m.Called(ctx, collName, fieldName, idx, async)
	return args.Error(0)
}

func (m *mockMilvusClient) LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error {
	args := m.Called(ctx, collName, async)
	return args.Error(0)
}

func (m *mockMilvusClient) Insert(ctx context.Context, collName string, partitionName string, columns ...entity.Column) (entity.Column, error) {
	args := m.Called(ctx, collName, partitionName, columns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(entity.Column), args.Error(1)
}

func (m *mockMilvusClient) Search(ctx context.Context, collName string, partitions []string, expr string, outputFields []string, vectors []entity.Vector,
	vectorField string, metricType entity.MetricType, topK int, sp entity.SearchParam, opts ...client.SearchQueryOptionFunc) ([]client.SearchResult, error) {
	args := m.Called(ctx, collName, outputFields, vectorField, metricType, topK, len(opts))
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]client.SearchResult), args.Error(1)
}

func (m *mockMilvusClient) Close() error {
	return m.Called().Error(0)
}

func testMilvusOptions() MilvusOptions {
	return MilvusOptions{Collection: "doc_vectors", Dimension: 3}
}

func TestMilvusVectorIndex_EnsureCollectionCreates(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(false, nil).Once()
	c.On("CreateCollection", mock.Anything, mock.MatchedBy(func(schema *entity.Schema) bool {
		if schema.CollectionName != "doc_vectors" || len(schema.Fields) != 4 {
			return false
		}
		pk := schema.Fields[0]
		return pk.Name == "vector_id" && pk.PrimaryKey && !pk.AutoID &&
			pk.DataType == entity.FieldTypeVarChar && pk.TypeParams["max_length"] == "36" &&
			schema.Fields[1].TypeParams["dim"] == "3" &&
			schema.Fields[2].DataType == entity.FieldTypeInt64 &&
			schema.Fields[3].DataType == entity.FieldTypeInt32
	}), int32(2)).Return(nil).Once()
	c.On("CreateIndex", mock.Anything, "doc_vectors", "vector", mock.MatchedBy(func(idx entity.Index) bool {
		return idx.IndexType() == entity.IvfFlat
	}), false).Return(nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(nil).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)
	assert.False(t, index.Ready())

	require.NoError(t, index.EnsureCollection(context.Background()))
	// 第二次调用不再访问Milvus
	require.NoError(t, index.EnsureCollection(context.Background()))
	assert.True(t, index.Ready())
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_EnsureCollectionLoadsExisting(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(true, nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(nil).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)
	require.NoError(t, index.EnsureCollection(context.Background()))

	c.AssertNotCalled(t, "CreateCollection", mock.Anything, mock.Anything, mock.Anything)
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_SetupFailureIsMemoized(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(true, nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(errors.New("load failed")).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)
	ctx := context.Background()

	err := index.EnsureCollection(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	err = index.Insert(ctx, VectorRecord{VectorID: "v", Vector: []float32{1, 0, 0}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	_, err = index.Search(ctx, []float32{1, 0, 0}, 3)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	assert.False(t, index.Ready())
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_SetupRetriedAfterContextError(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(false, context.Canceled).Once()
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(true, nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(nil).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := index.EnsureCollection(cancelled)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, index.Ready())

	require.NoError(t, index.EnsureCollection(context.Background()))
	assert.True(t, index.Ready())
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_SetupIgnoresCallerCancellation(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return ctx.Err() == nil && hasDeadline
	}), "doc_vectors").Return(true, nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(nil).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, index.EnsureCollection(cancelled))
	assert.True(t, index.Ready())
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_ConcurrentFirstUse(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(false, nil).Once()
	c.On("CreateCollection", mock.Anything, mock.Anything, int32(2)).Return(nil).Once()
	c.On("CreateIndex", mock.Anything, "doc_vectors", "vector", mock.Anything, false).Return(nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(nil).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, index.EnsureCollection(context.Background()))
		}()
	}
	wg.Wait()

	c.AssertNumberOfCalls(t, "CreateCollection", 1)
	c.AssertExpectations(t)
}

func readyMilvusIndex(t *testing.T) (*MilvusVectorIndex, *mockMilvusClient) {
	t.Helper()
	c := new(mockMilvusClient)
	c.On("HasCollection", mock.Anything, "doc_vectors").Return(true, nil).Once()
	c.On("LoadCollection", mock.Anything, "doc_vectors", false).Return(nil).Once()
	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)
	require.NoError(t, index.EnsureCollection(context.Background()))
	return index, c
}

func TestMilvusVectorIndex_Insert(t *testing.T) {
	index, c := readyMilvusIndex(t)

	c.On("Insert", mock.Anything, "doc_vectors", "", mock.MatchedBy(func(columns []entity.Column) bool {
		if len(columns) != 4 {
			return false
		}
		ids, ok := columns[0].(*entity.ColumnVarChar)
		if !ok || ids.Name() != "vector_id" || ids.Data()[0] != "0b5c1f3e-0000-4000-8000-000000000001" {
			return false
		}
		docs, ok := columns[2].(*entity.ColumnInt64)
		if !ok || docs.Data()[0] != 42 {
			return false
		}
		chunks, ok := columns[3].(*entity.ColumnInt32)
		return ok && chunks.Data()[0] == 1
	})).Return(nil, nil).Once()

	err := index.Insert(context.Background(), VectorRecord{
		VectorID:   "0b5c1f3e-0000-4000-8000-000000000001",
		Vector:     []float32{0.1, 0.2, 0.3},
		DocumentID: 42,
		ChunkIndex: 1,
	})
	require.NoError(t, err)
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_InsertValidation(t *testing.T) {
	index, c := readyMilvusIndex(t)
	ctx := context.Background()

	err := index.Insert(ctx, VectorRecord{VectorID: "v", Vector: []float32{1, 2}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	err = index.Insert(ctx, VectorRecord{VectorID: "", Vector: []float32{1, 2, 3}})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	c.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestMilvusVectorIndex_InsertError(t *testing.T) {
	index, c := readyMilvusIndex(t)
	c.On("Insert", mock.Anything, "doc_vectors", "", mock.Anything).Return(nil, errors.New("rpc error")).Once()

	err := index.Insert(context.Background(), VectorRecord{VectorID: "v", Vector: []float32{1, 2, 3}})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))
}

func TestMilvusVectorIndex_Search(t *testing.T) {
	index, c := readyMilvusIndex(t)

	results := []client.SearchResult{{
		ResultCount: 3,
		IDs:         entity.NewColumnVarChar("vector_id", []string{"v-b", "v-a", "v-c"}),
		Fields: []entity.Column{
			// 字段顺序与请求顺序不同
			entity.NewColumnInt32("chunk_index", []int32{1, 0, 2}),
			entity.NewColumnInt64("document_id", []int64{7, 7, 8}),
		},
		Scores: []float32{0.5, 0.9, 0.1},
	}}
	c.On("Search", mock.Anything, "doc_vectors", []string{"document_id", "chunk_index"}, "vector", entity.COSINE, 2, 1).
		Return(results, nil).Once()

	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, SearchHit{VectorID: "v-a", DocumentID: 7, ChunkIndex: 0, Score: 0.9}, hits[0])
	assert.Equal(t, SearchHit{VectorID: "v-b", DocumentID: 7, ChunkIndex: 1, Score: 0.5}, hits[1])
	c.AssertExpectations(t)
}

func TestMilvusVectorIndex_SearchEmpty(t *testing.T) {
	index, c := readyMilvusIndex(t)
	c.On("Search", mock.Anything, "doc_vectors", mock.Anything, "vector", entity.COSINE, 3, 1).
		Return([]client.SearchResult{{ResultCount: 0}}, nil).Once()

	hits, err := index.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMilvusVectorIndex_SearchErrors(t *testing.T) {
	index, c := readyMilvusIndex(t)
	ctx := context.Background()

	c.On("Search", mock.Anything, "doc_vectors", mock.Anything, "vector", entity.COSINE, 3, 1).
		Return(nil, errors.New("unavailable")).Once()
	_, err := index.Search(ctx, []float32{1, 0, 0}, 3)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	c.On("Search", mock.Anything, "doc_vectors", mock.Anything, "vector", entity.COSINE, 4, 1).
		Return([]client.SearchResult{{Err: errors.New("shard failed")}}, nil).Once()
	_, err = index.Search(ctx, []float32{1, 0, 0}, 4)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))

	_, err = index.Search(ctx, []float32{1, 0}, 3)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIndexUnavailable))
}

func TestExtractSearchHits_Incomplete(t *testing.T) {
	_, err := extractSearchHits(client.SearchResult{
		ResultCount: 2,
		Fields: []entity.Column{
			entity.NewColumnInt64("document_id", []int64{1}),
		},
		Scores: []float32{0.3, 0.2},
	})
	assert.Error(t, err)
}

func TestMilvusOptions_Defaults(t *testing.T) {
	opts := MilvusOptions{}
	opts.applyDefaults()

	assert.Equal(t, "localhost:19530", opts.Address)
	assert.Equal(t, "doc_vectors", opts.Collection)
	assert.Equal(t, 1024, opts.NList)
	assert.Equal(t, int32(2), opts.Shards)
	assert.Equal(t, 1536, opts.Dimension)
}

func TestMilvusVectorIndex_Close(t *testing.T) {
	c := new(mockMilvusClient)
	c.On("Close").Return(nil).Once()

	index := newMilvusVectorIndex(c, testMilvusOptions(), nil)
	require.NoError(t, index.Close())
	c.AssertExpectations(t)
}
