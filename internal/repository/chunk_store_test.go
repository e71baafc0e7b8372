package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormChunkStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewGormChunkStore(gdb), mock
}

func TestGormChunkStore_CreateDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "documents"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))

	doc, err := store.CreateDocument(context.Background(), "guide", "A.\n\nB.", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, int64(7), doc.ID)
	assert.Equal(t, "guide", doc.Title)
	assert.Equal(t, "text/plain", doc.FileType)
	assert.Equal(t, models.DocumentStatusProcessing, doc.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_CreateDocumentError(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO "documents"`).WillReturnError(errors.New("connection refused"))

	_, err := store.CreateDocument(context.Background(), "guide", "text", "text/plain")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
}

func TestGormChunkStore_GetDocument(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "content", "file_type", "status", "created_at", "updated_at"}).
			AddRow(3, "guide", "body", "text/plain", "completed", now, now))

	doc, err := store.GetDocument(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), doc.ID)
	assert.Equal(t, "guide", doc.Title)
	assert.Equal(t, models.DocumentStatusCompleted, doc.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_GetDocumentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "documents" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	doc, err := store.GetDocument(context.Background(), 404)
	assert.Nil(t, doc)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeResourceNotFound))
}

func TestGormChunkStore_ListDocuments(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "documents" ORDER BY id ASC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).
			AddRow(1, "first").
			AddRow(2, "second"))

	docs, err := store.ListDocuments(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "first", docs[0].Title)
	assert.Equal(t, int64(2), docs[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_UpdateDocumentStatus(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "documents" SET "status"=\$1,"updated_at"=\$2 WHERE id = \$3`).
		WithArgs(models.DocumentStatusCompleted, sqlmock.AnyArg(), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.UpdateDocumentStatus(context.Background(), 5, models.DocumentStatusCompleted))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_UpdateDocumentStatusNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE "documents"`).WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateDocumentStatus(context.Background(), 5, models.DocumentStatusFailed)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeResourceNotFound))
}

func TestGormChunkStore_SaveChunks(t *testing.T) {
	store, mock := newMockStore(t)

	chunks := []models.DocumentChunk{
		{DocumentID: 1, Content: "A.", ChunkIndex: 0, VectorID: "11111111-1111-1111-1111-111111111111"},
		{DocumentID: 1, Content: "B.", ChunkIndex: 1, VectorID: "22222222-2222-2222-2222-222222222222"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "document_chunks"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(10).AddRow(11))
	mock.ExpectCommit()

	require.NoError(t, store.SaveChunks(context.Background(), chunks))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_SaveChunksRollback(t *testing.T) {
	store, mock := newMockStore(t)

	chunks := []models.DocumentChunk{
		{DocumentID: 1, Content: "A.", ChunkIndex: 0, VectorID: "11111111-1111-1111-1111-111111111111"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "document_chunks"`).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	err := store.SaveChunks(context.Background(), chunks)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeDatabaseError))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_SaveChunksEmpty(t *testing.T) {
	store, mock := newMockStore(t)

	require.NoError(t, store.SaveChunks(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormChunkStore_FindChunksByDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT \* FROM "document_chunks" WHERE document_id = \$1 ORDER BY chunk_index ASC`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "document_id", "content", "chunk_index", "vector_id"}).
			AddRow(10, 1, "A.", 0, "v-0").
			AddRow(11, 1, "B.", 1, "v-1"))

	chunks, err := store.FindChunksByDocument(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, "B.", chunks[1].Content)
	assert.Equal(t, "v-1", chunks[1].VectorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
