package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/models"
)

// MemoryChunkStore 进程内ChunkStore，用于测试和本地调试
type MemoryChunkStore struct {
	mu        sync.RWMutex
	nextDocID int64
	nextChkID int64
	documents map[int64]models.Document
	chunks    map[int64][]models.DocumentChunk
}

// NewMemoryChunkStore 创建内存ChunkStore
func NewMemoryChunkStore() *MemoryChunkStore {
	return &MemoryChunkStore{
		documents: make(map[int64]models.Document),
		chunks:    make(map[int64][]models.DocumentChunk),
	}
}

func (s *MemoryChunkStore) CreateDocument(ctx context.Context, title, content, contentType string) (*models.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextDocID++
	now := time.Now()
	doc := models.Document{
		ID:        s.nextDocID,
		Title:     title,
		Content:   content,
		FileType:  contentType,
		Status:    models.DocumentStatusProcessing,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.documents[doc.ID] = doc
	return &doc, nil
}

func (s *MemoryChunkStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("document")
	}
	return &doc, nil
}

func (s *MemoryChunkStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]models.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		docs = append(docs, doc)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func (s *MemoryChunkStore) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return apperrors.NewNotFoundError("document")
	}
	doc.Status = status
	doc.UpdatedAt = time.Now()
	s.documents[id] = doc
	return nil
}

func (s *MemoryChunkStore) SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		if _, ok := s.documents[chunk.DocumentID]; !ok {
			return apperrors.NewDatabaseError("save chunks", apperrors.NewNotFoundError("document"))
		}
	}
	for _, chunk := range chunks {
		s.nextChkID++
		chunk.ID = s.nextChkID
		chunk.CreatedAt = time.Now()
		s.chunks[chunk.DocumentID] = append(s.chunks[chunk.DocumentID], chunk)
	}
	return nil
}

func (s *MemoryChunkStore) FindChunksByDocument(ctx context.Context, documentID int64) ([]models.DocumentChunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chunks := make([]models.DocumentChunk, len(s.chunks[documentID]))
	copy(chunks, s.chunks[documentID])
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].ChunkIndex < chunks[j].ChunkIndex })
	return chunks, nil
}
