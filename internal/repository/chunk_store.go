package repository

import (
	"context"
	stderrors "errors"

	apperrors "github.com/aihub/knowledge-qa/internal/errors"
	"github.com/aihub/knowledge-qa/internal/models"
	"gorm.io/gorm"
)

// ChunkStore 文档与分块元数据的持久化接口
type ChunkStore interface {
	CreateDocument(ctx context.Context, title, content, contentType string) (*models.Document, error)
	GetDocument(ctx context.Context, id int64) (*models.Document, error)
	ListDocuments(ctx context.Context) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id int64, status string) error
	SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error
	FindChunksByDocument(ctx context.Context, documentID int64) ([]models.DocumentChunk, error)
}

// GormChunkStore 基于GORM的ChunkStore实现
type GormChunkStore struct {
	db *gorm.DB
}

// NewGormChunkStore 创建ChunkStore
func NewGormChunkStore(db *gorm.DB) *GormChunkStore {
	return &GormChunkStore{db: db}
}

// CreateDocument 创建文档记录，初始状态为processing
func (s *GormChunkStore) CreateDocument(ctx context.Context, title, content, contentType string) (*models.Document, error) {
	doc := &models.Document{
		Title:    title,
		Content:  content,
		FileType: contentType,
		Status:   models.DocumentStatusProcessing,
	}
	if err := s.db.WithContext(ctx).Create(doc).Error; err != nil {
		return nil, apperrors.NewDatabaseError("create document", err)
	}
	return doc, nil
}

// GetDocument 根据ID获取文档
func (s *GormChunkStore) GetDocument(ctx context.Context, id int64) (*models.Document, error) {
	var doc models.Document
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("document")
		}
		return nil, apperrors.NewDatabaseError("get document", err)
	}
	return &doc, nil
}

// ListDocuments 按ID升序列出全部文档
func (s *GormChunkStore) ListDocuments(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&docs).Error; err != nil {
		return nil, apperrors.NewDatabaseError("list documents", err)
	}
	return docs, nil
}

// UpdateDocumentStatus 更新文档处理状态
func (s *GormChunkStore) UpdateDocumentStatus(ctx context.Context, id int64, status string) error {
	result := s.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return apperrors.NewDatabaseError("update document status", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.NewNotFoundError("document")
	}
	return nil
}

// SaveChunks 在一个事务中批量写入分块
func (s *GormChunkStore) SaveChunks(ctx context.Context, chunks []models.DocumentChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&chunks).Error
	})
	if err != nil {
		return apperrors.NewDatabaseError("save chunks", err)
	}
	return nil
}

// FindChunksByDocument 按chunk_index顺序获取文档的分块
func (s *GormChunkStore) FindChunksByDocument(ctx context.Context, documentID int64) ([]models.DocumentChunk, error) {
	var chunks []models.DocumentChunk
	err := s.db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	if err != nil {
		return nil, apperrors.NewDatabaseError("find chunks", err)
	}
	return chunks, nil
}
