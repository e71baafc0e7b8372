package models

import "time"

// 文档处理状态
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// 与数据库列长度一致
const (
	MaxTitleLength    = 255
	MaxFileTypeLength = 100
)

// Document 上传的原始文档，创建后内容不再修改
type Document struct {
	ID        int64     `gorm:"primaryKey;column:id" json:"id"`
	Title     string    `gorm:"size:255;not null" json:"title"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	FileType  string    `gorm:"column:file_type;size:100" json:"file_type"`
	Status    string    `gorm:"size:20;not null" json:"status"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	// 关系
	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID" json:"chunks,omitempty"`
}

func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 文档分块，与向量库中的一条记录通过 VectorID 一一对应
type DocumentChunk struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	DocumentID int64     `gorm:"column:document_id;not null;index:idx_document_chunks_document_id;uniqueIndex:uq_document_chunks_position,priority:1" json:"document_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	ChunkIndex int       `gorm:"column:chunk_index;not null;uniqueIndex:uq_document_chunks_position,priority:2" json:"chunk_index"`
	VectorID   string    `gorm:"column:vector_id;size:36;not null;uniqueIndex:uq_document_chunks_vector_id" json:"vector_id"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
}

func (DocumentChunk) TableName() string {
	return "document_chunks"
}
