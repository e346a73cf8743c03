package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

type KnowledgeChunk struct {
	Id         string          `gorm:"type:text;primaryKey"`
	DocumentId string          `gorm:"type:text;not null;index"`
	Content    string          `gorm:"type:text;not null"`
	Kind       string          `gorm:"type:text;not null;default:'knowledge';index"`
	SessionId  string          `gorm:"type:text;index"`
	Tags       datatypes.JSON  `gorm:"type:jsonb"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)"` // matches EMBEDDING_DIMENSIONS
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"autoUpdateTime"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}
