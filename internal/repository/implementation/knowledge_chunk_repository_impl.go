package implementation

import (
	"context"
	"encoding/json"
	"fmt"

	"zero-entropy-be/internal/model"
	"zero-entropy-be/pkg/rag/search"
	"zero-entropy-be/pkg/store"

	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KnowledgeChunkRepositoryImpl struct {
	db *gorm.DB
}

var _ search.VectorIndex = (*KnowledgeChunkRepositoryImpl)(nil)

func NewKnowledgeChunkRepository(db *gorm.DB) *KnowledgeChunkRepositoryImpl {
	return &KnowledgeChunkRepositoryImpl{db: db}
}

type scoredChunk struct {
	model.KnowledgeChunk
	Similarity float64
}

func (r *KnowledgeChunkRepositoryImpl) Upsert(ctx context.Context, chunks []search.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	models := make([]*model.KnowledgeChunk, 0, len(chunks))
	for _, c := range chunks {
		m, err := toModel(c)
		if err != nil {
			return err
		}
		models = append(models, m)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"document_id", "content", "kind", "session_id", "tags", "embedding", "updated_at"}),
		}).
		Create(models).Error
}

func (r *KnowledgeChunkRepositoryImpl) Search(ctx context.Context, vector []float32, k int, filter search.Filter) ([]search.ScoredChunk, error) {
	var results []scoredChunk
	queryVector := pgvector.NewVector(vector)

	q := r.db.WithContext(ctx).
		Table("knowledge_chunks").
		Select("knowledge_chunks.*, 1 - (embedding <=> ?) as similarity", queryVector)
	if filter.Kind != "" {
		q = q.Where("kind = ?", filter.Kind)
	}
	if filter.SessionID != "" {
		q = q.Where("session_id = ?", filter.SessionID)
	}

	err := q.Order(clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{queryVector}}).
		Limit(k).
		Scan(&results).Error
	if err != nil {
		return nil, err
	}

	out := make([]search.ScoredChunk, 0, len(results))
	for _, res := range results {
		c, err := toChunk(&res.KnowledgeChunk)
		if err != nil {
			return nil, err
		}
		out = append(out, search.ScoredChunk{Chunk: c, Similarity: res.Similarity})
	}
	return out, nil
}

func (r *KnowledgeChunkRepositoryImpl) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("document_id = ?", documentID).Delete(&model.KnowledgeChunk{})
	return res.RowsAffected, res.Error
}

func (r *KnowledgeChunkRepositoryImpl) Stats(ctx context.Context) (search.Stats, error) {
	stats := search.Stats{ByKind: map[string]int64{}}
	db := r.db.WithContext(ctx).Model(&model.KnowledgeChunk{})

	if err := db.Count(&stats.Chunks).Error; err != nil {
		return stats, err
	}
	if err := r.db.WithContext(ctx).Model(&model.KnowledgeChunk{}).
		Distinct("document_id").Count(&stats.Documents).Error; err != nil {
		return stats, err
	}

	var rows []struct {
		Kind  string
		Total int64
	}
	if err := r.db.WithContext(ctx).Model(&model.KnowledgeChunk{}).
		Select("kind, count(*) as total").Group("kind").Scan(&rows).Error; err != nil {
		return stats, err
	}
	for _, row := range rows {
		stats.ByKind[row.Kind] = row.Total
	}
	return stats, nil
}

func (r *KnowledgeChunkRepositoryImpl) Clear(ctx context.Context) error {
	return r.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&model.KnowledgeChunk{}).Error
}

func toModel(c search.Chunk) (*model.KnowledgeChunk, error) {
	tags, err := json.Marshal(c.Tags)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tags: %w", err)
	}
	kind := c.Tags.Kind
	if kind == "" {
		kind = store.KindKnowledge
	}
	return &model.KnowledgeChunk{
		Id:         c.ID,
		DocumentId: c.DocumentID,
		Content:    c.Content,
		Kind:       kind,
		SessionId:  c.Tags.SessionID,
		Tags:       datatypes.JSON(tags),
		Embedding:  pgvector.NewVector(c.Embedding),
		CreatedAt:  c.CreatedAt,
	}, nil
}

func toChunk(m *model.KnowledgeChunk) (search.Chunk, error) {
	c := search.Chunk{
		ID:         m.Id,
		DocumentID: m.DocumentId,
		Content:    m.Content,
		Embedding:  m.Embedding.Slice(),
		CreatedAt:  m.CreatedAt,
	}
	if len(m.Tags) > 0 {
		if err := json.Unmarshal(m.Tags, &c.Tags); err != nil {
			return c, fmt.Errorf("failed to decode tags of %s: %w", m.Id, err)
		}
	}
	return c, nil
}
