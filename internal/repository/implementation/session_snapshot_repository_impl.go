package implementation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"zero-entropy-be/internal/model"
	"zero-entropy-be/pkg/rag/memory"
	"zero-entropy-be/pkg/store"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SessionSnapshotRepositoryImpl stores session snapshots in the session_snapshots table.
type SessionSnapshotRepositoryImpl struct {
	db *gorm.DB
}

var _ memory.Persister = (*SessionSnapshotRepositoryImpl)(nil)

func NewSessionSnapshotRepository(db *gorm.DB) *SessionSnapshotRepositoryImpl {
	return &SessionSnapshotRepositoryImpl{db: db}
}

func (r *SessionSnapshotRepositoryImpl) Save(ctx context.Context, state store.SessionState) error {
	window, err := json.Marshal(state.Window)
	if err != nil {
		return fmt.Errorf("failed to marshal window: %w", err)
	}
	m := &model.SessionSnapshot{
		SessionId:         state.SessionID,
		Window:            datatypes.JSON(window),
		Summary:           state.Summary,
		TurnCount:         state.TurnCount,
		Phase:             string(state.Phase),
		LastConsolidation: state.LastConsolidation,
		CreatedAt:         state.CreatedAt,
		UpdatedAt:         state.UpdatedAt,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"turns", "summary", "turn_count", "phase", "last_consolidation", "updated_at"}),
		}).
		Create(m).Error
}

func (r *SessionSnapshotRepositoryImpl) Load(ctx context.Context, sessionID string) (*store.SessionState, error) {
	var m model.SessionSnapshot
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	state := &store.SessionState{
		SessionID:         m.SessionId,
		Summary:           m.Summary,
		TurnCount:         m.TurnCount,
		LastConsolidation: m.LastConsolidation,
		Phase:             store.Phase(m.Phase),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
	if err := json.Unmarshal(m.Window, &state.Window); err != nil {
		return nil, fmt.Errorf("failed to decode window of %s: %w", sessionID, err)
	}
	return state, nil
}

func (r *SessionSnapshotRepositoryImpl) Delete(ctx context.Context, sessionID string) error {
	return r.db.WithContext(ctx).Where("session_id = ?", sessionID).Delete(&model.SessionSnapshot{}).Error
}
