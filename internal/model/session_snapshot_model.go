package model

import (
	"time"

	"gorm.io/datatypes"
)

// SessionSnapshot is the durable copy of one conversation session.
type SessionSnapshot struct {
	SessionId         string         `gorm:"type:text;primaryKey"`
	Window            datatypes.JSON `gorm:"column:turns;type:jsonb;not null"`
	Summary           string         `gorm:"type:text"`
	TurnCount         int            `gorm:"not null;default:0"`
	Phase             string         `gorm:"type:text;not null"`
	LastConsolidation int            `gorm:"not null;default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SessionSnapshot) TableName() string {
	return "session_snapshots"
}
