package store

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// ConversationTurn is one message of a session. It belongs to exactly one session.
type ConversationTurn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func NewTurn(role Role, content string) ConversationTurn {
	return ConversationTurn{Role: role, Content: content, CreatedAt: time.Now().UTC()}
}

// Phase is the lifecycle position of a session.
type Phase string

const (
	PhaseEmpty         Phase = "EMPTY"
	PhaseActive        Phase = "ACTIVE"
	PhaseConsolidating Phase = "CONSOLIDATING"
	PhaseClosed        Phase = "CLOSED"
)

// SessionState is the serializable view of a session. Snapshots handed out
// by the memory package are copies and safe to keep.
type SessionState struct {
	SessionID         string             `json:"session_id"`
	Window            []ConversationTurn `json:"window"`
	Summary           string             `json:"summary"`
	TurnCount         int                `json:"turn_count"`
	LastConsolidation int                `json:"last_consolidation"`
	Phase             Phase              `json:"phase"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

func (s SessionState) Clone() SessionState {
	out := s
	out.Window = make([]ConversationTurn, len(s.Window))
	copy(out.Window, s.Window)
	return out
}

// LastExchange returns the index where the most recent user/assistant exchange
// starts within turns, or len(turns) when there is none.
func LastExchange(turns []ConversationTurn) int {
	n := len(turns)
	if n == 0 {
		return 0
	}
	if turns[n-1].Role == RoleAssistant && n >= 2 && turns[n-2].Role == RoleUser {
		return n - 2
	}
	return n - 1
}
