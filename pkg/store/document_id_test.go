package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDocumentID(t *testing.T) {
	a := DocumentID("go channels", map[string]interface{}{"source": "book", "page": 3})
	b := DocumentID("go channels", map[string]interface{}{"page": 3, "source": "book"})
	c := DocumentID("go channels", map[string]interface{}{"source": "blog", "page": 3})
	d := DocumentID("go channels", nil)

	assert.Len(t, a, 16)
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
	assert.Equal(t, d, DocumentID("go channels", map[string]interface{}{}))
}

func TestLastExchange(t *testing.T) {
	u := ConversationTurn{Role: RoleUser}
	a := ConversationTurn{Role: RoleAssistant}

	assert.Equal(t, 0, LastExchange(nil))
	assert.Equal(t, 1, LastExchange([]ConversationTurn{u, u, a}))
	assert.Equal(t, 2, LastExchange([]ConversationTurn{u, a, u}))
	assert.Equal(t, 0, LastExchange([]ConversationTurn{a}))
}
