package history

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendKeepsOrderAndStampsIDs(t *testing.T) {
	l := NewLog()
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	u := l.Append(RoleUser, "hello")
	a := l.Append(RoleAssistant, "**hi**")

	require.Equal(t, 2, l.Len())
	msgs := l.List()
	require.Equal(t, []Message{u, a}, msgs)
	require.Equal(t, "hello", msgs[0].Text)
	require.Equal(t, "**hi**", msgs[1].Text)
	require.Equal(t, fixed, msgs[0].CreatedAt)
	require.Equal(t, l.ConversationID(), msgs[1].ConversationID)
	require.NotEqual(t, msgs[0].ID, msgs[1].ID)

	_, err := uuid.Parse(msgs[0].ID)
	require.NoError(t, err)
}

func TestLog_ListIsACopy(t *testing.T) {
	l := NewLog()
	l.Append(RoleUser, "original")

	msgs := l.List()
	msgs[0].Text = "mutated"

	require.Equal(t, "original", l.List()[0].Text)
}

func TestLog_DistinctConversations(t *testing.T) {
	require.NotEqual(t, NewLog().ConversationID(), NewLog().ConversationID())
}
