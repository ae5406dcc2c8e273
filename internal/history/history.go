// Package history holds the append-only message log of one conversation.
// Entries are never removed or rewritten; the log lives only as long as the
// session that owns it.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Log is an ordered, append-only sequence of messages. It is safe for
// concurrent use.
type Log struct {
	mu             sync.RWMutex
	conversationID string
	messages       []Message
	now            func() time.Time
}

// NewLog creates an empty log with a fresh conversation id.
func NewLog() *Log {
	return &Log{
		conversationID: uuid.NewString(),
		now:            time.Now,
	}
}

// ConversationID returns the id stamped on every message of this log.
func (l *Log) ConversationID() string {
	return l.conversationID
}

// Append stores a new message and returns it with ID, ConversationID and
// CreatedAt filled in.
func (l *Log) Append(role Role, text string) Message {
	msg := Message{
		ID:             uuid.NewString(),
		ConversationID: l.conversationID,
		Role:           role,
		Text:           text,
		CreatedAt:      l.now().UTC(),
	}

	l.mu.Lock()
	l.messages = append(l.messages, msg)
	l.mu.Unlock()
	return msg
}

// List returns a copy of all messages in insertion order.
func (l *Log) List() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Len returns the number of stored messages.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}
