package model

import (
	"time"
)

type SessionID string

type ChatRole string

const (
	ChatRoleUser      ChatRole = "user"
	ChatRoleAssistant ChatRole = "assistant"
)

// ChatSession groups the messages of one Claude Code session that overlap a
// commit window. Read-only, sourced from external session logs.
type ChatSession struct {
	ID        SessionID
	Path      string // source JSONL file
	CWD       string
	GitBranch string
	Messages  []*ChatMessage
}

// ChatMessage is a single user or assistant turn.
type ChatMessage struct {
	Session   SessionID
	Role      ChatRole
	Text      string
	Timestamp time.Time
}

// MessageCount sums messages across sessions.
func MessageCount(sessions []*ChatSession) int {
	var n int
	for _, s := range sessions {
		n += len(s.Messages)
	}
	return n
}
