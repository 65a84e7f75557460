package model

// Context is the assembled, token-bounded input handed to the section
// generators. It is built once per commit and not mutated afterwards.
type Context struct {
	Commit      *Commit
	Diff        string // prompt-ready workspace diff, possibly truncated
	Sessions    []*ChatSession
	Reflections []*Reflection
	Captures    []*ContextCapture
	Stats       ContextStats
}

// ContextStats records what the integrator kept and dropped, mostly for
// telemetry and debug output.
type ContextStats struct {
	MessagesCollected int
	MessagesKept      int
	DiffFiles         int
	DiffFilesExcluded int
	EstimatedTokens   int
}

// Messages flattens the kept messages across sessions in timestamp order.
// Sessions are already internally ordered; the integrator keeps the session
// list sorted by first message time.
func (c *Context) Messages() []*ChatMessage {
	var out []*ChatMessage
	for _, s := range c.Sessions {
		out = append(out, s.Messages...)
	}
	return out
}
