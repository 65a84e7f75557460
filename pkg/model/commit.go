package model

import (
	"time"
)

// Origin classifies where a changed file came from. It is assigned once at
// collection time so downstream filtering never re-derives provenance from
// path strings.
type Origin string

const (
	// OriginWorkspace is regular repository content written by the developer.
	OriginWorkspace Origin = "workspace"
	// OriginJournal is output produced by commit-story itself (entries,
	// reflections, context captures).
	OriginJournal Origin = "journal"
	// OriginIgnored matched a .commitstoryignore pattern.
	OriginIgnored Origin = "ignored"
)

// rootCommitWindow is the chat lookback used when a commit has no parent.
const rootCommitWindow = 24 * time.Hour

// Commit holds the metadata and per-file diff of a single git commit.
// Immutable once read from git.
type Commit struct {
	Hash       string
	ShortHash  string
	Author     string
	Message    string
	Timestamp  time.Time
	Parent     string
	ParentTime time.Time
	Files      []*FileDiff
}

// FileDiff is the per-file slice of a commit diff.
type FileDiff struct {
	Path   string
	Patch  string
	Origin Origin
}

// Window returns the chat collection window (start, end] for this commit.
// The window opens at the parent commit time, or falls back to a fixed
// lookback for root commits.
func (c *Commit) Window() (time.Time, time.Time) {
	end := c.Timestamp
	if c.Parent == "" || c.ParentTime.IsZero() {
		return end.Add(-rootCommitWindow), end
	}
	return c.ParentTime, end
}

// WorkspaceFiles returns the diffs that may feed journal context.
func (c *Commit) WorkspaceFiles() []*FileDiff {
	files := make([]*FileDiff, 0, len(c.Files))
	for _, f := range c.Files {
		if f.Origin == OriginWorkspace {
			files = append(files, f)
		}
	}
	return files
}

// IsJournalOnly reports whether the commit touches nothing but journal
// output and ignored paths. Such commits must not be journaled again.
func (c *Commit) IsJournalOnly() bool {
	if len(c.Files) == 0 {
		return false
	}
	for _, f := range c.Files {
		if f.Origin == OriginWorkspace {
			return false
		}
	}
	return true
}

// DiffText concatenates the workspace-origin patches for prompt assembly.
func (c *Commit) DiffText() string {
	var size int
	files := c.WorkspaceFiles()
	for _, f := range files {
		size += len(f.Patch)
	}
	buf := make([]byte, 0, size)
	for _, f := range files {
		buf = append(buf, f.Patch...)
	}
	return string(buf)
}
