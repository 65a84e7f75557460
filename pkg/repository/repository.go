package repository

import (
	"context"
	"time"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

// Journal defines the interface for journal persistence
type Journal interface {
	// AppendEntry appends a generated entry to its day file and returns the
	// file path
	AppendEntry(ctx context.Context, entry *model.JournalEntry) (string, error)

	// ReplaceEntry rewrites the existing entry block for the same commit,
	// used when repairing entries that carry failure markers
	ReplaceEntry(ctx context.Context, entry *model.JournalEntry) (string, error)

	// EntryState reports whether an entry for the commit exists in the day
	// file, and whether it contains failure markers
	EntryState(ctx context.Context, day time.Time, commitHash string) (EntryState, error)

	// AppendReflection appends a developer reflection to its day file and
	// returns the file path
	AppendReflection(ctx context.Context, r *model.Reflection) (string, error)

	// AppendCapture appends a context capture to its day file and returns
	// the file path
	AppendCapture(ctx context.Context, c *model.ContextCapture) (string, error)

	// ReflectionsIn returns reflections recorded in (start, end]
	ReflectionsIn(ctx context.Context, start, end time.Time) ([]*model.Reflection, error)

	// CapturesIn returns context captures recorded in (start, end]
	CapturesIn(ctx context.Context, start, end time.Time) ([]*model.ContextCapture, error)

	// ReadDay returns the raw entries file for the given day, or
	// model.ErrNotFound when no entries exist
	ReadDay(ctx context.Context, day time.Time) (string, error)
}

// EntryState describes what a day file already holds for one commit.
type EntryState struct {
	Exists   bool
	Degraded bool
}
