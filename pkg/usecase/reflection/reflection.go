package reflection

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/repository"
)

// UseCase records developer reflections and AI context captures. Both are
// append-only day-partitioned notes that later feed the matching commit
// window.
type UseCase struct {
	journal repository.Journal
	output  io.Writer
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithOutput sets the output writer
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// New creates a new reflection UseCase instance
func New(journal repository.Journal, opts ...Option) *UseCase {
	uc := &UseCase{
		journal: journal,
		output:  os.Stdout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// AddReflection records a manual developer note. A zero ts means now.
func (u *UseCase) AddReflection(ctx context.Context, text string, ts time.Time) (string, error) {
	if ts.IsZero() {
		ts = time.Now()
	}

	r := &model.Reflection{
		ID:        model.NewReflectionID(),
		Text:      text,
		Timestamp: ts,
	}

	path, err := u.journal.AppendReflection(ctx, r)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(u.output, "📝 Reflection saved: %s\n", path)
	return path, nil
}

// AddCapture records AI working memory with an optional label. A zero ts
// means now.
func (u *UseCase) AddCapture(ctx context.Context, text, label string, ts time.Time) (string, error) {
	if ts.IsZero() {
		ts = time.Now()
	}

	c := &model.ContextCapture{
		ID:        model.NewCaptureID(),
		Label:     label,
		Text:      text,
		Timestamp: ts,
	}

	path, err := u.journal.AppendCapture(ctx, c)
	if err != nil {
		return "", err
	}

	fmt.Fprintf(u.output, "🧠 Context captured: %s\n", path)
	return path, nil
}
