package adapter

import "context"

// LLM generates prose from a prompt. Implementations wrap one provider and
// honor ctx deadlines so a stuck call cannot block the post-commit hook.
type LLM interface {
	GenerateText(ctx context.Context, req TextRequest) (*TextResult, error)
	Model() string
}

// TextRequest is a single prompt for one journal section.
type TextRequest struct {
	System string
	Prompt string
}

// TextResult carries the generated text plus usage reported by the provider.
// Token counts are zero when the provider omits usage data.
type TextResult struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
}
