package journal

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

//go:embed prompt/summary.md
var summaryPromptRaw string

//go:embed prompt/dialogue.md
var dialoguePromptRaw string

//go:embed prompt/technical_decisions.md
var technicalPromptRaw string

var (
	summaryPromptTmpl   = template.Must(template.New("summary").Parse(summaryPromptRaw))
	dialoguePromptTmpl  = template.Must(template.New("dialogue").Parse(dialoguePromptRaw))
	technicalPromptTmpl = template.Must(template.New("technical_decisions").Parse(technicalPromptRaw))
)

const systemPrompt = `You are a ghostwriter for a software developer's private engineering journal. You turn a git commit and the surrounding AI-assisted coding conversation into honest, specific journal prose. You never invent facts, motives, or quotes that are not in the provided material. You write in plain markdown without top-level headings.`

func sectionTemplate(kind model.SectionKind) (*template.Template, error) {
	switch kind {
	case model.SectionSummary:
		return summaryPromptTmpl, nil
	case model.SectionDialogue:
		return dialoguePromptTmpl, nil
	case model.SectionTechnicalDecisions:
		return technicalPromptTmpl, nil
	default:
		return nil, goerr.New("unknown section kind", goerr.V("kind", kind))
	}
}

// renderSectionPrompt fills the section template with the integrated context.
func (u *UseCase) renderSectionPrompt(kind model.SectionKind, mctx *model.Context) (string, error) {
	tmpl, err := sectionTemplate(kind)
	if err != nil {
		return "", err
	}

	commit := mctx.Commit
	reflections := renderReflections(mctx.Reflections, u.loc)
	captures := renderCaptures(mctx.Captures, u.loc)

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"CommitHash":     commit.ShortHash,
		"CommitAuthor":   commit.Author,
		"CommitTime":     commit.Timestamp.In(u.loc).Format(time.RFC1123),
		"CommitMessage":  commit.Message,
		"Diff":           mctx.Diff,
		"Chat":           renderTranscript(mctx.Sessions, u.loc),
		"HasReflections": reflections != "",
		"Reflections":    reflections,
		"HasCaptures":    captures != "",
		"Captures":       captures,
	}); err != nil {
		return "", goerr.Wrap(err, "failed to execute section prompt template",
			goerr.V("section", kind))
	}

	return buf.String(), nil
}

// generateSection runs one LLM call under the section deadline and returns
// the cleaned text. An empty model response is an error so the caller can
// record a failure marker.
func (u *UseCase) generateSection(ctx context.Context, kind model.SectionKind, mctx *model.Context) (string, *adapter.TextResult, error) {
	prompt, err := u.renderSectionPrompt(kind, mctx)
	if err != nil {
		return "", nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, u.sectionTimeout)
	defer cancel()

	resp, err := u.llm.GenerateText(ctx, adapter.TextRequest{
		System: systemPrompt,
		Prompt: prompt,
	})
	if err != nil {
		return "", nil, goerr.Wrap(err, "failed to generate section",
			goerr.V("section", kind), goerr.V("model", u.llm.Model()))
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", resp, goerr.New("empty response",
			goerr.V("section", kind), goerr.V("model", u.llm.Model()))
	}

	return text, resp, nil
}

func renderTranscript(sessions []*model.ChatSession, loc *time.Location) string {
	var b strings.Builder
	for i, s := range sessions {
		if i > 0 {
			b.WriteString("\n")
		}
		if len(sessions) > 1 {
			fmt.Fprintf(&b, "(session %d of %d)\n\n", i+1, len(sessions))
		}
		for _, m := range s.Messages {
			fmt.Fprintf(&b, "[%s] **%s**: %s\n\n",
				m.Timestamp.In(loc).Format("15:04"), speakerName(m.Role), m.Text)
		}
	}
	if b.Len() == 0 {
		return "(no conversation recorded)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func speakerName(role model.ChatRole) string {
	if role == model.ChatRoleUser {
		return "Developer"
	}
	return "Assistant"
}

func renderReflections(refs []*model.Reflection, loc *time.Location) string {
	var b strings.Builder
	for _, r := range refs {
		fmt.Fprintf(&b, "[%s] %s\n\n", r.Timestamp.In(loc).Format("15:04"), r.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderCaptures(caps []*model.ContextCapture, loc *time.Location) string {
	var b strings.Builder
	for _, c := range caps {
		label := c.Label
		if label == "" {
			label = "context"
		}
		fmt.Fprintf(&b, "[%s] (%s) %s\n\n", c.Timestamp.In(loc).Format("15:04"), label, c.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
