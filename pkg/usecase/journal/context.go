package journal

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

// promptOverheadTokens is the fixed allowance for the template text wrapped
// around the data.
const promptOverheadTokens = 600

// messageFramingTokens covers the timestamp and speaker prefix added per
// message when the transcript is rendered.
const messageFramingTokens = 8

const (
	userRoleWeight      = 2.0
	assistantRoleWeight = 1.0
	termMatchWeight     = 0.5
	maxTermMatches      = 8
)

// charsPerToken returns the average characters per token for the model
// family. Character-based estimation tracks mixed code/prose content better
// than word counts.
func charsPerToken(modelName string) float64 {
	m := strings.ToLower(modelName)
	switch {
	case strings.Contains(m, "gemini"):
		return 3.8
	case strings.Contains(m, "claude"):
		return 3.5
	default:
		return 3.5
	}
}

func estimateTokens(text, modelName string) int {
	if text == "" {
		return 0
	}
	return int(float64(len(text)) / charsPerToken(modelName))
}

// noisePrefixes mark wrapper turns Claude Code records around slash commands
// and interruptions. They carry no conversational content.
var noisePrefixes = []string{
	"<command-name>",
	"<command-message>",
	"<local-command-stdout>",
	"[Request interrupted by user",
	"Caveat: The messages below were generated by the user while running local commands",
}

func isNoiseMessage(m *model.ChatMessage) bool {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return true
	}
	for _, prefix := range noisePrefixes {
		if strings.HasPrefix(text, prefix) {
			return true
		}
	}
	return false
}

// buildContext assembles the prompt input for one commit: provenance-tagged
// diff text, noise-filtered chat, reflections and captures, all trimmed to
// the token budget.
func (u *UseCase) buildContext(commit *model.Commit, sessions []*model.ChatSession, refs []*model.Reflection, caps []*model.ContextCapture) *model.Context {
	modelName := u.llm.Model()
	collected := model.MessageCount(sessions)

	var excluded int
	for _, f := range commit.Files {
		if f.Origin != model.OriginWorkspace {
			excluded++
		}
	}

	kept := dropNoise(sessions)

	// The diff never takes more than half the budget; chat fills the rest.
	diff := commit.DiffText()
	diffBudget := u.maxTokens / 2
	if estimateTokens(diff, modelName) > diffBudget {
		diff = truncateDiff(commit.WorkspaceFiles(), int(float64(diffBudget)*charsPerToken(modelName)))
	}

	refText := renderReflections(refs, u.loc)
	capText := renderCaptures(caps, u.loc)
	fixed := estimateTokens(diff, modelName) +
		estimateTokens(refText, modelName) +
		estimateTokens(capText, modelName) +
		promptOverheadTokens

	chatBudget := u.maxTokens - fixed
	if chatBudget < 0 {
		chatBudget = 0
	}
	kept = truncateToBudget(kept, commit, chatBudget, modelName)

	return &model.Context{
		Commit:      commit,
		Diff:        diff,
		Sessions:    kept,
		Reflections: refs,
		Captures:    caps,
		Stats: model.ContextStats{
			MessagesCollected: collected,
			MessagesKept:      model.MessageCount(kept),
			DiffFiles:         len(commit.Files),
			DiffFilesExcluded: excluded,
			EstimatedTokens:   fixed + transcriptTokens(kept, modelName),
		},
	}
}

func dropNoise(sessions []*model.ChatSession) []*model.ChatSession {
	out := make([]*model.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		msgs := make([]*model.ChatMessage, 0, len(s.Messages))
		for _, m := range s.Messages {
			if isNoiseMessage(m) {
				continue
			}
			msgs = append(msgs, m)
		}
		if len(msgs) == 0 {
			continue
		}
		out = append(out, &model.ChatSession{
			ID:        s.ID,
			Path:      s.Path,
			CWD:       s.CWD,
			GitBranch: s.GitBranch,
			Messages:  msgs,
		})
	}
	return out
}

// commitTerms extracts the commit's searchable vocabulary: message words and
// changed file basenames, lowercased, short tokens dropped.
func commitTerms(c *model.Commit) []string {
	seen := map[string]bool{}
	var terms []string
	add := func(s string) {
		s = strings.ToLower(strings.Trim(s, ".,:;!?'\"()[]{}`"))
		if len(s) < 3 || seen[s] {
			return
		}
		seen[s] = true
		terms = append(terms, s)
	}
	for _, w := range strings.Fields(c.Message) {
		add(w)
	}
	for _, f := range c.WorkspaceFiles() {
		base := filepath.Base(f.Path)
		add(base)
		add(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	return terms
}

// relevance scores a message for budget truncation. Developer turns outrank
// assistant turns; mentioning a changed file or a commit-message term raises
// the score.
func relevance(m *model.ChatMessage, terms []string) float64 {
	score := assistantRoleWeight
	if m.Role == model.ChatRoleUser {
		score = userRoleWeight
	}
	text := strings.ToLower(m.Text)
	matches := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			matches++
			if matches == maxTermMatches {
				break
			}
		}
	}
	return score + float64(matches)*termMatchWeight
}

// truncateToBudget drops the lowest-relevance messages until the estimated
// transcript fits the budget. Kept messages stay in their original order.
func truncateToBudget(sessions []*model.ChatSession, commit *model.Commit, budget int, modelName string) []*model.ChatSession {
	type entry struct {
		tokens int
		score  float64
	}

	var entries []entry
	total := 0
	terms := commitTerms(commit)
	for _, s := range sessions {
		for _, m := range s.Messages {
			tokens := estimateTokens(m.Text, modelName) + messageFramingTokens
			entries = append(entries, entry{tokens: tokens, score: relevance(m, terms)})
			total += tokens
		}
	}
	if total <= budget {
		return sessions
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return entries[order[a]].score < entries[order[b]].score
	})

	dropped := make(map[int]bool, len(entries))
	for _, idx := range order {
		if total <= budget {
			break
		}
		dropped[idx] = true
		total -= entries[idx].tokens
	}

	out := make([]*model.ChatSession, 0, len(sessions))
	flat := 0
	for _, s := range sessions {
		msgs := make([]*model.ChatMessage, 0, len(s.Messages))
		for _, m := range s.Messages {
			if !dropped[flat] {
				msgs = append(msgs, m)
			}
			flat++
		}
		if len(msgs) == 0 {
			continue
		}
		out = append(out, &model.ChatSession{
			ID:        s.ID,
			Path:      s.Path,
			CWD:       s.CWD,
			GitBranch: s.GitBranch,
			Messages:  msgs,
		})
	}
	return out
}

func transcriptTokens(sessions []*model.ChatSession, modelName string) int {
	var total int
	for _, s := range sessions {
		for _, m := range s.Messages {
			total += estimateTokens(m.Text, modelName) + messageFramingTokens
		}
	}
	return total
}

// truncateDiff keeps whole patches in order up to the character limit. The
// first patch that crosses the limit is cut mid-patch; the rest are dropped
// with a count so the model knows material is missing.
func truncateDiff(files []*model.FileDiff, limit int) string {
	var b strings.Builder
	omitted := 0
	for _, f := range files {
		if b.Len() >= limit {
			omitted++
			continue
		}
		patch := f.Patch
		if b.Len()+len(patch) > limit {
			keep := limit - b.Len()
			for keep > 0 && !utf8.RuneStart(patch[keep]) {
				keep--
			}
			patch = patch[:keep] + "\n[patch truncated]\n"
		}
		b.WriteString(patch)
	}
	if omitted > 0 {
		fmt.Fprintf(&b, "[%d more files omitted]\n", omitted)
	}
	return b.String()
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

func EstimateTokensForTest(text, modelName string) int {
	return estimateTokens(text, modelName)
}

func IsNoiseMessageForTest(m *model.ChatMessage) bool {
	return isNoiseMessage(m)
}

func CommitTermsForTest(c *model.Commit) []string {
	return commitTerms(c)
}

func TruncateDiffForTest(files []*model.FileDiff, limit int) string {
	return truncateDiff(files, limit)
}

func (u *UseCase) BuildContextForTest(commit *model.Commit, sessions []*model.ChatSession, refs []*model.Reflection, caps []*model.ContextCapture) *model.Context {
	return u.buildContext(commit, sessions, refs, caps)
}
