package journal_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/repository"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/journal"
)

var testCommitTime = time.Date(2025, 8, 25, 14, 30, 0, 0, time.UTC)

// Mock Git
type mockGit struct {
	commits map[string]*model.Commit
	revList []string
}

func (m *mockGit) RepoRoot(ctx context.Context) (string, error) {
	return "/home/dev/project", nil
}

func (m *mockGit) GitDir(ctx context.Context) (string, error) {
	return "/home/dev/project/.git", nil
}

func (m *mockGit) Commit(ctx context.Context, ref string) (*model.Commit, error) {
	c, ok := m.commits[ref]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "unknown ref", goerr.V("ref", ref))
	}
	return c, nil
}

func (m *mockGit) RevListSince(ctx context.Context, since string) ([]string, error) {
	return m.revList, nil
}

// Mock chat reader
type mockChat struct {
	sessions []*model.ChatSession
	err      error
}

func (m *mockChat) Collect(ctx context.Context, repoPath string, start, end time.Time) ([]*model.ChatSession, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sessions, nil
}

// Mock LLM
type mockLLM struct {
	mu         sync.Mutex
	generateFn func(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error)
	calls      []adapter.TextRequest
}

func (m *mockLLM) GenerateText(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()
	if m.generateFn != nil {
		return m.generateFn(ctx, req)
	}
	return &adapter.TextResult{Text: "Generated text.", Model: "gpt-4o-mini", InputTokens: 100, OutputTokens: 20}, nil
}

func (m *mockLLM) Model() string {
	return "gpt-4o-mini"
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func testCommit(hash string) *model.Commit {
	return &model.Commit{
		Hash:       hash,
		ShortHash:  hash[:7],
		Author:     "Whitney Lee",
		Message:    "add session parser",
		Timestamp:  testCommitTime,
		Parent:     "1111111111111111111111111111111111111111",
		ParentTime: testCommitTime.Add(-45 * time.Minute),
		Files: []*model.FileDiff{
			{
				Path:   "pkg/parser/session.go",
				Patch:  "diff --git a/pkg/parser/session.go b/pkg/parser/session.go\n+func Parse() {}\n",
				Origin: model.OriginWorkspace,
			},
			{
				Path:   "journal/entries/2025-08/2025-08-25.md",
				Patch:  "diff --git a/journal/entries/2025-08/2025-08-25.md b/journal/entries/2025-08/2025-08-25.md\n+### old entry\n",
				Origin: model.OriginJournal,
			},
		},
	}
}

func testSessions() []*model.ChatSession {
	return []*model.ChatSession{
		{
			ID: "s1",
			Messages: []*model.ChatMessage{
				{Session: "s1", Role: model.ChatRoleUser, Text: "let's write the session parser", Timestamp: testCommitTime.Add(-30 * time.Minute)},
				{Session: "s1", Role: model.ChatRoleAssistant, Text: "I'll start with the line scanner.", Timestamp: testCommitTime.Add(-29 * time.Minute)},
				{Session: "s1", Role: model.ChatRoleUser, Text: "handle oversized lines too", Timestamp: testCommitTime.Add(-10 * time.Minute)},
			},
		},
	}
}

type testEnv struct {
	uc   *journal.UseCase
	git  *mockGit
	chat *mockChat
	llm  *mockLLM
	repo *repository.Filesystem
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	git := &mockGit{commits: map[string]*model.Commit{
		"HEAD": testCommit("aaaaaaa1111111111111111111111111111111aa"),
	}}
	chat := &mockChat{sessions: testSessions()}
	llm := &mockLLM{}
	repo := repository.NewFilesystem(t.TempDir(), time.UTC)

	uc := journal.New(git, llm, chat, repo,
		journal.WithOutput(io.Discard),
		journal.WithLocation(time.UTC),
	)
	return &testEnv{uc: uc, git: git, chat: chat, llm: llm, repo: repo}
}

func TestGenerateWritesEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.uc.Generate(ctx, journal.GenerateInput{})
	gt.NoError(t, err)
	gt.False(t, result.Skipped)
	gt.S(t, result.Path).Contains("2025-08/2025-08-25.md")
	gt.Equal(t, env.llm.callCount(), 3)

	content, err := env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains("Commit aaaaaaa")
	gt.S(t, content).Contains(model.CommitMarker("aaaaaaa1111111111111111111111111111111aa"))
	gt.S(t, content).Contains("#### Summary")
	gt.S(t, content).Contains("#### Dialogue")
	gt.S(t, content).Contains("#### Technical Decisions")
	gt.S(t, content).Contains("Generated text.")
	gt.S(t, content).NotContains("[Section generation failed:")
}

func TestGenerateLongSessionKeepsAllMessages(t *testing.T) {
	env := newTestEnv(t)
	session := &model.ChatSession{ID: "s-long"}
	for i := 0; i < 50; i++ {
		role := model.ChatRoleUser
		if i%2 == 1 {
			role = model.ChatRoleAssistant
		}
		session.Messages = append(session.Messages, &model.ChatMessage{
			Session:   "s-long",
			Role:      role,
			Text:      fmt.Sprintf("exchange %d about the parser", i),
			Timestamp: testCommitTime.Add(-40*time.Minute + time.Duration(i)*30*time.Second),
		})
	}
	env.chat.sessions = []*model.ChatSession{session}

	result, err := env.uc.Generate(context.Background(), journal.GenerateInput{})
	gt.NoError(t, err)
	gt.False(t, result.Skipped)
	gt.False(t, result.Entry.Degraded())
	gt.Equal(t, result.Context.Stats.MessagesCollected, 50)
	gt.Equal(t, result.Context.Stats.MessagesKept, 50)

	// the whole conversation reaches the prompt when it fits the budget
	gt.S(t, env.llm.calls[0].Prompt).Contains("exchange 0 about the parser")
	gt.S(t, env.llm.calls[0].Prompt).Contains("exchange 49 about the parser")
}

func TestGeneratePromptCarriesContext(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.uc.Generate(ctx, journal.GenerateInput{})
	gt.NoError(t, err)

	gt.A(t, env.llm.calls).Length(3)
	for _, call := range env.llm.calls {
		gt.S(t, call.Prompt).Contains("add session parser")
		gt.S(t, call.Prompt).Contains("pkg/parser/session.go")
		gt.S(t, call.Prompt).Contains("let's write the session parser")
		// journal-origin diffs never reach the prompt
		gt.S(t, call.Prompt).NotContains("old entry")
		gt.S(t, call.System).Contains("journal")
	}
}

func TestGenerateJournalOnlyCommitSkips(t *testing.T) {
	env := newTestEnv(t)
	commit := testCommit("bbbbbbb2222222222222222222222222222222bb")
	commit.Files = commit.Files[1:] // journal-origin file only
	env.git.commits["HEAD"] = commit

	result, err := env.uc.Generate(context.Background(), journal.GenerateInput{})
	gt.NoError(t, err)
	gt.True(t, result.Skipped)
	gt.Equal(t, result.Reason, "journal_only")
	gt.Equal(t, env.llm.callCount(), 0)

	_, err = env.repo.ReadDay(context.Background(), testCommitTime)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestGenerateNoChatDataFails(t *testing.T) {
	env := newTestEnv(t)
	env.chat.sessions = nil

	_, err := env.uc.Generate(context.Background(), journal.GenerateInput{})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNoChatData))
	gt.Equal(t, env.llm.callCount(), 0)

	_, err = env.repo.ReadDay(context.Background(), testCommitTime)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestGenerateSectionFailureDegradesEntry(t *testing.T) {
	env := newTestEnv(t)
	env.llm.generateFn = func(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error) {
		if strings.Contains(req.Prompt, "**Dialogue** section") {
			return nil, errors.New("rate limited")
		}
		return &adapter.TextResult{Text: "Fine prose.", Model: "gpt-4o-mini"}, nil
	}

	result, err := env.uc.Generate(context.Background(), journal.GenerateInput{})
	gt.NoError(t, err)
	gt.False(t, result.Skipped)
	gt.True(t, result.Entry.Degraded())

	content, err := env.repo.ReadDay(context.Background(), testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains("[Section generation failed:")
	gt.S(t, content).Contains("Fine prose.")
}

func TestGenerateEmptyResponseMarksSection(t *testing.T) {
	env := newTestEnv(t)
	env.llm.generateFn = func(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error) {
		return &adapter.TextResult{Text: "   \n", Model: "gpt-4o-mini"}, nil
	}

	result, err := env.uc.Generate(context.Background(), journal.GenerateInput{})
	gt.NoError(t, err)
	gt.True(t, result.Entry.Degraded())

	content, err := env.repo.ReadDay(context.Background(), testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains("empty response")
}

func TestGenerateTimeoutMarksSection(t *testing.T) {
	env := newTestEnv(t)
	env.uc = journal.New(env.git, env.llm, env.chat, env.repo,
		journal.WithOutput(io.Discard),
		journal.WithLocation(time.UTC),
		journal.WithSectionTimeout(10*time.Millisecond),
	)
	env.llm.generateFn = func(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	result, err := env.uc.Generate(context.Background(), journal.GenerateInput{})
	gt.NoError(t, err)
	gt.True(t, result.Entry.Degraded())

	content, err := env.repo.ReadDay(context.Background(), testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains("[Section generation failed: timeout]")
}

func TestGenerateIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first, err := env.uc.Generate(ctx, journal.GenerateInput{})
	gt.NoError(t, err)
	gt.False(t, first.Skipped)

	second, err := env.uc.Generate(ctx, journal.GenerateInput{})
	gt.NoError(t, err)
	gt.True(t, second.Skipped)
	gt.Equal(t, second.Reason, "entry_exists")
	gt.Equal(t, env.llm.callCount(), 3)

	content, err := env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	marker := model.CommitMarker("aaaaaaa1111111111111111111111111111111aa")
	gt.Equal(t, strings.Count(content, marker), 1)
}

func TestGenerateDryRun(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.uc.Generate(ctx, journal.GenerateInput{DryRun: true})
	gt.NoError(t, err)
	gt.True(t, result.Skipped)
	gt.Equal(t, result.Reason, "dry_run")
	gt.Equal(t, env.llm.callCount(), 0)
	gt.V(t, result.Context).NotNil()
	gt.Equal(t, result.Context.Stats.MessagesCollected, 3)

	_, err = env.repo.ReadDay(ctx, testCommitTime)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestGenerateIncludesWindowReflections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	inWindow := &model.Reflection{
		ID:        model.NewReflectionID(),
		Text:      "The scanner buffer default was the real bug.",
		Timestamp: testCommitTime.Add(-20 * time.Minute),
	}
	outOfWindow := &model.Reflection{
		ID:        model.NewReflectionID(),
		Text:      "Stale note from yesterday.",
		Timestamp: testCommitTime.Add(-30 * time.Hour),
	}
	_, err := env.repo.AppendReflection(ctx, inWindow)
	gt.NoError(t, err)
	_, err = env.repo.AppendReflection(ctx, outOfWindow)
	gt.NoError(t, err)

	result, err := env.uc.Generate(ctx, journal.GenerateInput{})
	gt.NoError(t, err)
	gt.A(t, result.Entry.Reflections).Length(1)

	content, err := env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains("#### Developer Reflections")
	gt.S(t, content).Contains("The scanner buffer default was the real bug.")
	gt.S(t, content).NotContains("Stale note from yesterday.")

	// the prompt saw it too
	gt.S(t, env.llm.calls[0].Prompt).Contains("The scanner buffer default was the real bug.")
}

func TestGenerateUnknownRefFails(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.uc.Generate(context.Background(), journal.GenerateInput{Ref: "deadbeef"})
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}
