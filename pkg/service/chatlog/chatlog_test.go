package chatlog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/service/chatlog"
)

const repoPath = "/home/whitney/projects/commit-story"

func writeSessionLog(t *testing.T, projectsDir, name string, lines ...string) {
	t.Helper()
	dir := filepath.Join(projectsDir, chatlog.EncodeProjectPathForTest(repoPath))
	gt.NoError(t, os.MkdirAll(dir, 0o755))

	body := ""
	for _, line := range lines {
		body += line + "\n"
	}
	gt.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func window() (time.Time, time.Time) {
	start := time.Date(2025, 8, 25, 10, 0, 0, 0, time.UTC)
	end := time.Date(2025, 8, 25, 11, 0, 0, 0, time.UTC)
	return start, end
}

func TestCollect(t *testing.T) {
	projectsDir := t.TempDir()
	writeSessionLog(t, projectsDir, "abc.jsonl",
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:05:00.123Z","cwd":"/home/whitney/projects/commit-story","gitBranch":"main","message":{"role":"user","content":"why does the diff include the journal file?"}}`,
		`{"type":"assistant","sessionId":"s1","timestamp":"2025-08-25T10:05:30.500Z","message":{"role":"assistant","content":[{"type":"text","text":"The collector tags paths under journal/ and the integrator drops them."},{"type":"tool_use","id":"t1","name":"Read"}]}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T09:59:59Z","message":{"role":"user","content":"too early, outside window"}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T11:00:01Z","message":{"role":"user","content":"too late, outside window"}}`,
	)

	collector, err := chatlog.New(chatlog.WithProjectsDir(projectsDir))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)

	gt.A(t, sessions).Length(1)
	s := sessions[0]
	gt.Equal(t, s.ID, model.SessionID("s1"))
	gt.Equal(t, s.CWD, repoPath)
	gt.Equal(t, s.GitBranch, "main")
	gt.A(t, s.Messages).Length(2)
	gt.Equal(t, s.Messages[0].Role, model.ChatRoleUser)
	gt.S(t, s.Messages[0].Text).Contains("journal file")
	gt.Equal(t, s.Messages[1].Role, model.ChatRoleAssistant)
	gt.S(t, s.Messages[1].Text).Contains("integrator drops them")
}

func TestCollectWindowBoundaries(t *testing.T) {
	projectsDir := t.TempDir()
	writeSessionLog(t, projectsDir, "abc.jsonl",
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:00:00Z","message":{"role":"user","content":"exactly at start, excluded"}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T11:00:00Z","message":{"role":"user","content":"exactly at end, included"}}`,
	)

	collector, err := chatlog.New(chatlog.WithProjectsDir(projectsDir))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)

	gt.A(t, sessions).Length(1)
	gt.A(t, sessions[0].Messages).Length(1)
	gt.S(t, sessions[0].Messages[0].Text).Contains("included")
}

func TestCollectGroupsBySession(t *testing.T) {
	projectsDir := t.TempDir()
	writeSessionLog(t, projectsDir, "first.jsonl",
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:10:00Z","message":{"role":"user","content":"first session"}}`,
	)
	writeSessionLog(t, projectsDir, "second.jsonl",
		`{"type":"user","sessionId":"s2","timestamp":"2025-08-25T10:05:00Z","message":{"role":"user","content":"second session"}}`,
	)

	collector, err := chatlog.New(chatlog.WithProjectsDir(projectsDir))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)

	gt.A(t, sessions).Length(2)
	// ordered by first message time
	gt.Equal(t, sessions[0].ID, model.SessionID("s2"))
	gt.Equal(t, sessions[1].ID, model.SessionID("s1"))
	gt.Equal(t, model.MessageCount(sessions), 2)
}

func TestCollectSkipsNonMessageLines(t *testing.T) {
	projectsDir := t.TempDir()
	writeSessionLog(t, projectsDir, "abc.jsonl",
		`{"type":"summary","summary":"Compacted conversation","leafUuid":"x"}`,
		`not json at all`,
		`{"type":"user","sessionId":"s1","timestamp":"not-a-time","message":{"role":"user","content":"bad timestamp"}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:20:00Z","isMeta":true,"message":{"role":"user","content":"meta line"}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:21:00Z","message":{"role":"user","content":[{"type":"tool_result","content":"exit 0"}]}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:22:00Z","message":{"role":"user","content":"  "}}`,
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:23:00Z","message":{"role":"user","content":"the only real message"}}`,
	)

	collector, err := chatlog.New(chatlog.WithProjectsDir(projectsDir))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)

	gt.A(t, sessions).Length(1)
	gt.A(t, sessions[0].Messages).Length(1)
	gt.Equal(t, sessions[0].Messages[0].Text, "the only real message")
}

func TestCollectNoSessionDir(t *testing.T) {
	collector, err := chatlog.New(chatlog.WithProjectsDir(t.TempDir()))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)
	gt.A(t, sessions).Length(0)
}

func TestCollectIgnoresOtherFiles(t *testing.T) {
	projectsDir := t.TempDir()
	writeSessionLog(t, projectsDir, "abc.jsonl",
		`{"type":"user","sessionId":"s1","timestamp":"2025-08-25T10:23:00Z","message":{"role":"user","content":"hello"}}`,
	)
	dir := filepath.Join(projectsDir, chatlog.EncodeProjectPathForTest(repoPath))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a log"), 0o644))

	collector, err := chatlog.New(chatlog.WithProjectsDir(projectsDir))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)
	gt.A(t, sessions).Length(1)
}

func TestCollectMissingSessionIDFallsBackToFileName(t *testing.T) {
	projectsDir := t.TempDir()
	writeSessionLog(t, projectsDir, "9f2c.jsonl",
		`{"type":"user","timestamp":"2025-08-25T10:23:00Z","message":{"role":"user","content":"no session id"}}`,
	)

	collector, err := chatlog.New(chatlog.WithProjectsDir(projectsDir))
	gt.NoError(t, err)

	start, end := window()
	sessions, err := collector.Collect(context.Background(), repoPath, start, end)
	gt.NoError(t, err)
	gt.A(t, sessions).Length(1)
	gt.Equal(t, sessions[0].ID, model.SessionID("9f2c"))
}

func TestEncodeProjectPath(t *testing.T) {
	gt.Equal(t,
		chatlog.EncodeProjectPathForTest("/home/whitney/projects/commit_story.go"),
		"-home-whitney-projects-commit-story-go",
	)
}
