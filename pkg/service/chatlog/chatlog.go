package chatlog

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/logging"
)

// nonAlnumRe mirrors how Claude Code encodes a project path into its session
// directory name: every non-alphanumeric rune becomes a dash.
var nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9]`)

type Reader interface {
	Collect(ctx context.Context, repoPath string, start, end time.Time) ([]*model.ChatSession, error)
}

// Collector reads Claude Code session logs for one repository.
type Collector struct {
	projectsDir string
}

type Option func(*Collector)

// WithProjectsDir overrides the session log root (default ~/.claude/projects).
func WithProjectsDir(dir string) Option {
	return func(x *Collector) {
		x.projectsDir = dir
	}
}

var _ Reader = (*Collector)(nil)

func New(opts ...Option) (*Collector, error) {
	x := &Collector{}
	for _, opt := range opts {
		opt(x)
	}

	if x.projectsDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, goerr.Wrap(err, "failed to resolve home directory")
		}
		x.projectsDir = filepath.Join(home, ".claude", "projects")
	}

	return x, nil
}

// logLine is one JSONL record. Fields this tool does not use are ignored,
// and lines that fail to parse are skipped rather than failing the run.
type logLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Timestamp string `json:"timestamp"`
	CWD       string `json:"cwd"`
	GitBranch string `json:"gitBranch"`
	IsMeta    bool   `json:"isMeta"`
	Message   struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

// Collect returns the user/assistant text messages recorded for repoPath
// with timestamps in (start, end], grouped by session and ordered by time.
// A repository with no session directory yields an empty result, not an
// error; the caller decides whether that is fatal.
func (x *Collector) Collect(ctx context.Context, repoPath string, start, end time.Time) ([]*model.ChatSession, error) {
	dir := filepath.Join(x.projectsDir, encodeProjectPath(repoPath))

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to read session directory", goerr.V("dir", dir))
	}

	logger := logging.From(ctx)
	sessions := map[model.SessionID]*model.ChatSession{}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".jsonl") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := x.collectFile(path, start, end, sessions); err != nil {
			logger.Warn("skipping unreadable session log", "path", path, "error", err)
		}
	}

	out := make([]*model.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		sort.SliceStable(s.Messages, func(i, j int) bool {
			return s.Messages[i].Timestamp.Before(s.Messages[j].Timestamp)
		})
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Messages[0].Timestamp.Before(out[j].Messages[0].Timestamp)
	})

	return out, nil
}

func (x *Collector) collectFile(path string, start, end time.Time, sessions map[model.SessionID]*model.ChatSession) error {
	f, err := os.Open(path)
	if err != nil {
		return goerr.Wrap(err, "failed to open session log")
	}
	defer f.Close()

	fallbackID := model.SessionID(strings.TrimSuffix(filepath.Base(path), ".jsonl"))

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var ll logLine
		if err := json.Unmarshal(line, &ll); err != nil {
			continue
		}
		msg, ok := parseMessage(ll)
		if !ok {
			continue
		}
		if !msg.Timestamp.After(start) || msg.Timestamp.After(end) {
			continue
		}

		id := model.SessionID(ll.SessionID)
		if id == "" {
			id = fallbackID
		}
		s, exists := sessions[id]
		if !exists {
			s = &model.ChatSession{ID: id, Path: path}
			sessions[id] = s
		}
		if s.CWD == "" {
			s.CWD = ll.CWD
		}
		if s.GitBranch == "" {
			s.GitBranch = ll.GitBranch
		}
		msg.Session = id
		s.Messages = append(s.Messages, msg)
	}

	return scanner.Err()
}

// parseMessage keeps user/assistant text records and drops everything else
// (summaries, tool results, meta lines, records without parsable time).
func parseMessage(ll logLine) (*model.ChatMessage, bool) {
	if ll.IsMeta {
		return nil, false
	}

	var role model.ChatRole
	switch ll.Type {
	case "user":
		role = model.ChatRoleUser
	case "assistant":
		role = model.ChatRoleAssistant
	default:
		return nil, false
	}
	if ll.Message.Role != "" && ll.Message.Role != string(role) {
		return nil, false
	}

	text := decodeContent(ll.Message.Content)
	if text == "" {
		return nil, false
	}

	ts, err := time.Parse(time.RFC3339Nano, ll.Timestamp)
	if err != nil {
		return nil, false
	}

	return &model.ChatMessage{
		Role:      role,
		Text:      text,
		Timestamp: ts.UTC(),
	}, true
}

// decodeContent handles both content shapes: a plain string, or an array of
// typed blocks from which only text blocks are kept.
func decodeContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}

	var parts []string
	for _, b := range blocks {
		if b.Type == "text" && strings.TrimSpace(b.Text) != "" {
			parts = append(parts, strings.TrimSpace(b.Text))
		}
	}
	return strings.Join(parts, "\n")
}

func encodeProjectPath(path string) string {
	return nonAlnumRe.ReplaceAllString(path, "-")
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// EncodeProjectPathForTest is a test helper that exposes encodeProjectPath
func EncodeProjectPathForTest(path string) string {
	return encodeProjectPath(path)
}
