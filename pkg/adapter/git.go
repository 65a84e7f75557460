package adapter

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

// emptyTree is the well-known hash of the empty tree object. Root commits
// are diffed against it.
const emptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// metaSeparator keeps git metadata fields apart in a single --format call.
const metaSeparator = "|||"

type Git interface {
	RepoRoot(ctx context.Context) (string, error)
	GitDir(ctx context.Context) (string, error)
	Commit(ctx context.Context, ref string) (*model.Commit, error)
	RevListSince(ctx context.Context, since string) ([]string, error)
}

// OriginClassifier tags a repo-relative path at collection time. Downstream
// stages only look at the tag, never at the path.
type OriginClassifier func(path string) model.Origin

type GitClient struct {
	dir      string
	classify OriginClassifier
}

type GitOption func(*GitClient)

// WithOriginClassifier sets the per-path Origin tagger. Defaults to tagging
// everything as workspace.
func WithOriginClassifier(fn OriginClassifier) GitOption {
	return func(g *GitClient) {
		g.classify = fn
	}
}

func NewGit(dir string, opts ...GitOption) *GitClient {
	g := &GitClient{
		dir: dir,
		classify: func(string) model.Origin {
			return model.OriginWorkspace
		},
	}

	for _, opt := range opts {
		opt(g)
	}

	return g
}

func (g *GitClient) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", goerr.Wrap(err, "git command failed",
			goerr.V("args", args),
			goerr.V("stderr", strings.TrimSpace(stderr.String())),
		)
	}
	return stdout.String(), nil
}

// RepoRoot returns the absolute path of the working tree top level.
func (g *GitClient) RepoRoot(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", goerr.Wrap(model.ErrNotFound, "not a git repository", goerr.V("dir", g.dir))
	}
	return strings.TrimSpace(out), nil
}

// GitDir returns the .git directory path, used to install hooks. Worktrees
// and submodules report their real git dir here.
func (g *GitClient) GitDir(ctx context.Context) (string, error) {
	out, err := g.run(ctx, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", goerr.Wrap(model.ErrNotFound, "not a git repository", goerr.V("dir", g.dir))
	}
	return strings.TrimSpace(out), nil
}

// Commit reads one commit with its per-file patches. Each file is tagged
// with its Origin as it is collected.
func (g *GitClient) Commit(ctx context.Context, ref string) (*model.Commit, error) {
	format := strings.Join([]string{"%H", "%h", "%an <%ae>", "%at", "%P", "%B"}, metaSeparator)
	out, err := g.run(ctx, "show", "-s", "--format="+format, ref)
	if err != nil {
		return nil, goerr.Wrap(model.ErrNotFound, "commit not found",
			goerr.V("ref", ref), goerr.V("cause", err.Error()))
	}

	commit, err := parseCommitMeta(out)
	if err != nil {
		return nil, err
	}

	if commit.Parent != "" {
		parentOut, err := g.run(ctx, "show", "-s", "--format=%at", commit.Parent)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read parent commit", goerr.V("parent", commit.Parent))
		}
		sec, err := strconv.ParseInt(strings.TrimSpace(parentOut), 10, 64)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid parent timestamp", goerr.V("parent", commit.Parent))
		}
		commit.ParentTime = time.Unix(sec, 0).UTC()
	}

	base := commit.Parent
	if base == "" {
		base = emptyTree
	}
	diffOut, err := g.run(ctx, "diff", "--no-color", "--no-ext-diff", base, commit.Hash)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read commit diff", goerr.V("hash", commit.Hash))
	}

	for _, fd := range parseFileDiffs(diffOut) {
		fd.Origin = g.classify(fd.Path)
		commit.Files = append(commit.Files, fd)
	}

	return commit, nil
}

// RevListSince lists commit hashes oldest first. The argument is tried as a
// revision first ("<rev>..HEAD"), then as a git date expression.
func (g *GitClient) RevListSince(ctx context.Context, since string) ([]string, error) {
	var out string
	var err error
	if g.isRevision(ctx, since) {
		out, err = g.run(ctx, "rev-list", "--reverse", "--first-parent", since+"..HEAD")
	} else {
		out, err = g.run(ctx, "rev-list", "--reverse", "--first-parent", "--since="+since, "HEAD")
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list commits", goerr.V("since", since))
	}

	var hashes []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line != "" {
			hashes = append(hashes, line)
		}
	}
	return hashes, nil
}

func (g *GitClient) isRevision(ctx context.Context, s string) bool {
	_, err := g.run(ctx, "rev-parse", "--verify", "--quiet", s+"^{commit}")
	return err == nil
}

func parseCommitMeta(out string) (*model.Commit, error) {
	parts := strings.SplitN(out, metaSeparator, 6)
	if len(parts) < 6 {
		return nil, goerr.New("unexpected git show output", goerr.V("output", out))
	}

	sec, err := strconv.ParseInt(strings.TrimSpace(parts[3]), 10, 64)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid commit timestamp", goerr.V("raw", parts[3]))
	}

	// %P lists all parents for merges; the first parent is the window base.
	parent := ""
	if fields := strings.Fields(parts[4]); len(fields) > 0 {
		parent = fields[0]
	}

	return &model.Commit{
		Hash:      strings.TrimSpace(parts[0]),
		ShortHash: strings.TrimSpace(parts[1]),
		Author:    strings.TrimSpace(parts[2]),
		Timestamp: time.Unix(sec, 0).UTC(),
		Parent:    parent,
		Message:   strings.TrimSpace(parts[5]),
	}, nil
}

// parseFileDiffs splits a unified diff into per-file patches.
func parseFileDiffs(raw string) []*model.FileDiff {
	var out []*model.FileDiff
	var cur *model.FileDiff
	var buf strings.Builder

	flush := func() {
		if cur == nil {
			return
		}
		cur.Patch = buf.String()
		if cur.Path == "" {
			cur.Path = pathFromPatch(cur.Patch)
		}
		out = append(out, cur)
		cur = nil
		buf.Reset()
	}

	for _, line := range strings.SplitAfter(raw, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			cur = &model.FileDiff{}
		}
		if cur != nil {
			buf.WriteString(line)
		}
	}
	flush()

	return out
}

// pathFromPatch recovers the post-image path of one file patch. The +++ line
// is authoritative; deletions fall back to the --- line, renames to the
// "rename to" header, and binary patches to the diff --git header itself.
func pathFromPatch(patch string) string {
	var minus string
	var header string
	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "+++ "):
			if p := cleanDiffPath(line[4:], "b/"); p != "" {
				return p
			}
		case strings.HasPrefix(line, "--- "):
			if minus == "" {
				minus = cleanDiffPath(line[4:], "a/")
			}
		case strings.HasPrefix(line, "rename to "):
			return strings.TrimSpace(line[len("rename to "):])
		case strings.HasPrefix(line, "diff --git "):
			header = line
		}
	}
	if minus != "" {
		return minus
	}
	return pathFromDiffHeader(header)
}

// cleanDiffPath strips the a/ or b/ prefix and surrounding quotes from a
// ---/+++ path. /dev/null yields "".
func cleanDiffPath(s, prefix string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\t'); i >= 0 {
		s = s[:i]
	}
	if s == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(s, `"`) {
		if unquoted, err := strconv.Unquote(s); err == nil {
			s = unquoted
		}
	}
	return strings.TrimPrefix(s, prefix)
}

// pathFromDiffHeader parses `diff --git a/<p> b/<p>`. Used only for binary
// patches that carry no ---/+++ lines.
func pathFromDiffHeader(line string) string {
	s := strings.TrimSpace(strings.TrimPrefix(line, "diff --git "))
	if s == "" {
		return ""
	}

	if strings.HasPrefix(s, `"`) {
		_, rest := cutQuoted(s)
		b, _ := cutQuoted(strings.TrimSpace(rest))
		return strings.TrimPrefix(b, "b/")
	}

	// Unquoted: find the " b/" boundary. Paths with spaces make the header
	// ambiguous, so prefer the split where both sides match.
	if i := strings.LastIndex(s, " b/"); i >= 0 {
		return s[i+len(" b/"):]
	}
	return ""
}

func cutQuoted(s string) (string, string) {
	if !strings.HasPrefix(s, `"`) {
		if i := strings.IndexByte(s, ' '); i >= 0 {
			return s[:i], s[i+1:]
		}
		return s, ""
	}
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '"':
			tok := s[:i+1]
			if unquoted, err := strconv.Unquote(tok); err == nil {
				tok = unquoted
			}
			return tok, s[i+1:]
		}
	}
	return s, ""
}

// Test helpers - exported versions of private functions for testing
// These should only be used in tests

// ParseCommitMetaForTest is a test helper that exposes parseCommitMeta
func ParseCommitMetaForTest(out string) (*model.Commit, error) {
	return parseCommitMeta(out)
}

// ParseFileDiffsForTest is a test helper that exposes parseFileDiffs
func ParseFileDiffsForTest(raw string) []*model.FileDiff {
	return parseFileDiffs(raw)
}
