package adapter_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

func TestParseCommitMeta(t *testing.T) {
	out := "f3a9c0d1e2b3a4c5d6e7f8091a2b3c4d5e6f7a8b|||f3a9c0d|||Whitney Lee <whitney@example.com>|||1756100000|||a1b2c3d4e5f60718293a4b5c6d7e8f9012345678|||Add chat collector\n\nParses session logs.\n"

	commit, err := adapter.ParseCommitMetaForTest(out)
	gt.NoError(t, err)
	gt.Equal(t, commit.Hash, "f3a9c0d1e2b3a4c5d6e7f8091a2b3c4d5e6f7a8b")
	gt.Equal(t, commit.ShortHash, "f3a9c0d")
	gt.Equal(t, commit.Author, "Whitney Lee <whitney@example.com>")
	gt.Equal(t, commit.Timestamp, time.Unix(1756100000, 0).UTC())
	gt.Equal(t, commit.Parent, "a1b2c3d4e5f60718293a4b5c6d7e8f9012345678")
	gt.Equal(t, commit.Message, "Add chat collector\n\nParses session logs.")
}

func TestParseCommitMetaRootCommit(t *testing.T) {
	out := "aaaa|||aa|||Dev <d@example.com>|||1756100000||||||first\n"

	commit, err := adapter.ParseCommitMetaForTest(out)
	gt.NoError(t, err)
	gt.Equal(t, commit.Parent, "")
	gt.Equal(t, commit.Message, "first")
}

func TestParseCommitMetaMergeKeepsFirstParent(t *testing.T) {
	out := "aaaa|||aa|||Dev <d@example.com>|||1756100000|||p1hash p2hash|||merge branch\n"

	commit, err := adapter.ParseCommitMetaForTest(out)
	gt.NoError(t, err)
	gt.Equal(t, commit.Parent, "p1hash")
}

func TestParseCommitMetaBroken(t *testing.T) {
	_, err := adapter.ParseCommitMetaForTest("not git output")
	gt.Error(t, err)
}

func TestParseFileDiffs(t *testing.T) {
	raw := `diff --git a/main.go b/main.go
index 1111111..2222222 100644
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
 package main
+// added
diff --git a/docs/old.md b/docs/new.md
similarity index 90%
rename from docs/old.md
rename to docs/new.md
index 3333333..4444444 100644
--- a/docs/old.md
+++ b/docs/new.md
@@ -1 +1 @@
-old
+new
diff --git a/gone.txt b/gone.txt
deleted file mode 100644
index 5555555..0000000
--- a/gone.txt
+++ /dev/null
@@ -1 +0,0 @@
-bye
diff --git a/logo.png b/logo.png
new file mode 100644
index 0000000..6666666
Binary files /dev/null and b/logo.png differ
`

	diffs := adapter.ParseFileDiffsForTest(raw)
	gt.A(t, diffs).Length(4)

	gt.Equal(t, diffs[0].Path, "main.go")
	gt.S(t, diffs[0].Patch).Contains("+// added")

	gt.Equal(t, diffs[1].Path, "docs/new.md")
	gt.Equal(t, diffs[2].Path, "gone.txt")
	gt.Equal(t, diffs[3].Path, "logo.png")
	gt.S(t, diffs[3].Patch).Contains("Binary files")
}

func TestParseFileDiffsQuotedPath(t *testing.T) {
	raw := "diff --git \"a/docs/caf\\303\\251.md\" \"b/docs/caf\\303\\251.md\"\n" +
		"index 1111111..2222222 100644\n" +
		"--- \"a/docs/caf\\303\\251.md\"\n" +
		"+++ \"b/docs/caf\\303\\251.md\"\n" +
		"@@ -1 +1 @@\n-x\n+y\n"

	diffs := adapter.ParseFileDiffsForTest(raw)
	gt.A(t, diffs).Length(1)
	gt.Equal(t, diffs[0].Path, "docs/café.md")
}

func TestParseFileDiffsEmpty(t *testing.T) {
	gt.A(t, adapter.ParseFileDiffsForTest("")).Length(0)
}

func requireGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}
}

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	runGit(t, dir, "init", "-q")
	runGit(t, dir, "config", "user.name", "Test Author")
	runGit(t, dir, "config", "user.email", "test@example.com")
	runGit(t, dir, "config", "commit.gpgsign", "false")
	return dir
}

func runGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %v: %v\n%s", args, err, out)
	}
}

func commitFile(t *testing.T, dir, name, content, message string) {
	t.Helper()
	path := filepath.Join(dir, name)
	gt.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	gt.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", message)
}

func TestGitCommit(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := initTestRepo(t)

	commitFile(t, dir, "main.go", "package main\n", "initial commit")
	commitFile(t, dir, "reader.go", "package main\n\nfunc read() {}\n", "add reader")

	git := adapter.NewGit(dir)

	commit, err := git.Commit(ctx, "HEAD")
	gt.NoError(t, err)
	gt.Equal(t, commit.Message, "add reader")
	gt.Equal(t, commit.Author, "Test Author <test@example.com>")
	gt.True(t, commit.Parent != "")
	gt.False(t, commit.ParentTime.IsZero())
	gt.A(t, commit.Files).Length(1)
	gt.Equal(t, commit.Files[0].Path, "reader.go")
	gt.Equal(t, commit.Files[0].Origin, model.OriginWorkspace)
	gt.S(t, commit.Files[0].Patch).Contains("+func read() {}")
}

func TestGitCommitRoot(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := initTestRepo(t)

	commitFile(t, dir, "main.go", "package main\n", "initial commit")

	git := adapter.NewGit(dir)

	commit, err := git.Commit(ctx, "HEAD")
	gt.NoError(t, err)
	gt.Equal(t, commit.Parent, "")
	gt.True(t, commit.ParentTime.IsZero())
	gt.A(t, commit.Files).Length(1)
	gt.Equal(t, commit.Files[0].Path, "main.go")
	gt.S(t, commit.Files[0].Patch).Contains("+package main")
}

func TestGitCommitClassifiesOrigins(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := initTestRepo(t)

	commitFile(t, dir, "main.go", "package main\n", "initial commit")
	gt.NoError(t, os.MkdirAll(filepath.Join(dir, "journal/entries/2025-08"), 0o755))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "journal/entries/2025-08/2025-08-25.md"), []byte("### entry\n"), 0o644))
	gt.NoError(t, os.WriteFile(filepath.Join(dir, "server.go"), []byte("package main\n\nvar s int\n"), 0o644))
	runGit(t, dir, "add", ".")
	runGit(t, dir, "commit", "-q", "-m", "mixed commit")

	git := adapter.NewGit(dir, adapter.WithOriginClassifier(func(path string) model.Origin {
		if strings.HasPrefix(path, "journal/") {
			return model.OriginJournal
		}
		return model.OriginWorkspace
	}))

	commit, err := git.Commit(ctx, "HEAD")
	gt.NoError(t, err)
	gt.A(t, commit.Files).Length(2)
	gt.False(t, commit.IsJournalOnly())

	byPath := map[string]model.Origin{}
	for _, f := range commit.Files {
		byPath[f.Path] = f.Origin
	}
	gt.Equal(t, byPath["journal/entries/2025-08/2025-08-25.md"], model.OriginJournal)
	gt.Equal(t, byPath["server.go"], model.OriginWorkspace)
}

func TestGitCommitNotFound(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := initTestRepo(t)
	commitFile(t, dir, "main.go", "package main\n", "initial commit")

	git := adapter.NewGit(dir)
	_, err := git.Commit(ctx, "does-not-exist")
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestGitRevListSince(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := initTestRepo(t)

	commitFile(t, dir, "a.go", "package main\n", "first")
	commitFile(t, dir, "b.go", "package main\n", "second")
	commitFile(t, dir, "c.go", "package main\n", "third")

	git := adapter.NewGit(dir)

	first, err := git.Commit(ctx, "HEAD~2")
	gt.NoError(t, err)

	hashes, err := git.RevListSince(ctx, first.Hash)
	gt.NoError(t, err)
	gt.A(t, hashes).Length(2)

	// oldest first
	second, err := git.Commit(ctx, hashes[0])
	gt.NoError(t, err)
	gt.Equal(t, second.Message, "second")
}

func TestGitRepoRoot(t *testing.T) {
	requireGit(t)
	ctx := context.Background()
	dir := initTestRepo(t)
	commitFile(t, dir, "main.go", "package main\n", "initial commit")

	sub := filepath.Join(dir, "pkg", "deep")
	gt.NoError(t, os.MkdirAll(sub, 0o755))

	git := adapter.NewGit(sub)
	root, err := git.RepoRoot(ctx)
	gt.NoError(t, err)

	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(root)
	gt.Equal(t, got, want)
}

func TestGitRepoRootOutsideRepo(t *testing.T) {
	requireGit(t)
	git := adapter.NewGit(t.TempDir())
	_, err := git.RepoRoot(context.Background())
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}
