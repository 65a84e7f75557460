package repository

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

const (
	entriesDir     = "entries"
	reflectionsDir = "reflections"
	capturesDir    = "captures"
)

// Filesystem stores the journal as markdown files under a single root,
// laid out as <root>/<kind>/YYYY-MM/YYYY-MM-DD.md. Day boundaries follow
// the configured display timezone; the files themselves carry exact
// instants in marker lines.
type Filesystem struct {
	root string
	loc  *time.Location
}

func NewFilesystem(root string, loc *time.Location) *Filesystem {
	if loc == nil {
		loc = time.Local
	}
	return &Filesystem{root: root, loc: loc}
}

// Root returns the journal root directory.
func (x *Filesystem) Root() string {
	return x.root
}

func (x *Filesystem) dayPath(kind string, t time.Time) string {
	local := t.In(x.loc)
	return filepath.Join(x.root, kind, local.Format("2006-01"), local.Format("2006-01-02")+".md")
}

func (x *Filesystem) appendBlock(path, block string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return goerr.Wrap(err, "failed to create journal directory", goerr.V("path", path))
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return goerr.Wrap(err, "failed to open day file", goerr.V("path", path))
	}
	defer f.Close()

	if _, err := f.WriteString(block); err != nil {
		return goerr.Wrap(err, "failed to append to day file", goerr.V("path", path))
	}
	return nil
}

// AppendEntry appends the rendered entry to its day file. Appending the same
// commit twice is the caller's bug; use EntryState first.
func (x *Filesystem) AppendEntry(ctx context.Context, entry *model.JournalEntry) (string, error) {
	path := x.dayPath(entriesDir, entry.CommitTime)
	if err := x.appendBlock(path, entry.Markdown(x.loc)); err != nil {
		return "", err
	}
	return path, nil
}

// ReplaceEntry splices a regenerated entry over the existing block carrying
// the same commit marker. The file is rewritten atomically via a temp file.
func (x *Filesystem) ReplaceEntry(ctx context.Context, entry *model.JournalEntry) (string, error) {
	path := x.dayPath(entriesDir, entry.CommitTime)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", goerr.Wrap(model.ErrNotFound, "no day file to repair", goerr.V("path", path))
		}
		return "", goerr.Wrap(err, "failed to read day file", goerr.V("path", path))
	}

	content := string(data)
	start, end, found := findEntryBlock(content, entry.CommitHash)
	if !found {
		return "", goerr.Wrap(model.ErrNotFound, "entry not found in day file",
			goerr.V("path", path), goerr.V("hash", entry.CommitHash))
	}

	updated := content[:start] + entry.Markdown(x.loc) + content[end:]

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(updated), 0o644); err != nil {
		return "", goerr.Wrap(err, "failed to write updated day file", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", goerr.Wrap(err, "failed to replace day file", goerr.V("path", path))
	}
	return path, nil
}

// EntryState scans the commit's day file for its marker.
func (x *Filesystem) EntryState(ctx context.Context, day time.Time, commitHash string) (EntryState, error) {
	path := x.dayPath(entriesDir, day)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return EntryState{}, nil
		}
		return EntryState{}, goerr.Wrap(err, "failed to read day file", goerr.V("path", path))
	}

	content := string(data)
	start, end, found := findEntryBlock(content, commitHash)
	if !found {
		return EntryState{}, nil
	}

	return EntryState{
		Exists:   true,
		Degraded: model.HasFailureMarker(content[start:end]),
	}, nil
}

func (x *Filesystem) AppendReflection(ctx context.Context, r *model.Reflection) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	path := x.dayPath(reflectionsDir, r.Timestamp)
	if err := x.appendBlock(path, r.Markdown(x.loc)); err != nil {
		return "", err
	}
	return path, nil
}

func (x *Filesystem) AppendCapture(ctx context.Context, c *model.ContextCapture) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}
	path := x.dayPath(capturesDir, c.Timestamp)
	if err := x.appendBlock(path, c.Markdown(x.loc)); err != nil {
		return "", err
	}
	return path, nil
}

func (x *Filesystem) ReflectionsIn(ctx context.Context, start, end time.Time) ([]*model.Reflection, error) {
	blocks, err := x.blocksIn(reflectionsDir, "reflection", start, end)
	if err != nil {
		return nil, err
	}

	out := make([]*model.Reflection, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, &model.Reflection{
			Text:      b.body,
			Timestamp: b.ts,
		})
	}
	return out, nil
}

func (x *Filesystem) CapturesIn(ctx context.Context, start, end time.Time) ([]*model.ContextCapture, error) {
	blocks, err := x.blocksIn(capturesDir, "capture", start, end)
	if err != nil {
		return nil, err
	}

	out := make([]*model.ContextCapture, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, &model.ContextCapture{
			Label:     b.label,
			Text:      b.body,
			Timestamp: b.ts,
		})
	}
	return out, nil
}

// ReadDay returns the raw markdown of one entries day file.
func (x *Filesystem) ReadDay(ctx context.Context, day time.Time) (string, error) {
	path := x.dayPath(entriesDir, day)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", goerr.Wrap(model.ErrNotFound, "no journal entries for day",
				goerr.V("day", day.In(x.loc).Format("2006-01-02")))
		}
		return "", goerr.Wrap(err, "failed to read day file", goerr.V("path", path))
	}
	return string(data), nil
}

type parsedBlock struct {
	ts    time.Time
	label string
	body  string
}

// blocksIn reads every day file the window touches and returns the marker-
// carrying blocks whose instant falls in (start, end], oldest first.
func (x *Filesystem) blocksIn(kind, markerKind string, start, end time.Time) ([]*parsedBlock, error) {
	var out []*parsedBlock

	for _, day := range x.daysIn(start, end) {
		path := x.dayPath(kind, day)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, goerr.Wrap(err, "failed to read day file", goerr.V("path", path))
		}

		for _, b := range parseBlocks(string(data), markerKind) {
			if b.ts.After(start) && !b.ts.After(end) {
				out = append(out, b)
			}
		}
	}

	return out, nil
}

// daysIn lists the local-date midnights the window touches, inclusive.
func (x *Filesystem) daysIn(start, end time.Time) []time.Time {
	var days []time.Time

	first := start.In(x.loc)
	first = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, x.loc)
	last := end.In(x.loc)

	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// parseBlocks splits a day file into `---`-terminated blocks and keeps those
// whose marker matches markerKind. Blocks without a marker (hand-written
// notes) are ignored for window reads but left untouched in the file.
func parseBlocks(content, markerKind string) []*parsedBlock {
	var out []*parsedBlock

	var cur *parsedBlock
	var body []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)

		if trimmed == "---" {
			if cur != nil && !cur.ts.IsZero() {
				cur.body = strings.TrimSpace(strings.Join(body, "\n"))
				out = append(out, cur)
			}
			cur = nil
			body = nil
			continue
		}

		if strings.HasPrefix(trimmed, "### ") {
			cur = &parsedBlock{label: parseBlockLabel(trimmed)}
			body = nil
			continue
		}
		if cur == nil {
			continue
		}

		if kind, ts, ok := model.ParseTimestampMarker(trimmed); ok {
			if kind == markerKind {
				cur.ts = ts
			}
			continue
		}

		body = append(body, line)
	}

	return out
}

// parseBlockLabel extracts the capture label from a block header like
// "### 12:00:00 PM UTC — Context Capture: auth refactor".
func parseBlockLabel(header string) string {
	const labelPrefix = "Context Capture: "
	if i := strings.Index(header, labelPrefix); i >= 0 {
		return strings.TrimSpace(header[i+len(labelPrefix):])
	}
	return ""
}

// findEntryBlock locates the byte range of the entry block carrying the
// commit marker, from its ### header through the trailing separator.
func findEntryBlock(content, commitHash string) (int, int, bool) {
	marker := model.CommitMarker(commitHash)
	mi := strings.Index(content, marker)
	if mi < 0 {
		return 0, 0, false
	}

	start := strings.LastIndex(content[:mi], "\n### ")
	if start < 0 {
		start = 0
	} else {
		start++
	}

	sep := "\n---\n"
	rel := strings.Index(content[mi:], sep)
	if rel < 0 {
		return start, len(content), true
	}
	end := mi + rel + len(sep)
	// include the blank line after the separator
	if strings.HasPrefix(content[end:], "\n") {
		end++
	}
	return start, end, true
}

var _ Journal = (*Filesystem)(nil)
