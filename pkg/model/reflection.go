package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type ReflectionID string

// NewReflectionID generates a new unique ReflectionID.
func NewReflectionID() ReflectionID {
	return ReflectionID(uuid.New().String())
}

// Reflection is a user-authored, timestamped free-text note captured outside
// the commit flow. Reflections are append-only and partitioned by day.
type Reflection struct {
	ID        ReflectionID
	Text      string
	Timestamp time.Time
}

// Validate checks that the reflection can be stored.
func (r *Reflection) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return goerr.New("reflection text is empty")
	}
	if r.Timestamp.IsZero() {
		return goerr.New("reflection timestamp is zero")
	}
	return nil
}

// Markdown renders the reflection block appended to the day file. The header
// shows the time in loc for humans; the marker line keeps the exact instant
// so window reads never depend on zone abbreviations.
func (r *Reflection) Markdown(loc *time.Location) string {
	ts := r.Timestamp.In(loc)
	return fmt.Sprintf("### %s — Reflection\n%s\n\n%s\n\n---\n\n",
		ts.Format(HeaderTimeLayout),
		ReflectionMarker(r.Timestamp),
		escapeSeparators(strings.TrimSpace(r.Text)))
}

type CaptureID string

// NewCaptureID generates a new unique CaptureID.
func NewCaptureID() CaptureID {
	return CaptureID(uuid.New().String())
}

// ContextCapture is an AI-authored working-memory snapshot, stored alongside
// reflections but authored by the assistant rather than the developer.
type ContextCapture struct {
	ID        CaptureID
	Label     string
	Text      string
	Timestamp time.Time
}

// Validate checks that the capture can be stored.
func (c *ContextCapture) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return goerr.New("capture text is empty")
	}
	if c.Timestamp.IsZero() {
		return goerr.New("capture timestamp is zero")
	}
	return nil
}

// Markdown renders the capture block appended to the day file.
func (c *ContextCapture) Markdown(loc *time.Location) string {
	ts := c.Timestamp.In(loc)
	title := "Context Capture"
	if c.Label != "" {
		title = fmt.Sprintf("Context Capture: %s", c.Label)
	}
	return fmt.Sprintf("### %s — %s\n%s\n\n%s\n\n---\n\n",
		ts.Format(HeaderTimeLayout), title,
		CaptureMarker(c.Timestamp),
		escapeSeparators(strings.TrimSpace(c.Text)))
}

const (
	markerKindReflection = "reflection"
	markerKindCapture    = "capture"
)

// ReflectionMarker returns the machine-readable instant line for a
// reflection block.
func ReflectionMarker(ts time.Time) string {
	return timestampMarker(markerKindReflection, ts)
}

// CaptureMarker returns the machine-readable instant line for a capture
// block.
func CaptureMarker(ts time.Time) string {
	return timestampMarker(markerKindCapture, ts)
}

func timestampMarker(kind string, ts time.Time) string {
	return fmt.Sprintf("%s%s %s -->", commitMarkerPrefix, kind, ts.UTC().Format(time.RFC3339))
}

// ParseTimestampMarker reads a reflection/capture marker line back into its
// recorded instant. Returns ok=false for anything else, including plain
// commit markers.
func ParseTimestampMarker(line string) (string, time.Time, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, commitMarkerPrefix) || !strings.HasSuffix(line, "-->") {
		return "", time.Time{}, false
	}
	body := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(line, commitMarkerPrefix), "-->"))

	fields := strings.Fields(body)
	if len(fields) != 2 {
		return "", time.Time{}, false
	}
	kind := fields[0]
	if kind != markerKindReflection && kind != markerKindCapture {
		return "", time.Time{}, false
	}

	ts, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return "", time.Time{}, false
	}
	return kind, ts.UTC(), true
}
