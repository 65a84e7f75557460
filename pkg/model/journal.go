package model

import (
	"fmt"
	"strings"
	"time"
)

// HeaderTimeLayout is the human-readable time shown in entry headers.
const HeaderTimeLayout = "3:04:05 PM MST"

// commitMarker is the machine-readable line that identifies an entry inside
// a day file. Backfill relies on it for duplicate suppression.
const commitMarkerPrefix = "<!-- commit-story: "

type SectionKind string

const (
	SectionSummary            SectionKind = "summary"
	SectionDialogue           SectionKind = "dialogue"
	SectionTechnicalDecisions SectionKind = "technical_decisions"
)

// SectionKinds returns the generated sections in their fixed output order.
func SectionKinds() []SectionKind {
	return []SectionKind{SectionSummary, SectionDialogue, SectionTechnicalDecisions}
}

// Title returns the markdown heading for the section.
func (k SectionKind) Title() string {
	switch k {
	case SectionSummary:
		return "Summary"
	case SectionDialogue:
		return "Dialogue"
	case SectionTechnicalDecisions:
		return "Technical Decisions"
	default:
		return string(k)
	}
}

// Section is one generated block of a journal entry. A failed generation
// still yields a Section whose text is a failure marker.
type Section struct {
	Kind SectionKind
	Text string
}

const failureMarkerPrefix = "[Section generation failed:"

// FailureMarker returns the inline text recorded in place of a section whose
// generation failed. The entry as a whole is still written.
func FailureMarker(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return fmt.Sprintf("%s %s]", failureMarkerPrefix, reason)
}

// HasFailureMarker reports whether text contains a section failure marker.
func HasFailureMarker(text string) bool {
	return strings.Contains(text, failureMarkerPrefix)
}

// JournalEntry is the per-commit block appended to a dated day file.
type JournalEntry struct {
	CommitHash  string
	CommitShort string
	CommitTime  time.Time
	Sections    []Section
	Reflections []*Reflection
	GeneratedAt time.Time
}

// Degraded reports whether any section carries a failure marker.
func (e *JournalEntry) Degraded() bool {
	for _, s := range e.Sections {
		if HasFailureMarker(s.Text) {
			return true
		}
	}
	return false
}

// CommitMarker returns the machine-readable identity line for hash.
func CommitMarker(hash string) string {
	return commitMarkerPrefix + hash + " -->"
}

// escapeSeparators neutralizes text lines that consist of the block
// separator, which would otherwise end the block early when read back.
func escapeSeparators(text string) string {
	if !strings.Contains(text, "---") {
		return text
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) == "---" {
			lines[i] = "\\---"
		}
	}
	return strings.Join(lines, "\n")
}

// Markdown renders the entry block. Times are displayed in loc; the marker
// line keeps the full hash so re-runs can detect the entry regardless of
// display timezone.
func (e *JournalEntry) Markdown(loc *time.Location) string {
	var b strings.Builder
	ts := e.CommitTime.In(loc)
	fmt.Fprintf(&b, "### %s — Commit %s\n", ts.Format(HeaderTimeLayout), e.CommitShort)
	fmt.Fprintf(&b, "%s\n\n", CommitMarker(e.CommitHash))

	for _, s := range e.Sections {
		fmt.Fprintf(&b, "#### %s\n\n%s\n\n", s.Kind.Title(), escapeSeparators(strings.TrimSpace(s.Text)))
	}

	if len(e.Reflections) > 0 {
		b.WriteString("#### Developer Reflections\n\n")
		for _, r := range e.Reflections {
			fmt.Fprintf(&b, "> _%s_\n\n%s\n\n",
				r.Timestamp.In(loc).Format(HeaderTimeLayout), escapeSeparators(strings.TrimSpace(r.Text)))
		}
	}

	b.WriteString("---\n\n")
	return b.String()
}
