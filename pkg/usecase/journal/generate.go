package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/logging"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	skipReasonJournalOnly = "journal_only"
	skipReasonExists      = "entry_exists"
	skipReasonNoChat      = "no_chat_data"
)

const rule = "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━"

// GenerateInput selects the commit to journal.
type GenerateInput struct {
	// Ref is the commit to journal. Empty means HEAD.
	Ref string
	// DryRun collects and reports context without calling the model or
	// writing anything.
	DryRun bool
}

// GenerateResult reports what the pipeline did for one commit.
type GenerateResult struct {
	Path    string
	Entry   *model.JournalEntry
	Context *model.Context
	Skipped bool
	Reason  string
}

// Generate builds and appends the journal entry for one commit. Section
// failures degrade the entry but never abort it; only missing chat data or a
// storage failure stops the run.
func (u *UseCase) Generate(ctx context.Context, input GenerateInput) (*GenerateResult, error) {
	ref := input.Ref
	if ref == "" {
		ref = "HEAD"
	}

	ctx, span := u.tracer.Start(ctx, "journal.generate")
	defer span.End()
	started := time.Now()
	defer func() {
		u.metrics.RecordStage(ctx, "generate", time.Since(started).Seconds())
	}()

	commit, err := u.collectCommit(ctx, ref)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit read failed")
		return nil, err
	}
	span.SetAttributes(telemetry.AttrKeyCommitHash.String(commit.Hash))

	fmt.Fprintf(u.output, "\n%s\n📖 COMMIT %s: %s\n%s\n",
		rule, commit.ShortHash, firstLine(commit.Message), rule)

	if commit.IsJournalOnly() {
		fmt.Fprintf(u.output, "ℹ️  Journal-only commit, nothing to record\n")
		logging.From(ctx).Info("skipping journal-only commit", "commit", commit.ShortHash)
		u.countSkip(ctx, skipReasonJournalOnly)
		return &GenerateResult{Skipped: true, Reason: skipReasonJournalOnly}, nil
	}

	state, err := u.journal.EntryState(ctx, commit.Timestamp, commit.Hash)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if state.Exists && !input.DryRun {
		fmt.Fprintf(u.output, "ℹ️  Entry already recorded for %s\n", commit.ShortHash)
		u.countSkip(ctx, skipReasonExists)
		return &GenerateResult{Skipped: true, Reason: skipReasonExists}, nil
	}

	mctx, err := u.collectContext(ctx, commit)
	if err != nil {
		if errors.Is(err, model.ErrNoChatData) {
			fmt.Fprintf(u.output, "❌ No chat messages found in the commit window\n")
			u.countSkip(ctx, skipReasonNoChat)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "context collection failed")
		return nil, err
	}

	if input.DryRun {
		u.printDryRun(commit, mctx)
		return &GenerateResult{Context: mctx, Skipped: true, Reason: "dry_run"}, nil
	}

	fmt.Fprintf(u.output, "✍️  Generating sections with %s\n", u.llm.Model())
	sections := u.composeSections(ctx, mctx)

	entry := &model.JournalEntry{
		CommitHash:  commit.Hash,
		CommitShort: commit.ShortHash,
		CommitTime:  commit.Timestamp,
		Sections:    sections,
		Reflections: mctx.Reflections,
		GeneratedAt: time.Now(),
	}

	path, err := u.writeEntry(ctx, entry, false)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry write failed")
		return nil, err
	}

	u.countEntry(ctx)
	if entry.Degraded() {
		fmt.Fprintf(u.output, "⚠️  Entry saved with failed sections: %s\n", path)
	} else {
		fmt.Fprintf(u.output, "💾 Saved journal entry: %s\n", path)
	}
	logging.From(ctx).Info("journal entry written",
		"commit", commit.ShortHash, "path", path, "degraded", entry.Degraded())

	return &GenerateResult{Path: path, Entry: entry, Context: mctx}, nil
}

func (u *UseCase) collectCommit(ctx context.Context, ref string) (*model.Commit, error) {
	ctx, span := u.tracer.Start(ctx, "journal.collect_commit")
	defer span.End()
	started := time.Now()

	commit, err := u.git.Commit(ctx, ref)
	u.metrics.RecordStage(ctx, "collect_commit", time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit read failed")
		return nil, err
	}
	return commit, nil
}

// collectContext gathers chat, reflections, and captures for the commit
// window and integrates them into the prompt context.
func (u *UseCase) collectContext(ctx context.Context, commit *model.Commit) (*model.Context, error) {
	start, end := commit.Window()

	ctx, span := u.tracer.Start(ctx, "journal.collect_context")
	defer span.End()
	chatStarted := time.Now()

	root, err := u.git.RepoRoot(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	sessions, err := u.chat.Collect(ctx, root, start, end)
	if err != nil {
		span.RecordError(err)
		return nil, goerr.Wrap(err, "failed to collect chat sessions")
	}
	u.metrics.RecordStage(ctx, "collect_chat", time.Since(chatStarted).Seconds())

	if model.MessageCount(sessions) == 0 {
		return nil, goerr.Wrap(model.ErrNoChatData, "no messages in commit window",
			goerr.V("commit", commit.ShortHash),
			goerr.V("window_start", start),
			goerr.V("window_end", end))
	}
	fmt.Fprintf(u.output, "💬 Found %d message(s) across %d session(s)\n",
		model.MessageCount(sessions), len(sessions))

	// Reflections and captures only enrich the entry; a read failure logs
	// and moves on.
	refs, err := u.journal.ReflectionsIn(ctx, start, end)
	if err != nil {
		logging.From(ctx).Warn("failed to read reflections", "error", err)
		refs = nil
	}
	caps, err := u.journal.CapturesIn(ctx, start, end)
	if err != nil {
		logging.From(ctx).Warn("failed to read captures", "error", err)
		caps = nil
	}

	integrateStarted := time.Now()
	mctx := u.buildContext(commit, sessions, refs, caps)
	u.metrics.RecordStage(ctx, "integrate", time.Since(integrateStarted).Seconds())

	span.SetAttributes(
		telemetry.AttrKeyMessagesKept.Int(mctx.Stats.MessagesKept),
		telemetry.AttrKeyEstimatedTokens.Int(mctx.Stats.EstimatedTokens),
	)
	u.recordContextTokens(ctx, mctx.Stats.EstimatedTokens)
	fmt.Fprintf(u.output, "🧩 Context: %d/%d messages kept, ~%d tokens\n",
		mctx.Stats.MessagesKept, mctx.Stats.MessagesCollected, mctx.Stats.EstimatedTokens)

	return mctx, nil
}

// composeSections runs the three generators in order. A failed section
// becomes an inline marker so the entry is still written.
func (u *UseCase) composeSections(ctx context.Context, mctx *model.Context) []model.Section {
	kinds := model.SectionKinds()
	sections := make([]model.Section, 0, len(kinds))

	for _, kind := range kinds {
		sctx, span := u.tracer.Start(ctx, "journal.generate_section", trace.WithAttributes(
			telemetry.AttrKeySection.String(string(kind)),
			telemetry.AttrKeyGenAISystem.String(genAISystem(u.llm.Model())),
			telemetry.AttrKeyGenAIModel.String(u.llm.Model()),
		))
		started := time.Now()
		text, resp, err := u.generateSection(sctx, kind, mctx)
		u.metrics.RecordStage(sctx, "section_"+string(kind), time.Since(started).Seconds())
		if resp != nil {
			span.SetAttributes(
				telemetry.AttrKeyGenAIInputTok.Int64(resp.InputTokens),
				telemetry.AttrKeyGenAIOutputTok.Int64(resp.OutputTokens),
			)
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "section generation failed")
			u.countSectionFailure(ctx, string(kind))
			logging.From(ctx).Warn("section generation failed", "section", kind, "error", err)
			reason := failureReason(err)
			fmt.Fprintf(u.output, "   ❌ %s: %s\n", kind.Title(), reason)
			sections = append(sections, model.Section{Kind: kind, Text: model.FailureMarker(reason)})
		} else {
			fmt.Fprintf(u.output, "   ✅ %s\n", kind.Title())
			sections = append(sections, model.Section{Kind: kind, Text: text})
		}
		span.End()
	}

	return sections
}

func (u *UseCase) writeEntry(ctx context.Context, entry *model.JournalEntry, replace bool) (string, error) {
	ctx, span := u.tracer.Start(ctx, "journal.write_entry")
	defer span.End()
	started := time.Now()

	var path string
	var err error
	if replace {
		path, err = u.journal.ReplaceEntry(ctx, entry)
	} else {
		path, err = u.journal.AppendEntry(ctx, entry)
	}
	u.metrics.RecordStage(ctx, "write_entry", time.Since(started).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "entry write failed")
		return "", err
	}
	return path, nil
}

func (u *UseCase) printDryRun(commit *model.Commit, mctx *model.Context) {
	start, end := commit.Window()
	fmt.Fprintf(u.output, "\n🔍 DRY RUN (no model call, no write)\n")
	fmt.Fprintf(u.output, "   Commit:      %s %s\n", commit.ShortHash, firstLine(commit.Message))
	fmt.Fprintf(u.output, "   Window:      %s .. %s\n",
		start.In(u.loc).Format(time.RFC3339), end.In(u.loc).Format(time.RFC3339))
	fmt.Fprintf(u.output, "   Files:       %d workspace, %d excluded\n",
		mctx.Stats.DiffFiles-mctx.Stats.DiffFilesExcluded, mctx.Stats.DiffFilesExcluded)
	fmt.Fprintf(u.output, "   Messages:    %d collected, %d kept\n",
		mctx.Stats.MessagesCollected, mctx.Stats.MessagesKept)
	fmt.Fprintf(u.output, "   Reflections: %d, captures: %d\n",
		len(mctx.Reflections), len(mctx.Captures))
	fmt.Fprintf(u.output, "   Est. tokens: %d (budget %d)\n",
		mctx.Stats.EstimatedTokens, u.maxTokens)
}

// failureReason condenses an error into the short reason recorded inline in
// the degraded section.
func failureReason(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	msg := strings.TrimSpace(err.Error())
	const max = 120
	if len(msg) > max {
		keep := max
		for keep > 0 && !utf8.RuneStart(msg[keep]) {
			keep--
		}
		msg = msg[:keep]
	}
	return msg
}

func genAISystem(modelName string) string {
	if strings.Contains(strings.ToLower(modelName), "gemini") {
		return "gemini"
	}
	return "openai"
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
