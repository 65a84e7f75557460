package journal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/repository"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/logging"
	"go.opentelemetry.io/otel/codes"
)

// BackfillInput selects the commit range to journal retroactively.
type BackfillInput struct {
	// Since is a commit ref or a git date expression; commits after it are
	// processed oldest first.
	Since string
	// Repair regenerates entries that carry section failure markers.
	Repair bool
	// DryRun reports what would happen without calling the model or writing.
	DryRun bool
}

// BackfillResult tallies what the run did per commit.
type BackfillResult struct {
	Processed int
	Generated int
	Repaired  int
	Skipped   int
	Failed    int
}

// Backfill journals the commits after Since that have no entry yet. Unlike
// Generate, a commit without chat data is skipped, not fatal: historical
// commits legitimately predate the session logs that survive on disk.
func (u *UseCase) Backfill(ctx context.Context, input BackfillInput) (*BackfillResult, error) {
	if input.Since == "" {
		return nil, goerr.New("since is required")
	}

	ctx, span := u.tracer.Start(ctx, "journal.backfill")
	defer span.End()
	started := time.Now()
	defer func() {
		u.metrics.RecordStage(ctx, "backfill", time.Since(started).Seconds())
	}()

	hashes, err := u.git.RevListSince(ctx, input.Since)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rev-list failed")
		return nil, err
	}

	result := &BackfillResult{}
	if len(hashes) == 0 {
		fmt.Fprintf(u.output, "ℹ️  No commits found after %s\n", input.Since)
		return result, nil
	}

	fmt.Fprintf(u.output, "\n%s\n📚 BACKFILL: %d commit(s) since %s\n%s\n",
		rule, len(hashes), input.Since, rule)

	for i, hash := range hashes {
		result.Processed++
		prefix := fmt.Sprintf("[%d/%d]", i+1, len(hashes))

		commit, err := u.collectCommit(ctx, hash)
		if err != nil {
			result.Failed++
			logging.From(ctx).Warn("failed to read commit", "commit", hash, "error", err)
			fmt.Fprintf(u.output, "%s ❌ %s: %s\n", prefix, shortHash(hash), failureReason(err))
			continue
		}

		action, state, skipNote := u.planCommit(ctx, commit, input.Repair)
		if action == backfillSkip {
			result.Skipped++
			u.countSkip(ctx, skipNote)
			fmt.Fprintf(u.output, "%s ⏭️  %s: %s\n", prefix, commit.ShortHash, skipNote)
			continue
		}

		if input.DryRun {
			verb := "would generate"
			if action == backfillRepair {
				verb = "would repair"
				result.Repaired++
			} else {
				result.Generated++
			}
			fmt.Fprintf(u.output, "%s 🔍 %s: %s (%s)\n",
				prefix, commit.ShortHash, verb, firstLine(commit.Message))
			continue
		}

		mctx, err := u.collectContext(ctx, commit)
		if err != nil {
			if errors.Is(err, model.ErrNoChatData) {
				result.Skipped++
				u.countSkip(ctx, skipReasonNoChat)
				fmt.Fprintf(u.output, "%s ⏭️  %s: no chat data in window\n", prefix, commit.ShortHash)
				continue
			}
			result.Failed++
			logging.From(ctx).Warn("failed to collect context", "commit", commit.ShortHash, "error", err)
			fmt.Fprintf(u.output, "%s ❌ %s: %s\n", prefix, commit.ShortHash, failureReason(err))
			continue
		}

		sections := u.composeSections(ctx, mctx)
		entry := &model.JournalEntry{
			CommitHash:  commit.Hash,
			CommitShort: commit.ShortHash,
			CommitTime:  commit.Timestamp,
			Sections:    sections,
			Reflections: mctx.Reflections,
			GeneratedAt: time.Now(),
		}

		path, err := u.writeEntry(ctx, entry, state.Exists)
		if err != nil {
			result.Failed++
			logging.From(ctx).Error("failed to write entry", "commit", commit.ShortHash, "error", err)
			fmt.Fprintf(u.output, "%s ❌ %s: %s\n", prefix, commit.ShortHash, failureReason(err))
			continue
		}

		u.countEntry(ctx)
		if action == backfillRepair {
			result.Repaired++
			fmt.Fprintf(u.output, "%s 🔧 %s: repaired %s\n", prefix, commit.ShortHash, path)
		} else {
			result.Generated++
			fmt.Fprintf(u.output, "%s ✅ %s: %s\n", prefix, commit.ShortHash, path)
		}
	}

	fmt.Fprintf(u.output, "\n✅ Backfill done: %d generated, %d repaired, %d skipped, %d failed\n",
		result.Generated, result.Repaired, result.Skipped, result.Failed)
	logging.From(ctx).Info("backfill finished",
		"processed", result.Processed, "generated", result.Generated,
		"repaired", result.Repaired, "skipped", result.Skipped, "failed", result.Failed)

	return result, nil
}

type backfillAction int

const (
	backfillGenerate backfillAction = iota
	backfillRepair
	backfillSkip
)

// planCommit decides what backfill does with one commit based on provenance
// and what the day file already holds.
func (u *UseCase) planCommit(ctx context.Context, commit *model.Commit, repair bool) (backfillAction, repository.EntryState, string) {
	if commit.IsJournalOnly() {
		return backfillSkip, repository.EntryState{}, skipReasonJournalOnly
	}

	state, err := u.journal.EntryState(ctx, commit.Timestamp, commit.Hash)
	if err != nil {
		logging.From(ctx).Warn("failed to read entry state", "commit", commit.ShortHash, "error", err)
		return backfillSkip, repository.EntryState{}, "entry state unreadable"
	}

	switch {
	case state.Exists && state.Degraded && repair:
		return backfillRepair, state, ""
	case state.Exists && state.Degraded:
		return backfillSkip, state, "degraded entry (use --repair)"
	case state.Exists:
		return backfillSkip, state, skipReasonExists
	}
	return backfillGenerate, state, ""
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
