package journal_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/journal"
)

func backfillEnv(t *testing.T) (*testEnv, *model.Commit, *model.Commit) {
	t.Helper()
	env := newTestEnv(t)

	c1 := testCommit("1010101010101010101010101010101010101010")
	c1.Timestamp = testCommitTime.Add(-2 * time.Hour)
	c1.ParentTime = c1.Timestamp.Add(-30 * time.Minute)
	c1.Message = "first pass at the collector"

	c2 := testCommit("2020202020202020202020202020202020202020")
	c2.Timestamp = testCommitTime.Add(-1 * time.Hour)
	c2.ParentTime = c1.Timestamp
	c2.Message = "wire the collector into the pipeline"

	env.git.revList = []string{c1.Hash, c2.Hash}
	env.git.commits[c1.Hash] = c1
	env.git.commits[c2.Hash] = c2
	return env, c1, c2
}

func TestBackfillGeneratesMissingEntries(t *testing.T) {
	env, c1, c2 := backfillEnv(t)
	ctx := context.Background()

	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	gt.Equal(t, result.Processed, 2)
	gt.Equal(t, result.Generated, 2)
	gt.Equal(t, result.Skipped, 0)
	gt.Equal(t, result.Failed, 0)

	content, err := env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	gt.Equal(t, strings.Count(content, model.CommitMarker(c1.Hash)), 1)
	gt.Equal(t, strings.Count(content, model.CommitMarker(c2.Hash)), 1)

	// entries appear oldest first within the day file
	gt.True(t, strings.Index(content, model.CommitMarker(c1.Hash)) < strings.Index(content, model.CommitMarker(c2.Hash)))
}

func TestBackfillIsIdempotent(t *testing.T) {
	env, _, _ := backfillEnv(t)
	ctx := context.Background()

	_, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	calls := env.llm.callCount()

	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	gt.Equal(t, result.Generated, 0)
	gt.Equal(t, result.Skipped, 2)
	gt.Equal(t, env.llm.callCount(), calls)
}

func TestBackfillRepairsDegradedEntries(t *testing.T) {
	env, c1, c2 := backfillEnv(t)
	ctx := context.Background()

	// first run writes c1 degraded, c2 clean
	env.llm.generateFn = func(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error) {
		if strings.Contains(req.Prompt, "first pass at the collector") {
			return nil, errors.New("provider exploded")
		}
		return &adapter.TextResult{Text: "Clean prose.", Model: "gpt-4o-mini"}, nil
	}
	_, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)

	content, err := env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains("[Section generation failed:")

	// without --repair the degraded entry stays put
	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	gt.Equal(t, result.Repaired, 0)
	gt.Equal(t, result.Skipped, 2)

	// with --repair only the degraded entry is regenerated
	env.llm.generateFn = func(ctx context.Context, req adapter.TextRequest) (*adapter.TextResult, error) {
		return &adapter.TextResult{Text: "Repaired prose.", Model: "gpt-4o-mini"}, nil
	}
	result, err = env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week", Repair: true})
	gt.NoError(t, err)
	gt.Equal(t, result.Repaired, 1)
	gt.Equal(t, result.Generated, 0)
	gt.Equal(t, result.Skipped, 1)

	content, err = env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).NotContains("[Section generation failed:")
	gt.S(t, content).Contains("Repaired prose.")
	gt.S(t, content).Contains("Clean prose.")
	gt.Equal(t, strings.Count(content, model.CommitMarker(c1.Hash)), 1)
	gt.Equal(t, strings.Count(content, model.CommitMarker(c2.Hash)), 1)
}

func TestBackfillSkipsCommitsWithoutChat(t *testing.T) {
	env, _, _ := backfillEnv(t)
	env.chat.sessions = nil
	ctx := context.Background()

	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	gt.Equal(t, result.Generated, 0)
	gt.Equal(t, result.Skipped, 2)
	gt.Equal(t, result.Failed, 0)

	_, err = env.repo.ReadDay(ctx, testCommitTime)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestBackfillSkipsJournalOnlyCommits(t *testing.T) {
	env, c1, _ := backfillEnv(t)
	c1.Files = c1.Files[1:] // journal-origin file only
	ctx := context.Background()

	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	gt.Equal(t, result.Generated, 1)
	gt.Equal(t, result.Skipped, 1)
}

func TestBackfillDryRun(t *testing.T) {
	env, _, _ := backfillEnv(t)
	ctx := context.Background()

	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week", DryRun: true})
	gt.NoError(t, err)
	gt.Equal(t, result.Generated, 2)
	gt.Equal(t, env.llm.callCount(), 0)

	_, err = env.repo.ReadDay(ctx, testCommitTime)
	gt.True(t, errors.Is(err, model.ErrNotFound))
}

func TestBackfillRequiresSince(t *testing.T) {
	env, _, _ := backfillEnv(t)

	_, err := env.uc.Backfill(context.Background(), journal.BackfillInput{})
	gt.Error(t, err)
}

func TestBackfillContinuesPastBrokenCommits(t *testing.T) {
	env, _, c2 := backfillEnv(t)
	env.git.revList = []string{"4040404040404040404040404040404040404040", c2.Hash}
	ctx := context.Background()

	result, err := env.uc.Backfill(ctx, journal.BackfillInput{Since: "last week"})
	gt.NoError(t, err)
	gt.Equal(t, result.Failed, 1)
	gt.Equal(t, result.Generated, 1)

	content, err := env.repo.ReadDay(ctx, testCommitTime)
	gt.NoError(t, err)
	gt.S(t, content).Contains(model.CommitMarker(c2.Hash))
}
