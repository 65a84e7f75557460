package telemetry

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared across spans and metrics. The gen_ai.* keys follow
// the OpenTelemetry generative-AI conventions.
const (
	AttrKeyCommitHash      = attribute.Key("commit_story.commit.hash")
	AttrKeyStage           = attribute.Key("commit_story.stage")
	AttrKeySection         = attribute.Key("commit_story.section")
	AttrKeySkipReason      = attribute.Key("commit_story.skip.reason")
	AttrKeyGenAISystem     = attribute.Key("gen_ai.system")
	AttrKeyGenAIModel      = attribute.Key("gen_ai.request.model")
	AttrKeyGenAIInputTok   = attribute.Key("gen_ai.usage.input_tokens")
	AttrKeyGenAIOutputTok  = attribute.Key("gen_ai.usage.output_tokens")
	AttrKeyMessagesKept    = attribute.Key("commit_story.chat.messages_kept")
	AttrKeyEstimatedTokens = attribute.Key("commit_story.context.estimated_tokens")
)

// Metrics holds the counters and histograms recorded by the pipeline.
type Metrics struct {
	EntriesGenerated metric.Int64Counter
	SectionsFailed   metric.Int64Counter
	CommitsSkipped   metric.Int64Counter
	StageDuration    metric.Float64Histogram
	ContextTokens    metric.Int64Histogram
}

// NewMetrics registers the pipeline instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.EntriesGenerated, err = meter.Int64Counter(
		"commit_story.entries.generated",
		metric.WithDescription("Journal entries appended"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter")
	}
	if m.SectionsFailed, err = meter.Int64Counter(
		"commit_story.sections.failed",
		metric.WithDescription("Sections replaced by a failure marker"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter")
	}
	if m.CommitsSkipped, err = meter.Int64Counter(
		"commit_story.commits.skipped",
		metric.WithDescription("Commits skipped without generating an entry"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create counter")
	}
	if m.StageDuration, err = meter.Float64Histogram(
		"commit_story.stage.duration",
		metric.WithDescription("Wall time per pipeline stage"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create histogram")
	}
	if m.ContextTokens, err = meter.Int64Histogram(
		"commit_story.context.tokens",
		metric.WithDescription("Estimated prompt tokens after filtering"),
	); err != nil {
		return nil, goerr.Wrap(err, "failed to create histogram")
	}

	return m, nil
}

// RecordStage records one stage duration with its name attribute.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.Record(ctx, seconds, metric.WithAttributes(AttrKeyStage.String(stage)))
}
