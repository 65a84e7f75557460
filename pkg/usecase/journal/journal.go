package journal

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/repository"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/service/chatlog"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	defaultSectionTimeout   = 60 * time.Second
	defaultMaxContextTokens = 32000
)

// UseCase drives the journal generation pipeline: collect commit and chat,
// integrate context, generate sections, persist the entry.
type UseCase struct {
	git     adapter.Git
	llm     adapter.LLM
	chat    chatlog.Reader
	journal repository.Journal

	tracer  trace.Tracer
	metrics *telemetry.Metrics
	output  io.Writer
	loc     *time.Location

	sectionTimeout time.Duration
	maxTokens      int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithOutput sets the progress output writer. The post-commit hook passes
// io.Discard so a silent run stays silent.
func WithOutput(w io.Writer) Option {
	return func(uc *UseCase) {
		uc.output = w
	}
}

// WithLocation sets the timezone used for day partitioning and displayed
// times.
func WithLocation(loc *time.Location) Option {
	return func(uc *UseCase) {
		if loc != nil {
			uc.loc = loc
		}
	}
}

// WithTracer sets the tracer for pipeline spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(uc *UseCase) {
		if tracer != nil {
			uc.tracer = tracer
		}
	}
}

// WithMetrics sets the pipeline instruments. Without it no metrics are
// recorded.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(uc *UseCase) {
		uc.metrics = m
	}
}

// WithSectionTimeout sets the per-section LLM call deadline.
func WithSectionTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		if d > 0 {
			uc.sectionTimeout = d
		}
	}
}

// WithMaxContextTokens sets the prompt token budget for the integrator.
func WithMaxContextTokens(n int) Option {
	return func(uc *UseCase) {
		if n > 0 {
			uc.maxTokens = n
		}
	}
}

// New creates a new journal UseCase instance
func New(
	git adapter.Git,
	llm adapter.LLM,
	chat chatlog.Reader,
	journal repository.Journal,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		git:            git,
		llm:            llm,
		chat:           chat,
		journal:        journal,
		tracer:         tracenoop.NewTracerProvider().Tracer("journal"),
		output:         os.Stdout,
		loc:            time.Local,
		sectionTimeout: defaultSectionTimeout,
		maxTokens:      defaultMaxContextTokens,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

func (u *UseCase) countSkip(ctx context.Context, reason string) {
	if u.metrics == nil {
		return
	}
	u.metrics.CommitsSkipped.Add(ctx, 1,
		metric.WithAttributes(telemetry.AttrKeySkipReason.String(reason)))
}

func (u *UseCase) countEntry(ctx context.Context) {
	if u.metrics == nil {
		return
	}
	u.metrics.EntriesGenerated.Add(ctx, 1)
}

func (u *UseCase) countSectionFailure(ctx context.Context, kind string) {
	if u.metrics == nil {
		return
	}
	u.metrics.SectionsFailed.Add(ctx, 1,
		metric.WithAttributes(telemetry.AttrKeySection.String(kind)))
}

func (u *UseCase) recordContextTokens(ctx context.Context, tokens int) {
	if u.metrics == nil {
		return
	}
	u.metrics.ContextTokens.Record(ctx, int64(tokens))
}
