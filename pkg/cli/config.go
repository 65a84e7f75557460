package cli

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	conf "github.com/wiggitywhitney/commit-story-sub001/pkg/config"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/repository"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/service/chatlog"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/journal"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/reflection"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/logging"
	"github.com/wiggitywhitney/commit-story-sub001/pkg/utils/telemetry"
)

// config holds flag values shared across commands
type config struct {
	// Repository
	repoDir string

	// Console
	debug bool
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "chdir",
			Aliases:     []string{"C"},
			Usage:       "Run as if started in this directory",
			Value:       ".",
			Sources:     cli.EnvVars("COMMIT_STORY_DIR"),
			Destination: &cfg.repoDir,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "Verbose console output",
			Sources:     cli.EnvVars("COMMIT_STORY_DEBUG"),
			Destination: &cfg.debug,
		},
	}
}

// resolveRepo locates the repository root and loads its configuration. A
// repo-local .env is applied first so API keys reach the config loader.
func (cfg *config) resolveRepo(ctx context.Context) (string, conf.Config, error) {
	root, err := adapter.NewGit(cfg.repoDir).RepoRoot(ctx)
	if err != nil {
		return "", conf.Config{}, goerr.Wrap(err, "not inside a git repository", goerr.V("dir", cfg.repoDir))
	}

	_ = godotenv.Load(filepath.Join(root, ".env"))

	fc, err := conf.Load(root)
	if err != nil {
		return "", conf.Config{}, err
	}
	return root, fc, nil
}

// debugEnabled reports whether either the --debug flag or the config file
// asked for verbose output.
func (cfg *config) debugEnabled(fc conf.Config) bool {
	return cfg.debug || fc.Debug
}

// newTelemetry builds the OTLP providers when dev mode is on and installs a
// console logger, mirrored to the collector when exporting. Exporter setup
// failures downgrade to noop providers so journaling keeps working.
func (cfg *config) newTelemetry(ctx context.Context, fc conf.Config) (context.Context, *telemetry.Telemetry) {
	level := "warn"
	if cfg.debugEnabled(fc) {
		level = "debug"
	}

	logger := logging.New(level, os.Stderr)
	tele := telemetry.Noop()

	if fc.Dev {
		t, err := telemetry.Init(ctx, fc.Telemetry, version)
		if err != nil {
			logger.Warn("telemetry export disabled", "error", err)
		} else {
			tele = t
			logger = logging.NewTee(level, os.Stderr, t.LogHandler())
		}
	}

	logging.SetDefault(logger)
	return logging.With(ctx, logger), tele
}

// flushTelemetry gives exporters a bounded window to drain before exit.
func flushTelemetry(ctx context.Context, tele *telemetry.Telemetry) {
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tele.Shutdown(flushCtx); err != nil {
		logging.From(ctx).Warn("failed to flush telemetry", "error", err)
	}
}

// newGit creates a git adapter whose collected files carry origin tags for
// the journal directory and .commitstoryignore patterns.
func (cfg *config) newGit(root string, fc conf.Config) (adapter.Git, error) {
	ign, err := conf.LoadIgnore(root)
	if err != nil {
		return nil, err
	}
	return adapter.NewGit(root, adapter.WithOriginClassifier(originClassifier(fc.JournalDir, ign))), nil
}

// newLLM creates the provider client named in the configuration. API calls
// go through an instrumented transport so HTTP spans nest under the section
// spans when telemetry is on.
func (cfg *config) newLLM(ctx context.Context, fc conf.Config) (adapter.LLM, error) {
	httpClient := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	switch fc.LLM.Provider {
	case conf.ProviderGemini:
		return adapter.NewGemini(ctx, fc.LLM.APIKey, fc.LLM.Model,
			adapter.WithGeminiHTTPClient(httpClient))
	default:
		opts := []adapter.OpenAIOption{adapter.WithOpenAIHTTPClient(httpClient)}
		if fc.LLM.BaseURL != "" {
			opts = append(opts, adapter.WithOpenAIBaseURL(fc.LLM.BaseURL))
		}
		return adapter.NewOpenAI(fc.LLM.APIKey, fc.LLM.Model, opts...)
	}
}

// newRepository creates the filesystem journal store rooted under the
// configured journal directory.
func (cfg *config) newRepository(root string, fc conf.Config) (repository.Journal, *time.Location, error) {
	loc, err := fc.Location()
	if err != nil {
		return nil, nil, err
	}
	return repository.NewFilesystem(filepath.Join(root, fc.JournalDir), loc), loc, nil
}

// newJournalUseCase assembles the full generation pipeline behind the
// generate and backfill commands.
func (cfg *config) newJournalUseCase(ctx context.Context, root string, fc conf.Config, tele *telemetry.Telemetry, out io.Writer) (*journal.UseCase, error) {
	git, err := cfg.newGit(root, fc)
	if err != nil {
		return nil, err
	}

	llm, err := cfg.newLLM(ctx, fc)
	if err != nil {
		return nil, err
	}

	chat, err := chatlog.New()
	if err != nil {
		return nil, err
	}

	repo, loc, err := cfg.newRepository(root, fc)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(tele.Meter())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create metrics")
	}

	return journal.New(git, llm, chat, repo,
		journal.WithOutput(out),
		journal.WithLocation(loc),
		journal.WithTracer(tele.Tracer()),
		journal.WithMetrics(metrics),
		journal.WithSectionTimeout(fc.LLM.Timeout()),
		journal.WithMaxContextTokens(fc.LLM.MaxContextTokens),
	), nil
}

// newReflectionUseCase creates the note-taking usecase used by the reflect
// command and the MCP server.
func (cfg *config) newReflectionUseCase(root string, fc conf.Config, w io.Writer) (*reflection.UseCase, error) {
	repo, _, err := cfg.newRepository(root, fc)
	if err != nil {
		return nil, err
	}
	return reflection.New(repo, reflection.WithOutput(w)), nil
}

// originClassifier tags journal-owned paths so collection can exclude them
// from prompts and detect journal-only commits.
func originClassifier(journalDir string, ign *conf.Ignore) adapter.OriginClassifier {
	journalDir = strings.TrimSuffix(filepath.ToSlash(journalDir), "/")
	prefix := journalDir + "/"

	return func(path string) model.Origin {
		p := filepath.ToSlash(path)
		if p == journalDir || strings.HasPrefix(p, prefix) {
			return model.OriginJournal
		}
		if ign.Match(p) {
			return model.OriginIgnored
		}
		return model.OriginWorkspace
	}
}
