package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/journal"
)

func generateCommand() *cli.Command {
	var (
		cfg        config
		ref        string
		dryRun     bool
		background bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "ref",
			Usage:       "Commit to journal (any git rev)",
			Value:       "HEAD",
			Destination: &ref,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Aliases:     []string{"test"},
			Usage:       "Collect and report context without calling the LLM or writing files",
			Destination: &dryRun,
		},
		&cli.BoolFlag{
			Name:        "background",
			Usage:       "Suppress console output (used by the post-commit hook)",
			Destination: &background,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "generate",
		Usage: "Generate a journal entry for a commit",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			root, fc, err := cfg.resolveRepo(ctx)
			if err != nil {
				return err
			}

			ctx, tele := cfg.newTelemetry(ctx, fc)
			defer flushTelemetry(ctx, tele)

			// Hook runs stay silent. Foreground runs stream the pipeline
			// narrative in debug mode, or show a spinner otherwise.
			out := io.Writer(os.Stdout)
			var sp *spinner.Spinner
			switch {
			case background:
				out = io.Discard
			case !cfg.debugEnabled(fc) && !dryRun:
				out = io.Discard
				sp = spinner.New(spinner.CharSets[14], 120*time.Millisecond,
					spinner.WithWriter(os.Stderr),
					spinner.WithSuffix(" writing journal entry..."))
				sp.Start()
				defer sp.Stop()
			}

			uc, err := cfg.newJournalUseCase(ctx, root, fc, tele, out)
			if err != nil {
				return err
			}

			res, err := uc.Generate(ctx, journal.GenerateInput{Ref: ref, DryRun: dryRun})
			if sp != nil {
				sp.Stop()
			}
			if err != nil {
				return goerr.Wrap(err, "failed to generate journal entry")
			}

			if background || dryRun {
				return nil
			}
			if res.Skipped {
				fmt.Fprintf(c.Root().Writer, "Skipped: %s\n", res.Reason)
				return nil
			}
			fmt.Fprintf(c.Root().Writer, "Journal entry: %s\n", res.Path)
			return nil
		},
	}
}
