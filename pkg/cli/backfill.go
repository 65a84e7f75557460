package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/usecase/journal"
)

func backfillCommand() *cli.Command {
	var (
		cfg    config
		since  string
		repair bool
		dryRun bool
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "since",
			Usage:       "Starting point: a git rev or a date (YYYY-MM-DD)",
			Required:    true,
			Destination: &since,
		},
		&cli.BoolFlag{
			Name:        "repair",
			Usage:       "Also regenerate entries that contain failed sections",
			Destination: &repair,
		},
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Report what would be generated without calling the LLM or writing files",
			Destination: &dryRun,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "backfill",
		Usage: "Generate missing journal entries for historical commits",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			root, fc, err := cfg.resolveRepo(ctx)
			if err != nil {
				return err
			}

			ctx, tele := cfg.newTelemetry(ctx, fc)
			defer flushTelemetry(ctx, tele)

			uc, err := cfg.newJournalUseCase(ctx, root, fc, tele, c.Root().Writer)
			if err != nil {
				return err
			}

			res, err := uc.Backfill(ctx, journal.BackfillInput{
				Since:  since,
				Repair: repair,
				DryRun: dryRun,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to backfill journal")
			}

			if res.Failed > 0 {
				return goerr.New("backfill finished with failures", goerr.V("failed", res.Failed))
			}
			return nil
		},
	}
}
