package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/model"
)

func showCommand() *cli.Command {
	var (
		cfg     config
		dateStr string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "date",
			Aliases:     []string{"d"},
			Usage:       "Day to show (YYYY-MM-DD), defaults to today",
			Destination: &dateStr,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "show",
		Usage: "Print a day's journal entries",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			root, fc, err := cfg.resolveRepo(ctx)
			if err != nil {
				return err
			}

			repo, loc, err := cfg.newRepository(root, fc)
			if err != nil {
				return err
			}

			day := time.Now().In(loc)
			if dateStr != "" {
				day, err = time.ParseInLocation("2006-01-02", dateStr, loc)
				if err != nil {
					return goerr.Wrap(err, "invalid date, expected YYYY-MM-DD", goerr.V("date", dateStr))
				}
			}

			content, err := repo.ReadDay(ctx, day)
			if errors.Is(err, model.ErrNotFound) {
				fmt.Fprintf(c.Root().Writer, "No journal entries for %s\n", day.Format("2006-01-02"))
				return nil
			}
			if err != nil {
				return goerr.Wrap(err, "failed to read journal")
			}

			fmt.Fprint(c.Root().Writer, content)
			return nil
		},
	}
}
