package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func reflectCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "reflect",
		Usage:     "Add a timestamped reflection to today's journal",
		ArgsUsage: "[text...]",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			root, fc, err := cfg.resolveRepo(ctx)
			if err != nil {
				return err
			}

			text := strings.TrimSpace(strings.Join(c.Args().Slice(), " "))
			if text == "" {
				text, err = promptReflection(c.Root().Writer)
				if err != nil {
					return err
				}
				if text == "" {
					fmt.Fprintln(c.Root().Writer, "Nothing to save.")
					return nil
				}
			}

			uc, err := cfg.newReflectionUseCase(root, fc, c.Root().Writer)
			if err != nil {
				return err
			}

			if _, err := uc.AddReflection(ctx, text, time.Time{}); err != nil {
				return goerr.Wrap(err, "failed to save reflection")
			}
			return nil
		},
	}
}

// promptReflection reads a multi-line reflection from the terminal. An empty
// line finishes the note; Ctrl-C abandons it.
func promptReflection(w io.Writer) (string, error) {
	rl, err := readline.New("reflect> ")
	if err != nil {
		return "", goerr.Wrap(err, "failed to open interactive prompt")
	}
	defer rl.Close()

	fmt.Fprintln(w, "Write your reflection. Finish with an empty line.")

	var lines []string
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			return "", nil
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", goerr.Wrap(err, "failed to read reflection")
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		lines = append(lines, line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
