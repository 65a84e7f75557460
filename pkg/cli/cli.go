package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
)

// version is reported to MCP clients and stamped on the telemetry resource.
var version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:    "commit-story",
		Usage:   "Engineering journal written from your commits and AI chat sessions",
		Version: version,
		Commands: []*cli.Command{
			initCommand(),
			generateCommand(),
			backfillCommand(),
			reflectCommand(),
			showCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
