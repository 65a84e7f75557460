package cli

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/service/mcp"
)

func mcpCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the journal tools over MCP stdio",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			root, fc, err := cfg.resolveRepo(ctx)
			if err != nil {
				return err
			}

			// Stdout carries the MCP protocol, so usecase output goes to
			// stderr where the client surfaces it as server logs.
			uc, err := cfg.newReflectionUseCase(root, fc, os.Stderr)
			if err != nil {
				return err
			}

			return mcp.NewServer(uc, mcp.WithVersion(version)).Run(ctx)
		},
	}
}
