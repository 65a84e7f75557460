package main

import (
	"context"
	"os"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/cli"
)

func main() {
	ctx := context.Background()
	if err := cli.Run(ctx, os.Args); err != nil {
		os.Exit(err.Code)
	}
}
