package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/wiggitywhitney/commit-story-sub001/pkg/adapter"
	conf "github.com/wiggitywhitney/commit-story-sub001/pkg/config"
)

// hookScript is installed as .git/hooks/post-commit. The trailing & keeps
// commits fast; --background suppresses console output.
const hookScript = `#!/bin/sh
# Installed by commit-story init.
commit-story generate --background &
`

const ignoreSeed = `# Paths excluded from journal context, one glob pattern per line.
# Lines starting with # are comments.
#
# Examples:
# package-lock.json
# dist/**
`

func initCommand() *cli.Command {
	var (
		cfg   config
		force bool
	)

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "force",
			Aliases:     []string{"f"},
			Usage:       "Overwrite an existing post-commit hook",
			Destination: &force,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "init",
		Usage: "Set up commit-story in the current repository",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			root, fc, err := cfg.resolveRepo(ctx)
			if err != nil {
				return err
			}
			w := c.Root().Writer

			// Default config file
			cfgPath := filepath.Join(root, conf.FileNameJSON)
			created, err := writeDefaultConfig(cfgPath)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(w, "✅ Wrote %s\n", conf.FileNameJSON)
			} else {
				fmt.Fprintf(w, "⏭️ %s already exists\n", conf.FileNameJSON)
			}

			// Ignore file
			ignPath := filepath.Join(root, conf.IgnoreFileName)
			created, err = writeIfAbsent(ignPath, []byte(ignoreSeed), 0o644)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(w, "✅ Seeded %s\n", conf.IgnoreFileName)
			} else {
				fmt.Fprintf(w, "⏭️ %s already exists\n", conf.IgnoreFileName)
			}

			// Post-commit hook
			gitDir, err := adapter.NewGit(root).GitDir(ctx)
			if err != nil {
				return err
			}
			installed, err := installHook(filepath.Join(gitDir, "hooks", "post-commit"), force)
			if err != nil {
				return err
			}
			if installed {
				fmt.Fprintf(w, "✅ Installed post-commit hook\n")
			} else {
				fmt.Fprintf(w, "⏭️ post-commit hook already exists (use --force to overwrite)\n")
			}

			// Keep the journal out of version control by default.
			entry := filepath.ToSlash(fc.JournalDir) + "/"
			added, err := ensureGitignore(filepath.Join(root, ".gitignore"), entry)
			if err != nil {
				return err
			}
			if added {
				fmt.Fprintf(w, "✅ Added %s to .gitignore\n", entry)
			} else {
				fmt.Fprintf(w, "⏭️ %s already in .gitignore\n", entry)
			}

			fmt.Fprintf(w, "✅ commit-story is ready. Set OPENAI_API_KEY (or GEMINI_API_KEY) and commit away.\n")
			return nil
		},
	}
}

func writeDefaultConfig(path string) (bool, error) {
	data, err := json.MarshalIndent(conf.Default(), "", "  ")
	if err != nil {
		return false, goerr.Wrap(err, "failed to marshal default config")
	}
	return writeIfAbsent(path, append(data, '\n'), 0o644)
}

// writeIfAbsent creates a file only when it does not exist yet.
func writeIfAbsent(path string, data []byte, perm os.FileMode) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, goerr.Wrap(err, "failed to stat file", goerr.V("path", path))
	}

	if err := os.WriteFile(path, data, perm); err != nil {
		return false, goerr.Wrap(err, "failed to write file", goerr.V("path", path))
	}
	return true, nil
}

func installHook(path string, force bool) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		return false, nil
	} else if err != nil && !os.IsNotExist(err) {
		return false, goerr.Wrap(err, "failed to stat hook", goerr.V("path", path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, goerr.Wrap(err, "failed to create hooks directory", goerr.V("path", path))
	}
	if err := os.WriteFile(path, []byte(hookScript), 0o755); err != nil {
		return false, goerr.Wrap(err, "failed to write hook", goerr.V("path", path))
	}
	return true, nil
}

// ensureGitignore appends entry to the .gitignore at path unless an
// equivalent line is already present. The file is created when missing.
func ensureGitignore(path, entry string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return false, goerr.Wrap(err, "failed to read .gitignore", goerr.V("path", path))
	}

	trimmed := strings.TrimSuffix(entry, "/")
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == entry || line == trimmed {
			return false, nil
		}
	}

	var b strings.Builder
	b.Write(data)
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n# commit-story journal\n" + entry + "\n")

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return false, goerr.Wrap(err, "failed to update .gitignore", goerr.V("path", path))
	}
	return true, nil
}
