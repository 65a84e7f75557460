package config

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	"github.com/m-mizutani/goerr/v2"
)

// IgnoreFileName is looked up at the repository root.
const IgnoreFileName = ".commitstoryignore"

// Ignore matches repository-relative paths against .commitstoryignore
// patterns. Matched files are excluded from the diff sent to the LLM but stay
// in the commit stat line.
type Ignore struct {
	rules []ignoreRule
}

type ignoreRule struct {
	raw   string
	globs []glob.Glob
}

// LoadIgnore reads .commitstoryignore from repoRoot. A missing file yields an
// empty matcher.
func LoadIgnore(repoRoot string) (*Ignore, error) {
	path := filepath.Join(repoRoot, IgnoreFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Ignore{}, nil
		}
		return nil, goerr.Wrap(err, "failed to open ignore file", goerr.V("path", path))
	}
	defer f.Close()

	ig := &Ignore{}
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := compileIgnoreRule(line)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid ignore pattern",
				goerr.V("path", path),
				goerr.V("line", lineNo),
				goerr.V("pattern", line),
			)
		}
		ig.rules = append(ig.rules, rule)
	}
	if err := scanner.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read ignore file", goerr.V("path", path))
	}
	return ig, nil
}

// ParseIgnore compiles patterns directly, one per line.
func ParseIgnore(lines []string) (*Ignore, error) {
	ig := &Ignore{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule, err := compileIgnoreRule(line)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid ignore pattern", goerr.V("pattern", line))
		}
		ig.rules = append(ig.rules, rule)
	}
	return ig, nil
}

// compileIgnoreRule expands a gitignore-style pattern into glob matchers:
//   - "dir/" matches the directory and everything below it
//   - a pattern without "/" matches at any depth
//   - a leading "/" anchors the pattern to the repository root
func compileIgnoreRule(pattern string) (ignoreRule, error) {
	rule := ignoreRule{raw: pattern}

	p := pattern
	dirOnly := strings.HasSuffix(p, "/")
	p = strings.TrimSuffix(p, "/")
	anchored := strings.HasPrefix(p, "/")
	p = strings.TrimPrefix(p, "/")

	var variants []string
	if dirOnly {
		variants = append(variants, p+"/**")
	} else {
		variants = append(variants, p)
	}
	if !anchored && !strings.Contains(p, "/") {
		if dirOnly {
			variants = append(variants, "**/"+p+"/**")
		} else {
			variants = append(variants, "**/"+p)
		}
	}

	for _, v := range variants {
		g, err := glob.Compile(v, '/')
		if err != nil {
			return ignoreRule{}, err
		}
		rule.globs = append(rule.globs, g)
	}
	return rule, nil
}

// Match reports whether the repository-relative path is excluded.
func (x *Ignore) Match(relPath string) bool {
	if x == nil || len(x.rules) == 0 {
		return false
	}
	relPath = filepath.ToSlash(relPath)
	for _, rule := range x.rules {
		for _, g := range rule.globs {
			if g.Match(relPath) {
				return true
			}
		}
	}
	return false
}

// Patterns returns the raw pattern lines, for diagnostics.
func (x *Ignore) Patterns() []string {
	out := make([]string, 0, len(x.rules))
	for _, r := range x.rules {
		out = append(out, r.raw)
	}
	return out
}
