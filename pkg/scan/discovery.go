package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"

	"github.com/gobwas/glob"

	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var discoveryLog = logger.New("scan:discovery")

// Discovery finds entry documents below a root directory.
type Discovery struct {
	root    string
	include []glob.Glob
	exclude []glob.Glob
}

// DefaultPatterns returns the built-in entry patterns: workflows, plus
// action metadata files anywhere in the tree unless skipActions is set.
func DefaultPatterns(skipActions bool) []string {
	patterns := slices.Clone(constants.DefaultWorkflowPatterns)
	if !skipActions {
		patterns = append(patterns, constants.DefaultActionPatterns...)
	}
	return patterns
}

// NewDiscovery compiles the include and exclude patterns. Patterns are
// matched against slash-separated paths relative to root; `*` stays within
// one path segment and `**` spans several.
func NewDiscovery(root string, patterns, exclude []string) (*Discovery, error) {
	include, err := compileGlobs(patterns, "discovery pattern")
	if err != nil {
		return nil, err
	}
	excl, err := compileGlobs(exclude, "exclude pattern")
	if err != nil {
		return nil, err
	}
	return &Discovery{root: root, include: include, exclude: excl}, nil
}

func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Find walks root and returns the matching files as sorted root-relative
// slash paths. Directories in constants.SkippedDirs are not entered.
func (d *Discovery) Find(ctx context.Context) ([]string, error) {
	var files []string
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if entry.IsDir() {
			if path != d.root && slices.Contains(constants.SkippedDirs, entry.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if matchAny(d.include, rel) && !matchAny(d.exclude, rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	discoveryLog.Printf("Discovered %d entry documents under %s", len(files), d.root)
	return files, nil
}

// matchAny also tries rel with a leading slash so "**/action.yml" matches a
// file at the root.
func matchAny(globs []glob.Glob, rel string) bool {
	for _, g := range globs {
		if g.Match(rel) || g.Match("/"+rel) {
			return true
		}
	}
	return false
}
