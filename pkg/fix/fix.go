// Package fix pins remote `uses:` references to commit SHAs in place.
//
// Each finding of the unpinned-ref rule that points into a local file is
// rewritten from `owner/repo@ref` to `owner/repo@<sha> # ref`. The rest of
// the line, including quoting and indentation, is preserved.
package fix

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/fileutil"
	"github.com/githubnext/gh-uses/pkg/gitutil"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/rules"
)

var log = logger.New("fix:fix")

// CommitResolver looks up commits and releases of remote repositories.
// resolver.GitHubResolver and resolver.GitResolver implement it.
type CommitResolver interface {
	ResolveCommit(ctx context.Context, owner, repo, ref string) (string, error)
	LatestRelease(ctx context.Context, owner, repo string) (string, error)
}

// Options tunes the rewrite.
type Options struct {
	// TwoSpaceComments separates the version comment with two spaces, as
	// yamllint's default comments rule expects.
	TwoSpaceComments bool
	// DryRun computes the changes without writing files.
	DryRun bool
	// Latest pins to the newest semver release instead of the current ref.
	Latest bool
}

// Pin is one rewritten reference.
type Pin struct {
	Location  diagnostic.Location
	Reference string
	Pinned    string
	// Comment is the ref recorded next to the SHA.
	Comment string
	OldLine string
	NewLine string
}

// Skip is a finding that could not be fixed.
type Skip struct {
	Location  diagnostic.Location
	Reference string
	Reason    string
}

// Report lists what Apply did.
type Report struct {
	Pins    []Pin
	Skipped []Skip
	// Files are the files rewritten, or that would be in a dry run.
	Files []string
}

// Fixer rewrites files below one repository root.
type Fixer struct {
	root    string
	commits CommitResolver
	opts    Options
	shas    map[string]string
	latest  map[string]string
}

// New creates a Fixer for files below root.
func New(root string, commits CommitResolver, opts Options) *Fixer {
	return &Fixer{
		root:    root,
		commits: commits,
		opts:    opts,
		shas:    make(map[string]string),
		latest:  make(map[string]string),
	}
}

// Apply fixes the unpinned-ref findings among diags. Findings of other rules
// are ignored. Lookup failures are reported as skips; only file errors and
// cancellation are returned as errors.
func (f *Fixer) Apply(ctx context.Context, diags []diagnostic.Diagnostic) (*Report, error) {
	report := &Report{}

	var files []string
	byFile := make(map[string][]diagnostic.Diagnostic)
	for _, d := range diags {
		if d.RuleID != rules.UnpinnedRef {
			continue
		}
		if _, ok := byFile[d.Location.File]; !ok {
			files = append(files, d.Location.File)
		}
		byFile[d.Location.File] = append(byFile[d.Location.File], d)
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := f.fixFile(ctx, file, byFile[file], report); err != nil {
			return report, err
		}
	}

	log.Printf("Fix finished: pinned=%d, skipped=%d, files=%d, dry_run=%v", len(report.Pins), len(report.Skipped), len(report.Files), f.opts.DryRun)
	return report, nil
}

func (f *Fixer) fixFile(ctx context.Context, file string, diags []diagnostic.Diagnostic, report *Report) error {
	abs := filepath.Join(f.root, filepath.FromSlash(file))
	if !fileutil.WithinRoot(f.root, abs) || !fileutil.FileExists(abs) {
		for _, d := range diags {
			report.Skipped = append(report.Skipped, Skip{Location: d.Location, Reference: d.Reference, Reason: "defined outside the repository"})
		}
		return nil
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	lines := strings.Split(string(data), "\n")

	changed := false
	for _, d := range diags {
		pin, reason, err := f.pin(ctx, d)
		if err != nil {
			return err
		}
		if reason != "" {
			report.Skipped = append(report.Skipped, Skip{Location: d.Location, Reference: d.Reference, Reason: reason})
			continue
		}

		idx := d.Location.Line - 1
		if idx < 0 || idx >= len(lines) {
			report.Skipped = append(report.Skipped, Skip{Location: d.Location, Reference: d.Reference, Reason: "line is out of range"})
			continue
		}
		newLine, ok := rewriteUses(lines[idx], d.Location.Column, d.Reference, pin.Pinned, pin.Comment, f.opts.TwoSpaceComments)
		if !ok {
			report.Skipped = append(report.Skipped, Skip{Location: d.Location, Reference: d.Reference, Reason: "reference not found on its line"})
			continue
		}

		pin.OldLine, pin.NewLine = lines[idx], newLine
		lines[idx] = newLine
		report.Pins = append(report.Pins, pin)
		changed = true
		log.Printf("Pinned %s at %s to %s", d.Reference, d.Location, pin.Pinned)
	}

	if !changed {
		return nil
	}
	report.Files = append(report.Files, file)
	if f.opts.DryRun {
		return nil
	}
	if err := fileutil.WriteFileAtomic(abs, []byte(strings.Join(lines, "\n"))); err != nil {
		return fmt.Errorf("failed to write %s: %w", file, err)
	}
	return nil
}

// pin works out the replacement for one finding. A non-empty reason means
// the finding is skipped.
func (f *Fixer) pin(ctx context.Context, d diagnostic.Diagnostic) (Pin, string, error) {
	ref, err := callref.Classify(d.Reference)
	if err != nil || ref.Kind != callref.KindRemote {
		return Pin{}, "not a remote reference", nil
	}

	target := ref.Ref
	if f.opts.Latest {
		latest, err := f.latestRelease(ctx, ref.Owner, ref.Repo)
		switch {
		case err != nil && ctx.Err() != nil:
			return Pin{}, "", ctx.Err()
		case err != nil:
			log.Printf("No release for %s: %v", ref.RepoSlug(), err)
		case latest != "":
			target = latest
		}
	}
	if target == "" {
		return Pin{}, "no ref to pin; use --latest to pin the newest release", nil
	}
	if gitutil.IsCommitSHA(target) {
		return Pin{}, "already pinned to a commit SHA", nil
	}

	sha, err := f.resolveCommit(ctx, ref.Owner, ref.Repo, target)
	if err != nil {
		if ctx.Err() != nil {
			return Pin{}, "", ctx.Err()
		}
		return Pin{}, fmt.Sprintf("cannot resolve %s@%s: %v", ref.RepoSlug(), target, err), nil
	}

	pinned := ref
	pinned.Ref = sha
	return Pin{
		Location:  d.Location,
		Reference: d.Reference,
		Pinned:    pinned.String(),
		Comment:   target,
	}, "", nil
}

func (f *Fixer) resolveCommit(ctx context.Context, owner, repo, ref string) (string, error) {
	key := owner + "/" + repo + "@" + ref
	if sha, ok := f.shas[key]; ok {
		return sha, nil
	}
	sha, err := f.commits.ResolveCommit(ctx, owner, repo, ref)
	if err != nil {
		return "", err
	}
	if !gitutil.IsCommitSHA(sha) {
		return "", errors.New("lookup did not return a commit SHA")
	}
	f.shas[key] = sha
	return sha, nil
}

func (f *Fixer) latestRelease(ctx context.Context, owner, repo string) (string, error) {
	key := owner + "/" + repo
	if tag, ok := f.latest[key]; ok {
		return tag, nil
	}
	tag, err := f.commits.LatestRelease(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	f.latest[key] = tag
	return tag, nil
}

// rewriteUses replaces raw, found at or after column on line, with pinned
// and puts `# comment` at the end of the line in place of any existing
// comment. A closing quote after raw is kept.
func rewriteUses(line string, column int, raw, pinned, comment string, twoSpace bool) (string, bool) {
	start := column - 1
	if start < 0 || start > len(line) {
		start = 0
	}
	i := strings.Index(line[start:], raw)
	if i < 0 {
		return line, false
	}
	i += start
	end := i + len(raw)

	head := line[:i] + pinned
	rest := line[end:]
	if i > 0 && (line[i-1] == '"' || line[i-1] == '\'') && strings.HasPrefix(rest, line[i-1:i]) {
		head += rest[:1]
		rest = rest[1:]
	}

	if c := commentStart(rest); c >= 0 {
		rest = rest[:c]
	}
	rest = strings.TrimRight(rest, " \t\r")

	sep := " "
	if twoSpace {
		sep = "  "
	}
	out := head + rest + sep + "# " + comment
	if strings.HasSuffix(line, "\r") {
		out += "\r"
	}
	return out, true
}

// commentStart returns the index of a YAML comment in s: a '#' at the start
// or after whitespace, outside quotes.
func commentStart(s string) int {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '#' && (i == 0 || s[i-1] == ' ' || s[i-1] == '\t'):
			return i
		}
	}
	return -1
}
