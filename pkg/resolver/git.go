package resolver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/fileutil"
	"github.com/githubnext/gh-uses/pkg/gitutil"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/repoutil"
)

var gitLog = logger.New("resolver:git")

// gitRunner runs git with args in dir and returns stdout.
type gitRunner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// GitError carries the stderr of a failed git invocation.
type GitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *GitError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *GitError) Unwrap() error {
	return e.Err
}

func runGit(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return out, &GitError{Args: args, Stderr: stderr.String(), Err: err}
	}
	return out, nil
}

// GitResolver resolves remote references by shallow-fetching the referenced
// commit into a bare repository cached under CacheDir.
type GitResolver struct {
	cacheDir string
	host     string
	limiter  *Limiter
	git      gitRunner

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// GitOptions configures NewGitResolver.
type GitOptions struct {
	CacheDir string
	Host     string
	Limiter  *Limiter
}

// NewGitResolver creates a resolver caching fetched repositories in
// opts.CacheDir (created when missing).
func NewGitResolver(opts GitOptions) (*GitResolver, error) {
	if opts.CacheDir == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("no cache directory: %w", err)
		}
		opts.CacheDir = filepath.Join(dir, "gh-uses", "repos")
	}
	if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &GitResolver{
		cacheDir: opts.CacheDir,
		host:     opts.Host,
		limiter:  opts.Limiter,
		git:      runGit,
		locks:    make(map[string]*sync.Mutex),
	}, nil
}

func (r *GitResolver) repoLock(slug string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[slug]
	if !ok {
		l = &sync.Mutex{}
		r.locks[slug] = l
	}
	return l
}

// Resolve implements Resolver for remote references.
func (r *GitResolver) Resolve(ctx context.Context, req Request) Resolution {
	ref := req.Ref
	if ref.Kind != callref.KindRemote {
		return Unresolved(ReasonInvalidRef, "%s is not a remote reference", ref)
	}

	slug := ref.RepoSlug()
	lock := r.repoLock(slug)
	lock.Lock()
	defer lock.Unlock()

	commit, res, ok := r.fetch(ctx, ref)
	if !ok {
		return res
	}

	var found []*Document
	for _, p := range candidatePaths(ref.Subdirectory) {
		out, err := r.git(ctx, r.repoDir(slug), "show", commit+":"+p)
		if err != nil {
			if res, done := FromContext(ctx); done {
				return res
			}
			continue
		}
		key := Key{Owner: ref.Owner, Repo: ref.Repo, Path: p, Ref: ref.Ref}
		found = append(found, &Document{Key: key, DisplayPath: key.String(), Content: out})
	}

	switch len(found) {
	case 0:
		return Unresolved(ReasonNotFound, "%s has no definition file at %s", slug+"@"+commit[:min(12, len(commit))], ref)
	case 1:
		return Resolved(found[0])
	default:
		return Unresolved(ReasonAmbiguousPath, "%s has both action.yml and action.yaml", ref)
	}
}

func (r *GitResolver) repoDir(slug string) string {
	return filepath.Join(r.cacheDir, repoutil.SanitizeForFilename(slug)+".git")
}

// fetch makes the commit named by ref available locally and returns its SHA.
func (r *GitResolver) fetch(ctx context.Context, ref callref.CallReference) (string, Resolution, bool) {
	dir := r.repoDir(ref.RepoSlug())
	if !fileutil.DirExists(dir) {
		if _, err := r.git(ctx, r.cacheDir, "init", "--bare", "--quiet", dir); err != nil {
			return "", gitFailure(ctx, err), false
		}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return "", limiterFailure(ctx, err), false
	}

	want := ref.Ref
	if want == "" {
		want = "HEAD"
	}
	url := repoutil.CloneURL(r.host, ref.Owner, ref.Repo)
	gitLog.Printf("Fetching %s %s into %s", url, want, dir)
	if _, err := r.git(ctx, dir, "fetch", "--depth", "1", "--quiet", "--no-tags", url, want); err != nil {
		return "", gitFailure(ctx, err), false
	}

	out, err := r.git(ctx, dir, "rev-parse", "FETCH_HEAD")
	if err != nil {
		return "", gitFailure(ctx, err), false
	}
	return strings.TrimSpace(string(out)), Resolution{}, true
}

// ResolveCommit returns the commit SHA ref points at, using ls-remote.
func (r *GitResolver) ResolveCommit(ctx context.Context, owner, repo, ref string) (string, error) {
	if gitutil.IsCommitSHA(ref) {
		return ref, nil
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := r.git(ctx, r.cacheDir, "ls-remote", repoutil.CloneURL(r.host, owner, repo), ref, ref+"^{}")
	if err != nil {
		return "", err
	}
	sha, ok := ParseLsRemote(string(out), ref)
	if !ok {
		return "", fmt.Errorf("ref %q not found in %s/%s", ref, owner, repo)
	}
	return sha, nil
}

// LatestRelease returns the highest non-prerelease vX.Y.Z tag.
func (r *GitResolver) LatestRelease(ctx context.Context, owner, repo string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	out, err := r.git(ctx, r.cacheDir, "ls-remote", "--tags", "--refs", repoutil.CloneURL(r.host, owner, repo))
	if err != nil {
		return "", err
	}
	tag := LatestSemverTag(string(out))
	if tag == "" {
		return "", fmt.Errorf("%s/%s has no release tags", owner, repo)
	}
	return tag, nil
}

// ParseLsRemote picks the SHA for ref from `git ls-remote` output. A peeled
// tag (refs/tags/x^{}) wins over the tag object; tags win over branches.
func ParseLsRemote(output, ref string) (string, bool) {
	var tag, peeled, branch, other string
	for line := range strings.Lines(output) {
		sha, name, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok || !gitutil.IsCommitSHA(sha) {
			continue
		}
		switch name {
		case "refs/tags/" + ref + "^{}":
			peeled = sha
		case "refs/tags/" + ref:
			tag = sha
		case "refs/heads/" + ref:
			branch = sha
		case ref:
			other = sha
		}
	}
	for _, sha := range []string{peeled, tag, branch, other} {
		if sha != "" {
			return sha, true
		}
	}
	return "", false
}

// LatestSemverTag returns the highest precise, non-prerelease semver tag
// listed in `git ls-remote --tags` output.
func LatestSemverTag(output string) string {
	var best string
	for line := range strings.Lines(output) {
		_, name, ok := strings.Cut(strings.TrimSpace(line), "\t")
		if !ok {
			continue
		}
		tag, ok := strings.CutPrefix(name, "refs/tags/")
		if !ok || callref.ClassifyRef(tag) != callref.RefSemverTag {
			continue
		}
		v := normalizeV(tag)
		if semver.Prerelease(v) != "" {
			continue
		}
		if best == "" || semver.Compare(v, normalizeV(best)) > 0 {
			best = tag
		}
	}
	return best
}

func normalizeV(tag string) string {
	if strings.HasPrefix(tag, "v") {
		return tag
	}
	return "v" + tag
}

func gitFailure(ctx context.Context, err error) Resolution {
	if res, ok := FromContext(ctx); ok {
		return res
	}
	stderr := err.Error()
	var ge *GitError
	if errors.As(err, &ge) {
		stderr = ge.Stderr
	}
	switch {
	case gitutil.IsAuthError(stderr):
		return Unresolved(ReasonAccessDenied, "%s", firstLine(stderr))
	case strings.Contains(strings.ToLower(stderr), "couldn't find remote ref"),
		strings.Contains(strings.ToLower(stderr), "not our ref"):
		return Unresolved(ReasonInvalidRef, "%s", firstLine(stderr))
	case gitutil.IsNotFoundError(stderr):
		return Unresolved(ReasonNotFound, "%s", firstLine(stderr))
	default:
		return Unresolved(ReasonTimeout, "transport failure: %s", firstLine(stderr))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}
