package resolver

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/fileutil"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var fsLog = logger.New("resolver:filesystem")

// FilesystemResolver resolves same-repo and local-path references against
// the repository checked out at Root.
type FilesystemResolver struct {
	root string
}

// NewFilesystemResolver returns a resolver rooted at root, which must be an
// absolute path.
func NewFilesystemResolver(root string) (*FilesystemResolver, error) {
	clean, err := fileutil.ValidateAbsolutePath(root)
	if err != nil {
		return nil, err
	}
	return &FilesystemResolver{root: clean}, nil
}

// Root returns the repository root.
func (r *FilesystemResolver) Root() string {
	return r.root
}

// Resolve implements Resolver. A directory resolves to its action.yml or
// action.yaml; having both is ambiguous.
func (r *FilesystemResolver) Resolve(ctx context.Context, req Request) Resolution {
	if res, done := FromContext(ctx); done {
		return res
	}

	target, res, ok := r.target(req)
	if !ok {
		return res
	}
	fsLog.Printf("Resolving %s -> %s", req.Ref, target)

	info, err := os.Stat(target)
	if err != nil {
		return statFailure(req.Ref, err)
	}

	file := target
	if info.IsDir() {
		var found []string
		for _, name := range candidatePaths("") {
			if fileutil.FileExists(filepath.Join(target, name)) {
				found = append(found, filepath.Join(target, name))
			}
		}
		switch len(found) {
		case 0:
			return Unresolved(ReasonNotFound, "%s has no action.yml or action.yaml", r.display(target))
		case 1:
			file = found[0]
		default:
			return Unresolved(ReasonAmbiguousPath, "%s has both action.yml and action.yaml", r.display(target))
		}
	}

	content, err := os.ReadFile(file)
	if err != nil {
		return statFailure(req.Ref, err)
	}
	return Resolved(&Document{
		Key:         LocalKey(filepath.ToSlash(file)),
		DisplayPath: r.display(file),
		Content:     content,
	})
}

// LoadEntry reads an entry document at path.
func (r *FilesystemResolver) LoadEntry(file string) (*Document, error) {
	abs := file
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, file)
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}
	return &Document{
		Key:         LocalKey(filepath.ToSlash(filepath.Clean(abs))),
		DisplayPath: r.display(abs),
		Content:     content,
	}, nil
}

func (r *FilesystemResolver) target(req Request) (string, Resolution, bool) {
	ref := req.Ref
	switch ref.Kind {
	case callref.KindSameRepo:
		if !req.From.IsLocal() {
			return "", Unresolved(ReasonNotFound, "%s is not inside the local repository", req.From), false
		}
		target := filepath.Join(r.root, filepath.FromSlash(ref.Path))
		if !fileutil.WithinRoot(r.root, target) {
			return "", Unresolved(ReasonNotFound, "%s escapes the repository root", ref), false
		}
		return target, Resolution{}, true
	case callref.KindLocal:
		if !req.From.IsLocal() {
			return "", Unresolved(ReasonNotFound, "local path %s cannot be followed from %s", ref, req.From), false
		}
		p := ref.Path
		if !strings.HasPrefix(p, "/") {
			p = path.Join(path.Dir(req.From.Path), p)
		}
		return filepath.FromSlash(p), Resolution{}, true
	default:
		return "", Unresolved(ReasonInvalidRef, "%s is not a filesystem reference", ref), false
	}
}

func (r *FilesystemResolver) display(p string) string {
	if fileutil.WithinRoot(r.root, p) {
		if rel, err := filepath.Rel(r.root, p); err == nil {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(p)
}

func statFailure(ref callref.CallReference, err error) Resolution {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Unresolved(ReasonNotFound, "%s does not exist", ref)
	case errors.Is(err, fs.ErrPermission):
		return Unresolved(ReasonAccessDenied, "%s is not readable", ref)
	default:
		return Unresolved(ReasonNotFound, "%s: %v", ref, err)
	}
}
