// Package resolver maps call references to the documents they name.
//
// Resolution failures are values, not errors: a Resolution either carries a
// Document or a Reason explaining why the reference could not be followed.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/constants"
)

// Reason explains an unresolved reference.
type Reason string

const (
	ReasonNotFound      Reason = "not-found"
	ReasonAmbiguousPath Reason = "ambiguous-path"
	ReasonAccessDenied  Reason = "access-denied"
	ReasonInvalidRef    Reason = "invalid-ref"
	ReasonTimeout       Reason = "timeout"
	ReasonCanceled      Reason = "canceled"
)

// Sentinel owner and repository of documents addressed by filesystem path.
const (
	LocalOwner = "@local"
	LocalRepo  = "@local"
)

// Key is the fully-resolved identity of a definition document. Local
// documents use LocalOwner/LocalRepo and an absolute slash-separated Path.
type Key struct {
	Owner string
	Repo  string
	Path  string
	Ref   string
}

// LocalKey returns the key of the local document at absPath.
func LocalKey(absPath string) Key {
	return Key{Owner: LocalOwner, Repo: LocalRepo, Path: absPath}
}

// IsLocal reports whether k names a document on the local filesystem.
func (k Key) IsLocal() bool {
	return k.Owner == LocalOwner && k.Repo == LocalRepo
}

func (k Key) String() string {
	if k.IsLocal() {
		return k.Path
	}
	s := k.Owner + "/" + k.Repo
	if k.Path != "" {
		s += "/" + k.Path
	}
	if k.Ref != "" {
		s += "@" + k.Ref
	}
	return s
}

// Document is resolved definition content.
type Document struct {
	Key Key
	// DisplayPath names the document in diagnostics: relative to the scan
	// root for local documents, the key string for remote ones.
	DisplayPath string
	Content     []byte
}

// Request asks for the target of Ref as seen from the document From.
type Request struct {
	Ref  callref.CallReference
	From Key
}

// Resolution is the outcome of a Request.
type Resolution struct {
	Document *Document
	Reason   Reason
	Detail   string
}

// Resolved reports whether a document was found.
func (r Resolution) Resolved() bool {
	return r.Document != nil
}

// Resolved wraps doc in a successful Resolution.
func Resolved(doc *Document) Resolution {
	return Resolution{Document: doc}
}

// Unresolved builds a failed Resolution.
func Unresolved(reason Reason, format string, args ...any) Resolution {
	return Resolution{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Resolver resolves call references. Implementations must honour ctx and
// report expiry as ReasonTimeout and cancellation as ReasonCanceled.
type Resolver interface {
	Resolve(ctx context.Context, req Request) Resolution
}

// FromContext converts a finished context into the matching Resolution.
func FromContext(ctx context.Context) (Resolution, bool) {
	return fromError(ctx.Err())
}

func fromError(err error) (Resolution, bool) {
	switch {
	case err == nil:
		return Resolution{}, false
	case errors.Is(err, context.DeadlineExceeded):
		return Unresolved(ReasonTimeout, "resolution timed out"), true
	case errors.Is(err, context.Canceled):
		return Unresolved(ReasonCanceled, "scan canceled"), true
	default:
		return Resolution{}, false
	}
}

// TargetID identifies what req points at before resolution. Requests with
// equal TargetIDs resolve to the same document.
func TargetID(req Request) string {
	ref := req.Ref
	switch ref.Kind {
	case callref.KindSameRepo:
		if req.From.IsLocal() {
			return ref.String()
		}
		return translateSameRepo(req).String()
	case callref.KindLocal:
		if strings.HasPrefix(ref.Path, "/") {
			return ref.Path
		}
		if req.From.IsLocal() {
			return path.Join(path.Dir(req.From.Path), ref.Path)
		}
		return req.From.String() + "|" + ref.Path
	default:
		return ref.String()
	}
}

// translateSameRepo rewrites a ./path reference inside a remote document to
// the equivalent remote reference at the document's own repository and ref.
func translateSameRepo(req Request) callref.CallReference {
	sub := req.Ref.Path
	if sub == "." {
		sub = ""
	}
	return callref.CallReference{
		Kind:         callref.KindRemote,
		Owner:        req.From.Owner,
		Repo:         req.From.Repo,
		Subdirectory: sub,
		Ref:          req.From.Ref,
	}
}

// isDefinitionFile reports whether p names a YAML file rather than an action directory.
func isDefinitionFile(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	return ext == ".yml" || ext == ".yaml"
}

// candidatePaths lists the files that may hold the definition at dir: the
// path itself for a YAML file, otherwise the action metadata file names.
func candidatePaths(dir string) []string {
	if isDefinitionFile(dir) {
		return []string{dir}
	}
	out := make([]string, 0, len(constants.ActionFileNames))
	for _, name := range constants.ActionFileNames {
		if dir == "" || dir == "." {
			out = append(out, name)
		} else {
			out = append(out, dir+"/"+name)
		}
	}
	return out
}
