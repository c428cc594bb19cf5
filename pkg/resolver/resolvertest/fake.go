// Package resolvertest provides an in-memory resolver for tests.
package resolvertest

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/resolver"
)

// Fake resolves references from an in-memory table keyed by
// resolver.TargetID and counts how often each target was requested.
type Fake struct {
	// Root is the repository root used for ./path references.
	Root string
	// Hook, when set, runs before every lookup. It may block on ctx to
	// simulate slow resolutions.
	Hook func(ctx context.Context, req resolver.Request)

	mu       sync.Mutex
	docs     map[string]*resolver.Document
	failures map[string]resolver.Resolution
	calls    map[string]int
}

// New creates a Fake rooted at root.
func New(root string) *Fake {
	return &Fake{
		Root:     root,
		docs:     make(map[string]*resolver.Document),
		failures: make(map[string]resolver.Resolution),
		calls:    make(map[string]int),
	}
}

// Add registers content for target, which is written the way it appears in
// a `uses:` field of a local document: "owner/repo[/sub]@ref", "./path" or
// an absolute path. It panics on malformed targets.
func (f *Fake) Add(target, content string) *resolver.Document {
	ref, err := callref.Classify(target)
	if err != nil {
		panic(fmt.Sprintf("resolvertest: %v", err))
	}

	doc := &resolver.Document{Content: []byte(content)}
	switch ref.Kind {
	case callref.KindRemote:
		doc.Key = resolver.Key{Owner: ref.Owner, Repo: ref.Repo, Path: ref.Subdirectory, Ref: ref.Ref}
		doc.DisplayPath = doc.Key.String()
	case callref.KindSameRepo:
		doc.Key = resolver.LocalKey(path.Join(f.Root, ref.Path))
		doc.DisplayPath = ref.Path
	case callref.KindLocal:
		doc.Key = resolver.LocalKey(ref.Path)
		doc.DisplayPath = strings.TrimPrefix(strings.TrimPrefix(ref.Path, f.Root), "/")
	default:
		panic(fmt.Sprintf("resolvertest: %s cannot be registered", target))
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[ref.String()] = doc
	return doc
}

// Alias makes target resolve to the document registered for existing.
func (f *Fake) Alias(target, existing string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[target] = f.docs[existing]
}

// Fail makes target resolve to the given failure.
func (f *Fake) Fail(target string, reason resolver.Reason, detail string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[target] = resolver.Resolution{Reason: reason, Detail: detail}
}

// Entry returns the entry document for a path relative to Root.
func (f *Fake) Entry(rel, content string) *resolver.Document {
	return &resolver.Document{
		Key:         resolver.LocalKey(path.Join(f.Root, rel)),
		DisplayPath: rel,
		Content:     []byte(content),
	}
}

// Resolve implements resolver.Resolver.
func (f *Fake) Resolve(ctx context.Context, req resolver.Request) resolver.Resolution {
	id := resolver.TargetID(req)

	f.mu.Lock()
	f.calls[id]++
	f.mu.Unlock()

	if f.Hook != nil {
		f.Hook(ctx, req)
	}
	if res, done := resolver.FromContext(ctx); done {
		return res
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if res, ok := f.failures[id]; ok {
		return res
	}
	if doc, ok := f.docs[id]; ok && doc != nil {
		return resolver.Resolved(doc)
	}
	return resolver.Unresolved(resolver.ReasonNotFound, "%s does not exist", req.Ref)
}

// Calls returns how many times target was requested.
func (f *Fake) Calls(target string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[target]
}

// TotalCalls returns the number of requests served.
func (f *Fake) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}
