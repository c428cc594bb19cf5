package callgraph

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/logger"
	"github.com/githubnext/gh-uses/pkg/parser"
	"github.com/githubnext/gh-uses/pkg/resolver"
)

var log = logger.New("callgraph:builder")

// Options controls traversal.
type Options struct {
	// MaxDepth bounds the number of hops from an entry. Edges beyond it are
	// marked StatusDepthExceeded and not resolved.
	MaxDepth int
	// Concurrency bounds parallel resolutions of one document's edges.
	Concurrency int
	// ResolveTimeout bounds each resolution; zero means no per-call limit.
	ResolveTimeout time.Duration
	// Offline treats remote references as terminal.
	Offline bool
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = constants.DefaultMaxDepth
	}
	if o.Concurrency <= 0 {
		o.Concurrency = constants.DefaultConcurrency
	}
	return o
}

// Builder builds one Graph. It owns the resolution cache and the set of
// nodes currently being visited; a Builder must not be reused.
type Builder struct {
	opts  Options
	cache *resolver.Cache
	graph *Graph
	index map[resolver.Key]NodeID

	mu         sync.Mutex
	inProgress map[NodeID]struct{}
}

// NewBuilder creates a Builder resolving through r.
func NewBuilder(r resolver.Resolver, opts Options) *Builder {
	opts = opts.withDefaults()
	return &Builder{
		opts:       opts,
		cache:      resolver.NewCache(r),
		graph:      &Graph{MaxDepth: opts.MaxDepth},
		index:      make(map[resolver.Key]NodeID),
		inProgress: make(map[NodeID]struct{}),
	}
}

// Build traverses depth-first from entries, sorted by path so the result
// does not depend on discovery order. Every node ends up at its shortest
// distance from any entry. Cancellation of ctx stops resolution
// and marks the graph incomplete.
func (b *Builder) Build(ctx context.Context, entries []*resolver.Document) *Graph {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(x, y *resolver.Document) int {
		return cmp.Or(cmp.Compare(x.DisplayPath, y.DisplayPath), cmp.Compare(x.Key.String(), y.Key.String()))
	})

	log.Printf("Building call graph: entries=%d, max_depth=%d, concurrency=%d, offline=%v",
		len(sorted), b.opts.MaxDepth, b.opts.Concurrency, b.opts.Offline)

	for _, doc := range sorted {
		if ctx.Err() != nil {
			b.graph.Incomplete = true
			break
		}
		id, created := b.addNode(doc, 0)
		node := b.graph.Nodes[id]
		if !node.Entry {
			node.Entry = true
			b.graph.Entries = append(b.graph.Entries, id)
		}
		switch {
		case created:
			b.visit(ctx, id, []NodeID{id})
		case node.Depth > 0:
			b.deepen(ctx, id, 0, []NodeID{id})
		}
	}

	b.graph.CacheHits, b.graph.CacheMisses = b.cache.Stats()
	log.Printf("Call graph built: nodes=%d, edges=%d, incomplete=%v", len(b.graph.Nodes), len(b.graph.Edges), b.graph.Incomplete)
	return b.graph
}

func (b *Builder) addNode(doc *resolver.Document, depth int) (NodeID, bool) {
	if id, ok := b.index[doc.Key]; ok {
		return id, false
	}
	id := NodeID(len(b.graph.Nodes))
	b.graph.Nodes = append(b.graph.Nodes, &Node{
		ID:      id,
		Key:     doc.Key,
		Path:    doc.DisplayPath,
		Depth:   depth,
		content: doc.Content,
	})
	b.index[doc.Key] = id
	return id, true
}

// tryEnter atomically marks id as being visited. It returns false when id
// is already in progress.
func (b *Builder) tryEnter(id NodeID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.inProgress[id]; ok {
		return false
	}
	b.inProgress[id] = struct{}{}
	return true
}

func (b *Builder) leave(id NodeID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.inProgress, id)
}

func (b *Builder) isInProgress(id NodeID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.inProgress[id]
	return ok
}

// visit parses the node, resolves its edges in parallel and follows them in
// document order. stack is the path from the entry to id, inclusive.
func (b *Builder) visit(ctx context.Context, id NodeID, stack []NodeID) {
	if !b.tryEnter(id) {
		return
	}
	defer b.leave(id)

	node := b.graph.Nodes[id]
	doc, err := parser.ParseDocument(node.Path, node.content)
	node.content = nil
	if err != nil {
		var perr *parser.ParseError
		if errors.As(err, &perr) {
			node.ParseErr = perr
		}
		log.Printf("Skipping invalid document %s: %v", node.Path, err)
		return
	}
	node.Document = doc

	edges, pending := b.classify(node, doc)
	results := b.resolveAll(ctx, node, pending)

	for i, e := range edges {
		res, ok := results[i]
		if !ok {
			continue
		}
		b.follow(ctx, node, e, res, stack)
	}
}

// deepen lowers the depth of an already visited node that was reached
// through a shorter path. Edges that now fall within the bound are resolved
// and followed, and resolved targets are lowered in turn.
func (b *Builder) deepen(ctx context.Context, id NodeID, depth int, stack []NodeID) {
	node := b.graph.Nodes[id]
	if depth >= node.Depth || !b.tryEnter(id) {
		return
	}
	defer b.leave(id)

	log.Printf("Shorter path to %s: depth %d -> %d", node.Path, node.Depth, depth)
	node.Depth = depth
	edges := b.graph.OutEdges(id)
	pending := make(map[int]resolver.Request)
	for i, e := range edges {
		e.Depth = depth + 1
		if e.Status == StatusDepthExceeded && e.Depth <= b.opts.MaxDepth {
			pending[i] = resolver.Request{Ref: e.Ref, From: node.Key}
		}
	}
	results := b.resolveAll(ctx, node, pending)

	for i, e := range edges {
		if res, ok := results[i]; ok {
			b.follow(ctx, node, e, res, stack)
			continue
		}
		if e.Status == StatusResolved && !b.isInProgress(e.To) {
			b.deepen(ctx, e.To, e.Depth, append(stack[:len(stack):len(stack)], e.To))
		}
	}
}

// classify creates the node's edges and returns, by position, those that
// need resolution.
func (b *Builder) classify(node *Node, doc *parser.Document) ([]*Edge, map[int]resolver.Request) {
	edges := make([]*Edge, 0, len(doc.Calls))
	pending := make(map[int]resolver.Request)

	for i, call := range doc.Calls {
		e := &Edge{
			ID:    len(b.graph.Edges),
			From:  node.ID,
			Call:  call,
			To:    NoNode,
			Depth: node.Depth + 1,
		}
		b.graph.Edges = append(b.graph.Edges, e)
		node.Out = append(node.Out, e.ID)
		edges = append(edges, e)

		ref, err := callref.Classify(call.Raw)
		if err != nil {
			e.Status = StatusMalformed
			e.ClassifyErr = err
			continue
		}
		e.Ref = ref
		switch {
		case ref.Kind == callref.KindDocker:
			e.Status = StatusTerminal
		case b.opts.Offline && ref.Kind == callref.KindRemote:
			e.Status = StatusTerminal
		case e.Depth > b.opts.MaxDepth:
			e.Status = StatusDepthExceeded
			log.Printf("Depth bound reached at %s (hop %d)", call.Location, e.Depth)
		default:
			pending[i] = resolver.Request{Ref: ref, From: node.Key}
		}
	}
	return edges, pending
}

func (b *Builder) resolveAll(ctx context.Context, node *Node, pending map[int]resolver.Request) map[int]resolver.Resolution {
	results := make(map[int]resolver.Resolution, len(pending))
	if len(pending) == 0 {
		return results
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(b.opts.Concurrency)
	for i, req := range pending {
		p.Go(func() {
			res := b.resolve(ctx, req)
			mu.Lock()
			results[i] = res
			mu.Unlock()
		})
	}
	p.Wait()

	log.Printf("Resolved %d references from %s", len(pending), node.Path)
	return results
}

func (b *Builder) resolve(ctx context.Context, req resolver.Request) resolver.Resolution {
	if res, done := resolver.FromContext(ctx); done {
		return res
	}

	rctx, cancel := ctx, context.CancelFunc(func() {})
	if b.opts.ResolveTimeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, b.opts.ResolveTimeout)
	}
	defer cancel()

	res := b.cache.Resolve(rctx, req)
	if res.Resolved() {
		return res
	}
	switch {
	case ctx.Err() != nil:
		return resolver.Unresolved(resolver.ReasonCanceled, "scan canceled")
	case errors.Is(rctx.Err(), context.DeadlineExceeded) && res.Reason != resolver.ReasonTimeout:
		return resolver.Unresolved(resolver.ReasonTimeout, "resolution timed out after %s", b.opts.ResolveTimeout)
	}
	return res
}

func (b *Builder) follow(ctx context.Context, node *Node, e *Edge, res resolver.Resolution, stack []NodeID) {
	if !res.Resolved() {
		e.Status = StatusUnresolved
		e.Reason = res.Reason
		e.Detail = res.Detail
		if res.Reason == resolver.ReasonCanceled {
			b.graph.Incomplete = true
		}
		return
	}

	target, created := b.addNode(res.Document, node.Depth+1)
	e.To = target
	e.Status = StatusResolved

	if b.isInProgress(target) {
		e.BackEdge = true
		e.Cycle = cycleThrough(stack, target)
		log.Printf("Back-edge %s -> %s", node.Path, b.graph.Nodes[target].Path)
		return
	}
	next := append(stack[:len(stack):len(stack)], target)
	if created {
		b.visit(ctx, target, next)
		return
	}
	b.deepen(ctx, target, node.Depth+1, next)
}

// cycleThrough returns the part of stack from target onward, closed with target.
func cycleThrough(stack []NodeID, target NodeID) []NodeID {
	i := slices.Index(stack, target)
	if i < 0 {
		return []NodeID{target, target}
	}
	cycle := slices.Clone(stack[i:])
	return append(cycle, target)
}
