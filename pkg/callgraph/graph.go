// Package callgraph builds the graph of definition documents reachable from
// a set of entry documents through their `uses:` references.
//
// Nodes live in a flat arena indexed by NodeID and edges refer to nodes by
// index, so cycles need no special representation.
package callgraph

import (
	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/parser"
	"github.com/githubnext/gh-uses/pkg/resolver"
)

// NodeID indexes Graph.Nodes.
type NodeID int

// NoNode marks an edge without a target.
const NoNode NodeID = -1

// Node is one definition document.
type Node struct {
	ID    NodeID
	Key   resolver.Key
	Path  string
	Entry bool
	// Depth is the number of hops on the shortest path from any entry.
	Depth    int
	Document *parser.Document
	// ParseErr is set when the document is not valid YAML.
	ParseErr *parser.ParseError
	// Out lists outbound edges in document order.
	Out []int

	content []byte
}

// EdgeStatus records what happened to a call.
type EdgeStatus string

const (
	// StatusResolved edges have a target node.
	StatusResolved EdgeStatus = "resolved"
	// StatusUnresolved edges failed resolution; Reason says why.
	StatusUnresolved EdgeStatus = "unresolved"
	// StatusTerminal edges point at something that is never followed:
	// docker images, and remote references when resolution is offline.
	StatusTerminal EdgeStatus = "terminal"
	// StatusMalformed edges failed classification.
	StatusMalformed EdgeStatus = "malformed"
	// StatusDepthExceeded edges were not followed because of the depth bound.
	StatusDepthExceeded EdgeStatus = "depth-exceeded"
)

// Edge is one call from a document.
type Edge struct {
	ID   int
	From NodeID
	Call parser.CallExpression
	// Ref is valid unless Status is StatusMalformed.
	Ref         callref.CallReference
	ClassifyErr error
	To          NodeID
	Status      EdgeStatus
	Reason      resolver.Reason
	Detail      string
	// Depth is the hop number of the edge: edges leaving an entry have depth 1.
	Depth int
	// BackEdge is set when To was still being visited, closing a cycle.
	BackEdge bool
	// Cycle lists the nodes of the cycle closed by a back-edge, starting and
	// ending with To.
	Cycle []NodeID
}

// Graph is the result of Builder.Build.
type Graph struct {
	Nodes   []*Node
	Edges   []*Edge
	Entries []NodeID
	// MaxDepth is the depth bound the graph was built with.
	MaxDepth int
	// Incomplete is set when the build was canceled before finishing.
	Incomplete  bool
	CacheHits   int
	CacheMisses int
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) *Node {
	if id < 0 || int(id) >= len(g.Nodes) {
		return nil
	}
	return g.Nodes[id]
}

// OutEdges returns the outbound edges of id in document order.
func (g *Graph) OutEdges(id NodeID) []*Edge {
	n := g.Node(id)
	if n == nil {
		return nil
	}
	out := make([]*Edge, 0, len(n.Out))
	for _, e := range n.Out {
		out = append(out, g.Edges[e])
	}
	return out
}

// CyclePath renders the cycle of a back-edge as node paths.
func (g *Graph) CyclePath(e *Edge) []string {
	path := make([]string, 0, len(e.Cycle))
	for _, id := range e.Cycle {
		if n := g.Node(id); n != nil {
			path = append(path, n.Path)
		}
	}
	return path
}
