// Package rules evaluates a call graph against a fixed set of validation
// rules and produces diagnostics.
//
// The rule set is closed: every rule is declared in Registry, and each one
// inspects exactly one kind of graph element (an edge, a node or the whole
// graph). Rules never mutate the graph.
package rules

import (
	"github.com/githubnext/gh-uses/pkg/callgraph"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
)

// Rule identifiers.
const (
	MalformedReference  = "malformed-reference"
	UnpinnedRef         = "unpinned-ref"
	UnpinnedImage       = "unpinned-image"
	UnresolvedReference = "unresolved-reference"
	CycleDetected       = "cycle-detected"
	MaxDepthExceeded    = "max-depth-exceeded"
	InvalidDocument     = "invalid-document"
)

// Scope says which graph element a rule inspects.
type Scope string

const (
	ScopeEdge  Scope = "edge"
	ScopeNode  Scope = "node"
	ScopeGraph Scope = "graph"
)

// finding is what a check reports; the engine turns it into a Diagnostic.
type finding struct {
	message   string
	location  diagnostic.Location
	reference string
}

// Rule describes one validation rule. Exactly one of the check functions is
// set, matching Scope.
type Rule struct {
	ID          string
	Description string
	Scope       Scope
	// DefaultSeverity applies unless overridden.
	DefaultSeverity diagnostic.Severity
	// StrictSeverity, when set, replaces DefaultSeverity in strict mode.
	StrictSeverity diagnostic.Severity

	edge  func(e *Engine, g *callgraph.Graph, edge *callgraph.Edge) (string, bool)
	node  func(e *Engine, node *callgraph.Node) (finding, bool)
	graph func(e *Engine, g *callgraph.Graph) []finding
}

// Registry lists every rule in evaluation order.
var Registry = []*Rule{
	{
		ID:              MalformedReference,
		Description:     "A uses: value matches none of the recognized reference forms",
		Scope:           ScopeEdge,
		DefaultSeverity: diagnostic.SeverityError,
		edge:            checkMalformed,
	},
	{
		ID:              UnpinnedRef,
		Description:     "A remote reference has no ref, or a ref that can move",
		Scope:           ScopeEdge,
		DefaultSeverity: diagnostic.SeverityWarning,
		StrictSeverity:  diagnostic.SeverityError,
		edge:            checkUnpinnedRef,
	},
	{
		ID:              UnpinnedImage,
		Description:     "A docker:// image is not pinned to a digest",
		Scope:           ScopeEdge,
		DefaultSeverity: diagnostic.SeverityWarning,
		StrictSeverity:  diagnostic.SeverityError,
		edge:            checkUnpinnedImage,
	},
	{
		ID:              UnresolvedReference,
		Description:     "A reference could not be resolved to a definition",
		Scope:           ScopeEdge,
		DefaultSeverity: diagnostic.SeverityError,
		edge:            checkUnresolved,
	},
	{
		ID:              CycleDetected,
		Description:     "Definitions call each other in a cycle",
		Scope:           ScopeGraph,
		DefaultSeverity: diagnostic.SeverityError,
		graph:           checkCycles,
	},
	{
		ID:              MaxDepthExceeded,
		Description:     "A call chain is deeper than the configured maximum",
		Scope:           ScopeEdge,
		DefaultSeverity: diagnostic.SeverityWarning,
		edge:            checkDepth,
	},
	{
		ID:              InvalidDocument,
		Description:     "A definition file is not valid YAML",
		Scope:           ScopeNode,
		DefaultSeverity: diagnostic.SeverityError,
		node:            checkInvalidDocument,
	},
}

// Lookup returns the registered rule with the given id.
func Lookup(id string) (*Rule, bool) {
	for _, r := range Registry {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

// IDs returns the registered rule ids in evaluation order.
func IDs() []string {
	ids := make([]string, 0, len(Registry))
	for _, r := range Registry {
		ids = append(ids, r.ID)
	}
	return ids
}
