package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/githubnext/gh-uses/pkg/callgraph"
	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/resolver"
)

func checkMalformed(_ *Engine, _ *callgraph.Graph, edge *callgraph.Edge) (string, bool) {
	if edge.Status != callgraph.StatusMalformed {
		return "", false
	}
	var reason string
	var ce *callref.ClassificationError
	if errors.As(edge.ClassifyErr, &ce) {
		reason = ce.Reason
	} else if edge.ClassifyErr != nil {
		reason = edge.ClassifyErr.Error()
	}
	return fmt.Sprintf("malformed reference %q: %s", edge.Call.Raw, reason), true
}

func checkUnpinnedRef(e *Engine, _ *callgraph.Graph, edge *callgraph.Edge) (string, bool) {
	if edge.Status == callgraph.StatusMalformed || edge.Ref.Kind != callref.KindRemote {
		return "", false
	}
	if e.ownerAllowed(edge.Ref.Owner, edge.Ref.Repo) {
		return "", false
	}

	kind := callref.ClassifyRef(edge.Ref.Ref)
	var fires bool
	switch {
	case kind == callref.RefAbsent:
		fires = true
	case e.settings.RequireSHA:
		fires = kind != callref.RefCommitSHA
	case e.settings.Strict:
		fires = !kind.Immutable()
	}
	if !fires {
		return "", false
	}

	if kind == callref.RefAbsent {
		return fmt.Sprintf("%s has no ref; pin it to a full commit SHA", edge.Ref.RepoSlug()), true
	}
	return fmt.Sprintf("%s is pinned to %s %q, which can move; pin it to a full commit SHA", edge.Ref.RepoSlug(), kind, edge.Ref.Ref), true
}

func checkUnpinnedImage(e *Engine, _ *callgraph.Graph, edge *callgraph.Edge) (string, bool) {
	if edge.Status == callgraph.StatusMalformed || edge.Ref.Kind != callref.KindDocker {
		return "", false
	}
	ref := edge.Ref
	if ref.Digest != "" {
		return "", false
	}
	if !e.settings.Strict && ref.Ref != "" && ref.Ref != "latest" {
		return "", false
	}

	if ref.Ref == "" {
		return fmt.Sprintf("image %s has no tag or digest; pin it with @sha256:<digest>", ref.Path), true
	}
	return fmt.Sprintf("image %s:%s is not pinned to a digest", ref.Path, ref.Ref), true
}

func checkUnresolved(_ *Engine, _ *callgraph.Graph, edge *callgraph.Edge) (string, bool) {
	if edge.Status != callgraph.StatusUnresolved || edge.Reason == resolver.ReasonCanceled {
		return "", false
	}
	msg := fmt.Sprintf("cannot resolve %s (%s)", edge.Call.Raw, edge.Reason)
	if edge.Detail != "" {
		msg += ": " + edge.Detail
	}
	return msg, true
}

func checkCycles(_ *Engine, g *callgraph.Graph) []finding {
	var out []finding
	for _, edge := range g.Edges {
		if !edge.BackEdge {
			continue
		}
		out = append(out, finding{
			message:   "call cycle: " + strings.Join(g.CyclePath(edge), " -> "),
			location:  edge.Call.Location,
			reference: edge.Call.Raw,
		})
	}
	return out
}

func checkDepth(_ *Engine, g *callgraph.Graph, edge *callgraph.Edge) (string, bool) {
	if edge.Status != callgraph.StatusDepthExceeded {
		return "", false
	}
	return fmt.Sprintf("call depth exceeds the maximum of %d; %s was not followed", g.MaxDepth, edge.Call.Raw), true
}

func checkInvalidDocument(_ *Engine, node *callgraph.Node) (finding, bool) {
	if node.ParseErr == nil {
		return finding{}, false
	}
	return finding{
		message:  "invalid YAML: " + node.ParseErr.Reason,
		location: node.ParseErr.Location,
	}, true
}
