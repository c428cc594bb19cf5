package resolver

import (
	"context"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var routerLog = logger.New("resolver:router")

// Router dispatches requests by reference kind: filesystem references from
// local documents go to Local, remote references to Remote. A same-repo
// reference inside a remote document is rewritten to the document's own
// repository and ref. Remote may be nil, in which case remote references
// are reported as not found.
type Router struct {
	Local  Resolver
	Remote Resolver
}

// Resolve implements Resolver.
func (r *Router) Resolve(ctx context.Context, req Request) Resolution {
	switch req.Ref.Kind {
	case callref.KindRemote:
		return r.remote(ctx, req)
	case callref.KindSameRepo:
		if req.From.IsLocal() {
			return r.Local.Resolve(ctx, req)
		}
		translated := Request{Ref: translateSameRepo(req), From: req.From}
		routerLog.Printf("Same-repo reference %s in %s resolves as %s", req.Ref, req.From, translated.Ref)
		return r.remote(ctx, translated)
	case callref.KindLocal:
		return r.Local.Resolve(ctx, req)
	default:
		return Unresolved(ReasonInvalidRef, "%s references are not resolvable", req.Ref.Kind)
	}
}

func (r *Router) remote(ctx context.Context, req Request) Resolution {
	if r.Remote == nil {
		return Unresolved(ReasonNotFound, "remote resolution is disabled")
	}
	return r.Remote.Resolve(ctx, req)
}
