package rules

import (
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"

	"github.com/githubnext/gh-uses/pkg/callgraph"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var log = logger.New("rules:engine")

// Override changes how one rule is applied.
type Override struct {
	// Enabled disables the rule when it points at false.
	Enabled *bool
	// Severity replaces the default and strict severities when set.
	Severity diagnostic.Severity
}

// Settings selects and tunes the active rules.
type Settings struct {
	Strict    bool
	Overrides map[string]Override
	// RequireSHA makes unpinned-ref fire for any ref that is not a commit SHA.
	RequireSHA bool
	// AllowedOwners are glob patterns matched against "owner" and
	// "owner/repo"; matching references are exempt from unpinned-ref.
	AllowedOwners []string
}

// ConfigurationError reports settings the engine cannot apply.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Problems) == 1 {
		return "invalid rule configuration: " + e.Problems[0]
	}
	return "invalid rule configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

// ActiveRule is a rule with the severity it reports at.
type ActiveRule struct {
	*Rule
	Severity diagnostic.Severity
}

// Engine evaluates the active rules against call graphs. It is immutable
// once built and safe for concurrent use.
type Engine struct {
	settings Settings
	active   []ActiveRule
	allowed  []glob.Glob
}

// NewEngine validates settings and resolves each rule's severity: an
// override wins, then the strict severity in strict mode, then the default.
func NewEngine(settings Settings) (*Engine, error) {
	var problems []string

	ids := make([]string, 0, len(settings.Overrides))
	for id := range settings.Overrides {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if _, ok := Lookup(id); !ok {
			problems = append(problems, fmt.Sprintf("unknown rule %q (known rules: %s)", id, strings.Join(IDs(), ", ")))
			continue
		}
		if sev := settings.Overrides[id].Severity; sev != "" && sev.Rank() == 0 {
			problems = append(problems, fmt.Sprintf("rule %q: invalid severity %q", id, sev))
		}
	}

	e := &Engine{settings: settings}
	for _, pattern := range settings.AllowedOwners {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			problems = append(problems, fmt.Sprintf("allowed owner pattern %q: %v", pattern, err))
			continue
		}
		e.allowed = append(e.allowed, g)
	}

	if len(problems) > 0 {
		return nil, &ConfigurationError{Problems: problems}
	}

	for _, r := range Registry {
		o := settings.Overrides[r.ID]
		if o.Enabled != nil && !*o.Enabled {
			log.Printf("Rule disabled: %s", r.ID)
			continue
		}
		sev := r.DefaultSeverity
		if settings.Strict && r.StrictSeverity != "" {
			sev = r.StrictSeverity
		}
		if o.Severity != "" {
			sev = o.Severity
		}
		e.active = append(e.active, ActiveRule{Rule: r, Severity: sev})
	}

	log.Printf("Rule engine ready: active=%d, strict=%v, require_sha=%v", len(e.active), settings.Strict, settings.RequireSHA)
	return e, nil
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []ActiveRule {
	return slices.Clone(e.active)
}

// Severity returns the severity id reports at, or false when the rule is
// disabled or unknown.
func (e *Engine) Severity(id string) (diagnostic.Severity, bool) {
	for _, r := range e.active {
		if r.ID == id {
			return r.Severity, true
		}
	}
	return "", false
}

// Evaluate runs every active rule against g and returns the sorted diagnostics.
func (e *Engine) Evaluate(g *callgraph.Graph) []diagnostic.Diagnostic {
	var diags []diagnostic.Diagnostic

	for _, r := range e.active {
		before := len(diags)
		emit := func(f finding) {
			diags = append(diags, diagnostic.Diagnostic{
				Severity:  r.Severity,
				RuleID:    r.ID,
				Message:   f.message,
				Location:  f.location,
				Reference: f.reference,
			})
		}

		switch r.Scope {
		case ScopeEdge:
			for _, edge := range g.Edges {
				if msg, ok := r.edge(e, g, edge); ok {
					emit(finding{message: msg, location: edge.Call.Location, reference: edge.Call.Raw})
				}
			}
		case ScopeNode:
			for _, node := range g.Nodes {
				if f, ok := r.node(e, node); ok {
					emit(f)
				}
			}
		case ScopeGraph:
			for _, f := range r.graph(e, g) {
				emit(f)
			}
		}

		if n := len(diags) - before; n > 0 {
			log.Printf("Rule %s reported %d findings", r.ID, n)
		}
	}

	diagnostic.Sort(diags)
	return diags
}

// ownerAllowed reports whether owner or owner/repo matches an allowed pattern.
func (e *Engine) ownerAllowed(owner, repo string) bool {
	slug := owner + "/" + repo
	for _, g := range e.allowed {
		if g.Match(owner) || g.Match(slug) {
			return true
		}
	}
	return false
}
