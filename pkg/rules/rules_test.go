//go:build !integration

package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-uses/pkg/callgraph"
	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/diagnostic"
	"github.com/githubnext/gh-uses/pkg/parser"
	"github.com/githubnext/gh-uses/pkg/resolver"
	"github.com/githubnext/gh-uses/pkg/resolver/resolvertest"
)

const sha = "8e5e7e5ab8b370d6c329ec480221332ada57f0ab"

// singleEdge wraps one classified call in a graph, the way the builder
// leaves terminal edges.
func singleEdge(t *testing.T, raw string) *callgraph.Graph {
	t.Helper()
	edge := &callgraph.Edge{
		Call: parser.CallExpression{
			Raw:       raw,
			Location:  diagnostic.Location{File: ".github/workflows/ci.yml", Line: 9, Column: 15},
			StepIndex: 0,
		},
		To:     callgraph.NoNode,
		Status: callgraph.StatusTerminal,
		Depth:  1,
	}
	ref, err := callref.Classify(raw)
	if err != nil {
		edge.Status = callgraph.StatusMalformed
		edge.ClassifyErr = err
	} else {
		edge.Ref = ref
	}
	return &callgraph.Graph{Edges: []*callgraph.Edge{edge}, MaxDepth: 10}
}

func evaluate(t *testing.T, settings Settings, g *callgraph.Graph) []diagnostic.Diagnostic {
	t.Helper()
	engine, err := NewEngine(settings)
	require.NoError(t, err)
	return engine.Evaluate(g)
}

func byRule(diags []diagnostic.Diagnostic, id string) []diagnostic.Diagnostic {
	var out []diagnostic.Diagnostic
	for _, d := range diags {
		if d.RuleID == id {
			out = append(out, d)
		}
	}
	return out
}

func TestUnpinnedRefPolicy(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		strict     bool
		requireSHA bool
		want       bool
	}{
		{name: "sha", raw: "actions/checkout@" + sha, want: false},
		{name: "sha strict", raw: "actions/checkout@" + sha, strict: true, want: false},
		{name: "sha require_sha", raw: "actions/checkout@" + sha, requireSHA: true, want: false},
		{name: "branch", raw: "actions/checkout@main", want: false},
		{name: "branch strict", raw: "actions/checkout@main", strict: true, want: true},
		{name: "branch require_sha", raw: "actions/checkout@main", requireSHA: true, want: true},
		{name: "floating tag", raw: "actions/checkout@v4", want: false},
		{name: "floating tag strict", raw: "actions/checkout@v4", strict: true, want: true},
		{name: "precise tag strict", raw: "actions/checkout@v4.1.7", strict: true, want: false},
		{name: "precise tag require_sha", raw: "actions/checkout@v4.1.7", requireSHA: true, want: true},
		{name: "absent", raw: "actions/checkout", want: true},
		{name: "absent strict", raw: "actions/checkout", strict: true, want: true},
		{name: "same repo", raw: "./local", strict: true, want: false},
		{name: "docker", raw: "docker://alpine:3.20", strict: true, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diags := evaluate(t, Settings{Strict: tt.strict, RequireSHA: tt.requireSHA}, singleEdge(t, tt.raw))
			found := byRule(diags, UnpinnedRef)
			if !tt.want {
				assert.Empty(t, found)
				return
			}
			require.Len(t, found, 1)
			assert.Equal(t, tt.raw, found[0].Reference)
			assert.Equal(t, 9, found[0].Location.Line)
		})
	}
}

func TestUnpinnedRefSeverity(t *testing.T) {
	g := singleEdge(t, "actions/checkout")

	diags := evaluate(t, Settings{}, g)
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostic.SeverityWarning, diags[0].Severity)
	assert.Contains(t, diags[0].Message, "has no ref")

	diags = evaluate(t, Settings{Strict: true}, g)
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostic.SeverityError, diags[0].Severity)

	diags = evaluate(t, Settings{Strict: true, Overrides: map[string]Override{
		UnpinnedRef: {Severity: diagnostic.SeverityInfo},
	}}, g)
	require.Len(t, diags, 1)
	assert.Equal(t, diagnostic.SeverityInfo, diags[0].Severity, "an override beats strict mode")

	off := false
	diags = evaluate(t, Settings{Overrides: map[string]Override{UnpinnedRef: {Enabled: &off}}}, g)
	assert.Empty(t, diags)
}

func TestAllowedOwners(t *testing.T) {
	settings := Settings{Strict: true, AllowedOwners: []string{"actions", "myorg/*"}}

	tests := []struct {
		raw  string
		want int
	}{
		{"actions/checkout@main", 0},
		{"myorg/deploy@main", 0},
		{"myorg-fork/deploy@main", 1},
		{"octo/tools@main", 1},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Len(t, byRule(evaluate(t, settings, singleEdge(t, tt.raw)), UnpinnedRef), tt.want)
		})
	}
}

func TestUnpinnedImage(t *testing.T) {
	digest := "@sha256:" + strings.Repeat("a", 64)
	tests := []struct {
		raw    string
		strict bool
		want   bool
	}{
		{raw: "docker://alpine", want: true},
		{raw: "docker://alpine:latest", want: true},
		{raw: "docker://alpine:3.20", want: false},
		{raw: "docker://alpine:3.20", strict: true, want: true},
		{raw: "docker://alpine:3.20" + digest, strict: true, want: false},
		{raw: "docker://alpine" + digest, strict: true, want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s strict=%v", tt.raw, tt.strict), func(t *testing.T) {
			found := byRule(evaluate(t, Settings{Strict: tt.strict}, singleEdge(t, tt.raw)), UnpinnedImage)
			if tt.want {
				assert.Len(t, found, 1)
			} else {
				assert.Empty(t, found)
			}
		})
	}
}

func TestMalformedReference(t *testing.T) {
	diags := evaluate(t, Settings{}, singleEdge(t, "${{ matrix.action }}"))

	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, MalformedReference, d.RuleID)
	assert.Equal(t, diagnostic.SeverityError, d.Severity)
	assert.Equal(t, "${{ matrix.action }}", d.Reference)
	assert.True(t, strings.HasPrefix(d.Message, "malformed reference"), d.Message)
}

func TestNewEngineConfigurationError(t *testing.T) {
	_, err := NewEngine(Settings{
		Overrides: map[string]Override{
			"no-such-rule": {},
			UnpinnedRef:    {Severity: "fatal"},
		},
		AllowedOwners: []string{"[unterminated"},
	})

	require.Error(t, err)
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Len(t, cfgErr.Problems, 3)
	assert.Contains(t, cfgErr.Problems[0], `unknown rule "no-such-rule"`)
	assert.Contains(t, cfgErr.Problems[1], `invalid severity "fatal"`)
	assert.Contains(t, cfgErr.Problems[2], "[unterminated")
	assert.Contains(t, err.Error(), "invalid rule configuration")
}

func TestEngineRulesOrder(t *testing.T) {
	off := false
	engine, err := NewEngine(Settings{Strict: true, Overrides: map[string]Override{CycleDetected: {Enabled: &off}}})
	require.NoError(t, err)

	var ids []string
	for _, r := range engine.Rules() {
		ids = append(ids, r.ID)
		if r.ID == UnpinnedRef {
			assert.Equal(t, diagnostic.SeverityError, r.Severity)
		}
	}
	assert.Equal(t, []string{MalformedReference, UnpinnedRef, UnpinnedImage, UnresolvedReference, MaxDepthExceeded, InvalidDocument}, ids)

	sev, ok := engine.Severity(UnpinnedRef)
	assert.True(t, ok)
	assert.Equal(t, diagnostic.SeverityError, sev)
	_, ok = engine.Severity(CycleDetected)
	assert.False(t, ok, "disabled rules have no severity")
}

func TestLookup(t *testing.T) {
	r, ok := Lookup(CycleDetected)
	require.True(t, ok)
	assert.Equal(t, ScopeGraph, r.Scope)

	_, ok = Lookup("unknown")
	assert.False(t, ok)
	assert.Len(t, IDs(), len(Registry))
}

// Graph-level scenarios run through the real builder.

func workflow(calls ...string) string {
	var b strings.Builder
	b.WriteString("on: push\njobs:\n  build:\n    runs-on: ubuntu-latest\n    steps:\n")
	for _, c := range calls {
		fmt.Fprintf(&b, "      - uses: %s\n", c)
	}
	return b.String()
}

func composite(calls ...string) string {
	var b strings.Builder
	b.WriteString("runs:\n  using: composite\n  steps:\n")
	for _, c := range calls {
		fmt.Fprintf(&b, "    - uses: %s\n", c)
	}
	return b.String()
}

func scan(t *testing.T, fake *resolvertest.Fake, opts callgraph.Options, settings Settings, entries ...*resolver.Document) []diagnostic.Diagnostic {
	t.Helper()
	g := callgraph.NewBuilder(fake, opts).Build(context.Background(), entries)
	return evaluate(t, settings, g)
}

func TestCleanGraphHasNoStructuralFindings(t *testing.T) {
	fake := resolvertest.New("/repo")
	fake.Add("./a", composite("./b", "actions/checkout@"+sha))
	fake.Add("./b", composite())
	fake.Add("actions/checkout@"+sha, composite())
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./a", "./b"))

	diags := scan(t, fake, callgraph.Options{}, Settings{Strict: true}, entry)

	assert.Empty(t, diags)
}

func TestSelfReferenceReportsOneCycle(t *testing.T) {
	fake := resolvertest.New("/repo")
	fake.Add("./loop", composite("./loop"))
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./loop"))

	diags := scan(t, fake, callgraph.Options{}, Settings{}, entry)

	cycles := byRule(diags, CycleDetected)
	require.Len(t, cycles, 1)
	assert.Equal(t, "call cycle: loop -> loop", cycles[0].Message)
	assert.Equal(t, "loop", cycles[0].Location.File)
	assert.Equal(t, diagnostic.SeverityError, cycles[0].Severity)
}

func TestThreeNodeCycle(t *testing.T) {
	fake := resolvertest.New("/repo")
	fake.Add("./a", composite("./b"))
	fake.Add("./b", composite("./a"))
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./a"))

	diags := scan(t, fake, callgraph.Options{}, Settings{}, entry)

	require.Len(t, diags, 1)
	assert.Equal(t, CycleDetected, diags[0].RuleID)
	assert.Equal(t, "b", diags[0].Location.File, "the back-edge is B -> A")
	assert.Equal(t, "./a", diags[0].Reference)
	assert.Equal(t, "call cycle: a -> b -> a", diags[0].Message)
}

func TestMissingLocalAction(t *testing.T) {
	fake := resolvertest.New("/repo")
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./local/action"))

	diags := scan(t, fake, callgraph.Options{}, Settings{}, entry)

	require.Len(t, diags, 1)
	d := diags[0]
	assert.Equal(t, UnresolvedReference, d.RuleID)
	assert.Equal(t, diagnostic.SeverityError, d.Severity)
	assert.Equal(t, diagnostic.Location{File: ".github/workflows/ci.yml", Line: 6, Column: 15}, d.Location)
	assert.Contains(t, d.Message, "(not-found)")
}

func TestDepthBound(t *testing.T) {
	fake := resolvertest.New("/repo")
	for i := 1; i <= 7; i++ {
		if i == 7 {
			fake.Add("./s7", composite())
			continue
		}
		fake.Add(fmt.Sprintf("./s%d", i), composite(fmt.Sprintf("./s%d", i+1)))
	}
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./s1"))

	diags := scan(t, fake, callgraph.Options{MaxDepth: 5}, Settings{}, entry)

	require.Len(t, diags, 1)
	assert.Equal(t, MaxDepthExceeded, diags[0].RuleID)
	assert.Equal(t, diagnostic.SeverityWarning, diags[0].Severity)
	assert.Equal(t, "s5", diags[0].Location.File)
	assert.Contains(t, diags[0].Message, "maximum of 5")
}

func TestInvalidDocument(t *testing.T) {
	fake := resolvertest.New("/repo")
	fake.Add("./broken", "runs:\n  steps: [\n")
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./broken"))

	diags := scan(t, fake, callgraph.Options{}, Settings{}, entry)

	found := byRule(diags, InvalidDocument)
	require.Len(t, found, 1)
	assert.Equal(t, "broken", found[0].Location.File)
	assert.True(t, strings.HasPrefix(found[0].Message, "invalid YAML: "))
}

func TestCanceledEdgesAreNotReported(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := resolvertest.New("/repo")
	fake.Hook = func(ctx context.Context, _ resolver.Request) {
		cancel()
		<-ctx.Done()
	}
	entry := fake.Entry(".github/workflows/ci.yml", workflow("octo/tools@"+sha))

	g := callgraph.NewBuilder(fake, callgraph.Options{}).Build(ctx, []*resolver.Document{entry})
	require.True(t, g.Incomplete)

	assert.Empty(t, evaluate(t, Settings{}, g))
}

func TestEvaluateIsSorted(t *testing.T) {
	fake := resolvertest.New("/repo")
	entries := []*resolver.Document{
		fake.Entry(".github/workflows/b.yml", workflow("./missing", "octo/tools", "not valid")),
		fake.Entry(".github/workflows/a.yml", workflow("octo/tools", "./missing")),
	}

	diags := scan(t, fake, callgraph.Options{}, Settings{}, entries...)

	require.Len(t, diags, 7)
	sorted := append([]diagnostic.Diagnostic(nil), diags...)
	diagnostic.Sort(sorted)
	assert.Equal(t, sorted, diags)
	assert.Equal(t, ".github/workflows/a.yml", diags[0].Location.File)
}
