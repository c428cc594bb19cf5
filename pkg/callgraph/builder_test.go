//go:build !integration

package callgraph

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-uses/pkg/resolver"
	"github.com/githubnext/gh-uses/pkg/resolver/resolvertest"
)

const root = "/repo"

// workflow renders a workflow whose single job runs one step per call.
func workflow(calls ...string) string {
	var b strings.Builder
	b.WriteString("name: ci\non: push\njobs:\n  build:\n    runs-on: ubuntu-latest\n    steps:\n")
	for _, c := range calls {
		fmt.Fprintf(&b, "      - uses: %s\n", c)
	}
	return b.String()
}

// composite renders a composite action calling each of calls.
func composite(calls ...string) string {
	var b strings.Builder
	b.WriteString("name: step\nruns:\n  using: composite\n  steps:\n")
	for _, c := range calls {
		fmt.Fprintf(&b, "    - uses: %s\n", c)
	}
	return b.String()
}

func build(t *testing.T, fake *resolvertest.Fake, opts Options, entries ...*resolver.Document) *Graph {
	t.Helper()
	g := NewBuilder(fake, opts).Build(context.Background(), entries)
	require.NotNil(t, g)
	return g
}

func backEdges(g *Graph) []*Edge {
	var out []*Edge
	for _, e := range g.Edges {
		if e.BackEdge {
			out = append(out, e)
		}
	}
	return out
}

func nodePaths(g *Graph) []string {
	paths := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		paths = append(paths, n.Path)
	}
	return paths
}

func TestBuildLinearChain(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("./a", composite("./b"))
	fake.Add("./b", composite("actions/checkout@v4"))
	fake.Add("actions/checkout@v4", "name: checkout\nruns:\n  using: node20\n  main: index.js\n")
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./a"))

	g := build(t, fake, Options{}, entry)

	assert.Equal(t, []string{".github/workflows/ci.yml", "a", "b", "actions/checkout@v4"}, nodePaths(g))
	assert.Equal(t, []NodeID{0}, g.Entries)
	assert.False(t, g.Incomplete)
	require.Len(t, g.Edges, 3)
	for i, e := range g.Edges {
		assert.Equal(t, StatusResolved, e.Status, "edge %d", i)
		assert.Equal(t, i+1, e.Depth, "edge %d", i)
		assert.Equal(t, NodeID(i+1), e.To, "edge %d", i)
	}
	assert.Equal(t, 2, g.Node(2).Depth)
	assert.Empty(t, backEdges(g))
}

func TestBuildSelfCycle(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("./loop", composite("./loop"))
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./loop"))

	g := build(t, fake, Options{}, entry)

	require.Len(t, g.Nodes, 2)
	back := backEdges(g)
	require.Len(t, back, 1, "a self-reference closes exactly one cycle")
	assert.Equal(t, NodeID(1), back[0].From)
	assert.Equal(t, NodeID(1), back[0].To)
	assert.Equal(t, []string{"loop", "loop"}, g.CyclePath(back[0]))
}

func TestBuildEntrySelfReference(t *testing.T) {
	fake := resolvertest.New(root)
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./.github/workflows/ci.yml"))
	fake.Add("./.github/workflows/ci.yml", string(entry.Content))

	g := build(t, fake, Options{}, entry)

	require.Len(t, g.Nodes, 1)
	back := backEdges(g)
	require.Len(t, back, 1)
	assert.Equal(t, NodeID(0), back[0].To)
}

func TestBuildIndirectCycle(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("./a", composite("./b"))
	fake.Add("./b", composite("./a"))
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./a"))

	g := build(t, fake, Options{}, entry)

	assert.Equal(t, []string{".github/workflows/ci.yml", "a", "b"}, nodePaths(g), "each document appears once")
	back := backEdges(g)
	require.Len(t, back, 1)
	assert.Equal(t, "b", g.Node(back[0].From).Path)
	assert.Equal(t, "a", g.Node(back[0].To).Path)
	assert.Equal(t, []string{"a", "b", "a"}, g.CyclePath(back[0]))
	assert.Equal(t, 1, fake.Calls("./a"))
	assert.Equal(t, 1, fake.Calls("./b"))
}

func TestBuildDepthBound(t *testing.T) {
	fake := resolvertest.New(root)
	for i := 1; i <= 7; i++ {
		next := fmt.Sprintf("./s%d", i+1)
		if i == 7 {
			fake.Add(fmt.Sprintf("./s%d", i), composite())
			continue
		}
		fake.Add(fmt.Sprintf("./s%d", i), composite(next))
	}
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./s1"))

	g := build(t, fake, Options{MaxDepth: 5}, entry)

	var exceeded []*Edge
	for _, e := range g.Edges {
		if e.Status == StatusDepthExceeded {
			exceeded = append(exceeded, e)
		}
	}
	require.Len(t, exceeded, 1)
	assert.Equal(t, 6, exceeded[0].Depth, "sixth hop is over the bound")
	assert.Equal(t, "s5", g.Node(exceeded[0].From).Path)
	assert.Equal(t, NoNode, exceeded[0].To)
	assert.Len(t, g.Nodes, 6, "entry plus five reachable documents")
	assert.Zero(t, fake.Calls("./s6"), "edges over the bound are not resolved")
	assert.Equal(t, 5, g.MaxDepth)
}

func TestBuildShorterPathFromLaterEntry(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("./x1", composite("./x2"))
	fake.Add("./x2", composite("./x3"))
	fake.Add("./x3", composite("not a valid ref"))
	entries := []*resolver.Document{
		fake.Entry(".github/workflows/a.yml", workflow("./x1")),
		fake.Entry(".github/workflows/b.yml", workflow("./x2")),
	}

	g := build(t, fake, Options{MaxDepth: 2}, entries...)

	assert.Equal(t, []string{".github/workflows/a.yml", "x1", "x2", ".github/workflows/b.yml", "x3"}, nodePaths(g))
	assert.Equal(t, 1, fake.Calls("./x3"))
	assert.Equal(t, 1, g.Node(2).Depth, "x2 is one hop from b.yml")
	assert.Equal(t, 2, g.Node(4).Depth)

	statuses := make(map[string]EdgeStatus)
	for _, e := range g.Edges {
		statuses[e.Call.Raw] = e.Status
	}
	assert.Equal(t, StatusResolved, statuses["./x3"])
	assert.Equal(t, StatusMalformed, statuses["not a valid ref"])
	for _, e := range g.Edges {
		assert.NotEqual(t, StatusDepthExceeded, e.Status, "edge %s", e.Call.Raw)
	}
}

func TestBuildShorterPathLowersDescendants(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("./x1", composite("./x2"))
	fake.Add("./x2", composite("./x3"))
	fake.Add("./x3", composite("./x4"))
	fake.Add("./x4", composite())
	entries := []*resolver.Document{
		fake.Entry(".github/workflows/a.yml", workflow("./x1")),
		fake.Entry(".github/workflows/b.yml", workflow("./x2")),
	}

	g := build(t, fake, Options{MaxDepth: 3}, entries...)

	depths := make(map[string]int)
	for _, n := range g.Nodes {
		depths[n.Path] = n.Depth
	}
	assert.Equal(t, map[string]int{
		".github/workflows/a.yml": 0,
		".github/workflows/b.yml": 0,
		"x1":                      1,
		"x2":                      1,
		"x3":                      2,
		"x4":                      3,
	}, depths)
	for _, e := range g.Edges {
		assert.Equal(t, StatusResolved, e.Status, "edge %s", e.Call.Raw)
	}
}

func TestBuildUnresolvedLocalAction(t *testing.T) {
	fake := resolvertest.New(root)
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./local/action"))

	g := build(t, fake, Options{}, entry)

	require.Len(t, g.Edges, 1)
	e := g.Edges[0]
	assert.Equal(t, StatusUnresolved, e.Status)
	assert.Equal(t, resolver.ReasonNotFound, e.Reason)
	assert.NotEmpty(t, e.Detail)
	assert.Equal(t, NoNode, e.To)
	assert.Equal(t, 7, e.Call.Location.Line)
	assert.False(t, g.Incomplete)
}

func TestBuildClassification(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("actions/checkout@v4", composite())
	entry := fake.Entry(".github/workflows/ci.yml", workflow(
		"actions/checkout@v4",
		"docker://alpine:3.20",
		"actions/checkout",
		"not a reference",
	))

	tests := []struct {
		name    string
		offline bool
		want    []EdgeStatus
	}{
		{
			name: "online",
			want: []EdgeStatus{StatusResolved, StatusTerminal, StatusUnresolved, StatusMalformed},
		},
		{
			name:    "offline",
			offline: true,
			want:    []EdgeStatus{StatusTerminal, StatusTerminal, StatusTerminal, StatusMalformed},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t, fake, Options{Offline: tt.offline}, entry)
			got := make([]EdgeStatus, 0, len(g.Edges))
			for _, e := range g.Edges {
				got = append(got, e.Status)
			}
			assert.Equal(t, tt.want, got)
			assert.Error(t, g.Edges[3].ClassifyErr)
		})
	}
}

func TestBuildMemoizesResolutions(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("actions/setup-go@v5", composite())
	fake.Add("./a", composite("actions/setup-go@v5"))
	fake.Add("./b", composite("actions/setup-go@v5"))
	entries := []*resolver.Document{
		fake.Entry(".github/workflows/ci.yml", workflow("./a", "./b", "actions/setup-go@v5")),
		fake.Entry(".github/workflows/release.yml", workflow("actions/setup-go@v5")),
	}

	g := build(t, fake, Options{}, entries...)

	assert.Equal(t, 1, fake.Calls("actions/setup-go@v5"))
	assert.Equal(t, 3, g.CacheHits)
	assert.Equal(t, 3, g.CacheMisses)

	var setupGo int
	for _, n := range g.Nodes {
		if n.Path == "actions/setup-go@v5" {
			setupGo++
		}
	}
	assert.Equal(t, 1, setupGo, "shared documents are one node")
}

func TestBuildSharedEntry(t *testing.T) {
	fake := resolvertest.New(root)
	called := fake.Entry(".github/workflows/called.yml", workflow("actions/checkout@v4"))
	fake.Add("./.github/workflows/called.yml", string(called.Content))
	fake.Add("actions/checkout@v4", composite())
	caller := fake.Entry(".github/workflows/a.yml", workflow("./.github/workflows/called.yml"))

	g := build(t, fake, Options{}, called, caller)

	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Entries, 2)
	for _, id := range g.Entries {
		assert.True(t, g.Node(id).Entry)
	}
}

func TestBuildResolveTimeout(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Hook = func(ctx context.Context, req resolver.Request) {
		if req.Ref.Owner == "slow" {
			<-ctx.Done()
		}
	}
	fake.Add("fast/action@v1", composite())
	entry := fake.Entry(".github/workflows/ci.yml", workflow("slow/action@v1", "fast/action@v1"))

	g := build(t, fake, Options{ResolveTimeout: 20 * time.Millisecond}, entry)

	require.Len(t, g.Edges, 2)
	assert.Equal(t, StatusUnresolved, g.Edges[0].Status)
	assert.Equal(t, resolver.ReasonTimeout, g.Edges[0].Reason)
	assert.Equal(t, StatusResolved, g.Edges[1].Status)
	assert.False(t, g.Incomplete, "a per-call timeout does not make the graph incomplete")
}

func TestBuildCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fake := resolvertest.New(root)
	fake.Hook = func(ctx context.Context, req resolver.Request) {
		if req.Ref.Owner == "stop" {
			cancel()
			<-ctx.Done()
		}
	}
	entry := fake.Entry(".github/workflows/ci.yml", workflow("stop/now@v1"))
	later := fake.Entry(".github/workflows/later.yml", workflow("actions/checkout@v4"))

	g := NewBuilder(fake, Options{}).Build(ctx, []*resolver.Document{entry, later})

	assert.True(t, g.Incomplete)
	require.NotEmpty(t, g.Edges)
	assert.Equal(t, StatusUnresolved, g.Edges[0].Status)
	assert.Equal(t, resolver.ReasonCanceled, g.Edges[0].Reason)
	assert.Zero(t, fake.Calls("actions/checkout@v4"), "no resolution starts after cancellation")
}

func TestBuildInvalidDocument(t *testing.T) {
	fake := resolvertest.New(root)
	fake.Add("./broken", "runs:\n  steps: [\n")
	entry := fake.Entry(".github/workflows/ci.yml", workflow("./broken"))

	g := build(t, fake, Options{}, entry)

	require.Len(t, g.Nodes, 2)
	broken := g.Node(1)
	require.NotNil(t, broken.ParseErr)
	assert.Nil(t, broken.Document)
	assert.Empty(t, broken.Out)
	assert.Equal(t, StatusResolved, g.Edges[0].Status)
}

func TestBuildDeterministic(t *testing.T) {
	setup := func() (*resolvertest.Fake, []*resolver.Document) {
		fake := resolvertest.New(root)
		fake.Add("./a", composite("./b", "actions/cache@v4"))
		fake.Add("./b", composite("./a"))
		fake.Add("actions/cache@v4", composite())
		return fake, []*resolver.Document{
			fake.Entry(".github/workflows/z.yml", workflow("./b")),
			fake.Entry(".github/workflows/a.yml", workflow("./a", "actions/cache@v4")),
		}
	}

	fake1, entries1 := setup()
	g1 := build(t, fake1, Options{Concurrency: 1}, entries1...)

	fake2, entries2 := setup()
	entries2[0], entries2[1] = entries2[1], entries2[0]
	g2 := build(t, fake2, Options{Concurrency: 16}, entries2...)

	assert.Equal(t, nodePaths(g1), nodePaths(g2))
	require.Len(t, g2.Edges, len(g1.Edges))
	for i := range g1.Edges {
		assert.Equal(t, g1.Edges[i].From, g2.Edges[i].From, "edge %d", i)
		assert.Equal(t, g1.Edges[i].To, g2.Edges[i].To, "edge %d", i)
		assert.Equal(t, g1.Edges[i].BackEdge, g2.Edges[i].BackEdge, "edge %d", i)
	}
}

func TestCycleThrough(t *testing.T) {
	assert.Equal(t, []NodeID{2, 3, 2}, cycleThrough([]NodeID{0, 2, 3}, 2))
	assert.Equal(t, []NodeID{4, 4}, cycleThrough([]NodeID{0, 1}, 4))
}
