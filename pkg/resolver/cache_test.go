//go:build !integration

package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-uses/pkg/callref"
)

type countingResolver struct {
	calls   atomic.Int32
	release chan struct{}
	result  Resolution
}

func (c *countingResolver) Resolve(ctx context.Context, _ Request) Resolution {
	c.calls.Add(1)
	if c.release != nil {
		select {
		case <-c.release:
		case <-ctx.Done():
			res, _ := FromContext(ctx)
			return res
		}
	}
	return c.result
}

func remoteRequest(t *testing.T, raw string) Request {
	t.Helper()
	ref, err := callref.Classify(raw)
	require.NoError(t, err)
	return Request{Ref: ref, From: LocalKey("/repo/.github/workflows/ci.yml")}
}

func TestCacheMemoizes(t *testing.T) {
	next := &countingResolver{result: Resolved(&Document{DisplayPath: "x"})}
	cache := NewCache(next)
	req := remoteRequest(t, "actions/checkout@v4")

	for range 5 {
		res := cache.Resolve(context.Background(), req)
		require.True(t, res.Resolved())
	}

	assert.Equal(t, int32(1), next.calls.Load())
	hits, misses := cache.Stats()
	assert.Equal(t, 4, hits)
	assert.Equal(t, 1, misses)
}

func TestCacheSingleFlight(t *testing.T) {
	next := &countingResolver{release: make(chan struct{}), result: Unresolved(ReasonNotFound, "gone")}
	cache := NewCache(next)
	req := remoteRequest(t, "o/r@v1")

	var wg sync.WaitGroup
	results := make([]Resolution, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = cache.Resolve(context.Background(), req)
		}()
	}

	require.Eventually(t, func() bool {
		hits, misses := cache.Stats()
		return hits+misses == len(results)
	}, time.Second, time.Millisecond)
	close(next.release)
	wg.Wait()

	assert.Equal(t, int32(1), next.calls.Load())
	for _, res := range results {
		assert.Equal(t, ReasonNotFound, res.Reason)
	}
}

func TestCacheDoesNotRememberCancellation(t *testing.T) {
	next := &countingResolver{release: make(chan struct{}), result: Resolved(&Document{})}
	cache := NewCache(next)
	req := remoteRequest(t, "o/r@v1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := cache.Resolve(ctx, req)
	assert.Equal(t, ReasonCanceled, res.Reason)

	close(next.release)
	res = cache.Resolve(context.Background(), req)
	assert.True(t, res.Resolved())
	assert.Equal(t, int32(2), next.calls.Load())
}

func TestTargetID(t *testing.T) {
	local := LocalKey("/repo/.github/workflows/ci.yml")
	remote := Key{Owner: "o", Repo: "r", Path: "action.yml", Ref: "v1"}

	tests := []struct {
		name string
		raw  string
		from Key
		want string
	}{
		{"remote", "actions/checkout@v4", local, "actions/checkout@v4"},
		{"same repo from local", "./a/b", local, "./a/b"},
		{"same repo from remote", "./inner", remote, "o/r/inner@v1"},
		{"same repo root from remote", "./", remote, "o/r@v1"},
		{"absolute", "/opt/x", local, "/opt/x"},
		{"relative from local", "../shared", local, "/repo/.github/shared"},
		{"relative from remote", "../x", remote, "o/r/action.yml@v1|../x"},
		{"docker", "docker://alpine", local, "docker://alpine"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := callref.Classify(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, TargetID(Request{Ref: ref, From: tt.from}))
		})
	}
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "/repo/a.yml", LocalKey("/repo/a.yml").String())
	assert.Equal(t, "o/r/x/action.yml@v1", Key{Owner: "o", Repo: "r", Path: "x/action.yml", Ref: "v1"}.String())
	assert.Equal(t, "o/r", Key{Owner: "o", Repo: "r"}.String())
	assert.True(t, LocalKey("/x").IsLocal())
	assert.False(t, Key{Owner: "o", Repo: "r"}.IsLocal())
}

func TestCandidatePaths(t *testing.T) {
	assert.Equal(t, []string{"action.yml", "action.yaml"}, candidatePaths(""))
	assert.Equal(t, []string{"init/action.yml", "init/action.yaml"}, candidatePaths("init"))
	assert.Equal(t, []string{".github/workflows/ci.yml"}, candidatePaths(".github/workflows/ci.yml"))
}

func TestFromContext(t *testing.T) {
	_, done := FromContext(context.Background())
	assert.False(t, done)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, done := FromContext(ctx)
	assert.True(t, done)
	assert.Equal(t, ReasonCanceled, res.Reason)

	ctx, cancel = context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	res, done = FromContext(ctx)
	assert.True(t, done)
	assert.Equal(t, ReasonTimeout, res.Reason)
}
