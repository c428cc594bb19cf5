//go:build !integration

package resolver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/githubnext/gh-uses/pkg/callref"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func fsRequest(t *testing.T, root, raw string) Request {
	t.Helper()
	ref, err := callref.Classify(raw)
	require.NoError(t, err)
	return Request{Ref: ref, From: LocalKey(filepath.ToSlash(filepath.Join(root, ".github", "workflows", "ci.yml")))}
}

func TestFilesystemResolver(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "actions", "yml", "action.yml"), "name: yml\n")
	writeFile(t, filepath.Join(root, "actions", "yaml", "action.yaml"), "name: yaml\n")
	writeFile(t, filepath.Join(root, "actions", "both", "action.yml"), "name: a\n")
	writeFile(t, filepath.Join(root, "actions", "both", "action.yaml"), "name: b\n")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "actions", "empty"), 0o755))
	writeFile(t, filepath.Join(root, ".github", "workflows", "reuse.yml"), "jobs: {}\n")
	writeFile(t, filepath.Join(root, ".github", "shared", "action.yml"), "name: shared\n")

	r, err := NewFilesystemResolver(root)
	require.NoError(t, err)

	tests := []struct {
		name        string
		raw         string
		wantReason  Reason
		wantDisplay string
	}{
		{"action.yml directory", "./actions/yml", "", "actions/yml/action.yml"},
		{"action.yaml directory", "./actions/yaml", "", "actions/yaml/action.yaml"},
		{"reusable workflow file", "./.github/workflows/reuse.yml", "", ".github/workflows/reuse.yml"},
		{"relative local path", "../shared", "", ".github/shared/action.yml"},
		{"both metadata files", "./actions/both", ReasonAmbiguousPath, ""},
		{"empty directory", "./actions/empty", ReasonNotFound, ""},
		{"missing", "./local/action", ReasonNotFound, ""},
		{"remote is not handled", "o/r@v1", ReasonInvalidRef, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Resolve(context.Background(), fsRequest(t, root, tt.raw))
			if tt.wantReason != "" {
				assert.False(t, res.Resolved())
				assert.Equal(t, tt.wantReason, res.Reason)
				assert.NotEmpty(t, res.Detail)
				return
			}
			require.True(t, res.Resolved(), "unexpected failure: %s %s", res.Reason, res.Detail)
			assert.Equal(t, tt.wantDisplay, res.Document.DisplayPath)
			assert.True(t, res.Document.Key.IsLocal())
			assert.NotEmpty(t, res.Document.Content)
		})
	}
}

func TestFilesystemResolverAbsolutePath(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "action.yml"), "name: outside\n")

	r, err := NewFilesystemResolver(root)
	require.NoError(t, err)

	res := r.Resolve(context.Background(), fsRequest(t, root, filepath.ToSlash(outside)))
	require.True(t, res.Resolved())
	assert.Equal(t, filepath.ToSlash(filepath.Join(outside, "action.yml")), res.Document.DisplayPath)
}

func TestFilesystemResolverRejectsRemoteOrigin(t *testing.T) {
	r, err := NewFilesystemResolver(t.TempDir())
	require.NoError(t, err)

	ref, err := callref.Classify("./x")
	require.NoError(t, err)
	res := r.Resolve(context.Background(), Request{Ref: ref, From: Key{Owner: "o", Repo: "r", Path: "action.yml"}})
	assert.Equal(t, ReasonNotFound, res.Reason)
}

func TestFilesystemResolverCanceled(t *testing.T) {
	root := t.TempDir()
	r, err := NewFilesystemResolver(root)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := r.Resolve(ctx, fsRequest(t, root, "./x"))
	assert.Equal(t, ReasonCanceled, res.Reason)
}

func TestNewFilesystemResolverRequiresAbsoluteRoot(t *testing.T) {
	_, err := NewFilesystemResolver("relative/root")
	assert.Error(t, err)
}

func TestLoadEntry(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".github", "workflows", "ci.yml"), "jobs: {}\n")
	r, err := NewFilesystemResolver(root)
	require.NoError(t, err)

	doc, err := r.LoadEntry(".github/workflows/ci.yml")
	require.NoError(t, err)
	assert.Equal(t, ".github/workflows/ci.yml", doc.DisplayPath)
	assert.Equal(t, filepath.ToSlash(filepath.Join(root, ".github", "workflows", "ci.yml")), doc.Key.Path)

	_, err = r.LoadEntry("missing.yml")
	assert.Error(t, err)
}
