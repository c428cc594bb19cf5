//go:build !integration

package repoutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidOwner(t *testing.T) {
	valid := []string{"actions", "a", "octo-org", "A1", "a-b-c"}
	invalid := []string{"", ".", "..", "-lead", "trail-", "double--hyphen", "with_underscore", "has space",
		"a234567890123456789012345678901234567890"}

	for _, s := range valid {
		assert.True(t, IsValidOwner(s), "expected %q to be valid", s)
	}
	for _, s := range invalid {
		assert.False(t, IsValidOwner(s), "expected %q to be invalid", s)
	}
}

func TestIsValidRepoName(t *testing.T) {
	assert.True(t, IsValidRepoName("checkout"))
	assert.True(t, IsValidRepoName("my.repo_name-2"))
	assert.True(t, IsValidRepoName(".github"))
	assert.False(t, IsValidRepoName("."))
	assert.False(t, IsValidRepoName(".."))
	assert.False(t, IsValidRepoName(""))
	assert.False(t, IsValidRepoName("a b"))
}

func TestSplitRepoSlug(t *testing.T) {
	owner, repo, err := SplitRepoSlug("actions/checkout")
	require.NoError(t, err)
	assert.Equal(t, "actions", owner)
	assert.Equal(t, "checkout", repo)

	for _, bad := range []string{"actions", "actions/", "/checkout", "a/b/c", "../x"} {
		_, _, err := SplitRepoSlug(bad)
		assert.Error(t, err, bad)
	}
}

func TestParseGitHubURL(t *testing.T) {
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{"git@github.com:octo/app.git", "octo", "app", false},
		{"https://github.com/octo/app.git", "octo", "app", false},
		{"https://github.com/octo/app", "octo", "app", false},
		{"https://github.com/octo/app/", "octo", "app", false},
		{"https://gitlab.com/octo/app.git", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, err := ParseGitHubURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestCloneURL(t *testing.T) {
	assert.Equal(t, "https://github.com/actions/checkout.git", CloneURL("", "actions", "checkout"))
	assert.Equal(t, "https://ghe.example.com/o/r.git", CloneURL("ghe.example.com", "o", "r"))
	assert.Equal(t, "actions-checkout", SanitizeForFilename("actions/checkout"))
}
