// Package repoutil provides helpers for GitHub repository slugs and URLs.
package repoutil

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/githubnext/gh-uses/pkg/logger"
)

var log = logger.New("repoutil:repoutil")

// ownerPattern is the GitHub login grammar: alphanumerics and single
// hyphens, no leading or trailing hyphen, at most 39 characters.
var ownerPattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9])*$`)

// repoPattern accepts the characters GitHub allows in repository names.
var repoPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,100}$`)

// IsValidOwner reports whether s is a syntactically valid user or organization login.
func IsValidOwner(s string) bool {
	return len(s) <= 39 && ownerPattern.MatchString(s)
}

// IsValidRepoName reports whether s is a syntactically valid repository name.
// "." and ".." are rejected.
func IsValidRepoName(s string) bool {
	return s != "." && s != ".." && repoPattern.MatchString(s)
}

// SplitRepoSlug splits a repository slug (owner/repo) into owner and repo parts.
func SplitRepoSlug(slug string) (owner, repo string, err error) {
	log.Printf("Splitting repo slug: %s", slug)
	parts := strings.Split(slug, "/")
	if len(parts) != 2 || !IsValidOwner(parts[0]) || !IsValidRepoName(parts[1]) {
		return "", "", fmt.Errorf("invalid repo format: %s", slug)
	}
	return parts[0], parts[1], nil
}

// ParseGitHubURL extracts the owner and repo from a GitHub remote URL in SSH
// (git@github.com:owner/repo.git) or HTTPS (https://github.com/owner/repo.git) form.
func ParseGitHubURL(url string) (owner, repo string, err error) {
	log.Printf("Parsing GitHub URL: %s", url)
	var repoPath string

	if after, ok := strings.CutPrefix(url, "git@github.com:"); ok {
		repoPath = after
	} else if _, after, ok := strings.Cut(url, "github.com/"); ok {
		repoPath = after
	} else {
		return "", "", fmt.Errorf("URL does not appear to be a GitHub repository: %s", url)
	}

	return SplitRepoSlug(strings.TrimSuffix(strings.TrimSuffix(repoPath, "/"), ".git"))
}

// CloneURL returns the HTTPS clone URL for owner/repo on host.
func CloneURL(host, owner, repo string) string {
	if host == "" {
		host = "github.com"
	}
	return fmt.Sprintf("https://%s/%s/%s.git", host, owner, repo)
}

// SanitizeForFilename converts owner/repo to a filename-safe string.
func SanitizeForFilename(slug string) string {
	return strings.ReplaceAll(slug, "/", "-")
}
