package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"
	"golang.org/x/mod/semver"

	"github.com/githubnext/gh-uses/pkg/constants"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var versionCheckLog = logger.New("cli:version_check")

// releaseClient is the subset of *api.RESTClient used for update checks.
type releaseClient interface {
	DoWithContext(ctx context.Context, method string, path string, body io.Reader, response any) error
}

// release is the part of the releases API response that is read.
type release struct {
	TagName string `json:"tag_name"`
}

func newReleaseClient() (releaseClient, error) {
	client, err := api.NewRESTClient(api.ClientOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return client, nil
}

// latestReleaseVersion queries the GitHub API for the newest gh-uses release.
func latestReleaseVersion(ctx context.Context, client releaseClient) (string, error) {
	versionCheckLog.Print("Querying GitHub API for latest release")
	var rel release
	if err := client.DoWithContext(ctx, http.MethodGet, "repos/"+constants.ReleaseRepository+"/releases/latest", nil, &rel); err != nil {
		return "", fmt.Errorf("failed to query latest release: %w", err)
	}
	if rel.TagName == "" {
		return "", errors.New("latest release has no tag")
	}
	versionCheckLog.Printf("Latest release: %s", rel.TagName)
	return rel.TagName, nil
}

// IsReleasedVersion reports whether v is a release build rather than a
// development or dirty build.
func IsReleasedVersion(v string) bool {
	canonical := withV(v)
	return semver.IsValid(canonical) && semver.Prerelease(canonical) == "" && !strings.Contains(v, "dirty")
}

// isNewerVersion reports whether candidate is a newer semantic version than
// current. Invalid versions are never newer.
func isNewerVersion(candidate, current string) bool {
	a, b := withV(candidate), withV(current)
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return false
	}
	newer := semver.Compare(a, b) > 0
	versionCheckLog.Printf("Version comparison: %s vs %s = isNewer:%v", a, b, newer)
	return newer
}

func withV(v string) string {
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}
