package resolver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cli/go-gh/v2/pkg/api"

	"github.com/githubnext/gh-uses/pkg/callref"
	"github.com/githubnext/gh-uses/pkg/logger"
)

var githubLog = logger.New("resolver:github")

// restClient is the subset of *api.RESTClient used here.
type restClient interface {
	DoWithContext(ctx context.Context, method string, path string, body io.Reader, response any) error
}

// GitHubResolver resolves remote references through the repository contents
// REST API, authenticating the way the gh CLI does.
type GitHubResolver struct {
	client  restClient
	limiter *Limiter
}

// GitHubOptions configures NewGitHubResolver.
type GitHubOptions struct {
	// Host defaults to the gh CLI's configured host.
	Host    string
	Limiter *Limiter
}

// NewGitHubResolver creates a resolver using gh's authentication.
func NewGitHubResolver(opts GitHubOptions) (*GitHubResolver, error) {
	client, err := api.NewRESTClient(api.ClientOptions{Host: opts.Host})
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub client: %w", err)
	}
	return &GitHubResolver{client: client, limiter: opts.Limiter}, nil
}

type contentResponse struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
	Path     string `json:"path"`
}

// Resolve implements Resolver for remote references.
func (r *GitHubResolver) Resolve(ctx context.Context, req Request) Resolution {
	ref := req.Ref
	if ref.Kind != callref.KindRemote {
		return Unresolved(ReasonInvalidRef, "%s is not a remote reference", ref)
	}

	var found []*Document
	for _, p := range candidatePaths(ref.Subdirectory) {
		content, res, ok := r.getContent(ctx, ref.Owner, ref.Repo, p, ref.Ref)
		if !ok {
			return res
		}
		if content == nil {
			continue
		}
		key := Key{Owner: ref.Owner, Repo: ref.Repo, Path: p, Ref: ref.Ref}
		found = append(found, &Document{Key: key, DisplayPath: key.String(), Content: content})
	}

	switch len(found) {
	case 0:
		if isDefinitionFile(ref.Subdirectory) {
			return Unresolved(ReasonNotFound, "%s does not exist", ref)
		}
		return Unresolved(ReasonNotFound, "%s has no action.yml or action.yaml", ref)
	case 1:
		return Resolved(found[0])
	default:
		return Unresolved(ReasonAmbiguousPath, "%s has both action.yml and action.yaml", ref)
	}
}

// getContent fetches one file. A missing file yields (nil, _, true); any
// other failure yields ok=false with the Resolution to report.
func (r *GitHubResolver) getContent(ctx context.Context, owner, repo, filePath, ref string) ([]byte, Resolution, bool) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, limiterFailure(ctx, err), false
	}

	endpoint := fmt.Sprintf("repos/%s/%s/contents/%s", owner, repo, escapePath(filePath))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	githubLog.Printf("GET %s", endpoint)

	var raw json.RawMessage
	if err := r.client.DoWithContext(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		var httpErr *api.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			if strings.Contains(httpErr.Message, "No commit found") {
				return nil, Unresolved(ReasonInvalidRef, "ref %q does not exist in %s/%s", ref, owner, repo), false
			}
			return nil, Resolution{}, true
		}
		return nil, apiFailure(ctx, err), false
	}

	if len(raw) > 0 && raw[0] == '[' {
		// A directory listing: the candidate is not a file.
		return nil, Resolution{}, true
	}
	var resp contentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, Unresolved(ReasonNotFound, "unexpected contents response for %s: %v", filePath, err), false
	}
	if resp.Type != "" && resp.Type != "file" {
		return nil, Resolution{}, true
	}
	content, err := decodeContent(resp)
	if err != nil {
		return nil, Unresolved(ReasonNotFound, "cannot decode %s: %v", filePath, err), false
	}
	return content, Resolution{}, true
}

// ResolveCommit returns the commit SHA ref points at.
func (r *GitHubResolver) ResolveCommit(ctx context.Context, owner, repo, ref string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var commit struct {
		SHA string `json:"sha"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/commits/%s", owner, repo, url.PathEscape(ref))
	if err := r.client.DoWithContext(ctx, http.MethodGet, endpoint, nil, &commit); err != nil {
		return "", fmt.Errorf("failed to resolve %s/%s@%s: %w", owner, repo, ref, err)
	}
	if commit.SHA == "" {
		return "", fmt.Errorf("no commit returned for %s/%s@%s", owner, repo, ref)
	}
	return commit.SHA, nil
}

// LatestRelease returns the tag name of the latest release.
func (r *GitHubResolver) LatestRelease(ctx context.Context, owner, repo string) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	var release struct {
		TagName string `json:"tag_name"`
	}
	endpoint := fmt.Sprintf("repos/%s/%s/releases/latest", owner, repo)
	if err := r.client.DoWithContext(ctx, http.MethodGet, endpoint, nil, &release); err != nil {
		return "", fmt.Errorf("failed to query latest release of %s/%s: %w", owner, repo, err)
	}
	if release.TagName == "" {
		return "", fmt.Errorf("%s/%s has no releases", owner, repo)
	}
	return release.TagName, nil
}

func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}

func decodeContent(resp contentResponse) ([]byte, error) {
	switch resp.Encoding {
	case "base64":
		return base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	case "":
		return []byte(resp.Content), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", resp.Encoding)
	}
}

func apiFailure(ctx context.Context, err error) Resolution {
	if res, ok := FromContext(ctx); ok {
		return res
	}
	if res, ok := fromError(err); ok {
		return res
	}
	var httpErr *api.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return Unresolved(ReasonAccessDenied, "%s", httpErr.Message)
		case http.StatusUnprocessableEntity:
			return Unresolved(ReasonInvalidRef, "%s", httpErr.Message)
		}
		return Unresolved(ReasonNotFound, "GitHub API returned HTTP %d: %s", httpErr.StatusCode, httpErr.Message)
	}
	return Unresolved(ReasonTimeout, "transport failure: %v", err)
}

func limiterFailure(ctx context.Context, err error) Resolution {
	if res, ok := FromContext(ctx); ok {
		return res
	}
	return Unresolved(ReasonTimeout, "rate limit: %v", err)
}
