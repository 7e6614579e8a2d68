package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gnzdotmx/psforge/internal/utils"
	"golang.org/x/oauth2"
)

const maxJSONResponseBytes = 10 << 20

// ErrReleaseNotFound is returned when no release exists for a tag
var ErrReleaseNotFound = errors.New("release not found")

type (
	// GitHub publishes archives as assets of the release tagged with the
	// module's tag name, creating the release when needed.
	GitHub struct {
		httpClient *http.Client
		owner      string
		repo       string
		baseURL    string
		token      string
		prerelease bool
	}

	// GitHubOption configures a GitHub publisher during construction
	GitHubOption func(*GitHub)

	githubRelease struct {
		ID         int64         `json:"id"`
		TagName    string        `json:"tag_name"`
		UploadURL  string        `json:"upload_url"`
		Prerelease bool          `json:"prerelease"`
		Assets     []githubAsset `json:"assets"`
	}

	githubAsset struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
)

// WithHTTPClient sets the base HTTP client. The token transport wraps it.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHub) {
		g.httpClient = c
	}
}

// WithBaseURL overrides the API base URL, for GitHub Enterprise or tests
func WithBaseURL(base string) GitHubOption {
	return func(g *GitHub) {
		g.baseURL = strings.TrimRight(base, "/")
	}
}

// WithToken sets the access token used for every request
func WithToken(token string) GitHubOption {
	return func(g *GitHub) {
		g.token = token
	}
}

// WithPrerelease marks releases created by the publisher as prereleases
func WithPrerelease() GitHubOption {
	return func(g *GitHub) {
		g.prerelease = true
	}
}

// NewGitHub creates a GitHub release publisher for owner/repo
func NewGitHub(owner, repo string, opts ...GitHubOption) *GitHub {
	g := &GitHub{
		httpClient: http.DefaultClient,
		owner:      owner,
		repo:       repo,
		baseURL:    "https://api.github.com",
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name implements Publisher
func (g *GitHub) Name() string { return "github" }

// Publish implements Publisher. An existing asset with the same name is
// deleted before the upload.
func (g *GitHub) Publish(ctx context.Context, asset Asset) error {
	client := g.client(ctx)
	tag := asset.Module.TagName()

	release, err := g.getRelease(ctx, client, tag)
	if errors.Is(err, ErrReleaseNotFound) {
		utils.LogVerbose("Creating GitHub release %s", tag)
		release, err = g.createRelease(ctx, client, tag, asset.Module.Name+" "+asset.Module.Version)
	}
	if err != nil {
		return err
	}

	for _, existing := range release.Assets {
		if existing.Name == asset.Name() {
			utils.LogVerbose("Replacing existing asset %s", existing.Name)
			if err := g.deleteAsset(ctx, client, existing.ID); err != nil {
				return err
			}
		}
	}

	return g.uploadAsset(ctx, client, release.UploadURL, asset)
}

func (g *GitHub) client(ctx context.Context) *http.Client {
	if g.token == "" {
		return g.httpClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: g.token}))
}

func (g *GitHub) getRelease(ctx context.Context, client *http.Client, tag string) (*githubRelease, error) {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", g.baseURL, g.owner, g.repo, url.PathEscape(tag))
	resp, err := g.do(ctx, client, http.MethodGet, reqURL, "", nil)
	if err != nil {
		return nil, fmt.Errorf("getting release %s: %w", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrReleaseNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("getting release %s: unexpected status %d", tag, resp.StatusCode)
	}
	return decodeRelease(resp.Body)
}

func (g *GitHub) createRelease(ctx context.Context, client *http.Client, tag, name string) (*githubRelease, error) {
	body, err := json.Marshal(map[string]any{
		"tag_name":   tag,
		"name":       name,
		"prerelease": g.prerelease,
	})
	if err != nil {
		return nil, err
	}

	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases", g.baseURL, g.owner, g.repo)
	resp, err := g.do(ctx, client, http.MethodPost, reqURL, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating release %s: %w", tag, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("creating release %s: unexpected status %d", tag, resp.StatusCode)
	}
	return decodeRelease(resp.Body)
}

func (g *GitHub) deleteAsset(ctx context.Context, client *http.Client, id int64) error {
	reqURL := fmt.Sprintf("%s/repos/%s/%s/releases/assets/%d", g.baseURL, g.owner, g.repo, id)
	resp, err := g.do(ctx, client, http.MethodDelete, reqURL, "", nil)
	if err != nil {
		return fmt.Errorf("deleting asset %d: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("deleting asset %d: unexpected status %d", id, resp.StatusCode)
	}
	return nil
}

func (g *GitHub) uploadAsset(ctx context.Context, client *http.Client, uploadURL string, asset Asset) error {
	// upload_url is a URI template such as .../assets{?name,label}
	if i := strings.Index(uploadURL, "{"); i >= 0 {
		uploadURL = uploadURL[:i]
	}
	if uploadURL == "" {
		return fmt.Errorf("release has no upload URL")
	}

	f, err := os.Open(asset.Path)
	if err != nil {
		return fmt.Errorf("failed to open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	reqURL := uploadURL + "?name=" + url.QueryEscape(asset.Name())
	resp, err := g.do(ctx, client, http.MethodPost, reqURL, "application/zip", f)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", asset.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("uploading %s: unexpected status %d", asset.Name(), resp.StatusCode)
	}
	return nil
}

func (g *GitHub) do(ctx context.Context, client *http.Client, method, reqURL, contentType string, body io.Reader) (*http.Response, error) {
	if body == nil {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if f, ok := body.(*os.File); ok {
		if info, err := f.Stat(); err == nil {
			req.ContentLength = info.Size()
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

func decodeRelease(r io.Reader) (*githubRelease, error) {
	var rel githubRelease
	if err := json.NewDecoder(io.LimitReader(r, maxJSONResponseBytes)).Decode(&rel); err != nil {
		return nil, fmt.Errorf("decoding release: %w", err)
	}
	return &rel, nil
}
