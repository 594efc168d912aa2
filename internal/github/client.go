package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"
)

// DefaultBaseURL is the public GitHub REST endpoint
const DefaultBaseURL = "https://api.github.com"

var (
	// ErrNoTags means the repository has no published tags
	ErrNoTags = errors.New("no tags found in repository")
	// ErrNoAssets means the release exists but carries no downloadable assets
	ErrNoAssets = errors.New("release has no assets")
)

// RegistryError is a non-success response from the registry
type RegistryError struct {
	Op         string
	StatusCode int
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("failed to %s: HTTP %d", e.Op, e.StatusCode)
}

// Asset is a downloadable file attached to a release
type Asset struct {
	Name string
	URL  string
}

// Client handles GitHub API requests
type Client struct {
	owner      string
	repo       string
	baseURL    string
	token      string
	httpClient *retryablehttp.Client
}

// NewHTTPClient returns a retrying client that hands 5xx responses back to
// the caller once retries are exhausted instead of turning them into errors.
func NewHTTPClient(retries int) *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.Logger = log.New(io.Discard, "", 0)
	c.RetryMax = retries
	c.RetryWaitMin = 500 * time.Millisecond
	c.RetryWaitMax = 5 * time.Second
	c.HTTPClient.Timeout = 30 * time.Second
	c.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return c
}

// NewClient creates a new GitHub API client
func NewClient(owner, repo string, httpClient *retryablehttp.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(3)
	}
	return &Client{
		owner:      owner,
		repo:       repo,
		baseURL:    DefaultBaseURL,
		httpClient: httpClient,
	}
}

// SetBaseURL points the client at another API root (useful for testing)
func (c *Client) SetBaseURL(base string) {
	if base == "" {
		base = DefaultBaseURL
	}
	c.baseURL = strings.TrimRight(base, "/")
}

// SetToken sets the bearer token sent with API requests
func (c *Client) SetToken(token string) {
	c.token = token
}

// Repo returns "owner/repo"
func (c *Client) Repo() string {
	return c.owner + "/" + c.repo
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/%s", c.baseURL, c.owner, c.repo, path)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "field-updater")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &RegistryError{Op: op, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("failed to %s: malformed JSON response", op)
	}
	return body, nil
}

// ListTags returns tag names newest first, as the registry orders them
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, "fetch tags", "tags?per_page=100")
	if err != nil {
		return nil, err
	}

	var tags []string
	for _, name := range gjson.GetBytes(body, "#.name").Array() {
		if name.Str != "" {
			tags = append(tags, name.Str)
		}
	}
	return tags, nil
}

// LatestTag returns the first tag the registry lists
func (c *Client) LatestTag(ctx context.Context) (string, error) {
	tags, err := c.ListTags(ctx)
	if err != nil {
		return "", err
	}
	if len(tags) == 0 {
		return "", ErrNoTags
	}
	return tags[0], nil
}

// ReleaseAssets lists the assets attached to the release for tag
func (c *Client) ReleaseAssets(ctx context.Context, tag string) ([]Asset, error) {
	body, err := c.get(ctx, "fetch release", "releases/tags/"+url.PathEscape(tag))
	if err != nil {
		return nil, err
	}

	data := gjson.GetManyBytes(body, "assets.#.name", "assets.#.browser_download_url")
	names, urls := data[0].Array(), data[1].Array()

	var assets []Asset
	for i := range names {
		if i >= len(urls) || names[i].Str == "" || urls[i].Str == "" {
			continue
		}
		assets = append(assets, Asset{Name: names[i].Str, URL: urls[i].Str})
	}
	if len(assets) == 0 {
		return nil, fmt.Errorf("%s@%s: %w", c.Repo(), tag, ErrNoAssets)
	}
	return assets, nil
}
