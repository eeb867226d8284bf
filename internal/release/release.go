// Package release talks to the upstream GitHub-style release API: tag
// resolution, asset selection, authenticated streamed downloads, and
// source-ref resolution for the build-from-source pipeline.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAPIBase is the GitHub REST API host ampup talks to by default.
const DefaultAPIBase = "https://api.github.com"

// apiVersionHeader pins the response shape, matching the upstream's
// versioned REST contract.
const apiVersionHeader = "2022-11-28"

// Asset describes one downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
	APIURL      string `json:"url"`
	Size        int64  `json:"size"`
	Digest      string `json:"digest"`
}

// Release is one tagged release of the target repository.
type Release struct {
	Tag    string  `json:"tag_name"`
	Assets []Asset `json:"assets"`
}

// pullRequest is the subset of the GitHub pull-request API response
// Builder needs to resolve a PR to a concrete commit and fork.
type pullRequest struct {
	Head struct {
		SHA  string `json:"sha"`
		Repo struct {
			FullName      string `json:"full_name"`
			CloneURL      string `json:"clone_url"`
			DefaultBranch string `json:"default_branch"`
		} `json:"repo"`
	} `json:"head"`
}

type repository struct {
	DefaultBranch string `json:"default_branch"`
	CloneURL      string `json:"clone_url"`
}

// Client is a single-command-scoped release API client: one http.Client,
// one token, one rate limiter, shared across every call a command makes.
type Client struct {
	httpClient *http.Client
	apiBase    string
	repo       string
	token      string
	limiter    *rateLimiter
	retry      RetryConfig
	log        *zerolog.Logger
}

// Config configures a new Client.
type Config struct {
	// Repo is "owner/name", e.g. "edgeandnode/amp".
	Repo string
	// Token is the explicit --github-token/GITHUB_TOKEN value, if any.
	Token string
	// APIBase overrides DefaultAPIBase; used by tests against httptest servers.
	APIBase string
	// HTTPClient overrides the transport; defaults to an http.Client with a sane timeout.
	HTTPClient *http.Client
	Log        *zerolog.Logger
}

// NewClient builds a Client, resolving the token fallback chain
// (flag/env → gh auth token) exactly once.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = DefaultAPIBase
	}
	log := cfg.Log
	if log == nil {
		discard := zerolog.Nop()
		log = &discard
	}

	return &Client{
		httpClient: httpClient,
		apiBase:    apiBase,
		repo:       cfg.Repo,
		token:      resolveToken(cfg.Token),
		limiter:    newRateLimiter(log),
		retry:      DefaultRetryConfig(),
		log:        log,
	}
}

func (c *Client) newRequest(ctx context.Context, method, url string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", apiVersionHeader)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON issues a GET request and decodes a JSON body, applying the
// rate limiter and retry policy. notFound is returned when the
// response is 404; a 403 without a token yields *AuthRequiredError and
// any other non-2xx status yields *HTTPError.
func (c *Client) doJSON(ctx context.Context, url string, into any, notFound func() error) error {
	return withRetry(ctx, c.log, url, c.retry, func() error {
		if err := c.limiter.wait(ctx); err != nil {
			return err
		}

		req, err := c.newRequest(ctx, http.MethodGet, url)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &NetworkError{Cause: err}
		}
		defer resp.Body.Close()
		c.limiter.observe(resp)

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return notFound()
		case resp.StatusCode == http.StatusForbidden && c.token == "":
			return &AuthRequiredError{Version: url}
		case resp.StatusCode/100 != 2:
			return &HTTPError{Status: resp.StatusCode, URL: url}
		}

		return json.NewDecoder(resp.Body).Decode(into)
	})
}

// ResolveRelease resolves a version string to its Release, or the most
// recent published release when version is empty ("latest").
func (c *Client) ResolveRelease(ctx context.Context, version string) (*Release, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", c.apiBase, c.repo)
	if version != "" {
		url = fmt.Sprintf("%s/repos/%s/releases/tags/%s", c.apiBase, c.repo, version)
	}

	var rel Release
	err := c.doJSON(ctx, url, &rel, func() error { return &ReleaseNotFoundError{Version: orLatest(version)} })
	if err != nil {
		return nil, err
	}
	return &rel, nil
}

func orLatest(version string) string {
	if version == "" {
		return "latest"
	}
	return version
}

// SelectAsset picks the single asset whose name matches
// "<primary>-<suffix>.<ext>" for a recognized archive extension: the
// base name with its extension stripped must end with exactly
// "-<suffix>", not merely contain it anywhere.
func SelectAsset(rel *Release, suffix string) (*Asset, error) {
	var matches []Asset
	for _, a := range rel.Assets {
		base, ok := stripRecognizedExtension(a.Name)
		if !ok {
			continue
		}
		if !strings.HasSuffix(base, "-"+suffix) {
			continue
		}
		matches = append(matches, a)
	}

	switch len(matches) {
	case 0:
		return nil, &AssetNotFoundError{Suffix: suffix}
	case 1:
		return &matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.Name
		}
		return nil, &AmbiguousAssetError{Suffix: suffix, Matches: names}
	}
}

var recognizedExtensions = []string{".tar.gz", ".tgz", ".tar", ".zip"}

// stripRecognizedExtension returns name with its archive extension
// removed, or ok=false if name doesn't end in one of the recognized
// extensions.
func stripRecognizedExtension(name string) (base string, ok bool) {
	for _, ext := range recognizedExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), true
		}
	}
	return "", false
}

