package release

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// SourceRefKind discriminates the tagged variants of SourceRef.
type SourceRefKind int

const (
	SourceBranch SourceRefKind = iota
	SourceCommit
	SourcePR
	SourcePath
	SourceDefault
)

// SourceRef selects what Builder compiles. Exactly one field group is
// meaningful, discriminated by Kind.
type SourceRef struct {
	Kind SourceRefKind

	Branch string
	Commit string
	PR     int
	Path   string

	// Repo is "owner/name"; ignored for SourcePath.
	Repo string
}

// ResolvedSource is the concrete clone target Builder acts on. A
// non-empty Path means a local directory is used as-is and CloneURL is
// meaningless.
type ResolvedSource struct {
	CloneURL string
	Commit   string // empty for a branch checkout, where the branch name suffices
	Branch   string
	Repo     string // owner/name of the repo actually cloned (may be a fork for PRs)
	Path     string
}

// ResolveSource turns a SourceRef into a concrete clone URL and commit/branch.
// PR resolution fetches the pull request's head commit and head repository
// (which may be a fork) concurrently with a fetch of the base
// repository's metadata, in an errgroup that cancels the other call
// as soon as one fails.
func (c *Client) ResolveSource(ctx context.Context, ref SourceRef) (*ResolvedSource, error) {
	switch ref.Kind {
	case SourceBranch:
		return &ResolvedSource{CloneURL: c.cloneURL(ref.Repo), Branch: ref.Branch, Repo: ref.Repo}, nil

	case SourceCommit:
		return &ResolvedSource{CloneURL: c.cloneURL(ref.Repo), Commit: ref.Commit, Repo: ref.Repo}, nil

	case SourcePath:
		return &ResolvedSource{Path: ref.Path}, nil

	case SourceDefault:
		repo, err := c.fetchRepository(ctx, ref.Repo)
		if err != nil {
			return nil, err
		}
		return &ResolvedSource{CloneURL: repo.CloneURL, Branch: repo.DefaultBranch, Repo: ref.Repo}, nil

	case SourcePR:
		return c.resolvePR(ctx, ref.Repo, ref.PR)

	default:
		return nil, fmt.Errorf("unknown source ref kind %d", ref.Kind)
	}
}

// IsLocal reports whether this source resolves to a local directory
// rather than a remote clone.
func (s *ResolvedSource) IsLocal() bool { return s.Path != "" }

func (c *Client) cloneURL(repo string) string {
	return fmt.Sprintf("https://github.com/%s.git", repo)
}

func (c *Client) fetchRepository(ctx context.Context, repo string) (*repository, error) {
	url := fmt.Sprintf("%s/repos/%s", c.apiBase, repo)
	var out repository
	err := c.doJSON(ctx, url, &out, func() error { return &ReleaseNotFoundError{Version: repo} })
	if err != nil {
		return nil, err
	}
	if out.CloneURL == "" {
		out.CloneURL = c.cloneURL(repo)
	}
	return &out, nil
}

// resolvePR fetches the pull request's head commit/repo and the base
// repository's metadata concurrently — two independent API calls
// bounded by an errgroup so a cancelled command abandons both promptly.
// When the PR's head-repo payload omits a clone URL (some proxies strip
// it for privacy), the base repository's clone URL is used if the head
// repo is the base repo, and a github.com clone URL template otherwise.
func (c *Client) resolvePR(ctx context.Context, repo string, number int) (*ResolvedSource, error) {
	prURL := fmt.Sprintf("%s/repos/%s/pulls/%d", c.apiBase, repo, number)

	var pr pullRequest
	var base repository

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.doJSON(gctx, prURL, &pr, func() error { return &PRNotFoundError{Number: number} })
	})
	g.Go(func() error {
		return c.doJSON(gctx, fmt.Sprintf("%s/repos/%s", c.apiBase, repo), &base, func() error {
			return &ReleaseNotFoundError{Version: repo}
		})
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	headFullName := pr.Head.Repo.FullName
	if headFullName == "" {
		headFullName = repo
	}

	cloneURL := pr.Head.Repo.CloneURL
	if cloneURL == "" {
		if headFullName == repo && base.CloneURL != "" {
			cloneURL = base.CloneURL
		} else {
			cloneURL = c.cloneURL(headFullName)
		}
	}

	return &ResolvedSource{
		CloneURL: cloneURL,
		Commit:   pr.Head.SHA,
		Repo:     headFullName,
	}, nil
}
