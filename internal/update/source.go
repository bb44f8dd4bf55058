package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"BetSentinel/internal/errs"
	"BetSentinel/internal/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// VersionSource reads and moves the deployed code tree.
type VersionSource interface {
	Current(ctx context.Context) (model.ReleaseRef, error)
	// Dirty lists the paths with uncommitted changes.
	Dirty(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context) error
	Resolve(ctx context.Context, ref string) (model.ReleaseRef, error)
	// Latest returns the newest published release.
	Latest(ctx context.Context) (model.ReleaseRef, error)
	Checkout(ctx context.Context, commit string) error
	// Changed reports whether any of paths differs between two commits.
	Changed(ctx context.Context, from, to string, paths ...string) (bool, error)
}

// ErrNoRelease means the repository has no published release.
var ErrNoRelease = errors.New("no published release")

// GitSource drives the git CLI in Root.
type GitSource struct {
	Root     string
	Remote   string
	Releases *GitHubReleases
	Timeout  time.Duration
}

// NewGitSource creates a git source. repo is the GitHub "owner/name" slug;
// when empty it is derived from the remote URL on first use.
func NewGitSource(root, remote, repo string) *GitSource {
	if remote == "" {
		remote = "origin"
	}
	return &GitSource{
		Root:     root,
		Remote:   remote,
		Releases: NewGitHubReleases(repo),
		Timeout:  2 * time.Minute,
	}
}

func (g *GitSource) git(ctx context.Context, args ...string) (string, error) {
	out, err := g.run(ctx, args...)
	return strings.TrimSpace(out), err
}

// run returns stdout untouched; porcelain output is column-sensitive.
func (g *GitSource) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.Root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = err.Error()
		}
		return "", fmt.Errorf("%w: git %s: %s", errs.ErrExternal, strings.Join(args, " "), truncate(detail, 600))
	}
	return stdout.String(), nil
}

func (g *GitSource) Current(ctx context.Context) (model.ReleaseRef, error) {
	commit, err := g.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return model.ReleaseRef{}, err
	}
	if tag, err := g.git(ctx, "describe", "--tags", "--exact-match", "HEAD"); err == nil && tag != "" {
		return model.ReleaseRef{Name: tag, Commit: commit, Kind: model.RefTag}, nil
	}
	if branch, err := g.git(ctx, "rev-parse", "--abbrev-ref", "HEAD"); err == nil && branch != "" && branch != "HEAD" {
		return model.ReleaseRef{Name: branch, Commit: commit, Kind: model.RefBranch}, nil
	}
	return model.ReleaseRef{Name: commit, Commit: commit, Kind: model.RefCommit}, nil
}

func (g *GitSource) Dirty(ctx context.Context) ([]string, error) {
	out, err := g.run(ctx, "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parsePorcelain(out), nil
}

func (g *GitSource) Fetch(ctx context.Context) error {
	_, err := g.git(ctx, "fetch", "--tags", "--prune", g.Remote)
	return err
}

// Resolve tries ref as a tag, then as a remote branch, then as a commit.
func (g *GitSource) Resolve(ctx context.Context, ref string) (model.ReleaseRef, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return model.ReleaseRef{}, fmt.Errorf("%w: empty ref", errs.ErrUpdate)
	}
	candidates := []struct {
		spec string
		kind model.RefKind
	}{
		{"refs/tags/" + ref, model.RefTag},
		{"refs/remotes/" + g.Remote + "/" + ref, model.RefBranch},
		{ref, model.RefCommit},
	}
	for _, c := range candidates {
		commit, err := g.git(ctx, "rev-parse", "--verify", "--quiet", c.spec+"^{commit}")
		if err == nil && commit != "" {
			return model.ReleaseRef{Name: ref, Commit: commit, Kind: c.kind}, nil
		}
	}
	return model.ReleaseRef{}, fmt.Errorf("%w: unknown ref %q", errs.ErrUpdate, ref)
}

func (g *GitSource) Latest(ctx context.Context) (model.ReleaseRef, error) {
	if g.Releases.Repo == "" {
		url, err := g.git(ctx, "remote", "get-url", g.Remote)
		if err != nil {
			return model.ReleaseRef{}, err
		}
		slug, ok := parseSlug(url)
		if !ok {
			return model.ReleaseRef{}, fmt.Errorf("%w: cannot derive GitHub repo from %q", errs.ErrConfig, url)
		}
		g.Releases.Repo = slug
	}
	tag, err := g.Releases.LatestTag(ctx)
	if err != nil {
		return model.ReleaseRef{}, err
	}
	return g.Resolve(ctx, tag)
}

func (g *GitSource) Checkout(ctx context.Context, commit string) error {
	_, err := g.git(ctx, "checkout", "--quiet", commit)
	return err
}

func (g *GitSource) Changed(ctx context.Context, from, to string, paths ...string) (bool, error) {
	args := append([]string{"diff", "--name-only", from, to, "--"}, paths...)
	out, err := g.git(ctx, args...)
	if err != nil {
		return false, err
	}
	return out != "", nil
}

// GitHubReleases reads the latest release of a GitHub repository.
type GitHubReleases struct {
	Repo    string
	APIBase string
	Client  *http.Client
}

func NewGitHubReleases(repo string) *GitHubReleases {
	return &GitHubReleases{
		Repo:    repo,
		APIBase: "https://api.github.com",
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// LatestTag returns the tag name of the latest published release.
func (r *GitHubReleases) LatestTag(ctx context.Context) (string, error) {
	url := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(r.APIBase, "/"), r.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", "BetSentinel-updater")

	resp, err := r.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: release lookup: %v", errs.ErrExternal, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrNoRelease, r.Repo)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: release lookup: HTTP %d", errs.ErrExternal, resp.StatusCode)
	}

	var body struct {
		TagName string `json:"tag_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decode release: %v", errs.ErrExternal, err)
	}
	if body.TagName == "" {
		return "", fmt.Errorf("%w: %s", ErrNoRelease, r.Repo)
	}
	return body.TagName, nil
}

// parseSlug extracts "owner/name" from a GitHub remote URL.
func parseSlug(remote string) (string, bool) {
	s := strings.TrimSpace(remote)
	s = strings.TrimSuffix(s, ".git")
	for _, prefix := range []string{"https://github.com/", "http://github.com/", "ssh://git@github.com/", "git@github.com:"} {
		if strings.HasPrefix(s, prefix) {
			parts := strings.Split(strings.TrimPrefix(s, prefix), "/")
			if len(parts) == 2 && parts[0] != "" && parts[1] != "" {
				return parts[0] + "/" + parts[1], true
			}
		}
	}
	return "", false
}

// parsePorcelain returns the paths of `git status --porcelain` output. For
// renames the destination is kept.
func parsePorcelain(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if len(line) < 4 {
			continue
		}
		p := strings.TrimSpace(line[3:])
		if i := strings.Index(p, " -> "); i >= 0 {
			p = strings.TrimSpace(p[i+4:])
		}
		p = strings.Trim(p, `"`)
		if p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
