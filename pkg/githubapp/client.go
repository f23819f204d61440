package githubapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v74/github"
)

// TreeEntry is the subset of the provider's git-tree entry this package
// exposes to the Inspector.
type TreeEntry struct {
	Path string
	Type string // "blob" or "tree"
}

// Client is a per-installation read-only wrapper over the Git Trees and
// Contents APIs. A fresh Client is built for each Inspector run with a
// just-minted installation token — it is not process-cached the way the
// signing key is, since installation tokens already carry their own TTL.
type Client struct {
	gh *github.Client
}

// NewClient builds a Client authenticated with an installation access token.
func NewClient(installationToken string) *Client {
	return &Client{gh: github.NewClient(http.DefaultClient).WithAuthToken(installationToken)}
}

// Tree fetches the full recursive file tree of a repository at ref in a
// single call — the rate-limit discipline spec §5 requires ("one tree call
// per deployment, not one per file").
func (c *Client) Tree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	tree, _, err := c.gh.Git.GetTree(ctx, owner, repo, ref, true)
	if err != nil {
		return nil, fmt.Errorf("fetching repository tree: %w", err)
	}

	entries := make([]TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entries = append(entries, TreeEntry{Path: e.GetPath(), Type: e.GetType()})
	}
	return entries, nil
}

// FileContent fetches a single file's content for marker inspection (e.g.
// searching build.gradle for a Spring Boot dependency).
func (c *Client) FileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	fc, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		return "", fmt.Errorf("fetching file content %s: %w", path, err)
	}
	if fc == nil {
		return "", fmt.Errorf("path %s is a directory, not a file", path)
	}

	if fc.GetEncoding() == "base64" {
		raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(fc.GetContent(), "\n", ""))
		if err != nil {
			return "", fmt.Errorf("decoding base64 content: %w", err)
		}
		return string(raw), nil
	}

	return fc.GetContent(), nil
}
