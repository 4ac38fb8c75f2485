package sync

import (
	"fmt"
	"net/url"
	"strings"
)

// resolveURL turns an upstream-returned artifact URL — absolute,
// protocol-relative ("//host/…"), host-relative ("/…"), or relative — into
// an absolute URL against base (spec.md §4.5 "URL resolution"). Returns ""
// if raw is empty or base/raw cannot be parsed.
func resolveURL(base, raw string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return baseURL.Scheme + ":" + raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return baseURL.ResolveReference(ref).String()
}

// synthesizeConventionalArchiveURL builds a best-effort dist URL when
// upstream names no dist.url at all, for hosts whose archive-download
// convention is well known. Currently recognizes github.com repository
// URLs via GitHub's codeload zip-by-tag form; unrecognized hosts return "".
func synthesizeConventionalArchiveURL(repoURL, name, version string) string {
	owner, repo, ok := githubOwnerRepo(repoURL)
	if !ok {
		return ""
	}
	return fmt.Sprintf("https://codeload.github.com/%s/%s/zip/refs/tags/%s", owner, repo, version)
}

// parseOwnerRepoPath extracts the first two path segments of a repository
// URL as (owner, repo), independent of host — used by the Git tree strategy
// so it works against any GitHub-API-compatible host, not just github.com.
func parseOwnerRepoPath(repoURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), true
}

// githubOwnerRepo is parseOwnerRepoPath restricted to an actual github.com
// host, for the codeload synthesis above (which is GitHub-specific).
func githubOwnerRepo(repoURL string) (owner, repo string, ok bool) {
	u, err := url.Parse(repoURL)
	if err != nil || u.Host != "github.com" {
		return "", "", false
	}
	return parseOwnerRepoPath(repoURL)
}
