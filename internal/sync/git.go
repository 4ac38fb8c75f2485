package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/Masterminds/semver/v3"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/retry"
)

func decodeComposerJSON(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// syncGit implements spec.md §4.5's "Git (GitHub)" strategy: try the
// vendor's native Composer-registry endpoint first (some Git hosts expose
// one at the repository root), falling back to the repo tree API.
func (e *Engine) syncGit(ctx context.Context, repo *models.Repository) (int, error) {
	if count, err := e.syncComposer(ctx, repo); err == nil {
		return count, nil
	} else {
		e.logger.Info("sync: no native composer endpoint, falling back to tree API", "repo_id", repo.ID, "error", err)
	}
	return e.syncGitTree(ctx, repo)
}

type repoInfo struct {
	DefaultBranch string `json:"default_branch"`
}

type repoTree struct {
	Tree []treeEntry `json:"tree"`
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
}

type repoTag struct {
	Name       string `json:"name"`
	ZipballURL string `json:"zipball_url"`
}

// syncGitTree fetches the repository's recursive tree, locates every
// composer.json, and synthesizes one version per git tag that parses as a
// semver — sharing the matched composer.json's metadata across all of that
// repository's tags (spec.md §4.5 "Git (GitHub)").
func (e *Engine) syncGitTree(ctx context.Context, repo *models.Repository) (int, error) {
	owner, repoName, ok := parseOwnerRepoPath(repo.URL)
	if !ok {
		return 0, fmt.Errorf("sync: %s does not look like a <host>/<owner>/<repo> URL", repo.URL)
	}

	var info repoInfo
	if err := e.fetchJSON(ctx, e.githubAPIBaseURL+"/repos/"+owner+"/"+repoName, repo, retry.TopLevel, &info); err != nil {
		return 0, fmt.Errorf("sync: fetch repo info: %w", err)
	}
	branch := info.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var tree repoTree
	treeURL := e.githubAPIBaseURL + "/repos/" + owner + "/" + repoName + "/git/trees/" + branch + "?recursive=1"
	if err := e.fetchJSON(ctx, treeURL, repo, retry.TopLevel, &tree); err != nil {
		return 0, fmt.Errorf("sync: fetch repo tree: %w", err)
	}

	var composerPaths []string
	for _, entry := range tree.Tree {
		if entry.Type == "blob" && path.Base(entry.Path) == "composer.json" {
			composerPaths = append(composerPaths, entry.Path)
		}
	}
	if len(composerPaths) == 0 {
		return 0, fmt.Errorf("sync: no composer.json found in %s/%s", owner, repoName)
	}

	var tags []repoTag
	if err := e.fetchJSON(ctx, e.githubAPIBaseURL+"/repos/"+owner+"/"+repoName+"/tags", repo, retry.TopLevel, &tags); err != nil {
		return 0, fmt.Errorf("sync: fetch tags: %w", err)
	}

	allowed := filterAllowed(repo)
	now := e.clock.NowUnix()
	count := 0
	for _, cpath := range composerPaths {
		name, template, err := e.readComposerJSON(ctx, owner, repoName, branch, cpath, repo)
		if err != nil {
			e.logger.Warn("sync: read composer.json failed", "repo_id", repo.ID, "path", cpath, "error", err)
			continue
		}
		if name == "" || !allowed(name) {
			continue
		}
		count += e.persistTagVersions(ctx, repo, name, template, tags, now)
	}
	return count, nil
}

func (e *Engine) readComposerJSON(ctx context.Context, owner, repoName, branch, cpath string, repo *models.Repository) (string, map[string]any, error) {
	rawURL := e.githubRawBaseURL + "/" + owner + "/" + repoName + "/" + branch + "/" + cpath
	data, err := e.fetchRaw(ctx, rawURL, repo)
	if err != nil {
		return "", nil, err
	}
	template, err := decodeComposerJSON(data)
	if err != nil {
		return "", nil, err
	}
	name, _ := template["name"].(string)
	return name, template, nil
}

// persistTagVersions synthesizes a version entry per tag that parses as a
// semver, sharing template's metadata and pointing dist at the tag's
// GitHub-provided zipball URL directly (no URL resolution needed here: the
// API already returns an absolute URL).
func (e *Engine) persistTagVersions(ctx context.Context, repo *models.Repository, name string, template map[string]any, tags []repoTag, now int64) int {
	count := 0
	for _, tag := range tags {
		if _, err := semver.NewVersion(tag.Name); err != nil {
			continue
		}
		entry := cloneMap(template)
		entry["version"] = tag.Name
		entry["dist"] = map[string]any{"type": "zip", "url": tag.ZipballURL, "reference": tag.Name}

		row := e.buildPackageVersionRow(ctx, repo.ID, name, tag.Name, entry, tag.ZipballURL, now)
		if err := e.db.UpsertPackageVersion(ctx, row); err != nil {
			e.logger.Warn("sync: upsert package version failed", "repo_id", repo.ID, "package", name, "version", tag.Name, "error", err)
			continue
		}
		count++
	}
	return count
}
