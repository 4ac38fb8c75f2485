package sync

import (
	"context"
	"strings"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/retry"
)

// composerPackagesJSON is the root document at <url>/packages.json. Most
// real-world registries are "lazy": they carry providers-url and
// provider-includes instead of an inline packages map.
type composerPackagesJSON struct {
	ProvidersURL     string                  `json:"providers-url"`
	ProviderIncludes map[string]providerMeta `json:"provider-includes"`
	Packages         map[string][]map[string]any `json:"packages"`
}

type providerMeta struct {
	Sha256 string `json:"sha256"`
}

// providerIncludeFile is one provider-includes entry's content: a map of
// package name to its own content hash, used to build the per-package URL.
type providerIncludeFile struct {
	Providers map[string]providerMeta `json:"providers"`
}

// providerPackageFile is the per-package document fetched from
// providers-url with %package%/%hash% substituted.
type providerPackageFile struct {
	Packages map[string][]map[string]any `json:"packages"`
}

// syncComposer implements spec.md §4.5's "Composer direct" strategy: fetch
// packages.json, and either walk provider-includes (the common lazy form)
// or persist its inline packages map (the legacy eager form).
func (e *Engine) syncComposer(ctx context.Context, repo *models.Repository) (int, error) {
	baseURL := strings.TrimRight(repo.URL, "/")

	var idx composerPackagesJSON
	if err := e.fetchJSON(ctx, baseURL+"/packages.json", repo, retry.TopLevel, &idx); err != nil {
		return 0, err
	}

	if len(idx.ProviderIncludes) == 0 {
		return e.persistPackageMap(ctx, repo, idx.Packages), nil
	}

	providers := map[string]string{}
	for template, meta := range idx.ProviderIncludes {
		includeURL := resolveURL(baseURL, strings.ReplaceAll(template, "%hash%", meta.Sha256))
		var file providerIncludeFile
		if err := e.fetchJSON(ctx, includeURL, repo, retry.PerFile, &file); err != nil {
			e.logger.Warn("sync: provider include fetch failed", "repo_id", repo.ID, "url", includeURL, "error", err)
			continue
		}
		for name, pmeta := range file.Providers {
			providers[name] = pmeta.Sha256
		}
	}

	allowed := filterAllowed(repo)
	now := e.clock.NowUnix()
	count := 0
	for name, hash := range providers {
		if !allowed(name) {
			continue
		}
		packageURL := resolveURL(baseURL, substituteProviderTemplate(idx.ProvidersURL, name, hash))
		var file providerPackageFile
		if err := e.fetchJSON(ctx, packageURL, repo, retry.PerFile, &file); err != nil {
			e.logger.Warn("sync: provider package fetch failed", "repo_id", repo.ID, "package", name, "error", err)
			continue
		}
		count += e.persistEntries(ctx, repo, name, file.Packages[name], now)
	}
	return count, nil
}

// persistPackageMap handles the rare legacy eager form where packages.json
// itself enumerates every version inline.
func (e *Engine) persistPackageMap(ctx context.Context, repo *models.Repository, pkgMap map[string][]map[string]any) int {
	allowed := filterAllowed(repo)
	now := e.clock.NowUnix()
	count := 0
	for name, entries := range pkgMap {
		if !allowed(name) {
			continue
		}
		count += e.persistEntries(ctx, repo, name, entries, now)
	}
	return count
}

func substituteProviderTemplate(template, name, hash string) string {
	s := strings.ReplaceAll(template, "%package%", name)
	return strings.ReplaceAll(s, "%hash%", hash)
}
