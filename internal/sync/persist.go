package sync

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pkgmirror/core/internal/models"
)

// proxyDistURL mirrors internal/metadata's unified-route formula. Duplicated
// rather than imported: each domain package owns the shape of the rows it
// writes, and the format string is a one-liner not worth a cross-package
// dependency for.
func proxyDistURL(name, version string) string {
	return "/dist/m/" + name + "/" + version + ".zip"
}

// distReference returns entry's own dist.reference, or the synthesized
// "<name>-<version>" passthrough form with the "/" in name replaced by "-"
// ("vendor-pkg-1.0.0"; spec.md §9 open question (iii)):
// this system never parses dist_reference, so an opaque synthesized value
// is as good as upstream's own.
func distReference(entry map[string]any, name, version string) string {
	if dist, ok := entry["dist"].(map[string]any); ok {
		if ref, ok := dist["reference"].(string); ok && ref != "" {
			return ref
		}
	}
	return strings.ReplaceAll(name, "/", "-") + "-" + version
}

// buildPackageVersionRow normalizes one upstream version entry (already
// resolved to an absolute sourceDistURL) into a persistable row. released_at
// uses entry["time"] when it parses as RFC3339/ISO-8601, else falls back to
// the version's first-seen date — the existing row's created_at if one
// already exists, else now (spec.md §4.5 "Persistence").
func (e *Engine) buildPackageVersionRow(ctx context.Context, repoID, name, version string, entry map[string]any, sourceDistURL string, now int64) *models.PackageVersion {
	blob, _ := json.Marshal(entry)
	row := &models.PackageVersion{
		ID:            uuid.New().String(),
		RepoID:        repoID,
		Name:          name,
		Version:       version,
		ProxyDistURL:  proxyDistURL(name, version),
		SourceDistURL: sourceDistURL,
		DistReference: distReference(entry, name, version),
		MetadataJSON:  string(blob),
		CreatedAt:     now,
	}
	if desc, ok := entry["description"].(string); ok {
		row.Description = desc
	}
	if typ, ok := entry["type"].(string); ok {
		row.Type = typ
	}
	if homepage, ok := entry["homepage"].(string); ok {
		row.Homepage = homepage
	}
	if license, ok := entry["license"]; ok {
		if b, err := json.Marshal(license); err == nil {
			row.LicenseJSON = string(b)
		}
	}

	row.ReleasedAt = e.firstSeenFallback(ctx, name, version, now)
	if ts, ok := entry["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			row.ReleasedAt = parsed.Unix()
		}
	}
	return row
}

func (e *Engine) firstSeenFallback(ctx context.Context, name, version string, now int64) int64 {
	if existing, err := e.db.FindPackageVersion(ctx, name, version); err == nil && existing != nil {
		return existing.CreatedAt
	}
	return now
}

// persistEntries resolves each entry's dist URL against the repository base
// (synthesizing a conventional archive URL if upstream provided none) and
// upserts it. Returns the count actually persisted; per-entry failures are
// logged and skipped, never propagated.
func (e *Engine) persistEntries(ctx context.Context, repo *models.Repository, name string, entries []map[string]any, now int64) int {
	count := 0
	for _, raw := range entries {
		version, _ := raw["version"].(string)
		if version == "" {
			continue
		}

		distURL := ""
		if dist, ok := raw["dist"].(map[string]any); ok {
			if u, ok := dist["url"].(string); ok {
				distURL = u
			}
		}
		resolved := resolveURL(repo.URL, distURL)
		if resolved == "" {
			resolved = synthesizeConventionalArchiveURL(repo.URL, name, version)
		}
		if resolved == "" {
			e.logger.Warn("sync: no dist url resolvable", "repo_id", repo.ID, "package", name, "version", version)
			continue
		}

		row := e.buildPackageVersionRow(ctx, repo.ID, name, version, raw, resolved, now)
		if err := e.db.UpsertPackageVersion(ctx, row); err != nil {
			e.logger.Warn("sync: upsert package version failed", "repo_id", repo.ID, "package", name, "version", version, "error", err)
			continue
		}
		count++
	}
	return count
}
