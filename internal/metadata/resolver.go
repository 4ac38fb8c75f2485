package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/pkg/metrics"
)

const (
	dbCacheTTL = 5 * time.Minute
)

// GetPackageMetadata implements spec.md §4.3's get_package_metadata,
// resolving through KV, then DB, then upstream, in that order.
// ifModifiedSince is the client's If-Modified-Since value (zero if absent); notModified
// reports whether the caller should respond 304 with no body.
func (r *Resolver) GetPackageMetadata(ctx context.Context, name string, ifModifiedSince time.Time) (resp *MetadataResponse, notModified bool, err error) {
	if cached, modAt, ok := r.lookupCachedMetadata(ctx, name); ok {
		metrics.MetadataCacheResultTotal.WithLabelValues("kv_hit").Inc()
		return cached, isNotModified(ifModifiedSince, modAt), nil
	}

	if dbResp, modAt, err := r.buildFromDB(ctx, name); err != nil {
		return nil, false, err
	} else if dbResp != nil {
		metrics.MetadataCacheResultTotal.WithLabelValues("db_hit").Inc()
		r.cacheMetadata(ctx, name, dbResp, modAt)
		return dbResp, isNotModified(ifModifiedSince, modAt), nil
	}

	// singleflight collapses concurrent misses for the same package onto one
	// upstream round trip (spec.md §9: "not mandated but a natural
	// reinforcement").
	v, err, _ := r.group.Do(name, func() (any, error) {
		return r.resolveFromUpstream(ctx, name)
	})
	if err != nil {
		return nil, false, err
	}
	if v == nil {
		metrics.MetadataCacheResultTotal.WithLabelValues("not_found").Inc()
		return nil, false, ErrNotFound
	}
	metrics.MetadataCacheResultTotal.WithLabelValues("upstream_hit").Inc()
	return v.(*MetadataResponse), false, nil
}

func isNotModified(ifModifiedSince time.Time, lastModifiedMs int64) bool {
	if ifModifiedSince.IsZero() {
		return false
	}
	return lastModifiedMs <= ifModifiedSince.UnixMilli()
}

// lookupCachedMetadata implements resolution step 1: trust-the-cache, no
// re-validation. A corrupt entry is deleted in the background rather than
// failing the request.
func (r *Resolver) lookupCachedMetadata(ctx context.Context, name string) (*MetadataResponse, int64, bool) {
	if r.kv == nil {
		return nil, 0, false
	}
	raw, err := r.kv.Get(ctx, "p2:"+name)
	if err != nil || raw == "" {
		return nil, 0, false
	}
	var resp MetadataResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil || resp.Packages == nil {
		go func() {
			_ = r.kv.Delete(context.Background(), "p2:"+name)
		}()
		return nil, 0, false
	}

	modAt := r.clock.NowUnixMs()
	if envRaw, err := r.kv.Get(ctx, "p2:"+name+":metadata"); err == nil && envRaw != "" {
		var env cacheEnvelope
		if json.Unmarshal([]byte(envRaw), &env) == nil {
			modAt = env.LastModified
		}
	}
	return &resp, modAt, true
}

func (r *Resolver) cacheMetadata(ctx context.Context, name string, resp *MetadataResponse, lastModifiedMs int64) {
	if r.kv == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = r.kv.Put(ctx, "p2:"+name, string(raw), dbCacheTTL)
	env, _ := json.Marshal(cacheEnvelope{LastModified: lastModifiedMs})
	_ = r.kv.Put(ctx, "p2:"+name+":metadata", string(env), dbCacheTTL)
}

// buildFromDB implements resolution step 2. A nil response with a nil error
// means "no rows, try upstream."
func (r *Resolver) buildFromDB(ctx context.Context, name string) (*MetadataResponse, int64, error) {
	rows, err := r.db.GetPackageVersions(ctx, name)
	if err != nil {
		return nil, 0, err
	}
	if len(rows) == 0 {
		return nil, 0, nil
	}

	entries := make([]map[string]any, 0, len(rows))
	var newest int64
	for _, row := range rows {
		entry := entryFromRow(row)
		rewriteDist(entry, row.Name, row.Version)
		entries = append(entries, entry)
		if row.CreatedAt > newest {
			newest = row.CreatedAt
		}
	}
	return &MetadataResponse{Packages: map[string][]map[string]any{name: entries}}, newest * 1000, nil
}

// entryFromRow reconstructs a version entry map from a persisted row: the
// stored metadata_json blob (the sanitized upstream entry, including its own
// name, version and dist) overlaid with the denormalized columns, which win
// wherever they are set.
func entryFromRow(row *models.PackageVersion) map[string]any {
	entry := map[string]any{}
	if row.MetadataJSON != "" {
		_ = json.Unmarshal([]byte(row.MetadataJSON), &entry)
	}
	entry["name"] = row.Name
	entry["version"] = row.Version
	if row.Description != "" {
		entry["description"] = row.Description
	}
	if row.Type != "" {
		entry["type"] = row.Type
	}
	if row.Homepage != "" {
		entry["homepage"] = row.Homepage
	}
	if row.LicenseJSON != "" {
		var license any
		if json.Unmarshal([]byte(row.LicenseJSON), &license) == nil {
			entry["license"] = license
		}
	}
	if row.ReleasedAt != 0 {
		entry["time"] = time.Unix(row.ReleasedAt, 0).UTC().Format(time.RFC3339)
	}
	if row.DistReference != "" {
		if dist, ok := entry["dist"].(map[string]any); ok {
			dist["reference"] = row.DistReference
		} else {
			entry["dist"] = map[string]any{"reference": row.DistReference}
		}
	}
	return entry
}

// resolveFromUpstream implements resolution steps 3–5: try each active
// Composer repository, fall back to the public mirror, rewrite dist URLs,
// and persist in the background.
func (r *Resolver) resolveFromUpstream(ctx context.Context, name string) (*MetadataResponse, error) {
	repos, err := r.db.ListRepositories(ctx)
	if err != nil {
		return nil, err
	}

	var entries []map[string]any
	var sourceRepoID string
	for _, repo := range repos {
		if repo.SourceKind != models.SourceComposer || repo.Status != models.RepoActive {
			continue
		}
		found, err := r.fetchFromRepo(ctx, repo, name)
		if err != nil {
			r.logger.Warn("metadata upstream fetch failed", "repo_id", repo.ID, "package", name, "error", err)
			continue
		}
		if len(found) > 0 {
			entries = found
			sourceRepoID = repo.ID
			break
		}
	}

	if entries == nil && r.packagistMirroringEnabled {
		found, err := r.fetchFromPackagist(ctx, name)
		if err != nil {
			r.logger.Warn("metadata packagist fetch failed", "package", name, "error", err)
		} else if len(found) > 0 {
			entries = found
			sourceRepoID = models.PackagistRepoID
		}
	}

	if entries == nil {
		return nil, nil
	}

	now := r.clock.NowUnix()
	persisted := make([]*models.PackageVersion, 0, len(entries))
	response := make([]map[string]any, 0, len(entries))
	for _, raw := range entries {
		entry := cloneEntry(raw)
		sanitizeEntry(entry)

		version, _ := entry["version"].(string)
		if version == "" {
			continue
		}

		blob, _ := json.Marshal(entry)

		display := cloneEntry(entry)
		rewriteDist(display, name, version)
		response = append(response, display)

		persisted = append(persisted, rowFromEntry(sourceRepoID, name, version, entry, string(blob), now, display["dist"].(map[string]any)))
	}

	go r.persistVersions(context.Background(), persisted)

	resp := &MetadataResponse{Packages: map[string][]map[string]any{name: response}}
	r.cacheMetadata(context.Background(), name, resp, now*1000)
	return resp, nil
}

func cloneEntry(entry map[string]any) map[string]any {
	out := make(map[string]any, len(entry))
	for k, v := range entry {
		out[k] = v
	}
	return out
}

func rowFromEntry(repoID, name, version string, entry map[string]any, metadataJSON string, now int64, dist map[string]any) *models.PackageVersion {
	row := &models.PackageVersion{
		ID:           uuid.New().String(),
		RepoID:       repoID,
		Name:         name,
		Version:      version,
		ProxyDistURL: dist["url"].(string),
		MetadataJSON: metadataJSON,
		CreatedAt:    now,
	}
	if ref, ok := dist["reference"].(string); ok {
		row.DistReference = ref
	}
	if upstreamDist, ok := entry["dist"].(map[string]any); ok {
		if u, ok := upstreamDist["url"].(string); ok {
			row.SourceDistURL = u
		}
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
	if ts, ok := entry["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			row.ReleasedAt = parsed.Unix()
		}
	}
	if row.ReleasedAt == 0 {
		row.ReleasedAt = now
	}
	return row
}

func (r *Resolver) persistVersions(ctx context.Context, rows []*models.PackageVersion) {
	for _, v := range rows {
		if err := r.db.UpsertPackageVersion(ctx, v); err != nil {
			r.logger.Warn("persist package version failed", "name", v.Name, "version", v.Version, "error", err)
		}
	}
}
