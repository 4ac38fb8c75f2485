package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/ports"
)

const indexCacheTTL = 5 * time.Minute

// LazyIndex is the skeleton response returned while any Composer-style
// upstream is active or public mirroring is enabled (spec.md §4.3).
type LazyIndex struct {
	ProvidersLazyURL string   `json:"providers-lazy-url"`
	MetadataURL      string   `json:"metadata-url"`
	Mirrors          []string `json:"mirrors,omitempty"`
}

// EnumeratedIndex is the fully-built {packages: {...}} response used when no
// upstream is configured and public mirroring is off.
type EnumeratedIndex struct {
	Packages map[string][]map[string]any `json:"packages"`
}

// GetIndex implements spec.md §4.3's get_index: sweep pending repositories,
// then return either the lazy-URL skeleton (any Composer upstream active, or
// public mirroring enabled) or an enumerated index built from the DB.
func (r *Resolver) GetIndex(ctx context.Context, ifModifiedSince time.Time) (any, bool, error) {
	swept, err := r.sweepPendingRepositories(ctx)
	if err != nil {
		r.logger.Warn("pending repository sweep failed", "error", err)
	}
	if swept {
		r.invalidateIndexCache(ctx)
	}

	if cached, modAt, ok := r.lookupCachedIndex(ctx); ok {
		return cached, isNotModified(ifModifiedSince, modAt), nil
	}

	repos, err := r.db.ListRepositories(ctx)
	if err != nil {
		return nil, false, err
	}

	anyComposerActive := false
	for _, repo := range repos {
		if repo.SourceKind == models.SourceComposer && repo.Status == models.RepoActive {
			anyComposerActive = true
			break
		}
	}

	now := r.clock.NowUnixMs()
	if anyComposerActive || r.packagistMirroringEnabled {
		resp := &LazyIndex{
			ProvidersLazyURL: "/p2/%package%.json",
			MetadataURL:      "/p2/%package%.json",
		}
		r.cacheIndex(ctx, resp, now)
		return resp, false, nil
	}

	resp, err := r.buildEnumeratedIndex(ctx)
	if err != nil {
		return nil, false, err
	}
	r.cacheIndex(ctx, resp, now)
	return resp, false, nil
}

func (r *Resolver) buildEnumeratedIndex(ctx context.Context) (*EnumeratedIndex, error) {
	names, err := r.db.ListAllPackageNames(ctx)
	if err != nil {
		return nil, err
	}
	out := &EnumeratedIndex{Packages: map[string][]map[string]any{}}
	for _, name := range names {
		rows, err := r.db.GetPackageVersions(ctx, name)
		if err != nil {
			return nil, err
		}
		entries := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			entry := entryFromRow(row)
			if dist, ok := entry["dist"].(map[string]any); ok {
				if url, ok := dist["url"].(string); ok {
					dist["url"] = normalizeIndexDistURL(url)
				}
			}
			entry["dist"] = mergeDistURL(entry["dist"], normalizeIndexDistURL(row.ProxyDistURL))
			entries = append(entries, entry)
		}
		out.Packages[name] = entries
	}
	return out, nil
}

// mergeDistURL ensures the authoritative, normalized proxy URL wins even
// when metadata_json's own "dist" object disagrees (spec.md §4.3 "Index
// assembly").
func mergeDistURL(dist any, url string) map[string]any {
	m, ok := dist.(map[string]any)
	if !ok {
		m = map[string]any{"type": "zip"}
	}
	m["url"] = url
	return m
}

func (r *Resolver) sweepPendingRepositories(ctx context.Context) (bool, error) {
	repos, err := r.db.ListRepositories(ctx)
	if err != nil {
		return false, err
	}

	var batch []ports.Job
	for _, repo := range repos {
		if repo.Status == models.RepoPending {
			batch = append(batch, jobs.RepositorySync{RepoID: repo.ID})
		}
	}
	if len(batch) == 0 {
		return false, nil
	}
	if err := r.jobs.EnqueueAll(ctx, batch); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Resolver) lookupCachedIndex(ctx context.Context) (any, int64, bool) {
	if r.kv == nil {
		return nil, 0, false
	}
	raw, err := r.kv.Get(ctx, "index")
	if err != nil || raw == "" {
		return nil, 0, false
	}
	var generic map[string]json.RawMessage
	if json.Unmarshal([]byte(raw), &generic) != nil {
		return nil, 0, false
	}
	modAt := r.clock.NowUnixMs()
	if envRaw, err := r.kv.Get(ctx, "index:metadata"); err == nil && envRaw != "" {
		var env cacheEnvelope
		if json.Unmarshal([]byte(envRaw), &env) == nil {
			modAt = env.LastModified
		}
	}
	if _, ok := generic["providers-lazy-url"]; ok {
		var lazy LazyIndex
		_ = json.Unmarshal([]byte(raw), &lazy)
		return &lazy, modAt, true
	}
	var enumerated EnumeratedIndex
	_ = json.Unmarshal([]byte(raw), &enumerated)
	return &enumerated, modAt, true
}

func (r *Resolver) cacheIndex(ctx context.Context, resp any, lastModifiedMs int64) {
	if r.kv == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_ = r.kv.Put(ctx, "index", string(raw), indexCacheTTL)
	env, _ := json.Marshal(cacheEnvelope{LastModified: lastModifiedMs})
	_ = r.kv.Put(ctx, "index:metadata", string(env), indexCacheTTL)
}

func (r *Resolver) invalidateIndexCache(ctx context.Context) {
	if r.kv == nil {
		return
	}
	_ = r.kv.Delete(ctx, "index")
	_ = r.kv.Delete(ctx, "index:metadata")
}
