package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/pkgmirror/core/internal/metadata"
)

// requestOrigin resolves the scheme+host this proxy is being reached at, for
// stamping absolute dist.url values onto responses (spec.md §4.3's
// dist.url-rewriting invariant: the proxy is always the host). An operator-
// configured base URL wins outright — the usual case behind a CDN or load
// balancer whose own Host header this service never sees; otherwise it's
// derived from the request itself.
func requestOrigin(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimSuffix(configured, "/")
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = fwd
	}
	return scheme + "://" + host
}

// absolutizeDistURLs rewrites every entry's dist.url in packages from the
// stored "/dist/m/{name}/{version}.zip" path to an absolute URL rooted at
// origin. Storage (the DB's proxy_dist_url column, the KV response cache)
// stays host-agnostic so one deployment can be reached at several names;
// only the outgoing response is stamped.
func absolutizeDistURLs(packages map[string][]map[string]any, origin string) {
	for _, entries := range packages {
		for _, entry := range entries {
			dist, ok := entry["dist"].(map[string]any)
			if !ok {
				continue
			}
			url, ok := dist["url"].(string)
			if !ok || !strings.HasPrefix(url, "/") {
				continue
			}
			dist["url"] = origin + url
		}
	}
}

// ifModifiedSince parses the client's conditional-request header, returning
// the zero time (meaning "no condition") if absent or unparseable.
func ifModifiedSince(r *http.Request) time.Time {
	raw := r.Header.Get("If-Modified-Since")
	if raw == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// writeJSON encodes body as the response, setting Last-Modified when
// lastModified is non-zero (spec.md §4.3 "Conditional requests").
func writeJSON(w http.ResponseWriter, body any, lastModified time.Time, cacheControl string) {
	w.Header().Set("Content-Type", "application/json")
	if cacheControl != "" {
		w.Header().Set("Cache-Control", cacheControl)
	}
	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// GetIndex serves GET /packages.json (spec.md §4.3 get_index / §6).
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	if err := rejectUnsupportedClient(r); err != nil {
		renderError(w, r, err)
		return
	}
	if rejectInvalidCredentials(w, r) {
		return
	}

	resp, notModified, err := h.metadata.GetIndex(r.Context(), ifModifiedSince(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if enumerated, ok := resp.(*metadata.EnumeratedIndex); ok {
		absolutizeDistURLs(enumerated.Packages, requestOrigin(r, h.publicBaseURL))
	}
	writeJSON(w, resp, time.Time{}, "public, max-age=300, stale-while-revalidate=60")
}

// GetPackageMetadata serves GET /p2/{vendor}/{package}.json (spec.md §4.3
// get_package_metadata).
func (h *Handler) GetPackageMetadata(w http.ResponseWriter, r *http.Request) {
	if err := rejectUnsupportedClient(r); err != nil {
		renderError(w, r, err)
		return
	}
	if rejectInvalidCredentials(w, r) {
		return
	}

	name := vendorPackage(r)
	resp, notModified, err := h.metadata.GetPackageMetadata(r.Context(), name, ifModifiedSince(r))
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			renderError(w, r, metadata.ErrNotFound)
			return
		}
		renderError(w, r, err)
		return
	}
	if notModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	absolutizeDistURLs(resp.Packages, requestOrigin(r, h.publicBaseURL))
	writeJSON(w, resp, time.Time{}, "")
}
