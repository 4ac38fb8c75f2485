package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/pkgmirror/core/internal/artifact"
	"github.com/pkgmirror/core/internal/storagekey"
)

// writeArtifact streams result to the client with the headers spec.md
// §4.4 "Headers" mandates, or a bare 304 when the conditional request is
// satisfied. It always closes result.Body when present.
func writeArtifact(w http.ResponseWriter, result *artifact.Result) {
	if result.NotModified {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	defer result.Body.Close()

	w.Header().Set("Content-Type", result.ContentType)
	if result.Filename != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	}
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}
	if !result.LastModified.IsZero() {
		w.Header().Set("Last-Modified", result.LastModified.UTC().Format(http.TimeFormat))
	}
	if result.Ephemeral {
		w.Header().Set("Cache-Control", "public, max-age=3600")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	}
	if result.XCache != "" {
		w.Header().Set("X-Cache", result.XCache)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, result.Body)
}

// GetRepoArtifact serves GET /dist/{repo}/{vendor}/{package}/{version}.zip.
func (h *Handler) GetRepoArtifact(w http.ResponseWriter, r *http.Request) {
	if rejectInvalidCredentials(w, r) {
		return
	}
	vars := mux.Vars(r)
	result, err := h.artifacts.Get(r.Context(), vars["repo"], vars["vendor"]+"/"+vars["package"], vars["version"], ifModifiedSince(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	writeArtifact(w, result)
}

// GetUnifiedArtifact serves GET /dist/m/{vendor}/{package}/{version}.zip,
// the single route clients are rewritten to use (spec.md §4.3 step 4).
func (h *Handler) GetUnifiedArtifact(w http.ResponseWriter, r *http.Request) {
	if rejectInvalidCredentials(w, r) {
		return
	}
	vars := mux.Vars(r)
	result, err := h.artifacts.Get(r.Context(), "", vars["vendor"]+"/"+vars["package"], vars["version"], ifModifiedSince(r))
	if err != nil {
		renderError(w, r, err)
		return
	}
	writeArtifact(w, result)
}

// writeSideArtifact streams a README/CHANGELOG result (text/markdown, no
// Content-Disposition or X-Cache — side artifacts are not zip downloads).
func writeSideArtifact(w http.ResponseWriter, result *artifact.Result) {
	defer result.Body.Close()
	w.Header().Set("Content-Type", result.ContentType)
	if result.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.Size, 10))
	}
	if !result.LastModified.IsZero() {
		w.Header().Set("Last-Modified", result.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, result.Body)
}

// GetReadme serves GET /api/packages/{vendor}/{package}/{version}/readme
// (spec.md §4.6).
func (h *Handler) GetReadme(w http.ResponseWriter, r *http.Request) {
	if rejectInvalidCredentials(w, r) {
		return
	}
	vars := mux.Vars(r)
	result, err := h.artifacts.GetSideArtifact(r.Context(), "", vars["vendor"]+"/"+vars["package"], vars["version"], storagekey.README)
	if err != nil {
		renderError(w, r, err)
		return
	}
	writeSideArtifact(w, result)
}

// GetChangelog serves GET /api/packages/{vendor}/{package}/{version}/changelog.
func (h *Handler) GetChangelog(w http.ResponseWriter, r *http.Request) {
	if rejectInvalidCredentials(w, r) {
		return
	}
	vars := mux.Vars(r)
	result, err := h.artifacts.GetSideArtifact(r.Context(), "", vars["vendor"]+"/"+vars["package"], vars["version"], storagekey.CHANGELOG)
	if err != nil {
		renderError(w, r, err)
		return
	}
	writeSideArtifact(w, result)
}
