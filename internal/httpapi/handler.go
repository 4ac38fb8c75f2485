// Package httpapi wires the Metadata Resolver, Artifact Server, and Job
// Processor (which in turn owns the Sync Engine) to the Composer-protocol
// HTTP surface and the small admin JSON API spec.md §6 calls for,
// following the teacher's internal/api/rest package (Handler/NewHandler/
// SetupRoutes, one file per route family).
package httpapi

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pkgmirror/core/internal/api/middleware"
	"github.com/pkgmirror/core/internal/apierr"
	"github.com/pkgmirror/core/internal/artifact"
	"github.com/pkgmirror/core/internal/auth"
	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/metadata"
	"github.com/pkgmirror/core/internal/ports"
)

// Handler owns the domain-package handles every route needs; it carries no
// state of its own beyond those handles. Repository syncs are triggered
// exclusively through jobs (RepositorySync), never by calling a Sync
// Engine reference directly, so Handler has no separate handle for it.
type Handler struct {
	metadata      *metadata.Resolver
	artifacts     *artifact.Server
	jobs          *jobs.Processor
	db            ports.Database
	clock         ports.Clock
	logger        *slog.Logger
	encryptionKey string
	publicBaseURL string
}

func NewHandler(metadataResolver *metadata.Resolver, artifactServer *artifact.Server, jobProcessor *jobs.Processor, db ports.Database, clock ports.Clock, encryptionKey string, logger *slog.Logger, publicBaseURL string) *Handler {
	return &Handler{
		metadata:      metadataResolver,
		artifacts:     artifactServer,
		jobs:          jobProcessor,
		db:            db,
		clock:         clock,
		encryptionKey: encryptionKey,
		logger:        logger,
		publicBaseURL: publicBaseURL,
	}
}

// unsupportedUserAgentPrefixes are client version families spec.md §7
// names explicitly unsupported (406), decided from a User-Agent prefix
// check. Composer 1.x predates the p2 metadata protocol this mirror
// speaks exclusively, so it cannot be served correctly.
var unsupportedUserAgentPrefixes = []string{"Composer/1."}

func rejectUnsupportedClient(r *http.Request) error {
	ua := r.Header.Get("User-Agent")
	for _, prefix := range unsupportedUserAgentPrefixes {
		if strings.HasPrefix(ua, prefix) {
			return apierr.NotAcceptable("client version not supported")
		}
	}
	return nil
}

// rejectInvalidCredentials enforces spec.md §4.1 on routes that otherwise
// serve anonymous traffic fine (the Composer metadata/index routes, dist
// downloads): a missing Authorization header is the anonymous case these
// routes exist to serve, but a header that failed to authenticate must
// still be rejected with 401 rather than silently served as anonymous.
// Reports whether it already wrote a response.
func rejectInvalidCredentials(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") == "" {
		return false
	}
	outcome := auth.OutcomeFromContext(r.Context())
	if !outcome.Unauthenticated() {
		return false
	}
	reason := outcome.Reason
	if reason == "" {
		reason = "invalid credentials"
	}
	middleware.WriteAuthError(w, http.StatusUnauthorized, reason)
	return true
}

// SetupRoutes registers every route this service exposes onto router.
// Composer-protocol routes are registered first, then the unified dist
// route ahead of the per-repo one (registered the other way round,
// "/dist/{repo}/..." would capture "m" as a repo id and shadow it), then
// side artifacts, then the admin JSON API — mirroring the
// teacher's "more specific before generic parameterized" convention.
func SetupRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/packages.json", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/p2/{vendor}/{package}.json", h.GetPackageMetadata).Methods(http.MethodGet)

	router.HandleFunc("/dist/m/{vendor}/{package}/{version}.zip", h.GetUnifiedArtifact).Methods(http.MethodGet)
	router.HandleFunc("/dist/{repo}/{vendor}/{package}/{version}.zip", h.GetRepoArtifact).Methods(http.MethodGet)

	router.HandleFunc("/api/packages/{vendor}/{package}/{version}/readme", h.GetReadme).Methods(http.MethodGet)
	router.HandleFunc("/api/packages/{vendor}/{package}/{version}/changelog", h.GetChangelog).Methods(http.MethodGet)

	SetupAdminRoutes(router, h)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		renderError(w, r, apierr.NotFound("route not found"))
	})
}

// vendorPackage joins the {vendor}/{package} mux vars back into Composer's
// canonical "vendor/package" name form.
func vendorPackage(r *http.Request) string {
	vars := mux.Vars(r)
	return vars["vendor"] + "/" + vars["package"]
}
