package httpapi

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/pkgmirror/core/internal/apierr"
	"github.com/pkgmirror/core/internal/api/middleware"
	"github.com/pkgmirror/core/internal/crypto"
	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/models"
)

// SetupAdminRoutes registers the minimal /api/v1 surface spec.md §6 calls
// for ("Admin JSON API under /api/* for repositories, tokens, packages,
// stats, settings; these sit outside the core but they share the auth
// middleware"): token issuance/listing and repository CRUD, enough to
// exercise the "secret shown once" and protected-singleton invariants
// (spec.md §8) without reimplementing the full admin UI backend.
func SetupAdminRoutes(router *mux.Router, h *Handler) {
	router.HandleFunc("/api/v1/tokens", middleware.RequireAuth(true, h.CreateToken)).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/tokens", middleware.RequireAuth(false, h.ListTokens)).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tokens/{id}", middleware.RequireAuth(true, h.DeleteToken)).Methods(http.MethodDelete)

	router.HandleFunc("/api/v1/repositories", middleware.RequireAuth(false, h.ListRepositories)).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/repositories", middleware.RequireAuth(true, h.CreateRepository)).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/repositories/{id}/sync", middleware.RequireAuth(true, h.TriggerSync)).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/repositories/{id}", middleware.RequireAuth(false, h.GetRepository)).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/repositories/{id}", middleware.RequireAuth(true, h.UpdateRepository)).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/repositories/{id}", middleware.RequireAuth(true, h.DeleteRepository)).Methods(http.MethodDelete)
}

func decodeJSON(r *http.Request, out any) error {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		return apierr.InvalidRequest("malformed request body")
	}
	return nil
}

func writeCreated(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(body)
}

func writeOK(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(body)
}

// --- Tokens ---

type createTokenRequest struct {
	Description  string `json:"description"`
	Permissions  string `json:"permissions"`
	RateLimitMax int64  `json:"rate_limit_max"`
	ExpiresAt    *int64 `json:"expires_at,omitempty"`
}

// createTokenResponse embeds the Token row (Hash is never marshaled, see
// models.Token's json tag) plus Secret, which appears exactly once
// (spec.md §8 invariant).
type createTokenResponse struct {
	*models.Token
	Secret string `json:"secret"`
}

func generateTokenSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateToken implements POST /api/v1/tokens.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	permissions := models.Permission(req.Permissions)
	if permissions != models.PermissionReadonly && permissions != models.PermissionWrite {
		renderError(w, r, apierr.InvalidRequest("permissions must be \"readonly\" or \"write\""))
		return
	}

	secret, err := generateTokenSecret()
	if err != nil {
		renderError(w, r, apierr.Internal("failed to generate token secret"))
		return
	}
	sum := sha256.Sum256([]byte(secret))

	tok := &models.Token{
		ID:           uuid.New().String(),
		Description:  req.Description,
		Hash:         hex.EncodeToString(sum[:]),
		Permissions:  permissions,
		RateLimitMax: req.RateLimitMax,
		CreatedAt:    h.clock.NowUnix(),
		ExpiresAt:    req.ExpiresAt,
	}
	if err := h.db.InsertToken(r.Context(), tok); err != nil {
		renderError(w, r, apierr.Internal("failed to create token"))
		return
	}
	writeCreated(w, createTokenResponse{Token: tok, Secret: secret})
}

// ListTokens implements GET /api/v1/tokens. The stored Hash never leaves
// this process (models.Token.Hash is json:"-").
func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	toks, err := h.db.ListTokens(r.Context())
	if err != nil {
		renderError(w, r, apierr.Internal("failed to list tokens"))
		return
	}
	writeOK(w, toks)
}

// DeleteToken implements DELETE /api/v1/tokens/{id}.
func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.db.DeleteToken(r.Context(), id); err != nil {
		renderError(w, r, apierr.Internal("failed to delete token"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Repositories ---

type repositoryRequest struct {
	URL            string            `json:"url"`
	SourceKind     string            `json:"source_kind"`
	Filter         string            `json:"filter,omitempty"`
	CredentialKind string            `json:"credential_kind,omitempty"`
	Credentials    map[string]string `json:"credentials,omitempty"`
}

// encryptCredentials marshals a credentials map and encrypts it with
// internal/crypto, the same AES-GCM/PBKDF2 scheme the Sync Engine and
// Artifact Server decrypt with. Returns nil ciphertext for credential_kind
// "none" or an empty map.
func (h *Handler) encryptCredentials(kind models.CredentialKind, creds map[string]string) ([]byte, error) {
	if kind == models.CredentialNone || len(creds) == 0 {
		return nil, nil
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, err
	}
	encoded, err := crypto.Encrypt(h.encryptionKey, plaintext)
	if err != nil {
		return nil, err
	}
	return []byte(encoded), nil
}

// ListRepositories implements GET /api/v1/repositories.
func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.db.ListRepositories(r.Context())
	if err != nil {
		renderError(w, r, apierr.Internal("failed to list repositories"))
		return
	}
	writeOK(w, repos)
}

// GetRepository implements GET /api/v1/repositories/{id}.
func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	repo, err := h.db.GetRepository(r.Context(), id)
	if err != nil {
		renderError(w, r, apierr.Internal("failed to load repository"))
		return
	}
	if repo == nil {
		renderError(w, r, apierr.NotFound("repository not found"))
		return
	}
	writeOK(w, repo)
}

// CreateRepository implements POST /api/v1/repositories.
func (h *Handler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	var req repositoryRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.URL == "" {
		renderError(w, r, apierr.InvalidRequest("url is required"))
		return
	}
	sourceKind := models.SourceKind(req.SourceKind)
	if sourceKind != models.SourceComposer && sourceKind != models.SourceGit {
		renderError(w, r, apierr.InvalidRequest("source_kind must be \"composer\" or \"git\""))
		return
	}
	credKind := models.CredentialKind(req.CredentialKind)
	if credKind == "" {
		credKind = models.CredentialNone
	}
	ciphertext, err := h.encryptCredentials(credKind, req.Credentials)
	if err != nil {
		renderError(w, r, apierr.Internal("failed to encrypt credentials"))
		return
	}

	repo := &models.Repository{
		ID:                    uuid.New().String(),
		URL:                   req.URL,
		SourceKind:            sourceKind,
		CredentialKind:        credKind,
		CredentialsCiphertext: ciphertext,
		Filter:                req.Filter,
		Status:                models.RepoPending,
		CreatedAt:             h.clock.NowUnix(),
	}
	if err := h.db.UpsertRepository(r.Context(), repo); err != nil {
		renderError(w, r, apierr.Internal("failed to create repository"))
		return
	}
	writeCreated(w, repo)
}

// UpdateRepository implements PUT /api/v1/repositories/{id}. The
// "packagist" singleton may not be edited (spec.md §8 invariant).
func (h *Handler) UpdateRepository(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == models.PackagistRepoID {
		renderError(w, r, apierr.Forbidden("the packagist repository cannot be modified"))
		return
	}

	existing, err := h.db.GetRepository(r.Context(), id)
	if err != nil {
		renderError(w, r, apierr.Internal("failed to load repository"))
		return
	}
	if existing == nil {
		renderError(w, r, apierr.NotFound("repository not found"))
		return
	}

	var req repositoryRequest
	if err := decodeJSON(r, &req); err != nil {
		renderError(w, r, err)
		return
	}
	if req.URL != "" {
		existing.URL = req.URL
	}
	if req.SourceKind != "" {
		existing.SourceKind = models.SourceKind(req.SourceKind)
	}
	existing.Filter = req.Filter
	if req.CredentialKind != "" {
		credKind := models.CredentialKind(req.CredentialKind)
		ciphertext, err := h.encryptCredentials(credKind, req.Credentials)
		if err != nil {
			renderError(w, r, apierr.Internal("failed to encrypt credentials"))
			return
		}
		existing.CredentialKind = credKind
		existing.CredentialsCiphertext = ciphertext
	}

	if err := h.db.UpsertRepository(r.Context(), existing); err != nil {
		renderError(w, r, apierr.Internal("failed to update repository"))
		return
	}
	writeOK(w, existing)
}

// DeleteRepository implements DELETE /api/v1/repositories/{id}. The
// "packagist" singleton may not be deleted (spec.md §8 invariant).
func (h *Handler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == models.PackagistRepoID {
		renderError(w, r, apierr.Forbidden("the packagist repository cannot be deleted"))
		return
	}
	if err := h.db.DeleteRepository(r.Context(), id); err != nil {
		renderError(w, r, apierr.Internal("failed to delete repository"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TriggerSync implements POST /api/v1/repositories/{id}/sync. Per spec.md
// §9 open question (ii), this only enqueues the RepositorySync job — it
// does not block the response on the sync actually completing (the sync
// strategy, inline or async, is whatever internal/jobs.Processor was
// constructed with).
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	repo, err := h.db.GetRepository(r.Context(), id)
	if err != nil {
		renderError(w, r, apierr.Internal("failed to load repository"))
		return
	}
	if repo == nil {
		renderError(w, r, apierr.NotFound("repository not found"))
		return
	}
	if err := h.jobs.Enqueue(r.Context(), jobs.RepositorySync{RepoID: id}); err != nil {
		renderError(w, r, apierr.Internal("failed to enqueue sync"))
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
