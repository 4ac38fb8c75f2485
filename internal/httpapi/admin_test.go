package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgmirror/core/internal/crypto"
	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/ports"
)

type adminFakeDB struct {
	mu      sync.Mutex
	tokens  []*models.Token
	repos   map[string]*models.Repository
	deleted []string
}

func newAdminFakeDB() *adminFakeDB { return &adminFakeDB{repos: map[string]*models.Repository{}} }

func (f *adminFakeDB) GetRepository(_ context.Context, id string) (*models.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.repos[id], nil
}
func (f *adminFakeDB) ListRepositories(context.Context) ([]*models.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Repository, 0, len(f.repos))
	for _, r := range f.repos {
		out = append(out, r)
	}
	return out, nil
}
func (f *adminFakeDB) UpsertRepository(_ context.Context, repo *models.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[repo.ID] = repo
	return nil
}
func (f *adminFakeDB) DeleteRepository(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.repos, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *adminFakeDB) GetTokenByHash(_ context.Context, hash string) (*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tokens {
		if t.Hash == hash {
			return t, nil
		}
	}
	return nil, nil
}
func (f *adminFakeDB) ListTokens(context.Context) ([]*models.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens, nil
}
func (f *adminFakeDB) InsertToken(_ context.Context, t *models.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens = append(f.tokens, t)
	return nil
}
func (f *adminFakeDB) DeleteToken(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, t := range f.tokens {
		if t.ID == id {
			f.tokens = append(f.tokens[:i], f.tokens[i+1:]...)
			break
		}
	}
	return nil
}
func (f *adminFakeDB) TouchToken(context.Context, string, int64) error { return nil }

func (f *adminFakeDB) GetPackageVersions(context.Context, string) ([]*models.PackageVersion, error) {
	return nil, nil
}
func (f *adminFakeDB) ListAllPackageNames(context.Context) ([]string, error) { return nil, nil }
func (f *adminFakeDB) UpsertPackageVersion(context.Context, *models.PackageVersion) error {
	return nil
}
func (f *adminFakeDB) FindPackageVersion(context.Context, string, string) (*models.PackageVersion, error) {
	return nil, nil
}

func (f *adminFakeDB) GetArtifact(context.Context, string, string, string) (*models.Artifact, error) {
	return nil, nil
}
func (f *adminFakeDB) UpsertArtifact(context.Context, *models.Artifact) error      { return nil }
func (f *adminFakeDB) IncrementDownloadCount(context.Context, string, int64) error { return nil }

var _ ports.Database = (*adminFakeDB)(nil)

func newAdminTestHandler(db *adminFakeDB) *Handler {
	processor := jobs.NewProcessor(db, composerFakeSyncRunner{}, testSlogLogger())
	clock := composerFakeClock{t: time.Unix(10_000, 0)}
	return NewHandler(nil, nil, processor, db, clock, "test-encryption-key-0123456789", testSlogLogger(), "")
}

func adminTestRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/api/v1/tokens", h.CreateToken).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/tokens", h.ListTokens).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/tokens/{id}", h.DeleteToken).Methods(http.MethodDelete)
	router.HandleFunc("/api/v1/repositories", h.ListRepositories).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/repositories", h.CreateRepository).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/repositories/{id}/sync", h.TriggerSync).Methods(http.MethodPost)
	router.HandleFunc("/api/v1/repositories/{id}", h.GetRepository).Methods(http.MethodGet)
	router.HandleFunc("/api/v1/repositories/{id}", h.UpdateRepository).Methods(http.MethodPut)
	router.HandleFunc("/api/v1/repositories/{id}", h.DeleteRepository).Methods(http.MethodDelete)
	return router
}

func TestCreateToken_SecretAppearsOnceAndHashNeverSerialized(t *testing.T) {
	db := newAdminFakeDB()
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	body := `{"description":"ci token","permissions":"readonly","rate_limit_max":1000}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["secret"])
	assert.NotContains(t, resp, "hash")
	assert.NotContains(t, resp, "Hash")

	require.Len(t, db.tokens, 1)
	assert.NotEqual(t, resp["secret"], db.tokens[0].Hash)
}

func TestCreateToken_RejectsInvalidPermissions(t *testing.T) {
	h := newAdminTestHandler(newAdminFakeDB())
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/tokens", bytes.NewBufferString(`{"permissions":"superuser"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTokens_NeverLeaksHash(t *testing.T) {
	db := newAdminFakeDB()
	db.tokens = append(db.tokens, &models.Token{ID: "t1", Hash: "deadbeef", Permissions: models.PermissionReadonly})
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "deadbeef")
}

func TestCreateRepository_EncryptsCredentials(t *testing.T) {
	db := newAdminFakeDB()
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	body := `{"url":"https://github.com/vendor/pkg.git","source_kind":"git","credential_kind":"git_token","credentials":{"token":"s3cr3t"}}`
	r := httptest.NewRequest(http.MethodPost, "/api/v1/repositories", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, db.repos, 1)
	var repo *models.Repository
	for _, v := range db.repos {
		repo = v
	}
	require.NotNil(t, repo)
	assert.NotContains(t, string(repo.CredentialsCiphertext), "s3cr3t")

	plaintext, err := crypto.Decrypt(h.encryptionKey, string(repo.CredentialsCiphertext))
	require.NoError(t, err)
	assert.Contains(t, string(plaintext), "s3cr3t")
}

func TestCreateRepository_RejectsMissingURL(t *testing.T) {
	h := newAdminTestHandler(newAdminFakeDB())
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/repositories", bytes.NewBufferString(`{"source_kind":"composer"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateRepository_PackagistSingletonIsForbidden(t *testing.T) {
	db := newAdminFakeDB()
	db.repos[models.PackagistRepoID] = &models.Repository{ID: models.PackagistRepoID, URL: "https://repo.packagist.org"}
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodPut, "/api/v1/repositories/packagist", bytes.NewBufferString(`{"url":"https://evil.example"}`))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "https://repo.packagist.org", db.repos[models.PackagistRepoID].URL)
}

func TestDeleteRepository_PackagistSingletonIsForbidden(t *testing.T) {
	db := newAdminFakeDB()
	db.repos[models.PackagistRepoID] = &models.Repository{ID: models.PackagistRepoID}
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/repositories/packagist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, db.repos, models.PackagistRepoID)
}

func TestDeleteRepository_NonProtected_Succeeds(t *testing.T) {
	db := newAdminFakeDB()
	db.repos["repo-1"] = &models.Repository{ID: "repo-1"}
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodDelete, "/api/v1/repositories/repo-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NotContains(t, db.repos, "repo-1")
}

func TestTriggerSync_UnknownRepository_Returns404(t *testing.T) {
	h := newAdminTestHandler(newAdminFakeDB())
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/repositories/missing/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerSync_EnqueuesJobAndReturns202(t *testing.T) {
	db := newAdminFakeDB()
	db.repos["repo-1"] = &models.Repository{ID: "repo-1", Status: models.RepoActive}
	h := newAdminTestHandler(db)
	router := adminTestRouter(h)

	r := httptest.NewRequest(http.MethodPost, "/api/v1/repositories/repo-1/sync", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusAccepted, w.Code)
}
