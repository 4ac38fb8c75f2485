package httpapi

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgmirror/core/internal/auth"
	"github.com/pkgmirror/core/internal/jobs"
	"github.com/pkgmirror/core/internal/metadata"
	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/ports"
)

type composerFakeClock struct{ t time.Time }

func (f composerFakeClock) Now() time.Time   { return f.t }
func (f composerFakeClock) NowUnix() int64   { return f.t.Unix() }
func (f composerFakeClock) NowUnixMs() int64 { return f.t.UnixMilli() }

type composerFakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newComposerFakeKV() *composerFakeKV { return &composerFakeKV{data: map[string]string{}} }

func (f *composerFakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *composerFakeKV) Put(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *composerFakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type composerFakeDB struct {
	mu       sync.Mutex
	repos    []*models.Repository
	versions map[string][]*models.PackageVersion
}

func (f *composerFakeDB) GetRepository(context.Context, string) (*models.Repository, error) {
	return nil, nil
}
func (f *composerFakeDB) ListRepositories(context.Context) ([]*models.Repository, error) {
	return f.repos, nil
}
func (f *composerFakeDB) UpsertRepository(context.Context, *models.Repository) error { return nil }
func (f *composerFakeDB) DeleteRepository(context.Context, string) error             { return nil }

func (f *composerFakeDB) GetTokenByHash(context.Context, string) (*models.Token, error) {
	return nil, nil
}
func (f *composerFakeDB) ListTokens(context.Context) ([]*models.Token, error) { return nil, nil }
func (f *composerFakeDB) InsertToken(context.Context, *models.Token) error    { return nil }
func (f *composerFakeDB) DeleteToken(context.Context, string) error          { return nil }
func (f *composerFakeDB) TouchToken(context.Context, string, int64) error    { return nil }

func (f *composerFakeDB) GetPackageVersions(_ context.Context, name string) ([]*models.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[name], nil
}
func (f *composerFakeDB) ListAllPackageNames(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.versions))
	for n := range f.versions {
		names = append(names, n)
	}
	return names, nil
}
func (f *composerFakeDB) UpsertPackageVersion(_ context.Context, v *models.PackageVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.versions == nil {
		f.versions = map[string][]*models.PackageVersion{}
	}
	f.versions[v.Name] = append(f.versions[v.Name], v)
	return nil
}
func (f *composerFakeDB) FindPackageVersion(context.Context, string, string) (*models.PackageVersion, error) {
	return nil, nil
}

func (f *composerFakeDB) GetArtifact(context.Context, string, string, string) (*models.Artifact, error) {
	return nil, nil
}
func (f *composerFakeDB) UpsertArtifact(context.Context, *models.Artifact) error      { return nil }
func (f *composerFakeDB) IncrementDownloadCount(context.Context, string, int64) error { return nil }

var _ ports.Database = (*composerFakeDB)(nil)

type composerFakeSyncRunner struct{}

func (composerFakeSyncRunner) Sync(context.Context, string) error { return nil }

func testSlogLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newComposerTestHandler(db *composerFakeDB, kv *composerFakeKV, clock composerFakeClock, cfg metadata.Config) *Handler {
	processor := jobs.NewProcessor(db, composerFakeSyncRunner{}, testSlogLogger())
	resolver := metadata.New(db, kv, clock, processor, cfg, testSlogLogger())
	return NewHandler(resolver, nil, processor, db, clock, "", testSlogLogger(), "")
}

func composerTestRouter(h *Handler) *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/packages.json", h.GetIndex).Methods(http.MethodGet)
	router.HandleFunc("/p2/{vendor}/{package}.json", h.GetPackageMetadata).Methods(http.MethodGet)
	return router
}

func TestGetPackageMetadata_Composer1UserAgent_Returns406(t *testing.T) {
	h := newComposerTestHandler(&composerFakeDB{}, newComposerFakeKV(), composerFakeClock{t: time.Unix(1000, 0)}, metadata.Config{})
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/pkg.json", nil)
	r.Header.Set("User-Agent", "Composer/1.10.22 (Darwin)")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestGetPackageMetadata_Unknown_Returns404(t *testing.T) {
	h := newComposerTestHandler(&composerFakeDB{}, newComposerFakeKV(), composerFakeClock{t: time.Unix(2000, 0)}, metadata.Config{PackagistMirroringEnabled: false})
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/missing.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPackageMetadata_KnownVersion_Returns200WithRewrittenDist(t *testing.T) {
	db := &composerFakeDB{versions: map[string][]*models.PackageVersion{
		"vendor/pkg": {{Name: "vendor/pkg", Version: "1.0.0", MetadataJSON: `{}`, CreatedAt: 1000}},
	}}
	h := newComposerTestHandler(db, newComposerFakeKV(), composerFakeClock{t: time.Unix(3000, 0)}, metadata.Config{})
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/pkg.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http://example.com/dist/m/vendor/pkg/1.0.0.zip")
}

func TestGetPackageMetadata_DistURLHonorsConfiguredPublicBaseURL(t *testing.T) {
	db := &composerFakeDB{versions: map[string][]*models.PackageVersion{
		"vendor/pkg": {{Name: "vendor/pkg", Version: "1.0.0", MetadataJSON: `{}`, CreatedAt: 1000}},
	}}
	processor := jobs.NewProcessor(db, composerFakeSyncRunner{}, testSlogLogger())
	resolver := metadata.New(db, newComposerFakeKV(), composerFakeClock{t: time.Unix(3000, 0)}, processor, metadata.Config{}, testSlogLogger())
	h := NewHandler(resolver, nil, processor, db, composerFakeClock{t: time.Unix(3000, 0)}, "", testSlogLogger(), "https://mirror.example.com")
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/pkg.json", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://mirror.example.com/dist/m/vendor/pkg/1.0.0.zip")
}

func TestGetPackageMetadata_InvalidCredentials_Returns401(t *testing.T) {
	h := newComposerTestHandler(&composerFakeDB{}, newComposerFakeKV(), composerFakeClock{t: time.Unix(6000, 0)}, metadata.Config{})
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/pkg.json", nil)
	r.Header.Set("Authorization", "Basic dG9rZW46d3Jvbmc=") // Basic base64("token:wrong")
	r = r.WithContext(auth.WithOutcome(r.Context(), auth.Outcome{Reason: "invalid token"}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized","message":"invalid token"}`, w.Body.String())
}

func TestGetIndex_Composer1UserAgent_Returns406(t *testing.T) {
	h := newComposerTestHandler(&composerFakeDB{}, newComposerFakeKV(), composerFakeClock{t: time.Unix(4000, 0)}, metadata.Config{})
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/packages.json", nil)
	r.Header.Set("User-Agent", "Composer/1.9.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusNotAcceptable, w.Code)
}

func TestGetIndex_Default_Returns200(t *testing.T) {
	h := newComposerTestHandler(&composerFakeDB{}, newComposerFakeKV(), composerFakeClock{t: time.Unix(5000, 0)}, metadata.Config{PackagistMirroringEnabled: true})
	router := composerTestRouter(h)

	r := httptest.NewRequest(http.MethodGet, "/packages.json", nil)
	r.Header.Set("User-Agent", "Composer/2.5.0")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
