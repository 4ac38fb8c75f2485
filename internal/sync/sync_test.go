package sync

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgmirror/core/internal/models"
	"github.com/pkgmirror/core/internal/ports"
)

type fakeClock struct{ t time.Time }

func (f fakeClock) Now() time.Time   { return f.t }
func (f fakeClock) NowUnix() int64   { return f.t.Unix() }
func (f fakeClock) NowUnixMs() int64 { return f.t.UnixMilli() }

type fakeKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string]string{}} }

func (f *fakeKV) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[key], nil
}

func (f *fakeKV) Put(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

type fakeDB struct {
	mu       sync.Mutex
	repos    map[string]*models.Repository
	versions map[string]*models.PackageVersion // key: name + "@" + version
}

func newFakeDB(repos ...*models.Repository) *fakeDB {
	db := &fakeDB{repos: map[string]*models.Repository{}, versions: map[string]*models.PackageVersion{}}
	for _, r := range repos {
		db.repos[r.ID] = r
	}
	return db
}

func (f *fakeDB) GetRepository(_ context.Context, id string) (*models.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.repos[id]
	if r == nil {
		return nil, nil
	}
	cp := *r
	return &cp, nil
}
func (f *fakeDB) ListRepositories(context.Context) ([]*models.Repository, error) { return nil, nil }
func (f *fakeDB) UpsertRepository(_ context.Context, r *models.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.repos[r.ID] = &cp
	return nil
}
func (f *fakeDB) DeleteRepository(context.Context, string) error { return nil }

func (f *fakeDB) GetTokenByHash(context.Context, string) (*models.Token, error) { return nil, nil }
func (f *fakeDB) ListTokens(context.Context) ([]*models.Token, error)           { return nil, nil }
func (f *fakeDB) InsertToken(context.Context, *models.Token) error             { return nil }
func (f *fakeDB) DeleteToken(context.Context, string) error                    { return nil }
func (f *fakeDB) TouchToken(context.Context, string, int64) error              { return nil }

func (f *fakeDB) GetPackageVersions(context.Context, string) ([]*models.PackageVersion, error) {
	return nil, nil
}
func (f *fakeDB) ListAllPackageNames(context.Context) ([]string, error) { return nil, nil }
func (f *fakeDB) UpsertPackageVersion(_ context.Context, v *models.PackageVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[v.Name+"@"+v.Version] = v
	return nil
}
func (f *fakeDB) FindPackageVersion(_ context.Context, name, version string) (*models.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[name+"@"+version], nil
}

func (f *fakeDB) GetArtifact(context.Context, string, string, string) (*models.Artifact, error) {
	return nil, nil
}
func (f *fakeDB) UpsertArtifact(context.Context, *models.Artifact) error      { return nil }
func (f *fakeDB) IncrementDownloadCount(context.Context, string, int64) error { return nil }

var _ ports.Database = (*fakeDB)(nil)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSync_ComposerDirect_ProviderIncludes_PersistsVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/packages.json":
			_, _ = w.Write([]byte(`{
				"providers-url": "/p/%package%$%hash%.json",
				"provider-includes": {"p/providers$abc.json": {"sha256": "abc"}}
			}`))
		case "/p/providers$abc.json":
			_, _ = w.Write([]byte(`{"providers": {"vendor/pkg": {"sha256": "def"}}}`))
		case "/p/vendor/pkg$def.json":
			_, _ = w.Write([]byte(`{"packages": {"vendor/pkg": [{
				"name": "vendor/pkg", "version": "1.0.0",
				"dist": {"type": "zip", "url": "https://upstream.example/pkg-1.0.0.zip"}
			}]}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	repo := &models.Repository{ID: "repo-1", URL: server.URL, SourceKind: models.SourceComposer, Status: models.RepoActive, CredentialKind: models.CredentialNone}
	db := newFakeDB(repo)
	kv := newFakeKV()
	kv.data["index"] = `{"packages":{}}`

	e := New(db, kv, fakeClock{t: time.Unix(1000, 0)}, Config{UpstreamTimeout: 5 * time.Second}, testLogger())
	err := e.Sync(context.Background(), "repo-1")
	require.NoError(t, err)

	row, err := db.FindPackageVersion(context.Background(), "vendor/pkg", "1.0.0")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "https://upstream.example/pkg-1.0.0.zip", row.SourceDistURL)
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", row.ProxyDistURL)

	got, err := db.GetRepository(context.Background(), "repo-1")
	require.NoError(t, err)
	assert.Equal(t, models.RepoActive, got.Status)
	assert.Empty(t, got.ErrorMessage)

	_, hasIndex := kv.data["index"]
	assert.False(t, hasIndex)
}

func TestSync_ComposerDirect_EagerForm_PersistsVersions(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"packages": {"vendor/pkg": [{
			"name": "vendor/pkg", "version": "2.0.0",
			"dist": {"type": "zip", "url": "https://upstream.example/pkg-2.0.0.zip"}
		}]}}`))
	}))
	defer server.Close()

	repo := &models.Repository{ID: "repo-1", URL: server.URL, SourceKind: models.SourceComposer, Status: models.RepoActive, CredentialKind: models.CredentialNone}
	db := newFakeDB(repo)
	e := New(db, newFakeKV(), fakeClock{t: time.Unix(1000, 0)}, Config{UpstreamTimeout: 5 * time.Second}, testLogger())

	require.NoError(t, e.Sync(context.Background(), "repo-1"))

	row, err := db.FindPackageVersion(context.Background(), "vendor/pkg", "2.0.0")
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestSync_Filter_RestrictsToNamedPackages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"packages": {
			"vendor/allowed": [{"name": "vendor/allowed", "version": "1.0.0", "dist": {"url": "https://upstream.example/a.zip"}}],
			"vendor/blocked": [{"name": "vendor/blocked", "version": "1.0.0", "dist": {"url": "https://upstream.example/b.zip"}}]
		}}`))
	}))
	defer server.Close()

	repo := &models.Repository{ID: "repo-1", URL: server.URL, SourceKind: models.SourceComposer, Status: models.RepoActive, CredentialKind: models.CredentialNone, Filter: "vendor/allowed"}
	db := newFakeDB(repo)
	e := New(db, newFakeKV(), fakeClock{t: time.Unix(1000, 0)}, Config{UpstreamTimeout: 5 * time.Second}, testLogger())

	require.NoError(t, e.Sync(context.Background(), "repo-1"))

	allowed, err := db.FindPackageVersion(context.Background(), "vendor/allowed", "1.0.0")
	require.NoError(t, err)
	assert.NotNil(t, allowed)

	blocked, err := db.FindPackageVersion(context.Background(), "vendor/blocked", "1.0.0")
	require.NoError(t, err)
	assert.Nil(t, blocked)
}

func TestSync_UpstreamUnreachable_MarksRepositoryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := &models.Repository{ID: "repo-1", URL: server.URL, SourceKind: models.SourceComposer, Status: models.RepoActive, CredentialKind: models.CredentialNone}
	db := newFakeDB(repo)
	e := New(db, newFakeKV(), fakeClock{t: time.Unix(1000, 0)}, Config{UpstreamTimeout: 2 * time.Second}, testLogger())

	err := e.Sync(context.Background(), "repo-1")
	require.Error(t, err)

	got, getErr := db.GetRepository(context.Background(), "repo-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.RepoError, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestSync_UnknownRepository_ReturnsErrRepositoryNotFound(t *testing.T) {
	e := New(newFakeDB(), newFakeKV(), fakeClock{t: time.Unix(1000, 0)}, Config{}, testLogger())
	err := e.Sync(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRepositoryNotFound)
}

func TestSync_GitTree_FallbackSynthesizesVersionsFromTags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/acme/widgets/packages.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/repos/acme/widgets", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"default_branch": "main"}`))
	})
	mux.HandleFunc("/repos/acme/widgets/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tree": [{"path": "composer.json", "type": "blob"}, {"path": "src/main.php", "type": "blob"}]}`))
	})
	mux.HandleFunc("/repos/acme/widgets/tags", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"name": "v1.0.0", "zipball_url": "https://codeload.example/acme/widgets/zip/v1.0.0"},
			{"name": "not-a-version", "zipball_url": "https://codeload.example/acme/widgets/zip/not-a-version"}
		]`))
	})
	mux.HandleFunc("/acme/widgets/main/composer.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"name": "acme/widgets", "description": "a widget library", "type": "library"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	repo := &models.Repository{
		ID: "repo-1", URL: server.URL + "/acme/widgets", SourceKind: models.SourceGit,
		Status: models.RepoActive, CredentialKind: models.CredentialNone,
	}
	db := newFakeDB(repo)
	e := New(db, newFakeKV(), fakeClock{t: time.Unix(1000, 0)}, Config{
		UpstreamTimeout:  5 * time.Second,
		GitHubAPIBaseURL: server.URL,
		GitHubRawBaseURL: server.URL,
	}, testLogger())

	require.NoError(t, e.Sync(context.Background(), "repo-1"))

	row, err := db.FindPackageVersion(context.Background(), "acme/widgets", "v1.0.0")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "https://codeload.example/acme/widgets/zip/v1.0.0", row.SourceDistURL)
	assert.Equal(t, "a widget library", row.Description)

	_, err = db.FindPackageVersion(context.Background(), "acme/widgets", "not-a-version")
	require.NoError(t, err)

	got, getErr := db.GetRepository(context.Background(), "repo-1")
	require.NoError(t, getErr)
	assert.Equal(t, models.RepoActive, got.Status)
}

func TestResolveURL_HandlesAllForms(t *testing.T) {
	base := "https://registry.example/repo"
	assert.Equal(t, "https://other.example/a.zip", resolveURL(base, "https://other.example/a.zip"))
	assert.Equal(t, "https://registry.example/a.zip", resolveURL(base, "//registry.example/a.zip"))
	assert.Equal(t, "https://registry.example/dist/a.zip", resolveURL(base, "/dist/a.zip"))
	assert.Equal(t, "https://registry.example/a.zip", resolveURL(base, "a.zip"))
	assert.Equal(t, "", resolveURL(base, ""))
}

func TestSynthesizeConventionalArchiveURL_GithubHost(t *testing.T) {
	got := synthesizeConventionalArchiveURL("https://github.com/acme/widgets", "acme/widgets", "1.2.3")
	assert.Equal(t, "https://codeload.github.com/acme/widgets/zip/refs/tags/1.2.3", got)

	assert.Equal(t, "", synthesizeConventionalArchiveURL("https://gitlab.example/acme/widgets", "acme/widgets", "1.2.3"))
}
