package metadata

import (
	"context"
	"encoding/json"
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
	mu        sync.Mutex
	repos     []*models.Repository
	versions  map[string][]*models.PackageVersion
	upserted  []*models.PackageVersion
}

func (f *fakeDB) GetRepository(context.Context, string) (*models.Repository, error) { return nil, nil }
func (f *fakeDB) ListRepositories(context.Context) ([]*models.Repository, error) {
	return f.repos, nil
}
func (f *fakeDB) UpsertRepository(context.Context, *models.Repository) error { return nil }
func (f *fakeDB) DeleteRepository(context.Context, string) error             { return nil }

func (f *fakeDB) GetTokenByHash(context.Context, string) (*models.Token, error) { return nil, nil }
func (f *fakeDB) ListTokens(context.Context) ([]*models.Token, error)           { return nil, nil }
func (f *fakeDB) InsertToken(context.Context, *models.Token) error             { return nil }
func (f *fakeDB) DeleteToken(context.Context, string) error                    { return nil }
func (f *fakeDB) TouchToken(context.Context, string, int64) error              { return nil }

func (f *fakeDB) GetPackageVersions(_ context.Context, name string) ([]*models.PackageVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versions[name], nil
}
func (f *fakeDB) ListAllPackageNames(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.versions))
	for n := range f.versions {
		names = append(names, n)
	}
	return names, nil
}
func (f *fakeDB) UpsertPackageVersion(_ context.Context, v *models.PackageVersion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, v)
	if f.versions == nil {
		f.versions = map[string][]*models.PackageVersion{}
	}
	f.versions[v.Name] = append(f.versions[v.Name], v)
	return nil
}
func (f *fakeDB) FindPackageVersion(context.Context, string, string) (*models.PackageVersion, error) {
	return nil, nil
}

func (f *fakeDB) GetArtifact(context.Context, string, string, string) (*models.Artifact, error) {
	return nil, nil
}
func (f *fakeDB) UpsertArtifact(context.Context, *models.Artifact) error    { return nil }
func (f *fakeDB) IncrementDownloadCount(context.Context, string, int64) error { return nil }

var _ ports.Database = (*fakeDB)(nil)

type fakeJobs struct {
	mu   sync.Mutex
	jobs []ports.Job
}

func (f *fakeJobs) Enqueue(_ context.Context, job ports.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeJobs) EnqueueAll(_ context.Context, jobs []ports.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, jobs...)
	return nil
}

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func waitForUpsert(t *testing.T, db *fakeDB, name string) {
	t.Helper()
	require.Eventually(t, func() bool {
		db.mu.Lock()
		defer db.mu.Unlock()
		return len(db.versions[name]) > 0
	}, time.Second, 5*time.Millisecond)
}

func TestGetPackageMetadata_KVHit_TrustsCacheWithoutRevalidation(t *testing.T) {
	kv := newFakeKV()
	resp := &MetadataResponse{Packages: map[string][]map[string]any{
		"vendor/pkg": {{"name": "vendor/pkg", "version": "1.0.0"}},
	}}
	raw, _ := json.Marshal(resp)
	kv.data["p2:vendor/pkg"] = string(raw)

	r := New(&fakeDB{}, kv, fakeClock{t: time.Unix(1000, 0)}, &fakeJobs{}, Config{}, testLogger())
	got, notModified, err := r.GetPackageMetadata(context.Background(), "vendor/pkg", time.Time{})
	require.NoError(t, err)
	assert.False(t, notModified)
	assert.Equal(t, "vendor/pkg", got.Packages["vendor/pkg"][0]["name"])
}

func TestGetPackageMetadata_DBTier_RewritesDistAndCaches(t *testing.T) {
	db := &fakeDB{versions: map[string][]*models.PackageVersion{
		"vendor/pkg": {{
			Name: "vendor/pkg", Version: "1.0.0",
			MetadataJSON: `{"require":{"php":">=8.0"}}`,
			CreatedAt:    1000,
		}},
	}}
	kv := newFakeKV()
	r := New(db, kv, fakeClock{t: time.Unix(2000, 0)}, &fakeJobs{}, Config{}, testLogger())

	got, _, err := r.GetPackageMetadata(context.Background(), "vendor/pkg", time.Time{})
	require.NoError(t, err)
	entry := got.Packages["vendor/pkg"][0]
	dist := entry["dist"].(map[string]any)
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", dist["url"])

	assert.NotEmpty(t, kv.data["p2:vendor/pkg"])
}

func TestGetPackageMetadata_UpstreamTier_SanitizesAndPersists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"packages":{"vendor/pkg":[{
			"name":"vendor/pkg","version":"1.0.0",
			"require":"__unset",
			"source":"__unset",
			"license":["MIT"],
			"dist":{"type":"zip","url":"https://upstream.example/vendor-pkg-1.0.0.zip"}
		}]}}`))
	}))
	defer server.Close()

	db := &fakeDB{repos: []*models.Repository{{
		ID: "repo-1", URL: server.URL, SourceKind: models.SourceComposer, Status: models.RepoActive,
	}}}
	r := New(db, newFakeKV(), fakeClock{t: time.Unix(3000, 0)}, &fakeJobs{}, Config{UpstreamTimeout: 5 * time.Second}, testLogger())

	got, notModified, err := r.GetPackageMetadata(context.Background(), "vendor/pkg", time.Time{})
	require.NoError(t, err)
	assert.False(t, notModified)
	entry := got.Packages["vendor/pkg"][0]
	dist := entry["dist"].(map[string]any)
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", dist["url"])
	_, hasSource := entry["source"]
	assert.False(t, hasSource)

	waitForUpsert(t, db, "vendor/pkg")
	db.mu.Lock()
	defer db.mu.Unlock()
	require.Len(t, db.versions["vendor/pkg"], 1)
	assert.Equal(t, "https://upstream.example/vendor-pkg-1.0.0.zip", db.versions["vendor/pkg"][0].SourceDistURL)
}

func TestGetPackageMetadata_NoTierHasIt_ReturnsNotFound(t *testing.T) {
	r := New(&fakeDB{}, newFakeKV(), fakeClock{t: time.Unix(4000, 0)}, &fakeJobs{}, Config{PackagistMirroringEnabled: false}, testLogger())
	_, _, err := r.GetPackageMetadata(context.Background(), "vendor/missing", time.Time{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetIndex_PendingRepoSweep_EnqueuesRepositorySync(t *testing.T) {
	db := &fakeDB{repos: []*models.Repository{
		{ID: "repo-pending", SourceKind: models.SourceComposer, Status: models.RepoPending},
	}}
	fj := &fakeJobs{}
	r := New(db, newFakeKV(), fakeClock{t: time.Unix(5000, 0)}, fj, Config{}, testLogger())

	_, _, err := r.GetIndex(context.Background(), time.Time{})
	require.NoError(t, err)

	fj.mu.Lock()
	defer fj.mu.Unlock()
	require.Len(t, fj.jobs, 1)
	assert.Equal(t, "repository_sync", fj.jobs[0].Kind())
}

func TestGetIndex_NoUpstream_BuildsEnumeratedForm(t *testing.T) {
	db := &fakeDB{versions: map[string][]*models.PackageVersion{
		"vendor/pkg": {{Name: "vendor/pkg", Version: "1.0.0", ProxyDistURL: "/dist/repo-1/vendor/pkg/1.0.0.zip"}},
	}}
	r := New(db, newFakeKV(), fakeClock{t: time.Unix(6000, 0)}, &fakeJobs{}, Config{PackagistMirroringEnabled: false}, testLogger())

	resp, _, err := r.GetIndex(context.Background(), time.Time{})
	require.NoError(t, err)
	enumerated, ok := resp.(*EnumeratedIndex)
	require.True(t, ok)
	entries := enumerated.Packages["vendor/pkg"]
	require.Len(t, entries, 1)
	dist := entries[0]["dist"].(map[string]any)
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", dist["url"])
}

func TestGetIndex_PackagistMirroringEnabled_ReturnsLazyForm(t *testing.T) {
	r := New(&fakeDB{}, newFakeKV(), fakeClock{t: time.Unix(7000, 0)}, &fakeJobs{}, Config{PackagistMirroringEnabled: true}, testLogger())

	resp, _, err := r.GetIndex(context.Background(), time.Time{})
	require.NoError(t, err)
	_, ok := resp.(*LazyIndex)
	assert.True(t, ok)
}
