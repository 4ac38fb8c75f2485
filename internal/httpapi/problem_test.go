package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkgmirror/core/internal/apierr"
	"github.com/pkgmirror/core/internal/artifact"
	"github.com/pkgmirror/core/internal/metadata"
	"github.com/pkgmirror/core/internal/sync"
)

func TestClassify_PassesThroughTypedApiErr(t *testing.T) {
	in := apierr.Forbidden("nope")
	out := classify(in)
	assert.Same(t, in, out)
}

func TestClassify_DomainSentinelsMapToExpectedKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind apierr.Kind
	}{
		{"metadata not found", metadata.ErrNotFound, apierr.KindNotFound},
		{"repository not found", sync.ErrRepositoryNotFound, apierr.KindNotFound},
		{"artifact not found", artifact.ErrNotFound, apierr.KindNotFound},
		{"artifact unauthorized", artifact.ErrUnauthorized, apierr.KindUpstreamAuth},
		{"artifact upstream", artifact.ErrUpstream, apierr.KindUpstreamBadGW},
		{"unknown error", errors.New("boom"), apierr.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			assert.Equal(t, tc.kind, got.Kind)
		})
	}
}

func TestClassify_ConnectionErrorsMapToUpstreamUnavailable(t *testing.T) {
	dnsErr := &net.DNSError{Err: "no such host", Name: "example.invalid"}
	wrapped := &url.Error{Op: "Get", URL: "https://example.invalid", Err: dnsErr}
	got := classify(wrapped)
	assert.Equal(t, apierr.KindUpstreamDown, got.Kind)
	assert.Equal(t, http.StatusServiceUnavailable, got.Status)
}

func TestClassify_TimeoutMapsToUpstreamTimeout(t *testing.T) {
	require.True(t, artifact.IsTimeout(context.DeadlineExceeded))
	got := classify(context.DeadlineExceeded)
	assert.Equal(t, apierr.KindUpstreamTimeout, got.Kind)
}

func TestRenderError_WritesStructuredJSONBody(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/pkg.json", nil)
	renderError(w, r, apierr.NotFound("package not found"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"code":"NOT_FOUND"`)
}

func TestRenderError_401SetsWWWAuthenticate(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/tokens", nil)
	renderError(w, r, apierr.Unauthorized("authentication required"))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, `Basic realm="pkgmirror"`, w.Header().Get("WWW-Authenticate"))
}

func TestRenderError_429SetsRetryAfter(t *testing.T) {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/p2/vendor/pkg.json", nil)
	renderError(w, r, apierr.RateLimited("slow down"))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "3600", w.Header().Get("Retry-After"))
}
