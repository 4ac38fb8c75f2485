package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRewriteDist_KeepsUpstreamReference(t *testing.T) {
	entry := map[string]any{"dist": map[string]any{"type": "zip", "reference": "abc123"}}
	rewriteDist(entry, "vendor/pkg", "1.0.0")
	dist := entry["dist"].(map[string]any)
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", dist["url"])
	assert.Equal(t, "abc123", dist["reference"])
}

func TestRewriteDist_SynthesizesReferenceWhenAbsent(t *testing.T) {
	entry := map[string]any{}
	rewriteDist(entry, "vendor/pkg", "1.0.0")
	dist := entry["dist"].(map[string]any)
	assert.Equal(t, "vendor-pkg-1.0.0", dist["reference"])
	assert.Equal(t, "zip", dist["type"])
}

func TestNormalizeIndexDistURL(t *testing.T) {
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", normalizeIndexDistURL("/dist/repo-1/vendor/pkg/1.0.0.zip"))
	assert.Equal(t, "/dist/m/vendor/pkg/1.0.0.zip", normalizeIndexDistURL("/dist/m/vendor/pkg/1.0.0.zip"))
	assert.Equal(t, "not-a-dist-url", normalizeIndexDistURL("not-a-dist-url"))
}
