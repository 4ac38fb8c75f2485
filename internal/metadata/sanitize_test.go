package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeEntry_ListedFieldGetsEmptyCollection(t *testing.T) {
	entry := map[string]any{
		"require": "__unset",
		"license": "__unset",
	}
	sanitizeEntry(entry)
	assert.Equal(t, map[string]any{}, entry["require"])
	assert.Equal(t, []any{}, entry["license"])
}

func TestSanitizeEntry_UnlistedFieldIsDropped(t *testing.T) {
	entry := map[string]any{"homepage": "__unset"}
	sanitizeEntry(entry)
	_, ok := entry["homepage"]
	assert.False(t, ok)
}

func TestSanitizeEntry_InvalidSourceRemoved(t *testing.T) {
	cases := []any{"__unset", nil, "https://example.com"}
	for _, v := range cases {
		entry := map[string]any{"source": v}
		sanitizeEntry(entry)
		_, ok := entry["source"]
		assert.False(t, ok)
	}
}

func TestSanitizeEntry_ValidSourceKept(t *testing.T) {
	entry := map[string]any{"source": map[string]any{"type": "git", "url": "https://example.com"}}
	sanitizeEntry(entry)
	_, ok := entry["source"]
	assert.True(t, ok)
}
