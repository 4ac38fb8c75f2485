// Package storagekey builds and parses BlobStore keys for artifacts and
// their side artifacts (README, CHANGELOG). Keys look like
// "private/{repo}/{name}/{version}.zip" or the public equivalent, with
// ".readme.md" / ".changelog.md" suffixes for side artifacts.
package storagekey

import (
	"fmt"
	"strings"
)

// Visibility selects the private/ or public/ top-level prefix.
type Visibility string

const (
	Private Visibility = "private"
	Public  Visibility = "public"
)

// SideKind names a derived artifact stored alongside the zip.
type SideKind string

const (
	None      SideKind = ""
	README    SideKind = "readme"
	CHANGELOG SideKind = "changelog"
)

// NotFoundSentinel is the literal ASCII body stored to negative-cache a
// missing artifact or side artifact so it is not re-derived on every request.
const NotFoundSentinel = "NOT_FOUND"

// Build constructs a storage key for an artifact (side == None) or one of
// its side artifacts.
func Build(vis Visibility, repo, name, version string, side SideKind) string {
	base := fmt.Sprintf("%s/%s/%s/%s", vis, repo, name, version)
	switch side {
	case README:
		return base + ".readme.md"
	case CHANGELOG:
		return base + ".changelog.md"
	default:
		return base + ".zip"
	}
}

// Parsed is the decomposed form of a storage key.
type Parsed struct {
	Visibility Visibility
	Repo       string
	Name       string
	Version    string
	Side       SideKind
}

// Parse decomposes a storage key built by Build. It returns an error if the
// key does not match the expected "{vis}/{repo}/{name}/{version}{suffix}"
// shape. Name may itself contain a "/" (vendor/package form).
func Parse(key string) (Parsed, error) {
	var p Parsed
	suffix := ".zip"
	side := SideKind(None)
	switch {
	case strings.HasSuffix(key, ".readme.md"):
		suffix = ".readme.md"
		side = README
	case strings.HasSuffix(key, ".changelog.md"):
		suffix = ".changelog.md"
		side = CHANGELOG
	case strings.HasSuffix(key, ".zip"):
		suffix = ".zip"
	default:
		return p, fmt.Errorf("storagekey: unrecognized suffix in %q", key)
	}

	trimmed := strings.TrimSuffix(key, suffix)
	parts := strings.Split(trimmed, "/")
	if len(parts) < 4 {
		return p, fmt.Errorf("storagekey: malformed key %q", key)
	}

	vis := Visibility(parts[0])
	if vis != Private && vis != Public {
		return p, fmt.Errorf("storagekey: unknown visibility %q", parts[0])
	}

	repo := parts[1]
	version := parts[len(parts)-1]
	name := strings.Join(parts[2:len(parts)-1], "/")
	if repo == "" || name == "" || version == "" {
		return p, fmt.Errorf("storagekey: empty component in %q", key)
	}

	p = Parsed{Visibility: vis, Repo: repo, Name: name, Version: version, Side: side}
	return p, nil
}
