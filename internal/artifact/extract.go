package artifact

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"path"
	"strings"

	"github.com/pkgmirror/core/internal/storagekey"
)

// Central-directory basename candidates, preferred form first (spec.md
// §4.6). archive/zip is the standard-library choice here because no example
// repository's stack carries a higher-level zip abstraction — central
// directory parsing is a stdlib-native concern (see DESIGN.md).
var (
	readmeNames         = []string{"README.md", "readme.md", "README.MD", "Readme.md"}
	readmeFallbackNames = []string{"README.mdown", "readme.mdown", "README.MDOWN", "Readme.mdown"}

	changelogNames         = []string{"CHANGELOG.md", "changelog.md", "CHANGELOG.MD", "Changelog.md"}
	changelogFallbackNames = []string{"CHANGELOG.mdown", "changelog.mdown", "CHANGELOG.MDOWN", "Changelog.mdown"}
)

func newZipReader(data []byte) (*zip.Reader, error) {
	return zip.NewReader(bytes.NewReader(data), int64(len(data)))
}

// extractSideArtifacts parses data's ZIP central directory and stores the
// README and CHANGELOG (or a NOT_FOUND sentinel, on a miss) at their side-
// artifact keys. Failures are logged, not propagated: the caller already
// has the artifact bytes it needed.
func (s *Server) extractSideArtifacts(ctx context.Context, vis storagekey.Visibility, repoID, name, version string, data []byte) {
	r, err := newZipReader(data)
	if err != nil {
		s.logger.Warn("artifact zip central directory parse failed", "name", name, "version", version, "error", err)
		return
	}
	s.extractOne(ctx, r, vis, repoID, name, version, storagekey.README, readmeNames, readmeFallbackNames)
	s.extractOne(ctx, r, vis, repoID, name, version, storagekey.CHANGELOG, changelogNames, changelogFallbackNames)
}

func (s *Server) extractOne(ctx context.Context, r *zip.Reader, vis storagekey.Visibility, repoID, name, version string, side storagekey.SideKind, preferred, fallback []string) {
	key := storagekey.Build(vis, repoID, name, version, side)

	f := findFirstMatch(r.File, preferred, fallback)
	if f == nil {
		if err := s.blob.Put(ctx, key, strings.NewReader(storagekey.NotFoundSentinel), int64(len(storagekey.NotFoundSentinel))); err != nil {
			s.logger.Warn("side artifact negative-cache write failed", "key", key, "error", err)
		}
		return
	}

	rc, err := f.Open()
	if err != nil {
		s.logger.Warn("side artifact open failed", "key", key, "error", err)
		return
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		s.logger.Warn("side artifact read failed", "key", key, "error", err)
		return
	}

	if err := s.blob.Put(ctx, key, bytes.NewReader(content), int64(len(content))); err != nil {
		s.logger.Warn("side artifact write failed", "key", key, "error", err)
	}
}

// findFirstMatch returns the first zip entry (by central-directory order)
// whose base name exactly matches one of the preferred names; only if none
// does it fall back to the .mdown-equivalent names.
func findFirstMatch(files []*zip.File, preferred, fallback []string) *zip.File {
	if f := matchAny(files, preferred); f != nil {
		return f
	}
	return matchAny(files, fallback)
}

func matchAny(files []*zip.File, names []string) *zip.File {
	for _, want := range names {
		for _, f := range files {
			if path.Base(f.Name) == want {
				return f
			}
		}
	}
	return nil
}
