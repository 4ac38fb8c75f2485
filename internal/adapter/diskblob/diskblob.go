// Package diskblob implements ports.BlobStore as a plain filesystem tree
// rooted at a configured directory, keyed by internal/storagekey paths
// (STORAGE_DRIVER=disk). Object-store SDKs (S3/minio) are intentionally
// not wired here: spec.md places that surface outside this core's scope.
package diskblob

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgmirror/core/internal/ports"
)

// Store roots all keys under Dir, mapping each storage key's "/"-separated
// segments directly onto nested directories.
type Store struct {
	Dir string
}

// New validates Dir exists (creating it if absent) and returns a Store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{Dir: dir}, nil
}

var _ ports.BlobStore = (*Store)(nil)

// path rejects any key that could escape Dir via "..".
func (s *Store) path(key string) (string, error) {
	if strings.Contains(key, "..") {
		return "", os.ErrInvalid
	}
	return filepath.Join(s.Dir, filepath.FromSlash(key)), nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, ports.ErrNotFound
		}
		return nil, 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, info.Size(), nil
}

func (s *Store) Put(_ context.Context, key string, body io.Reader, _ int64) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, p)
}

func (s *Store) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
