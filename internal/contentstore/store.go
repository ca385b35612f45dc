// Package contentstore maps a content hash to a file path on disk using a
// hash-prefix directory fan-out. It owns every file beneath its root
// exclusively; the relative path is a deterministic function of the hash,
// so no database lookup is ever needed to locate bytes.
package contentstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/arturkryukov/telegram-ioc-ingestor/internal/hashstream"
	"github.com/arturkryukov/telegram-ioc-ingestor/internal/ingesterr"
)

// Store is a content-addressed file store rooted at a single directory.
type Store struct {
	root string
}

// PutResult describes the outcome of a successful Put.
type PutResult struct {
	Hash           string
	RelativePath   string
	Size           int64
	AlreadyExisted bool
}

// New creates a Store rooted at dir, creating it if it does not exist.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("contentstore: create root %s: %w: %w", dir, err, ingesterr.ErrStorageIO)
	}
	return &Store{root: dir}, nil
}

// relPath returns the fan-out path for a digest: <hash[0:2]>/<hash[2:4]>/<hash>.
// Depth 2 bounds the number of entries in any one directory.
func relPath(hash string) string {
	return filepath.Join(hash[0:2], hash[2:4], hash)
}

// Exists reports whether bytes for hash are already in the store.
func (s *Store) Exists(hash string) bool {
	_, err := os.Stat(filepath.Join(s.root, relPath(hash)))
	return err == nil
}

// FullPath returns the absolute on-disk path for a relative path previously
// returned by Put.
func (s *Store) FullPath(relativePath string) string {
	return filepath.Join(s.root, relativePath)
}

// PutStream consumes r to EOF, streaming it into a temporary file in the
// store's own filesystem while computing its BLAKE2b-256 digest, then
// atomically renames the temp file into its final content-addressed path.
// If a file already exists at that path, the temp file is discarded and
// the existing path is returned instead — this is what makes concurrent
// Puts of identical bytes safe without any locking.
func (s *Store) PutStream(r io.Reader) (PutResult, error) {
	tmp, err := os.CreateTemp(s.root, "put-*.tmp")
	if err != nil {
		return PutResult{}, fmt.Errorf("contentstore: create temp file: %w: %w", err, ingesterr.ErrStorageIO)
	}
	tmpPath := tmp.Name()
	cleanTemp := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	hasher, err := hashstream.New()
	if err != nil {
		cleanTemp()
		return PutResult{}, fmt.Errorf("contentstore: %w", err)
	}

	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		cleanTemp()
		return PutResult{}, fmt.Errorf("contentstore: stream to disk: %w: %w", err, ingesterr.ErrStorageIO)
	}
	if err := tmp.Sync(); err != nil {
		cleanTemp()
		return PutResult{}, fmt.Errorf("contentstore: fsync: %w: %w", err, ingesterr.ErrStorageIO)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("contentstore: close temp file: %w: %w", err, ingesterr.ErrStorageIO)
	}

	hash := hasher.SumHex()
	rel := relPath(hash)
	full := filepath.Join(s.root, rel)

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("contentstore: mkdir fan-out dir: %w: %w", err, ingesterr.ErrStorageIO)
	}

	// Rename would silently overwrite an existing destination with
	// identical content on POSIX, so check first: that is what makes the
	// post-download dedup signal (AlreadyExisted) observable, not just the
	// atomicity of the write itself.
	if s.Exists(hash) {
		os.Remove(tmpPath)
		return PutResult{Hash: hash, RelativePath: rel, Size: size, AlreadyExisted: true}, nil
	}

	if err := os.Rename(tmpPath, full); err != nil {
		// Lost a race against a concurrent Put of the same bytes.
		if os.IsExist(err) || s.Exists(hash) {
			os.Remove(tmpPath)
			return PutResult{Hash: hash, RelativePath: rel, Size: size, AlreadyExisted: true}, nil
		}
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("contentstore: atomic rename: %w: %w", err, ingesterr.ErrStorageIO)
	}

	return PutResult{Hash: hash, RelativePath: rel, Size: size}, nil
}

// PutHardlink accepts bytes the caller already has on disk in the same
// filesystem as the store, avoiding a redundant copy: it hashes the
// existing file, then hardlinks it into the fan-out path. There is no
// copy or rename fallback: if the hardlink fails, the error is returned.
func (s *Store) PutHardlink(existingPath string) (PutResult, error) {
	f, err := os.Open(existingPath)
	if err != nil {
		return PutResult{}, fmt.Errorf("contentstore: open source for hardlink: %w: %w", err, ingesterr.ErrStorageIO)
	}
	hash, err := hashstream.Sum(f)
	closeErr := f.Close()
	if err != nil {
		return PutResult{}, fmt.Errorf("contentstore: hash source: %w: %w", err, ingesterr.ErrStorageIO)
	}
	if closeErr != nil {
		return PutResult{}, fmt.Errorf("contentstore: close source: %w: %w", closeErr, ingesterr.ErrStorageIO)
	}

	rel := relPath(hash)
	full := filepath.Join(s.root, rel)
	if s.Exists(hash) {
		info, statErr := os.Stat(existingPath)
		if statErr == nil {
			return PutResult{Hash: hash, RelativePath: rel, Size: info.Size()}, nil
		}
		return PutResult{Hash: hash, RelativePath: rel}, nil
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return PutResult{}, fmt.Errorf("contentstore: mkdir fan-out dir: %w: %w", err, ingesterr.ErrStorageIO)
	}

	// Hardlink via a unique staging name first, then rename, so a failed
	// or racing link attempt never leaves a partially-visible final path.
	staging := filepath.Join(s.root, "link-"+uuid.New().String()+".tmp")
	if err := os.Link(existingPath, staging); err != nil {
		return PutResult{}, fmt.Errorf("contentstore: hardlink: %w: %w", err, ingesterr.ErrStorageIO)
	}
	if err := os.Rename(staging, full); err != nil {
		os.Remove(staging)
		if !s.Exists(hash) {
			return PutResult{}, fmt.Errorf("contentstore: atomic rename of hardlink: %w: %w", err, ingesterr.ErrStorageIO)
		}
	}

	info, err := os.Stat(full)
	if err != nil {
		return PutResult{}, fmt.Errorf("contentstore: stat final: %w: %w", err, ingesterr.ErrStorageIO)
	}
	return PutResult{Hash: hash, RelativePath: rel, Size: info.Size()}, nil
}

// Open opens a previously stored file for reading by its relative path.
func (s *Store) Open(relativePath string) (*os.File, error) {
	f, err := os.Open(filepath.Join(s.root, relativePath))
	if err != nil {
		return nil, fmt.Errorf("contentstore: open %s: %w: %w", relativePath, err, ingesterr.ErrStorageIO)
	}
	return f, nil
}
