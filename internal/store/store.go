// Package store manages the content-addressed extraction store under
// <root>/store: one directory per bottle digest, holding the extracted
// archive contents.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/maxmcd/reptar"

	zberrors "github.com/zb-pm/zb/internal/errors"
	"github.com/zb-pm/zb/internal/logger"
)

// Store is the extraction store rooted at dir.
type Store struct {
	dir      string
	locksDir string
}

// New returns a Store rooted at dir, using locksDir for per-entry
// exclusive extraction locks.
func New(dir, locksDir string) *Store {
	return &Store{dir: dir, locksDir: locksDir}
}

func (s *Store) entryPath(sha256Hex string) string {
	return filepath.Join(s.dir, sha256Hex)
}

func (s *Store) tempPath(sha256Hex string) string {
	return filepath.Join(s.dir, sha256Hex+".tmp")
}

func (s *Store) lockPath(sha256Hex string) string {
	return filepath.Join(s.locksDir, "store-"+sha256Hex+".lock")
}

// EnsureEntry idempotently extracts blobPath (a gzipped tar) into
// store/<sha256>/ and returns that path. If the entry already exists it
// is returned immediately without re-extracting. Concurrent callers for
// the same sha256 serialize on a per-entry file lock; the loser observes
// the finished entry rather than re-extracting.
func (s *Store) EnsureEntry(sha256Hex, blobPath string) (string, error) {
	final := s.entryPath(sha256Hex)
	if dirExists(final) {
		return final, nil
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return "", zberrors.NewStoreCorruption("create store directory", err)
	}
	if err := os.MkdirAll(s.locksDir, 0755); err != nil {
		return "", zberrors.NewStoreCorruption("create locks directory", err)
	}

	lockPath := s.lockPath(sha256Hex)
	lock := flock.New(lockPath)
	if err := lock.Lock(); err != nil {
		return "", zberrors.NewStoreCorruption("acquire store entry lock", err)
	}
	defer lock.Unlock()

	if dirExists(final) {
		return final, nil
	}

	temp := s.tempPath(sha256Hex)
	os.RemoveAll(temp)

	f, err := os.Open(blobPath)
	if err != nil {
		return "", zberrors.NewStoreCorruption("open blob for extraction", err)
	}
	defer f.Close()

	if err := reptar.GzipUnarchive(f, temp); err != nil {
		os.RemoveAll(temp)
		return "", zberrors.NewStoreCorruption(fmt.Sprintf("extract %s", sha256Hex), err)
	}

	if err := os.Rename(temp, final); err != nil {
		os.RemoveAll(temp)
		return "", zberrors.NewStoreCorruption("rename extracted entry into place", err)
	}

	logger.Debug("extracted store entry %s", sha256Hex)
	return final, nil
}

// RemoveEntry deletes store/<sha256>/ if present.
func (s *Store) RemoveEntry(sha256Hex string) error {
	if err := os.RemoveAll(s.entryPath(sha256Hex)); err != nil {
		return fmt.Errorf("remove store entry %s: %w", sha256Hex, err)
	}
	return nil
}

// HasEntry reports whether store/<sha256>/ exists.
func (s *Store) HasEntry(sha256Hex string) bool {
	return dirExists(s.entryPath(sha256Hex))
}

// EntryPath returns the path store/<sha256>/ would occupy, without
// checking existence.
func (s *Store) EntryPath(sha256Hex string) string {
	return s.entryPath(sha256Hex)
}

// CleanupTempDirs removes leftover *.tmp directories from interrupted
// extractions.
func (s *Store) CleanupTempDirs() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cleanup temp dirs: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() || filepath.Ext(e.Name()) != ".tmp" {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove stale temp dir %s: %w", e.Name(), err)
		}
	}
	return nil
}

// CleanupStaleLocks removes per-entry lock files whose owning process no
// longer holds (or ever holds) an active lock. A lock file is stale when
// it can be acquired uncontended; an in-use lock fails TryLock and is
// left alone.
func (s *Store) CleanupStaleLocks() error {
	entries, err := os.ReadDir(s.locksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cleanup stale locks: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".lock" {
			continue
		}
		path := filepath.Join(s.locksDir, e.Name())
		lock := flock.New(path)
		ok, err := lock.TryLock()
		if err != nil || !ok {
			continue
		}
		lock.Unlock()
		os.Remove(path)
	}
	return nil
}

// ListEntries returns (sha256, mtime) pairs for every extracted entry,
// for GC eligibility checks.
func (s *Store) ListEntries() ([]Entry, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list entries: %w", err)
	}
	var out []Entry
	for _, e := range entries {
		if !e.IsDir() || filepath.Ext(e.Name()) == ".tmp" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{SHA256: e.Name(), MTime: info.ModTime()})
	}
	return out, nil
}

// Entry is one (sha256, mtime) pair from ListEntries.
type Entry struct {
	SHA256 string
	MTime  time.Time
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
