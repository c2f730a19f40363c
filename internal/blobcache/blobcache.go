// Package blobcache manages the content-addressed cache of downloaded
// bottle archives under cache/blobs, keyed by SHA-256 digest.
package blobcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	zberrors "github.com/zb-pm/zb/internal/errors"
	"github.com/zb-pm/zb/internal/logger"
)

// EventKind distinguishes the download lifecycle events emitted on a
// Cache's event channel.
type EventKind int

const (
	DownloadStarted EventKind = iota
	DownloadProgress
	DownloadCompleted
)

// Event reports download progress for a single bottle fetch.
type Event struct {
	Kind        EventKind
	Name        string
	Downloaded  int64
	TotalBytes  int64
	HasTotal    bool
}

// Opener fetches the byte stream for a URL; satisfied by
// (*api.Client).OpenBottle.
type Opener interface {
	OpenBottle(url string) (io.ReadCloser, error)
}

// Cache is the blob download cache rooted at dir (config.Config.BlobsDir()).
type Cache struct {
	dir    string
	opener Opener
}

// New returns a Cache rooted at dir, fetching over the network via opener.
func New(dir string, opener Opener) *Cache {
	return &Cache{dir: dir, opener: opener}
}

func (c *Cache) path(sha256Hex string) string {
	return filepath.Join(c.dir, sha256Hex+".tar.gz")
}

func (c *Cache) partPath(sha256Hex string) string {
	return c.path(sha256Hex) + ".part"
}

// Ensure returns the local path to the blob for sha256Hex, downloading
// url into it if not already present and verified. events may be nil.
func (c *Cache) Ensure(name, url, sha256Hex string, events chan<- Event) (string, error) {
	final := c.path(sha256Hex)
	if digestMatches(final, sha256Hex) {
		return final, nil
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", zberrors.NewStoreCorruption("create blobs directory", err)
	}

	body, err := c.opener.OpenBottle(url)
	if err != nil {
		return "", zberrors.NewNetworkFailure(err.Error(), err)
	}
	defer body.Close()

	emit(events, Event{Kind: DownloadStarted, Name: name})

	part := c.partPath(sha256Hex)
	f, err := os.Create(part)
	if err != nil {
		return "", zberrors.NewStoreCorruption("create partial blob file", err)
	}

	h := sha256.New()
	tee := io.TeeReader(body, h)
	var downloaded int64
	buf := make([]byte, 256*1024)
	for {
		n, rerr := tee.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				f.Close()
				os.Remove(part)
				return "", zberrors.NewStoreCorruption("write partial blob file", werr)
			}
			downloaded += int64(n)
			emit(events, Event{Kind: DownloadProgress, Name: name, Downloaded: downloaded})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			f.Close()
			os.Remove(part)
			return "", zberrors.NewNetworkFailure(rerr.Error(), rerr)
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(part)
		return "", zberrors.NewStoreCorruption("close partial blob file", err)
	}

	actual := hex.EncodeToString(h.Sum(nil))
	if actual != sha256Hex {
		os.Remove(part)
		return "", zberrors.NewDigestMismatch(name, sha256Hex, actual)
	}

	if err := os.Rename(part, final); err != nil {
		os.Remove(part)
		return "", zberrors.NewStoreCorruption("rename blob into place", err)
	}

	emit(events, Event{Kind: DownloadCompleted, Name: name, TotalBytes: downloaded, HasTotal: true})
	logger.Debug("cached blob %s for %s", sha256Hex, name)
	return final, nil
}

func emit(events chan<- Event, e Event) {
	if events != nil {
		events <- e
	}
}

func digestMatches(path, expected string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == expected
}

// BlobInfo is one entry returned by ListBlobs.
type BlobInfo struct {
	SHA256 string
	MTime  time.Time
	Size   int64
}

// ListBlobs returns (sha256, mtime) pairs for every cached blob.
func (c *Cache) ListBlobs() ([]BlobInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list blobs: %w", err)
	}
	var blobs []BlobInfo
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".gz" {
			continue
		}
		sha := trimBottleExt(name)
		if sha == "" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		blobs = append(blobs, BlobInfo{SHA256: sha, MTime: info.ModTime(), Size: info.Size()})
	}
	return blobs, nil
}

func trimBottleExt(name string) string {
	const suffix = ".tar.gz"
	if len(name) <= len(suffix) || name[len(name)-len(suffix):] != suffix {
		return ""
	}
	return name[:len(name)-len(suffix)]
}

// RemoveBlob deletes the cached blob for sha256Hex, if present.
func (c *Cache) RemoveBlob(sha256Hex string) error {
	err := os.Remove(c.path(sha256Hex))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove blob %s: %w", sha256Hex, err)
	}
	return nil
}

// RemoveBlobsExcept deletes every cached blob whose digest is not in
// inUse.
func (c *Cache) RemoveBlobsExcept(inUse map[string]bool) error {
	blobs, err := c.ListBlobs()
	if err != nil {
		return err
	}
	for _, b := range blobs {
		if inUse[b.SHA256] {
			continue
		}
		if err := c.RemoveBlob(b.SHA256); err != nil {
			return err
		}
	}
	return nil
}

// CleanupTempFiles removes .part files older than maxAge.
func (c *Cache) CleanupTempFiles(maxAge time.Duration) error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("cleanup temp files: %w", err)
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) != ".part" {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			return fmt.Errorf("remove stale part file %s: %w", name, err)
		}
	}
	return nil
}
