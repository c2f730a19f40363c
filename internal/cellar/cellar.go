// Package cellar materializes store entries into the prefix's Cellar
// directory tree, one keg per (name, version).
package cellar

import (
	"fmt"
	"os"
	"path/filepath"

	zberrors "github.com/zb-pm/zb/internal/errors"
)

// Cellar manages kegs under root/Cellar.
type Cellar struct {
	dir string
}

// New returns a Cellar rooted at dir (config.Config.HomebrewCellar).
func New(dir string) *Cellar {
	return &Cellar{dir: dir}
}

// KegPath computes prefix/Cellar/<name>/<version>.
func (c *Cellar) KegPath(name, version string) string {
	return filepath.Join(c.dir, name, version)
}

// Materialize produces a keg at KegPath(name, version) from the given
// store entry. The store entry's root already contains <name>/<version>/…,
// so this renames that inner directory into place; when store and cellar
// live on different filesystems it falls back to a recursive copy.
func (c *Cellar) Materialize(name, version, storeEntryPath string) (string, error) {
	keg := c.KegPath(name, version)
	if _, err := os.Stat(keg); err == nil {
		return keg, nil
	}

	src := filepath.Join(storeEntryPath, name, version)
	if _, err := os.Stat(src); err != nil {
		src = storeEntryPath
	}

	if err := os.MkdirAll(filepath.Dir(keg), 0755); err != nil {
		return "", zberrors.NewStoreCorruption("create cellar directory", err)
	}

	if err := os.Rename(src, keg); err != nil {
		if err := copyTree(src, keg); err != nil {
			return "", zberrors.NewStoreCorruption(fmt.Sprintf("materialize keg %s/%s", name, version), err)
		}
	}
	return keg, nil
}

// RemoveKeg deletes prefix/Cellar/<name>/<version>.
func (c *Cellar) RemoveKeg(name, version string) error {
	if err := os.RemoveAll(c.KegPath(name, version)); err != nil {
		return fmt.Errorf("remove keg %s/%s: %w", name, version, err)
	}
	return nil
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, info.Mode())
		}
		if info.Mode()&os.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
}
