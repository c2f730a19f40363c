// Package linker projects a keg's files into the prefix tree (bin, sbin,
// lib, include, share) as symlinks.
package linker

import (
	"os"
	"path/filepath"
	"strings"

	zberrors "github.com/zb-pm/zb/internal/errors"
)

// standardSubdirs are the keg subdirectories linked into the prefix.
var standardSubdirs = []string{"bin", "sbin", "lib", "include", "share"}

// LinkedFile is one symlink created or removed by the linker.
type LinkedFile struct {
	LinkPath   string
	TargetPath string
}

// Linker projects kegs into prefixDir.
type Linker struct {
	prefixDir string
}

// New returns a Linker that links into prefixDir.
func New(prefixDir string) *Linker {
	return &Linker{prefixDir: prefixDir}
}

// LinkKeg walks the standard subdirectories of kegPath and symlinks every
// regular file into the corresponding prefix subdirectory. If overwrite
// is false and a target path already exists and is not a symlink this
// call owns, it fails with LinkConflict and leaves previously created
// links from this call in place.
func (l *Linker) LinkKeg(kegPath string, overwrite bool) ([]LinkedFile, error) {
	var linked []LinkedFile

	for _, sub := range standardSubdirs {
		srcDir := filepath.Join(kegPath, sub)
		entries, err := os.ReadDir(srcDir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return linked, zberrors.NewStoreCorruption("read keg subdirectory "+srcDir, err)
		}

		dstDir := filepath.Join(l.prefixDir, sub)
		if err := os.MkdirAll(dstDir, 0755); err != nil {
			return linked, zberrors.NewStoreCorruption("create prefix subdirectory "+dstDir, err)
		}

		files, err := collectFiles(srcDir, entries)
		if err != nil {
			return linked, err
		}

		for _, rel := range files {
			src := filepath.Join(srcDir, rel)
			dst := filepath.Join(dstDir, rel)

			if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
				return linked, zberrors.NewStoreCorruption("create link parent directory", err)
			}

			if info, err := os.Lstat(dst); err == nil {
				isOurs := info.Mode()&os.ModeSymlink != 0 && isSymlinkTo(dst, src)
				if !isOurs {
					if !overwrite {
						return linked, zberrors.NewLinkConflict(dst)
					}
					if err := os.Remove(dst); err != nil {
						return linked, zberrors.NewStoreCorruption("remove conflicting link", err)
					}
				} else {
					continue
				}
			}

			if err := os.Symlink(src, dst); err != nil {
				return linked, zberrors.NewStoreCorruption("create symlink "+dst, err)
			}
			linked = append(linked, LinkedFile{LinkPath: dst, TargetPath: src})
		}
	}

	return linked, nil
}

// UnlinkKeg removes every symlink under the standard prefix subdirectories
// whose target points inside kegPath.
func (l *Linker) UnlinkKeg(kegPath string) ([]LinkedFile, error) {
	var removed []LinkedFile
	absKeg, err := filepath.Abs(kegPath)
	if err != nil {
		return nil, err
	}

	for _, sub := range standardSubdirs {
		dstDir := filepath.Join(l.prefixDir, sub)
		err := filepath.Walk(dstDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.Mode()&os.ModeSymlink == 0 {
				return nil
			}
			target, err := os.Readlink(path)
			if err != nil {
				return nil
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}
			if !withinDir(target, absKeg) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				return err
			}
			removed = append(removed, LinkedFile{LinkPath: path, TargetPath: target})
			return nil
		})
		if err != nil {
			return removed, zberrors.NewStoreCorruption("walk prefix subdirectory "+dstDir, err)
		}
	}
	return removed, nil
}

// IsLinked reports whether kegPath has at least one live symlink pointing
// into it from the prefix.
func (l *Linker) IsLinked(kegPath string) (bool, error) {
	absKeg, err := filepath.Abs(kegPath)
	if err != nil {
		return false, err
	}
	found := false
	for _, sub := range standardSubdirs {
		dstDir := filepath.Join(l.prefixDir, sub)
		err := filepath.Walk(dstDir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if found || info.Mode()&os.ModeSymlink == 0 {
				return nil
			}
			target, err := os.Readlink(path)
			if err != nil {
				return nil
			}
			if !filepath.IsAbs(target) {
				target = filepath.Join(filepath.Dir(path), target)
			}
			if withinDir(target, absKeg) {
				found = true
			}
			return nil
		})
		if err != nil {
			return false, err
		}
		if found {
			return true, nil
		}
	}
	return false, nil
}

func collectFiles(root string, entries []os.DirEntry) ([]string, error) {
	var out []string
	for _, e := range entries {
		path := filepath.Join(root, e.Name())
		if e.IsDir() {
			sub, err := os.ReadDir(path)
			if err != nil {
				return nil, zberrors.NewStoreCorruption("read directory "+path, err)
			}
			nested, err := collectFiles(path, sub)
			if err != nil {
				return nil, err
			}
			for _, n := range nested {
				out = append(out, filepath.Join(e.Name(), n))
			}
			continue
		}
		out = append(out, e.Name())
	}
	return out, nil
}

func isSymlinkTo(linkPath, target string) bool {
	actual, err := os.Readlink(linkPath)
	if err != nil {
		return false
	}
	return actual == target
}

func withinDir(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
