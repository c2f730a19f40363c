package store

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	zberrors "github.com/zb-pm/zb/internal/errors"
)

func writeTestBottle(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	content := []byte("#!/bin/sh\necho hi\n")
	hdr := &tar.Header{
		Name: "jq/1.7.1/bin/jq",
		Mode: 0755,
		Size: int64(len(content)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestEnsureEntryExtractsAndIsIdempotent(t *testing.T) {
	root := t.TempDir()
	storeDir := filepath.Join(root, "store")
	locksDir := filepath.Join(root, "locks")
	blob := filepath.Join(root, "bottle.tar.gz")
	writeTestBottle(t, blob)

	s := New(storeDir, locksDir)
	const sha = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"

	path, err := s.EnsureEntry(sha, blob)
	if err != nil {
		t.Fatalf("EnsureEntry: %v", err)
	}
	if _, err := os.Stat(filepath.Join(path, "jq", "1.7.1", "bin", "jq")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}

	path2, err := s.EnsureEntry(sha, blob)
	if err != nil {
		t.Fatalf("second EnsureEntry: %v", err)
	}
	if path2 != path {
		t.Errorf("path2 = %q, want %q", path2, path)
	}
	if !s.HasEntry(sha) {
		t.Error("expected HasEntry true")
	}
}

func TestEnsureEntryCorruptBlob(t *testing.T) {
	root := t.TempDir()
	blob := filepath.Join(root, "bad.tar.gz")
	if err := os.WriteFile(blob, []byte("not a gzip file"), 0644); err != nil {
		t.Fatal(err)
	}

	s := New(filepath.Join(root, "store"), filepath.Join(root, "locks"))
	const sha = "badbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadbadba"
	_, err := s.EnsureEntry(sha, blob)
	if err == nil {
		t.Fatal("expected error for corrupt blob")
	}
	if !zberrors.Is(err, zberrors.StoreCorruption) {
		t.Errorf("expected StoreCorruption, got %v", err)
	}
	if s.HasEntry(sha) {
		t.Error("corrupt entry should not be left behind")
	}
	if _, statErr := os.Stat(filepath.Join(root, "store", sha+".tmp")); !os.IsNotExist(statErr) {
		t.Error("expected temp dir cleaned up")
	}
}

func TestRemoveEntry(t *testing.T) {
	root := t.TempDir()
	blob := filepath.Join(root, "bottle.tar.gz")
	writeTestBottle(t, blob)

	s := New(filepath.Join(root, "store"), filepath.Join(root, "locks"))
	const sha = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	if _, err := s.EnsureEntry(sha, blob); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveEntry(sha); err != nil {
		t.Fatalf("RemoveEntry: %v", err)
	}
	if s.HasEntry(sha) {
		t.Error("expected entry removed")
	}
}

func TestListEntries(t *testing.T) {
	root := t.TempDir()
	blob := filepath.Join(root, "bottle.tar.gz")
	writeTestBottle(t, blob)

	s := New(filepath.Join(root, "store"), filepath.Join(root, "locks"))
	const sha = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcd"
	if _, err := s.EnsureEntry(sha, blob); err != nil {
		t.Fatal(err)
	}
	entries, err := s.ListEntries()
	if err != nil {
		t.Fatalf("ListEntries: %v", err)
	}
	if len(entries) != 1 || entries[0].SHA256 != sha {
		t.Errorf("entries = %+v", entries)
	}
}
