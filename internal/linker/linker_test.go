package linker

import (
	"os"
	"path/filepath"
	"testing"

	zberrors "github.com/zb-pm/zb/internal/errors"
)

func setupKeg(t *testing.T, root string) string {
	t.Helper()
	keg := filepath.Join(root, "Cellar", "jq", "1.7.1")
	if err := os.MkdirAll(filepath.Join(keg, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(keg, "bin", "jq"), []byte("bin"), 0755); err != nil {
		t.Fatal(err)
	}
	return keg
}

func TestLinkAndUnlinkKeg(t *testing.T) {
	root := t.TempDir()
	keg := setupKeg(t, root)
	prefix := filepath.Join(root, "prefix")

	l := New(prefix)
	linked, err := l.LinkKeg(keg, false)
	if err != nil {
		t.Fatalf("LinkKeg: %v", err)
	}
	if len(linked) != 1 {
		t.Fatalf("linked = %+v, want 1 entry", linked)
	}

	linkPath := filepath.Join(prefix, "bin", "jq")
	target, err := os.Readlink(linkPath)
	if err != nil {
		t.Fatalf("expected symlink at %s: %v", linkPath, err)
	}
	if target != filepath.Join(keg, "bin", "jq") {
		t.Errorf("target = %q", target)
	}

	linkedAgain, err := l.IsLinked(keg)
	if err != nil || !linkedAgain {
		t.Fatalf("IsLinked = %v, %v", linkedAgain, err)
	}

	removed, err := l.UnlinkKeg(keg)
	if err != nil {
		t.Fatalf("UnlinkKeg: %v", err)
	}
	if len(removed) != 1 {
		t.Fatalf("removed = %+v, want 1 entry", removed)
	}
	if _, err := os.Lstat(linkPath); !os.IsNotExist(err) {
		t.Error("expected link removed")
	}
}

func TestLinkKegConflict(t *testing.T) {
	root := t.TempDir()
	keg := setupKeg(t, root)
	prefix := filepath.Join(root, "prefix")

	if err := os.MkdirAll(filepath.Join(prefix, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(prefix, "bin", "jq"), []byte("not ours"), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(prefix)
	_, err := l.LinkKeg(keg, false)
	if err == nil {
		t.Fatal("expected LinkConflict")
	}
	if !zberrors.Is(err, zberrors.LinkConflict) {
		t.Errorf("expected LinkConflict, got %v", err)
	}
}

func TestLinkKegOverwrite(t *testing.T) {
	root := t.TempDir()
	keg := setupKeg(t, root)
	prefix := filepath.Join(root, "prefix")

	if err := os.MkdirAll(filepath.Join(prefix, "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(prefix, "bin", "jq"), []byte("not ours"), 0644); err != nil {
		t.Fatal(err)
	}

	l := New(prefix)
	linked, err := l.LinkKeg(keg, true)
	if err != nil {
		t.Fatalf("LinkKeg with overwrite: %v", err)
	}
	if len(linked) != 1 {
		t.Fatalf("linked = %+v", linked)
	}
}
