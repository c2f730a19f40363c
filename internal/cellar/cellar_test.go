package cellar

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKegPath(t *testing.T) {
	c := New("/prefix/Cellar")
	if got := c.KegPath("jq", "1.7.1"); got != "/prefix/Cellar/jq/1.7.1" {
		t.Errorf("KegPath = %q", got)
	}
}

func TestMaterializeRenamesStoreEntry(t *testing.T) {
	root := t.TempDir()
	storeEntry := filepath.Join(root, "store", "sha")
	if err := os.MkdirAll(filepath.Join(storeEntry, "jq", "1.7.1", "bin"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(storeEntry, "jq", "1.7.1", "bin", "jq"), []byte("bin"), 0755); err != nil {
		t.Fatal(err)
	}

	c := New(filepath.Join(root, "Cellar"))
	keg, err := c.Materialize("jq", "1.7.1", storeEntry)
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if _, err := os.Stat(filepath.Join(keg, "bin", "jq")); err != nil {
		t.Fatalf("expected materialized file: %v", err)
	}
}

func TestMaterializeIdempotent(t *testing.T) {
	root := t.TempDir()
	storeEntry := filepath.Join(root, "store", "sha")
	os.MkdirAll(filepath.Join(storeEntry, "jq", "1.7.1"), 0755)

	c := New(filepath.Join(root, "Cellar"))
	keg1, err := c.Materialize("jq", "1.7.1", storeEntry)
	if err != nil {
		t.Fatal(err)
	}
	keg2, err := c.Materialize("jq", "1.7.1", storeEntry)
	if err != nil {
		t.Fatal(err)
	}
	if keg1 != keg2 {
		t.Errorf("keg1 = %q, keg2 = %q", keg1, keg2)
	}
}

func TestRemoveKeg(t *testing.T) {
	root := t.TempDir()
	c := New(filepath.Join(root, "Cellar"))
	keg := c.KegPath("jq", "1.7.1")
	os.MkdirAll(keg, 0755)
	if err := c.RemoveKeg("jq", "1.7.1"); err != nil {
		t.Fatalf("RemoveKeg: %v", err)
	}
	if _, err := os.Stat(keg); !os.IsNotExist(err) {
		t.Error("expected keg removed")
	}
}
