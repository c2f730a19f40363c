package installer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/zb-pm/zb/internal/api"
	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/db"
	"github.com/zb-pm/zb/internal/tap"
)

// buildBottleArchive produces a gzipped tar whose entries are the given
// (relative path -> content) pairs, returning its bytes and sha256 digest.
func buildBottleArchive(t *testing.T, files map[string]string) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0755, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("write tar header: %v", err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("write tar content: %v", err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("close tar writer: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("close gzip writer: %v", err)
	}
	data := buf.Bytes()
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:])
}

// testFormula is a fabricated upstream formula record, serialized to the
// per-formula JSON endpoint the test server exposes.
type testFormula struct {
	name    string
	version string
	deps    []string
	archive []byte
	sha256  string
}

func (f testFormula) json(srvURL string) []byte {
	doc := map[string]any{
		"name":         f.name,
		"full_name":    f.name,
		"versions":     map[string]string{"stable": f.version},
		"dependencies": f.deps,
		"bottle": map[string]any{
			"stable": map[string]any{
				"files": map[string]any{
					"all": map[string]string{
						"url":    srvURL + "/bottles/" + f.name + ".tar.gz",
						"sha256": f.sha256,
					},
				},
			},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(err)
	}
	return data
}

// testHarness wires an Installer against a httptest server serving
// fabricated formulas/bottles and a scratch filesystem/sqlite database.
type testHarness struct {
	inst     *Installer
	cfg      *config.Config
	db       *db.DB
	srv      *httptest.Server
	formulas map[string]testFormula
}

func newHarness(t *testing.T, formulas ...testFormula) *testHarness {
	t.Helper()
	h := &testHarness{formulas: make(map[string]testFormula)}
	for _, f := range formulas {
		h.formulas[f.name] = f
	}

	mux := http.NewServeMux()
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)

	mux.HandleFunc("/formula/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/formula/") : len(r.URL.Path)-len(".json")]
		f, ok := h.formulas[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(f.json(h.srv.URL))
	})
	mux.HandleFunc("/formula.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("[]"))
	})
	mux.HandleFunc("/bottles/", func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Path[len("/bottles/") : len(r.URL.Path)-len(".tar.gz")]
		f, ok := h.formulas[name]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write(f.archive)
	})

	root := t.TempDir()
	h.cfg = &config.Config{
		HomebrewPrefix:     filepath.Join(root, "prefix"),
		HomebrewRepository: filepath.Join(root, "prefix"),
		HomebrewCellar:     filepath.Join(root, "prefix", "Cellar"),
		HomebrewCache:      filepath.Join(root, "cache"),
		HomebrewLogs:       filepath.Join(root, "logs"),
		HomebrewTemp:       filepath.Join(root, "tmp"),
	}
	if err := h.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	database, err := db.Open(h.cfg.DBPath())
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	h.db = database

	apiClient := api.NewClient(api.WithAPIDomain(h.srv.URL))
	tapManager := tap.NewManager(h.cfg)
	h.inst = New(h.cfg, apiClient, tapManager, database, WithConcurrency(4))

	return h
}

func fooFormula(t *testing.T, deps ...string) testFormula {
	archive, sha := buildBottleArchive(t, map[string]string{"bin/foo": "#!/bin/sh\necho foo\n"})
	return testFormula{name: "foo", version: "1.0", deps: deps, archive: archive, sha256: sha}
}

func barFormula(t *testing.T) testFormula {
	archive, sha := buildBottleArchive(t, map[string]string{"bin/bar": "#!/bin/sh\necho bar\n"})
	return testFormula{name: "bar", version: "2.0", archive: archive, sha256: sha}
}

func TestPlanOrdersDependenciesBeforeDependents(t *testing.T) {
	h := newHarness(t, fooFormula(t, "bar"), barFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(plan.Order) != 2 || plan.Order[0] != "bar" || plan.Order[1] != "foo" {
		t.Fatalf("Order = %v, want [bar foo]", plan.Order)
	}
}

func TestExecuteInstallsAndLinks(t *testing.T) {
	h := newHarness(t, fooFormula(t, "bar"), barFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	progress := make(chan ProgressEvent, 64)
	result, err := h.inst.Execute(plan, true, true, progress)
	close(progress)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.InstalledCount != 2 {
		t.Errorf("InstalledCount = %d, want 2", result.InstalledCount)
	}

	for _, bin := range []string{"foo", "bar"} {
		link := filepath.Join(h.cfg.HomebrewPrefix, "bin", bin)
		if _, err := os.Lstat(link); err != nil {
			t.Errorf("expected link %s: %v", link, err)
		}
	}

	fooRow, ok, err := h.db.GetInstalled("foo")
	if err != nil || !ok {
		t.Fatalf("GetInstalled(foo) = %v, %v, %v", fooRow, ok, err)
	}
	if !fooRow.Explicit {
		t.Errorf("foo should be recorded explicit")
	}
	barRow, ok, err := h.db.GetInstalled("bar")
	if err != nil || !ok {
		t.Fatalf("GetInstalled(bar) = %v, %v, %v", barRow, ok, err)
	}
	if barRow.Explicit {
		t.Errorf("bar should be recorded as a dependency, not explicit")
	}

	var sawDownload, sawUnpack, sawLink bool
	for e := range progress {
		switch e.Kind {
		case DownloadCompleted:
			sawDownload = true
		case UnpackCompleted:
			sawUnpack = true
		case LinkCompleted:
			sawLink = true
		}
	}
	if !sawDownload || !sawUnpack || !sawLink {
		t.Errorf("missing progress events: download=%v unpack=%v link=%v", sawDownload, sawUnpack, sawLink)
	}
}

func TestUninstallRemovesLinksAndRow(t *testing.T) {
	h := newHarness(t, fooFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, true, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := h.inst.Uninstall("foo"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	if _, ok, err := h.db.GetInstalled("foo"); err != nil || ok {
		t.Errorf("GetInstalled(foo) after uninstall: ok=%v err=%v", ok, err)
	}
	link := filepath.Join(h.cfg.HomebrewPrefix, "bin", "foo")
	if _, err := os.Lstat(link); err == nil {
		t.Errorf("expected link %s removed", link)
	}

	if err := h.inst.Uninstall("foo"); err == nil {
		t.Errorf("expected NotInstalled on second uninstall")
	}
}

func TestGCRemovesUnreferencedStoreEntry(t *testing.T) {
	h := newHarness(t, fooFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, false, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	sha := h.formulas["foo"].sha256

	if removed, err := h.inst.GC(); err != nil || len(removed) != 0 {
		t.Fatalf("GC while installed: removed=%v err=%v", removed, err)
	}

	if err := h.inst.Uninstall("foo"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	removed, err := h.inst.GC()
	if err != nil {
		t.Fatalf("GC: %v", err)
	}
	if len(removed) != 1 || removed[0] != sha {
		t.Fatalf("GC removed = %v, want [%s]", removed, sha)
	}
}

func TestOutdatedReportsNewerUpstreamVersion(t *testing.T) {
	f := fooFormula(t)
	h := newHarness(t, f)

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, false, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out, err := h.inst.Outdated(true)
	if err != nil {
		t.Fatalf("Outdated: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("Outdated before upstream bump = %v, want none", out)
	}

	newer := f
	newer.version = "1.1"
	newer.archive, newer.sha256 = buildBottleArchive(t, map[string]string{"bin/foo": "v1.1\n"})
	h.formulas["foo"] = newer

	out, err = h.inst.Outdated(true)
	if err != nil {
		t.Fatalf("Outdated: %v", err)
	}
	if len(out) != 1 || out[0].CurrentVersion != "1.0" || out[0].LatestVersion != "1.1" {
		t.Fatalf("Outdated = %v, want one entry 1.0 -> 1.1", out)
	}
}

func TestUpgradeOneSkipsWhenNotNewer(t *testing.T) {
	h := newHarness(t, fooFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, true, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	res, err := h.inst.UpgradeOne("foo", true, nil)
	if err != nil {
		t.Fatalf("UpgradeOne: %v", err)
	}
	if res != nil {
		t.Errorf("UpgradeOne with no newer version = %v, want nil", res)
	}
}

func TestUpgradeOneInstallsNewerVersion(t *testing.T) {
	f := fooFormula(t)
	h := newHarness(t, f)

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, true, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	newer := f
	newer.version = "1.1"
	newer.archive, newer.sha256 = buildBottleArchive(t, map[string]string{"bin/foo": "v1.1\n"})
	h.formulas["foo"] = newer

	res, err := h.inst.UpgradeOne("foo", true, nil)
	if err != nil {
		t.Fatalf("UpgradeOne: %v", err)
	}
	if res == nil || res.OldVersion != "1.0" || res.NewVersion != "1.1" {
		t.Fatalf("UpgradeOne result = %v, want 1.0 -> 1.1", res)
	}

	row, ok, err := h.db.GetInstalled("foo")
	if err != nil || !ok || row.Version != "1.1" {
		t.Fatalf("GetInstalled(foo) after upgrade = %v, %v, %v", row, ok, err)
	}
	if _, err := os.Lstat(h.inst.cellar.KegPath("foo", "1.0")); err == nil {
		t.Errorf("old keg 1.0 should have been removed")
	}
}

func TestFindOrphansAndAutoremove(t *testing.T) {
	h := newHarness(t, fooFormula(t, "bar"), barFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, false, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := h.inst.Uninstall("foo"); err != nil {
		t.Fatalf("Uninstall(foo): %v", err)
	}

	orphans, err := h.inst.FindOrphans()
	if err != nil {
		t.Fatalf("FindOrphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0] != "bar" {
		t.Fatalf("FindOrphans = %v, want [bar]", orphans)
	}

	removed, err := h.inst.Autoremove()
	if err != nil {
		t.Fatalf("Autoremove: %v", err)
	}
	if len(removed) != 1 || removed[0] != "bar" {
		t.Fatalf("Autoremove = %v, want [bar]", removed)
	}
	if _, ok, err := h.db.GetInstalled("bar"); err != nil || ok {
		t.Errorf("bar should be uninstalled after autoremove")
	}
}

func TestCleanupPrunesUnreferencedBlob(t *testing.T) {
	h := newHarness(t, fooFormula(t))

	plan, err := h.inst.Plan("foo")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if _, err := h.inst.Execute(plan, false, true, nil); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if err := h.inst.Uninstall("foo"); err != nil {
		t.Fatalf("Uninstall: %v", err)
	}

	result, err := h.inst.Cleanup(0)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(result.StoreEntriesRemoved) != 1 {
		t.Errorf("StoreEntriesRemoved = %v, want 1 entry", result.StoreEntriesRemoved)
	}
	if result.BlobsRemoved != 1 {
		t.Errorf("BlobsRemoved = %d, want 1", result.BlobsRemoved)
	}
	if result.BytesFreed <= 0 {
		t.Errorf("BytesFreed = %d, want > 0", result.BytesFreed)
	}
}

func TestInstallByNameMissingFormula(t *testing.T) {
	h := newHarness(t)
	if _, err := h.inst.InstallByName("doesnotexist", false, nil); err == nil {
		t.Fatal("expected error for missing formula")
	} else if fmt.Sprint(err) == "" {
		t.Fatal("expected non-empty error")
	}
}
