package tap

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zb-pm/zb/internal/config"
	"github.com/zb-pm/zb/internal/logger"
)

func TestManagerOperations(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
	}

	manager := NewManager(cfg)
	if manager == nil {
		t.Fatal("NewManager should not return nil")
	}
	if manager.cfg != cfg {
		t.Error("Manager config not set correctly")
	}
}

func TestListTapsEmpty(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
	}

	manager := NewManager(cfg)

	if err := os.MkdirAll(cfg.TapsDir(), 0755); err != nil {
		t.Fatalf("Failed to create taps directory: %v", err)
	}

	taps, err := manager.ListTaps()
	if err != nil {
		t.Errorf("ListTaps failed: %v", err)
	}
	if len(taps) != 0 {
		t.Errorf("Expected 0 taps in empty directory, got %d", len(taps))
	}
}

func TestGetTapNonExistent(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
	}

	manager := NewManager(cfg)

	if _, err := manager.GetTap("nonexistent/tap"); err == nil {
		t.Error("Expected error for non-existent tap")
	}
}

func TestGetTapPathIntegration(t *testing.T) {
	cfg := &config.Config{
		HomebrewRepository: "/test/repo",
	}

	manager := NewManager(cfg)

	tests := []struct {
		name     string
		expected string
	}{
		{
			name:     "user/repo",
			expected: "/test/repo/taps/user/repo",
		},
		{
			name:     "simple-name",
			expected: "/test/repo/taps/homebrew/simple-name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := manager.getTapPath(tt.name)
			if path != tt.expected {
				t.Errorf("Expected path %s, got %s", tt.expected, path)
			}
		})
	}
}

func TestValidateTapNameIntegration(t *testing.T) {
	manager := &Manager{}

	tests := []struct {
		name        string
		expectError bool
	}{
		{"valid-name", false},
		{"user/repo", false},
		{"", true},
		{"name with spaces", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := manager.validateTapName(tt.name)
			if tt.expectError && err == nil {
				t.Errorf("Expected error for tap name %q", tt.name)
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error for tap name %q: %v", tt.name, err)
			}
		})
	}
}

func TestGetDefaultRemoteIntegration(t *testing.T) {
	manager := &Manager{}

	tests := []struct {
		name     string
		expected string
	}{
		{
			name:     "user/repo",
			expected: "https://github.com/user/homebrew-repo.git",
		},
		{
			name:     "simple-name",
			expected: "https://github.com/homebrew/homebrew-simple-name.git",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := manager.getDefaultRemote(tt.name)
			if remote != tt.expected {
				t.Errorf("Expected remote %s, got %s", tt.expected, remote)
			}
		})
	}
}

func TestIsTapDirectoryIntegration(t *testing.T) {
	tempDir := t.TempDir()
	manager := &Manager{}

	if manager.isTapDirectory("/nonexistent/path") {
		t.Error("Non-existent directory should not be a tap directory")
	}

	emptyDir := filepath.Join(tempDir, "empty")
	if err := os.MkdirAll(emptyDir, 0755); err != nil {
		t.Fatalf("Failed to create empty directory: %v", err)
	}
	if manager.isTapDirectory(emptyDir) {
		t.Error("Empty directory should not be a tap directory")
	}

	formulaDir := filepath.Join(tempDir, "with-formula")
	if err := os.MkdirAll(filepath.Join(formulaDir, "Formula"), 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}
	if !manager.isTapDirectory(formulaDir) {
		t.Error("Directory with Formula subdirectory should be a tap directory")
	}
}

func TestCountFormulaeIntegration(t *testing.T) {
	tempDir := t.TempDir()
	manager := &Manager{}

	formulaDir := filepath.Join(tempDir, "Formula")
	if err := os.MkdirAll(formulaDir, 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}

	for i := 0; i < 3; i++ {
		filename := filepath.Join(formulaDir, "formula"+string(rune('0'+i))+".json")
		if err := os.WriteFile(filename, []byte("{}"), 0644); err != nil {
			t.Fatalf("Failed to write formula: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(formulaDir, "readme.txt"), []byte("readme"), 0644); err != nil {
		t.Fatalf("Failed to write readme: %v", err)
	}

	if count := manager.countFormulae(tempDir); count != 3 {
		t.Errorf("Expected 3 formulae, got %d", count)
	}
	if count := manager.countFormulae("/nonexistent"); count != 0 {
		t.Errorf("Expected 0 formulae for non-existent directory, got %d", count)
	}
}

func TestVerifyTapIntegration(t *testing.T) {
	tempDir := t.TempDir()
	manager := &Manager{}

	emptyDir := filepath.Join(tempDir, "empty")
	if err := os.MkdirAll(emptyDir, 0755); err != nil {
		t.Fatalf("Failed to create empty directory: %v", err)
	}
	if err := manager.verifyTap(emptyDir); err == nil {
		t.Error("Expected error for tap without Formula directory")
	}

	validDir := filepath.Join(tempDir, "valid")
	if err := os.MkdirAll(filepath.Join(validDir, "Formula"), 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}
	if err := manager.verifyTap(validDir); err != nil {
		t.Errorf("Expected no error for valid tap: %v", err)
	}
}

func TestProgressWriter(t *testing.T) {
	writer := &ProgressWriter{prefix: "test"}

	data := []byte("test progress message\n")
	n, err := writer.Write(data)
	if err != nil {
		t.Errorf("ProgressWriter.Write failed: %v", err)
	}
	if n != len(data) {
		t.Errorf("Expected to write %d bytes, wrote %d", len(data), n)
	}

	n, err = writer.Write([]byte(""))
	if err != nil {
		t.Errorf("ProgressWriter.Write failed for empty data: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected to write 0 bytes for empty data, wrote %d", n)
	}
}

func TestAddTapValidation(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
	}

	manager := NewManager(cfg)

	err := manager.AddTap("", "", nil)
	if err == nil {
		t.Error("Expected error for empty tap name")
	}
	if !strings.Contains(err.Error(), "invalid tap name") {
		t.Errorf("Expected validation error, got: %v", err)
	}

	err = manager.AddTap("invalid name", "", nil)
	if err == nil {
		t.Error("Expected error for tap name with spaces")
	}
	if !strings.Contains(err.Error(), "cannot contain spaces") {
		t.Errorf("Expected spaces error, got: %v", err)
	}

	err = manager.AddTap("test/invalid", "https://github.com/nonexistent-zb-test-org/repo.git", nil)
	if err == nil {
		t.Error("Expected error for invalid remote")
	}
	if !strings.Contains(err.Error(), "failed to clone") {
		t.Errorf("Expected clone error, got: %v", err)
	}

	defaultRemote := manager.getDefaultRemote("test/example")
	if want := "https://github.com/test/homebrew-example.git"; defaultRemote != want {
		t.Errorf("Expected default remote %s, got %s", want, defaultRemote)
	}

	simpleRemote := manager.getDefaultRemote("example")
	if want := "https://github.com/homebrew/homebrew-example.git"; simpleRemote != want {
		t.Errorf("Expected simple remote %s, got %s", want, simpleRemote)
	}
}

func TestRemoveTap(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
		HomebrewCellar:     filepath.Join(tempDir, "Cellar"),
	}

	manager := NewManager(cfg)

	if err := manager.RemoveTap("nonexistent/tap", nil); err == nil {
		t.Error("Expected error for non-existent tap")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}

	tapPath := filepath.Join(cfg.TapsDir(), "test", "example")
	if err := os.MkdirAll(filepath.Join(tapPath, "Formula"), 0755); err != nil {
		t.Fatalf("Failed to create tap directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tapPath, "Formula", "testformula.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write formula: %v", err)
	}

	if err := manager.RemoveTap("test/example", nil); err != nil {
		t.Errorf("Expected successful removal, got: %v", err)
	}
	if _, err := os.Stat(tapPath); !os.IsNotExist(err) {
		t.Error("Expected tap directory to be removed")
	}
}

func TestUpdateTapWithoutGitRepo(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
	}

	manager := NewManager(cfg)

	if err := manager.UpdateTap("nonexistent/tap"); err == nil {
		t.Error("Expected error for non-existent tap")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}

	tapPath := filepath.Join(cfg.TapsDir(), "test", "example")
	if err := os.MkdirAll(filepath.Join(tapPath, "Formula"), 0755); err != nil {
		t.Fatalf("Failed to create tap directory: %v", err)
	}

	err := manager.UpdateTap("test/example")
	if err == nil {
		t.Error("Expected error for tap without git repository")
	}
	if !strings.Contains(err.Error(), "failed to open tap repository") {
		t.Errorf("Expected git error, got: %v", err)
	}
}

func TestGetInstalledFormulaeFromTap(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
		HomebrewCellar:     filepath.Join(tempDir, "Cellar"),
	}

	manager := NewManager(cfg)

	tapPath := filepath.Join(cfg.TapsDir(), "test", "example")
	formulaDir := filepath.Join(tapPath, "Formula")
	if err := os.MkdirAll(formulaDir, 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}

	for _, formula := range []string{"formula1", "formula2", "formula3"} {
		if err := os.WriteFile(filepath.Join(formulaDir, formula+".json"), []byte("{}"), 0644); err != nil {
			t.Fatalf("Failed to write formula: %v", err)
		}
	}

	cellarDir := filepath.Join(cfg.HomebrewCellar, "formula1")
	if err := os.MkdirAll(cellarDir, 0755); err != nil {
		t.Fatalf("Failed to create cellar directory: %v", err)
	}

	tap := &Tap{Name: "test/example", Path: tapPath}

	installedFormulae, err := manager.getInstalledFormulaeFromTap(tap)
	if err != nil {
		t.Fatalf("getInstalledFormulaeFromTap failed: %v", err)
	}
	if len(installedFormulae) != 1 || installedFormulae[0] != "formula1" {
		t.Errorf("Expected [formula1] to be installed, got %v", installedFormulae)
	}
}

func TestIsFormulaFromTap(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()
	cfg := &config.Config{
		HomebrewRepository: tempDir,
	}

	manager := NewManager(cfg)

	tapPath := filepath.Join(cfg.TapsDir(), "test", "example")
	formulaDir := filepath.Join(tapPath, "Formula")
	if err := os.MkdirAll(formulaDir, 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(formulaDir, "testformula.json"), []byte("{}"), 0644); err != nil {
		t.Fatalf("Failed to write formula: %v", err)
	}

	if !manager.isFormulaFromTap("testformula", "test/example") {
		t.Error("Expected testformula to be from test/example tap")
	}
	if manager.isFormulaFromTap("nonexistent", "test/example") {
		t.Error("Expected nonexistent formula to not be from tap")
	}
}

func TestTapGetFormula(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()

	tap := &Tap{
		Name: "test/example",
		Path: tempDir,
	}

	formulaDir := filepath.Join(tempDir, "Formula")
	if err := os.MkdirAll(formulaDir, 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}

	if _, err := tap.GetFormula("nonexistent"); err == nil {
		t.Error("Expected error for non-existent formula")
	} else if !strings.Contains(err.Error(), "not found") {
		t.Errorf("Expected 'not found' error, got: %v", err)
	}

	if err := os.WriteFile(filepath.Join(formulaDir, "badjson.json"), []byte("not json"), 0644); err != nil {
		t.Fatalf("Failed to write formula: %v", err)
	}
	if _, err := tap.GetFormula("badjson"); err == nil {
		t.Error("Expected error for invalid JSON")
	} else if !strings.Contains(err.Error(), "failed to parse formula") {
		t.Errorf("Expected parse error, got: %v", err)
	}

	validJSON := []byte(`{"name":"testformula","versions":{"stable":"1.0.0"}}`)
	if err := os.WriteFile(filepath.Join(formulaDir, "testformula.json"), validJSON, 0644); err != nil {
		t.Fatalf("Failed to write formula: %v", err)
	}
	f, err := tap.GetFormula("testformula")
	if err != nil {
		t.Fatalf("GetFormula failed: %v", err)
	}
	if f.Name != "testformula" {
		t.Errorf("Formula name = %v, want testformula", f.Name)
	}
	if f.Tap != "test/example" {
		t.Errorf("Formula tap = %v, want test/example", f.Tap)
	}
}

func TestTapListFormulae(t *testing.T) {
	logger.Init(false, false, true)

	tempDir := t.TempDir()

	tap := &Tap{
		Name: "test/example",
		Path: tempDir,
	}

	formulaDir := filepath.Join(tempDir, "Formula")
	if err := os.MkdirAll(formulaDir, 0755); err != nil {
		t.Fatalf("Failed to create formula directory: %v", err)
	}

	formulae, err := tap.ListFormulae()
	if err != nil {
		t.Fatalf("ListFormulae failed: %v", err)
	}
	if len(formulae) != 0 {
		t.Errorf("Expected 0 formulae in empty directory, got %d", len(formulae))
	}

	files := map[string]bool{
		"formula1.json": true,
		"formula2.json": true,
		"formula3.json": true,
		"readme.txt":    false,
	}
	for filename := range files {
		if err := os.WriteFile(filepath.Join(formulaDir, filename), []byte("{}"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", filename, err)
		}
	}
	if err := os.MkdirAll(filepath.Join(formulaDir, "subdir"), 0755); err != nil {
		t.Fatalf("Failed to create subdir: %v", err)
	}

	formulae, err = tap.ListFormulae()
	if err != nil {
		t.Fatalf("ListFormulae failed: %v", err)
	}

	expected := []string{"formula1", "formula2", "formula3"}
	if len(formulae) != len(expected) {
		t.Fatalf("Expected %d formulae, got %d: %v", len(expected), len(formulae), formulae)
	}
	for i, want := range expected {
		if formulae[i] != want {
			t.Errorf("Expected formula %s at index %d, got %s", want, i, formulae[i])
		}
	}

	nonExistentTap := &Tap{Name: "nonexistent/tap", Path: "/nonexistent/path"}
	if _, err := nonExistentTap.ListFormulae(); err == nil {
		t.Error("Expected error for non-existent formula directory")
	}
}
