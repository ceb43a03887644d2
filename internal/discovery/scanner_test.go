package discovery

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/storage"
)

func newStartedEngine(t *testing.T) *engine.ContextEngine {
	t.Helper()

	store := storage.NewMemoryStore()
	eng, err := engine.NewContextEngine(store, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}

	ctx := context.Background()
	if err := eng.Start(ctx); err != nil {
		t.Fatalf("Failed to start engine: %v", err)
	}

	t.Cleanup(func() {
		_ = eng.Shutdown(ctx)
		_ = store.Close()
	})

	return eng
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()

	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create dir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("Failed to write %s: %v", rel, err)
		}
	}
}

func TestScannerRequiresEngine(t *testing.T) {
	_, err := NewScanner(nil, DefaultScanConfig())
	if err == nil || err.Error() != "engine is required" {
		t.Fatalf("expected engine is required, got %v", err)
	}
}

func TestScannerRejectsInvalidConfig(t *testing.T) {
	eng := newStartedEngine(t)

	_, err := NewScanner(eng, ScanConfig{NumWorkers: 0})
	if err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Fatalf("expected invalid config error, got %v", err)
	}
}

func TestScanExtractsEligibleFiles(t *testing.T) {
	eng := newStartedEngine(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"src/app.ts":                  "export function main() {\n  return render()\n}\n",
		"src/util/helpers.ts":         "export function render() {\n  return null\n}\n",
		"README.md":                   "# Demo\n\nA small fixture project.\n",
		"data/config.json":            `{"name": "demo", "debug": true}`,
		"notes.txt":                   "Remember to wire the scanner into the CLI.\n",
		"node_modules/react/index.js": "module.exports = {}\n",
		"dist/bundle.js":              "!function(){}();\n",
		"logo.png":                    "\x89PNG",
	})

	scanner, err := NewScanner(eng, DefaultScanConfig())
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.FilesScanned != 5 {
		t.Errorf("expected 5 files scanned, got %d", result.FilesScanned)
	}
	if result.FilesFailed != 0 {
		t.Errorf("expected 0 failures, got %d", result.FilesFailed)
	}
	if result.Entities == 0 {
		t.Error("expected entities to be extracted")
	}
	if len(result.Files) != 5 {
		t.Fatalf("expected 5 file reports, got %d", len(result.Files))
	}
	for i := 1; i < len(result.Files); i++ {
		if result.Files[i-1].Path > result.Files[i].Path {
			t.Errorf("file reports not sorted: %s before %s", result.Files[i-1].Path, result.Files[i].Path)
		}
	}
	for _, report := range result.Files {
		if report.Adapter == "" {
			t.Errorf("report for %s has no adapter", report.Path)
		}
	}

	ctx := context.Background()
	appPath := filepath.Join(root, "src", "app.ts")
	if _, err := eng.GetEntity(ctx, "doc:"+appPath); err != nil {
		t.Errorf("expected app.ts document entity, got %v", err)
	}

	skipped := filepath.Join(root, "node_modules", "react", "index.js")
	if _, err := eng.GetEntity(ctx, "doc:"+skipped); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected node_modules file to be skipped, got %v", err)
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Sources != 5 {
		t.Errorf("expected 5 sources, got %d", stats.Sources)
	}
}

func TestScanHonorsExtensionFilter(t *testing.T) {
	eng := newStartedEngine(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"README.md":  "# Only me\n",
		"src/app.ts": "function main() {}\n",
	})

	scanner, err := NewScanner(eng, ScanConfig{NumWorkers: 2, Extensions: []string{".md"}})
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.FilesScanned != 1 {
		t.Fatalf("expected 1 file scanned, got %d", result.FilesScanned)
	}
	want := filepath.Join(root, "README.md")
	if result.Files[0].Path != want {
		t.Errorf("expected %s, got %s", want, result.Files[0].Path)
	}
}

func TestScanRejectsBadRoot(t *testing.T) {
	eng := newStartedEngine(t)
	scanner, err := NewScanner(eng, DefaultScanConfig())
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	ctx := context.Background()

	if _, err := scanner.Scan(ctx, ""); err == nil || err.Error() != "root is required" {
		t.Errorf("expected root is required, got %v", err)
	}
	if _, err := scanner.Scan(ctx, filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing root")
	}

	file := filepath.Join(t.TempDir(), "plain.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := scanner.Scan(ctx, file); err == nil || !strings.Contains(err.Error(), "not a directory") {
		t.Errorf("expected not a directory error, got %v", err)
	}
}

func TestScanReportsPerFileFailures(t *testing.T) {
	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	eng, err := engine.NewContextEngine(store, engine.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	// Deliberately not started: every extraction should fail and be
	// reported rather than aborting the scan.

	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md": "# a\n",
		"b.md": "# b\n",
	})

	scanner, err := NewScanner(eng, DefaultScanConfig())
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Scan(context.Background(), root)
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.FilesScanned != 0 {
		t.Errorf("expected 0 files scanned, got %d", result.FilesScanned)
	}
	if result.FilesFailed != 2 {
		t.Fatalf("expected 2 failures, got %d", result.FilesFailed)
	}
	for _, report := range result.Files {
		if !strings.Contains(report.Error, "engine not started") {
			t.Errorf("expected engine not started in report for %s, got %q", report.Path, report.Error)
		}
	}
}

func TestScanStopsOnCancelledContext(t *testing.T) {
	eng := newStartedEngine(t)
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.md": "# a\n",
		"b.md": "# b\n",
		"c.md": "# c\n",
	})

	scanner, err := NewScanner(eng, DefaultScanConfig())
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := scanner.Scan(ctx, root)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.FilesScanned != 0 {
		t.Errorf("expected no files scanned after cancellation, got %d", result.FilesScanned)
	}
}
