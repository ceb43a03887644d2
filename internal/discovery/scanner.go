// Package discovery feeds project trees through the context engine. The
// scanner walks a root once and extracts every eligible file; the watcher
// keeps the graph current as files change on disk afterwards.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/loupelabs/loupe/internal/engine"
)

// skipDirs are directory names never worth descending into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
}

// DefaultExtensions returns the file extensions considered eligible for
// extraction: everything the built-in adapters claim plus common markup
// files handled by the fallback path.
func DefaultExtensions() []string {
	return []string{
		".ts", ".tsx", ".js", ".jsx", ".mjs", ".cjs",
		".json", ".geojson",
		".txt", ".story",
		".md", ".markdown", ".mdx",
	}
}

// ScanConfig controls a project scan.
type ScanConfig struct {
	// NumWorkers is the number of concurrent extraction workers.
	NumWorkers int

	// Extensions overrides the eligible file extensions. Empty means
	// DefaultExtensions.
	Extensions []string
}

// DefaultScanConfig returns a ScanConfig with sensible defaults.
func DefaultScanConfig() ScanConfig {
	return ScanConfig{NumWorkers: 4}
}

// Validate checks the configuration for invalid values.
func (c *ScanConfig) Validate() error {
	if c.NumWorkers < 1 {
		return fmt.Errorf("NumWorkers must be >= 1, got %d", c.NumWorkers)
	}
	return nil
}

// FileReport records the outcome of extracting a single file.
type FileReport struct {
	Path          string `json:"path"`
	Adapter       string `json:"adapter,omitempty"`
	Entities      int    `json:"entities"`
	Relationships int    `json:"relationships"`
	Error         string `json:"error,omitempty"`
}

// ScanResult summarizes a completed project scan.
type ScanResult struct {
	Root          string        `json:"root"`
	FilesScanned  int           `json:"filesScanned"`
	FilesFailed   int           `json:"filesFailed"`
	Entities      int           `json:"entities"`
	Relationships int           `json:"relationships"`
	Duration      time.Duration `json:"duration"`
	Files         []FileReport  `json:"files"`
}

// Scanner walks a project tree and extracts every eligible file through
// the context engine.
type Scanner struct {
	engine   *engine.ContextEngine
	config   ScanConfig
	eligible map[string]bool
}

// NewScanner creates a scanner backed by the given engine.
func NewScanner(eng *engine.ContextEngine, config ScanConfig) (*Scanner, error) {
	if eng == nil {
		return nil, errors.New("engine is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Scanner{
		engine:   eng,
		config:   config,
		eligible: extensionSet(config.Extensions),
	}, nil
}

// Scan walks root and extracts every eligible file. Files that fail to
// extract are reported, not fatal; the scan only errors when the root
// itself cannot be walked or the context is cancelled.
func (s *Scanner) Scan(ctx context.Context, root string) (*ScanResult, error) {
	if root == "" {
		return nil, errors.New("root is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	paths, err := s.collectFiles(root)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	result := &ScanResult{Root: root, Files: make([]FileReport, 0, len(paths))}

	jobs := make(chan string)
	reports := make(chan FileReport)

	var workers sync.WaitGroup
	for i := 0; i < s.config.NumWorkers; i++ {
		workers.Add(1)
		go s.scanWorker(ctx, &workers, jobs, reports)
	}

	go func() {
		defer close(jobs)
		for _, path := range paths {
			select {
			case jobs <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		workers.Wait()
		close(reports)
	}()

	for report := range reports {
		result.Files = append(result.Files, report)
		if report.Error != "" {
			result.FilesFailed++
			continue
		}
		result.FilesScanned++
		result.Entities += report.Entities
		result.Relationships += report.Relationships
	}

	slices.SortFunc(result.Files, func(a, b FileReport) int {
		return strings.Compare(a.Path, b.Path)
	})
	result.Duration = time.Since(start)

	log.Printf("Scanned %s: %d files, %d entities, %d relationships (%d failed)",
		root, result.FilesScanned, result.Entities, result.Relationships, result.FilesFailed)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// scanWorker extracts queued files until the job channel closes.
func (s *Scanner) scanWorker(ctx context.Context, workers *sync.WaitGroup, jobs <-chan string, reports chan<- FileReport) {
	defer workers.Done()

	for path := range jobs {
		if err := ctx.Err(); err != nil {
			reports <- FileReport{Path: path, Error: err.Error()}
			continue
		}

		summary, err := s.engine.ExtractFile(ctx, path)
		if err != nil {
			log.Printf("WARNING: Failed to extract %s: %v", path, err)
			reports <- FileReport{Path: path, Error: err.Error()}
			continue
		}

		reports <- FileReport{
			Path:          path,
			Adapter:       summary.Adapter,
			Entities:      summary.Entities,
			Relationships: summary.Relationships,
		}
	}
}

// collectFiles gathers eligible file paths under root in walk order.
func (s *Scanner) collectFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if s.eligible[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return paths, nil
}

func extensionSet(extensions []string) map[string]bool {
	if len(extensions) == 0 {
		extensions = DefaultExtensions()
	}
	set := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		set[strings.ToLower(ext)] = true
	}
	return set
}
