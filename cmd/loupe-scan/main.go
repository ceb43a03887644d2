// Command loupe-scan extracts a project tree into the knowledge graph in
// one shot and prints what it found. By default the graph lives in memory
// for the duration of the run; with -db it is persisted to SQLite so later
// loupe-web or loupe-mcp runs can query it.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/loupelabs/loupe/internal/attribution"
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/discovery"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/internal/storage/sqlite"
	"github.com/loupelabs/loupe/pkg/types"
)

var (
	dbPath  = flag.String("db", "", "SQLite database to persist the graph to (default: in-memory)")
	jsonOut = flag.Bool("json", false, "Write a JSON graph export to stdout instead of the summary")
	outPath = flag.String("out", "", "Write the JSON graph export to this file")
	workers = flag.Int("workers", 0, "Concurrent extraction workers (overrides LOUPE_SCAN_WORKERS)")
	verbose = flag.Bool("verbose", false, "Print a line per scanned file")
)

// GraphExport is the -json / -out output shape.
type GraphExport struct {
	Root        string              `json:"root"`
	GeneratedAt time.Time           `json:"generatedAt"`
	GeneratedBy string              `json:"generatedBy"`
	Stats       *storage.GraphStats `json:"stats"`
	Entities    []types.Entity      `json:"entities"`
}

func main() {
	flag.Parse()

	root := flag.Arg(0)
	if root == "" {
		root = "."
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	numWorkers := cfg.Discovery.ScanWorkers
	if *workers > 0 {
		numWorkers = *workers
	}

	// Open the store: in-memory unless a database path was given.
	var store storage.GraphStore
	if *dbPath != "" {
		store, err = sqlite.NewStore(*dbPath)
		if err != nil {
			log.Fatalf("Failed to open database at %q: %v", *dbPath, err)
		}
	} else {
		store = storage.NewMemoryStore()
	}
	defer store.Close()

	ctx := context.Background()

	eng, err := engine.FromConfig(store, cfg)
	if err != nil {
		log.Fatalf("Failed to create context engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start context engine: %v", err)
	}
	defer func() { _ = eng.Shutdown(ctx) }()

	scanner, err := discovery.NewScanner(eng, discovery.ScanConfig{NumWorkers: numWorkers})
	if err != nil {
		log.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Scan(ctx, root)
	if err != nil {
		log.Fatalf("Scan failed: %v", err)
	}

	if *jsonOut || *outPath != "" {
		if err := exportGraph(ctx, store, root, *outPath); err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		return
	}

	printSummary(ctx, store, result)
}

// printSummary writes the human-readable scan report to stdout.
func printSummary(ctx context.Context, store storage.GraphStore, result *discovery.ScanResult) {
	fmt.Printf("Scanned %s in %v\n\n", result.Root, result.Duration.Round(time.Millisecond))
	fmt.Printf("Files:         %d scanned, %d failed\n", result.FilesScanned, result.FilesFailed)
	fmt.Printf("Entities:      %d\n", result.Entities)
	fmt.Printf("Relationships: %d\n", result.Relationships)

	if *verbose {
		fmt.Println()
		for _, file := range result.Files {
			if file.Error != "" {
				fmt.Printf("  %s: FAILED (%s)\n", file.Path, file.Error)
				continue
			}
			fmt.Printf("  %s: %d entities, %d relationships [%s]\n",
				file.Path, file.Entities, file.Relationships, file.Adapter)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		log.Printf("Warning: failed to load graph stats: %v", err)
		return
	}

	fmt.Println("\nEntities by kind:")
	for _, kind := range slices.Sorted(maps.Keys(stats.EntitiesByKind)) {
		fmt.Printf("  %-14s %d\n", kind, stats.EntitiesByKind[kind])
	}
	fmt.Println("\nRelationships by kind:")
	for _, kind := range slices.Sorted(maps.Keys(stats.RelationshipsByKind)) {
		fmt.Printf("  %-14s %d\n", kind, stats.RelationshipsByKind[kind])
	}
}

// exportGraph writes the full entity set and graph stats as JSON to the
// given path, or to stdout when the path is empty.
func exportGraph(ctx context.Context, store storage.GraphStore, root, path string) error {
	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stats: %w", err)
	}

	results, err := store.Query(ctx, types.Query{})
	if err != nil {
		return fmt.Errorf("failed to load entities: %w", err)
	}

	entities := make([]types.Entity, len(results))
	for i, r := range results {
		entities[i] = r.Entity
	}

	export := GraphExport{
		Root:        root,
		GeneratedAt: time.Now().UTC(),
		GeneratedBy: attribution.DetectAgent(),
		Stats:       stats,
		Entities:    entities,
	}

	out := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(export); err != nil {
		return fmt.Errorf("failed to write export: %w", err)
	}
	if path != "" {
		log.Printf("Wrote graph export to %s", path)
	}
	return nil
}
