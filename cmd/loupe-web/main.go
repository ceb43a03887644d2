// Command loupe-web runs the Loupe HTTP API: extraction, graph queries and
// traversal, lens management, and the websocket event feed. With -project
// it scans the tree at startup and keeps watching it for changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/discovery"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/server"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/internal/storage/postgres"
	"github.com/loupelabs/loupe/internal/storage/sqlite"
)

// openStore opens the graph store selected by LOUPE_STORAGE_ENGINE.
func openStore(cfg *config.Config) (storage.GraphStore, error) {
	switch cfg.Storage.StorageEngine {
	case "memory":
		return storage.NewMemoryStore(), nil

	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("LOUPE_POSTGRES_DSN is required when LOUPE_STORAGE_ENGINE=postgres")
		}
		store, err := postgres.NewStore(cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		return storage.NewGuardedStore(store, storage.GuardConfig{}), nil

	case "sqlite", "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create data directory %q: %w", cfg.Storage.DataPath, err)
		}
		dbPath := fmt.Sprintf("%s/loupe.db", cfg.Storage.DataPath)
		store, err := sqlite.NewStore(dbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database at %q: %w", dbPath, err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage engine %q (use memory, sqlite, or postgres)", cfg.Storage.StorageEngine)
	}
}

func main() {
	// Parse command line flags
	projectRoot := flag.String("project", "", "Project root to scan and watch (optional)")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if !cfg.Features.EnableREST {
		log.Fatal("REST API is disabled (LOUPE_ENABLE_REST=false)")
	}

	// Initialize storage
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the context engine
	eng, err := engine.FromConfig(store, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize context engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("Failed to start context engine: %v", err)
	}

	// Scan and watch the project tree when one was given
	var watcher *discovery.Watcher
	if *projectRoot != "" {
		scanner, err := discovery.NewScanner(eng, discovery.ScanConfig{
			NumWorkers: cfg.Discovery.ScanWorkers,
		})
		if err != nil {
			log.Fatalf("Failed to create scanner: %v", err)
		}
		if _, err := scanner.Scan(ctx, *projectRoot); err != nil {
			log.Fatalf("Failed to scan %s: %v", *projectRoot, err)
		}

		if cfg.Discovery.WatchEnabled {
			watcher = discovery.NewWatcher(eng, *projectRoot, nil, nil)
			if err := watcher.Start(); err != nil {
				log.Fatalf("Failed to watch %s: %v", *projectRoot, err)
			}
		}
	}

	// Start server
	addr := startServer(ctx, cfg, eng)
	log.Printf("Loupe API running at http://%s", addr)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	if watcher != nil {
		watcher.Stop()
	}
	if err := eng.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down context engine: %v", err)
	}

	cancel()
	time.Sleep(1 * time.Second) // Give time for connections to close
}

// startServer is a helper that wraps server.Start for testability.
// It returns the bound address so tests can dial the random port.
func startServer(ctx context.Context, cfg *config.Config, eng *engine.ContextEngine) string {
	addr, _ := server.Start(ctx, cfg, eng)
	return addr
}
