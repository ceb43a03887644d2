// cmd/loupe-mcp is the entry point for the Loupe MCP (Model Context
// Protocol) server. It wires the configured graph store through the context
// engine so that content extracted via MCP flows through adapter routing,
// lens activation, and graph storage.
//
// Startup sequence:
//  1. Load configuration from environment variables.
//  2. Open the configured graph store (sqlite, postgres, or memory).
//  3. Create and start a ContextEngine wrapping the store.
//  4. Create the MCP server over the engine.
//  5. Serve JSON-RPC 2.0 requests from stdin, writing responses to stdout.
//
// CRITICAL: ALL logging MUST go to stderr. Any bytes written to stdout that
// are not valid JSON-RPC 2.0 response frames will corrupt the protocol.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/loupelabs/loupe/internal/api/mcp"
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/internal/storage/postgres"
	"github.com/loupelabs/loupe/internal/storage/sqlite"
)

// openStore opens the graph store selected by LOUPE_STORAGE_ENGINE. The
// postgres backend is wrapped in a circuit breaker so a failing database
// degrades fast instead of hanging every tool call; sqlite and memory are
// in-process and need no guard.
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
	// Redirect the default logger to stderr so that any incidental log calls
	// (e.g. from imported packages) never pollute the stdout JSON-RPC stream.
	log.SetOutput(os.Stderr)
	log.SetPrefix("loupe-mcp: ")
	log.SetFlags(log.LstdFlags)

	// Load configuration from environment variables.
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if !cfg.Features.EnableMCP {
		log.Fatal("MCP server is disabled (LOUPE_ENABLE_MCP=false)")
	}

	// Open the configured graph store.
	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	// Set up a root context that is cancelled on SIGINT / SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("received shutdown signal")
		cancel()
	}()

	// Wrap the store in the context engine so content extracted via MCP
	// flows through adapter routing and the lens pipeline.
	eng, err := engine.FromConfig(store, cfg)
	if err != nil {
		log.Fatalf("failed to create context engine: %v", err)
	}
	if err := eng.Start(ctx); err != nil {
		log.Fatalf("failed to start context engine: %v", err)
	}
	defer func() {
		if err := eng.Shutdown(ctx); err != nil {
			log.Printf("engine shutdown error: %v", err)
		}
	}()

	// Create the MCP server over the engine.
	srv := mcp.NewServer(eng, mcp.WithConfig(cfg))

	// Wrap the server in a StdioTransport that reads line-delimited JSON-RPC
	// from stdin and writes responses to stdout. All logging inside the
	// transport is directed to stderr.
	transport := mcp.NewStdioTransport(srv, os.Stdin, os.Stdout)

	log.Println("ready — serving JSON-RPC 2.0 on stdin/stdout")

	if err := transport.Serve(ctx); err != nil {
		// A non-nil error here is normal (context cancellation) or indicates a
		// fatal stdin/stdout problem. Either way it is informational only.
		log.Printf("transport stopped: %v", err)
	}
}
