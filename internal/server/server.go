// Package server provides HTTP server initialization and lifecycle
// management for the Loupe web API.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/lens"
	"github.com/loupelabs/loupe/web/handlers"
)

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes and starts the HTTP server over a started engine.
// Returns the actual address being listened on (useful for testing with
// port 0) and the WebSocketHub carrying activation, lens_error, and
// extraction events. The server shuts down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, eng *engine.ContextEngine) (string, *handlers.WebSocketHub) {
	mux := http.NewServeMux()

	// Create WebSocket hub and wire the engine's event callbacks into it,
	// so every connected client sees extractions and lens decisions live.
	wsHub := handlers.NewWebSocketHub()
	go wsHub.Run()

	if cfg.Features.EnableEvents {
		eng.SetOnExtraction(func(summary engine.ExtractionSummary) {
			wsHub.Broadcast(handlers.WSEvent{Type: "extraction", Payload: summary})
		})
		eng.SetOnLensEvent(func(ev lens.Event) {
			wsHub.Broadcast(handlers.WSEvent{Type: ev.Type, Payload: ev})
		})
	}

	// Create rate limiter from the configured sustained rate and burst.
	rateLimiter := handlers.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)

	graphHandlers := handlers.NewGraphHandlers(eng, cfg)
	lensHandlers := handlers.NewLensHandlers(eng)
	contextHandlers := handlers.NewContextHandlers(eng)
	statsHandler := handlers.NewStatsHandler(eng)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("/api/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			graphHandlers.Extract(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			graphHandlers.Query(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/entities/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			graphHandlers.GetEntity(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/traverse", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			graphHandlers.Traverse(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/connected", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			graphHandlers.Connected(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Lens management routes
	apiMux.HandleFunc("/api/lenses", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			lensHandlers.ListLenses(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/lenses/override", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			lensHandlers.GetOverride(w, r)
		case http.MethodPost:
			lensHandlers.SetOverride(w, r)
		case http.MethodDelete:
			lensHandlers.ClearOverride(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/lenses/auto-resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			lensHandlers.SetAutoResolve(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/lenses/{id}", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			lensHandlers.GetLensConfig(w, r)
		case http.MethodPut:
			lensHandlers.ConfigureLens(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/conflicts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			lensHandlers.GetConflicts(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Activation context routes
	apiMux.HandleFunc("/api/context", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contextHandlers.UpdateContext(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/actions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			contextHandlers.RecordAction(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	apiMux.HandleFunc("/api/stats", statsHandler.GetStats)

	// Health endpoint — no auth required, used by monitoring
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	// Wrap API routes with auth middleware
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles
	// security)
	if cfg.Features.EnableEvents {
		mux.Handle("/api/events/ws", wsHub)
	}

	// Wrap entire server with rate limiting, then security headers
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	// Create server with security timeouts
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Failed to listen on %s: %v", addr, err)
	}

	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		wsHub.Stop()
	}()

	return actualAddr, wsHub
}
