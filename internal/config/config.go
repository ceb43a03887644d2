// Package config provides configuration management for Loupe. It loads
// settings from environment variables with the LOUPE_ prefix and provides
// sensible defaults for every option, so a bare `loupe-web` or `loupe-mcp`
// starts without any environment at all.
package config

import (
	"os"
	"strconv"
)

// Config holds all configuration settings for the Loupe application.
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Engine    EngineConfig
	Extract   ExtractConfig
	Lenses    LensesConfig
	Discovery DiscoveryConfig
	Security  SecurityConfig
	Features  FeaturesConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port           int     // Server port (default: 7171)
	Host           string  // Server host (default: 127.0.0.1)
	RateLimitRPS   float64 // Sustained requests per second per server (default: 25)
	RateLimitBurst int     // Burst allowance above the sustained rate (default: 50)
}

// StorageConfig contains graph store configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine: memory, sqlite, postgres (default: sqlite)
	DataPath      string // Path to data directory for sqlite (default: ./data)
	PostgresDSN   string // Connection string when StorageEngine is postgres
}

// EngineConfig contains context-engine limits.
type EngineConfig struct {
	RecentActionLimit int // Rolling action window size (default: 50)
	MaxTraversalDepth int // Hard cap on traversal depth (default: 10)
	MaxQueryResults   int // Cap applied to unbounded queries, 0 disables (default: 500)
}

// ExtractConfig contains extraction heuristics.
type ExtractConfig struct {
	NearThresholdKm float64 // Distance under which two located records are near (default: 0.5)
}

// LensesConfig contains lens-framework settings.
type LensesConfig struct {
	ActivationCacheSize int  // Activation decision cache entries (default: 128)
	EnableDebugging     bool // Register the debugging lens at startup (default: true)
	EnableDocumentation bool // Register the documentation lens at startup (default: true)
}

// DiscoveryConfig contains project scanning and watching settings.
type DiscoveryConfig struct {
	ScanWorkers  int  // Concurrent extraction workers for scans (default: 4)
	WatchEnabled bool // Keep watching the project tree after the initial scan (default: true)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token, required in production mode
}

// FeaturesConfig contains feature flags.
type FeaturesConfig struct {
	EnableMCP    bool // Enable MCP server (default: true)
	EnableREST   bool // Enable REST API (default: true)
	EnableEvents bool // Enable websocket event stream (default: true)
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the LOUPE_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:           getEnvInt("LOUPE_PORT", 7171),
			Host:           getEnv("LOUPE_HOST", "127.0.0.1"),
			RateLimitRPS:   getEnvFloat("LOUPE_RATE_LIMIT_RPS", 25),
			RateLimitBurst: getEnvInt("LOUPE_RATE_LIMIT_BURST", 50),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("LOUPE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("LOUPE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("LOUPE_POSTGRES_DSN", ""),
		},
		Engine: EngineConfig{
			RecentActionLimit: getEnvInt("LOUPE_RECENT_ACTION_LIMIT", 50),
			MaxTraversalDepth: getEnvInt("LOUPE_MAX_TRAVERSAL_DEPTH", 10),
			MaxQueryResults:   getEnvInt("LOUPE_MAX_QUERY_RESULTS", 500),
		},
		Extract: ExtractConfig{
			NearThresholdKm: getEnvFloat("LOUPE_NEAR_KM", 0.5),
		},
		Lenses: LensesConfig{
			ActivationCacheSize: getEnvInt("LOUPE_ACTIVATION_CACHE_SIZE", 128),
			EnableDebugging:     getEnvBool("LOUPE_ENABLE_DEBUGGING_LENS", true),
			EnableDocumentation: getEnvBool("LOUPE_ENABLE_DOCUMENTATION_LENS", true),
		},
		Discovery: DiscoveryConfig{
			ScanWorkers:  getEnvInt("LOUPE_SCAN_WORKERS", 4),
			WatchEnabled: getEnvBool("LOUPE_WATCH_ENABLED", true),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("LOUPE_SECURITY_MODE", "development"),
			APIToken:     getEnv("LOUPE_API_TOKEN", ""),
		},
		Features: FeaturesConfig{
			EnableMCP:    getEnvBool("LOUPE_ENABLE_MCP", true),
			EnableREST:   getEnvBool("LOUPE_ENABLE_REST", true),
			EnableEvents: getEnvBool("LOUPE_ENABLE_EVENTS", true),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. If the environment variable exists but cannot be parsed as an
// integer, it returns the default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. If the environment variable exists but cannot be parsed, it
// returns the default value.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default value.
// It recognizes "true", "1", "yes" as true and "false", "0", "no" as false (case-insensitive).
// If the environment variable exists but cannot be parsed as a boolean,
// it returns the default value.
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
