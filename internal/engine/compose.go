package engine

import (
	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/extract"
	"github.com/loupelabs/loupe/internal/lens"
	"github.com/loupelabs/loupe/internal/storage"
)

// FromConfig builds a context engine whose registries and limits follow the
// application configuration: the record adapter gets the configured
// proximity threshold, the lens registry gets the configured activation
// cache size and built-in lens lineup, and the engine limits come from the
// engine section. The binaries all compose the engine this way; tests that
// want a custom lineup use NewContextEngineWithRegistries directly.
func FromConfig(store storage.GraphStore, cfg *config.Config) (*ContextEngine, error) {
	fallback := extract.NewFallbackAdapter()
	adapters := extract.NewRegistry(fallback)
	adapters.Register(extract.NewCodeAdapter(fallback))
	adapters.Register(extract.NewRecordAdapter(fallback,
		extract.WithNearThreshold(cfg.Extract.NearThresholdKm)))
	adapters.Register(extract.NewNarrativeAdapter(fallback))

	lenses := lens.NewRegistryWithCacheSize(cfg.Lenses.ActivationCacheSize)
	if cfg.Lenses.EnableDebugging {
		if err := lenses.Register(lens.NewDebuggingLens()); err != nil {
			return nil, err
		}
	}
	if cfg.Lenses.EnableDocumentation {
		if err := lenses.Register(lens.NewDocumentationLens()); err != nil {
			return nil, err
		}
	}

	// Zero limits fall back to the engine defaults. MaxQueryResults passes
	// through as-is: zero is a valid setting meaning uncapped.
	engineConfig := DefaultConfig()
	if cfg.Engine.RecentActionLimit > 0 {
		engineConfig.RecentActionLimit = cfg.Engine.RecentActionLimit
	}
	if cfg.Engine.MaxTraversalDepth > 0 {
		engineConfig.MaxTraversalDepth = cfg.Engine.MaxTraversalDepth
	}
	engineConfig.MaxQueryResults = cfg.Engine.MaxQueryResults

	return NewContextEngineWithRegistries(store, engineConfig, adapters, lenses)
}
