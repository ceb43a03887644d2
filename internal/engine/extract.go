package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/loupelabs/loupe/pkg/types"
)

// ExtractFile reads a file from disk and extracts it into the graph. The
// file's path becomes the source key, so re-extracting the same file
// replaces its previous contribution.
func (e *ContextEngine) ExtractFile(ctx context.Context, path string) (*ExtractionSummary, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	if path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	meta := types.FileMetadataFor(path, int64(len(data)))
	return e.ExtractContent(ctx, string(data), meta)
}

// ExtractContent routes content through the adapter claiming its extension,
// runs relationship detection when the adapter supports it, and persists
// the result. Prior entities and relationships from the same source are
// replaced, never accumulated. Extraction itself is total; only storage can
// fail.
func (e *ContextEngine) ExtractContent(ctx context.Context, content string, meta types.FileMetadata) (*ExtractionSummary, error) {
	if err := e.ensureStarted(); err != nil {
		return nil, err
	}

	start := time.Now()
	source := sourceFor(meta)

	entities, relationships := e.adapters.Extract(content, meta)

	replaced, err := e.store.DeleteBySource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to replace prior extraction of %s: %w", source, err)
	}

	if err := e.store.PutEntities(ctx, source, entities); err != nil {
		return nil, fmt.Errorf("failed to store entities for %s: %w", source, err)
	}

	if len(relationships) > 0 {
		if err := e.store.PutRelationships(ctx, source, relationships); err != nil {
			return nil, fmt.Errorf("failed to store relationships for %s: %w", source, err)
		}
	}

	summary := ExtractionSummary{
		Source:        source,
		Adapter:       e.adapters.ForFile(meta).Name(),
		Entities:      len(entities),
		Relationships: len(relationships),
		Replaced:      replaced,
		Duration:      time.Since(start),
	}

	e.notifyExtraction(summary)

	return &summary, nil
}

// sourceFor derives the store source key from file metadata. Content
// without any file identity shares a single inline source.
func sourceFor(meta types.FileMetadata) string {
	if meta.Path != "" {
		return meta.Path
	}
	if meta.Filename != "" {
		return meta.Filename
	}
	return "inline"
}
