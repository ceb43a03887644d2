package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/internal/storage/postgres"
	"github.com/loupelabs/loupe/pkg/types"
)

// postgresTestDSN returns the DSN for the test database. Tests are skipped
// when LOUPE_POSTGRES_TEST_DSN is not set.
func postgresTestDSN(t *testing.T) string {
	t.Helper()

	dsn := os.Getenv("LOUPE_POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("LOUPE_POSTGRES_TEST_DSN not set; skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore connects to the test database with a clean slate and
// registers cleanup.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()

	store, err := postgres.NewStore(postgresTestDSN(t))
	require.NoError(t, err, "NewStore should succeed")

	require.NoError(t, store.TruncateForTest(context.Background()))
	t.Cleanup(func() { store.Close() })

	return store
}

func TestPutAndGetEntity(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entity := types.Entity{
		ID:      "function:app.ts:0",
		Kind:    types.EntityKindFunction,
		Name:    "parseConfig",
		Content: "function parseConfig() {}",
		Metadata: map[string]interface{}{
			"entityType": "function",
			"startLine":  float64(10),
		},
		Relationships: []types.Relationship{
			{Kind: types.RelCalls, Source: "function:app.ts:0", Target: "function:app.ts:1"},
		},
	}
	require.NoError(t, store.PutEntities(ctx, "src/app.ts", []types.Entity{entity}))

	got, err := store.GetEntity(ctx, entity.ID)
	require.NoError(t, err)
	assert.Equal(t, "parseConfig", got.Name)
	assert.Equal(t, types.EntityKindFunction, got.Kind)
	assert.Equal(t, float64(10), got.Metadata["startLine"])
	require.Len(t, got.Relationships, 1)
	assert.Equal(t, "function:app.ts:1", got.Relationships[0].Target)

	_, err = store.GetEntity(ctx, "function:missing.ts:0")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestQueryAndNeighbors(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEntities(ctx, "app.ts", []types.Entity{
		{ID: "f1", Kind: types.EntityKindFunction, Name: "start"},
		{ID: "c1", Kind: types.EntityKindClass, Name: "Server"},
		{ID: "f2", Kind: types.EntityKindFunction, Name: "stop"},
	}))
	require.NoError(t, store.PutRelationships(ctx, "app.ts", []types.Relationship{
		{Kind: types.RelCalls, Source: "f1", Target: "f2"},
		{Kind: types.RelContains, Source: "c1", Target: "f1"},
	}))

	results, err := store.Query(ctx, types.Query{
		Conditions: []types.QueryCondition{{Field: "kind", Operator: types.OpEquals, Value: "function"}},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "f1", results[0].Entity.ID, "creation order")

	out, err := store.Neighbors(ctx, "f1", nil, types.DirectionOutgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, out)

	in, err := store.Neighbors(ctx, "f1", nil, types.DirectionIncoming)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, in)

	both, err := store.Neighbors(ctx, "f1", []types.RelationshipKind{types.RelCalls}, types.DirectionBoth)
	require.NoError(t, err)
	assert.Equal(t, []string{"f2"}, both)
}

func TestDeleteBySourceRemovesContribution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEntities(ctx, "a.ts", []types.Entity{
		{ID: "fa", Kind: types.EntityKindFunction, Name: "fa"},
	}))
	require.NoError(t, store.PutEntities(ctx, "b.ts", []types.Entity{
		{ID: "fb", Kind: types.EntityKindFunction, Name: "fb"},
	}))
	require.NoError(t, store.StoreEmbedding(ctx, "fa", []float32{0.1, 0.2}))

	removed, err := store.DeleteBySource(ctx, "a.ts")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetEntity(ctx, "fa")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.GetEntity(ctx, "fb")
	require.NoError(t, err)
}

func TestStatsCountsGraph(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEntities(ctx, "app.ts", []types.Entity{
		{ID: "f1", Kind: types.EntityKindFunction, Name: "a"},
		{ID: "c1", Kind: types.EntityKindClass, Name: "C"},
	}))
	require.NoError(t, store.PutEntities(ctx, "doc.md", []types.Entity{
		{ID: "d1", Kind: types.EntityKindDocument, Name: "doc.md"},
	}))
	require.NoError(t, store.PutRelationships(ctx, "app.ts", []types.Relationship{
		{Kind: types.RelContains, Source: "c1", Target: "f1"},
	}))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalEntities)
	assert.Equal(t, 1, stats.TotalRelationships)
	assert.Equal(t, 1, stats.EntitiesByKind["function"])
	assert.Equal(t, 2, stats.Sources)
}

func TestEmbeddingSidecar(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.PutEntities(ctx, "doc.md", []types.Entity{
		{ID: "p1", Kind: types.EntityKindParagraph, Name: "north"},
		{ID: "p2", Kind: types.EntityKindParagraph, Name: "east"},
		{ID: "p3", Kind: types.EntityKindParagraph, Name: "mostly north"},
	}))

	require.NoError(t, store.StoreEmbedding(ctx, "p1", []float32{0, 1}))
	require.NoError(t, store.StoreEmbedding(ctx, "p2", []float32{1, 0}))
	require.NoError(t, store.StoreEmbedding(ctx, "p3", []float32{0.1, 0.9}))

	nearest, err := store.NearestEntities(ctx, []float32{0, 1}, 2)
	require.NoError(t, err)
	require.Len(t, nearest, 2)
	assert.Equal(t, "p1", nearest[0].EntityID)
	assert.Equal(t, "p3", nearest[1].EntityID)
	assert.Less(t, nearest[0].Distance, nearest[1].Distance)

	// Replacing a vector moves the entity in the ranking.
	require.NoError(t, store.StoreEmbedding(ctx, "p2", []float32{0, 0.99}))
	nearest, err = store.NearestEntities(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, nearest, 1)
	assert.Contains(t, []string{"p1", "p2"}, nearest[0].EntityID)
}

func TestEmbeddingValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.StoreEmbedding(ctx, "", []float32{0.1})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.StoreEmbedding(ctx, "p1", nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	_, err = store.NearestEntities(ctx, nil, 5)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
