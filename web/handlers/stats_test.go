package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getStats(t *testing.T, h *StatsHandler) StatsResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rec := httptest.NewRecorder()
	h.GetStats(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetStats_EmptyGraph(t *testing.T) {
	eng, _ := newHandlerEngine(t)
	h := NewStatsHandler(eng)

	resp := getStats(t, h)

	require.NotNil(t, resp.Graph)
	assert.Equal(t, 0, resp.Graph.TotalEntities)
	assert.Equal(t, 0, resp.Graph.TotalRelationships)
	assert.Equal(t, 2, resp.RegisteredLenses)
	assert.Empty(t, resp.ActiveLenses)
	assert.Equal(t, []string{"code", "record", "narrative"}, resp.Adapters,
		"adapters in registration order")
}

func TestGetStats_SeededGraph(t *testing.T) {
	eng, store := newHandlerEngine(t)
	seedGraph(t, store)
	h := NewStatsHandler(eng)

	resp := getStats(t, h)

	require.NotNil(t, resp.Graph)
	assert.Equal(t, 3, resp.Graph.TotalEntities)
	assert.Equal(t, 2, resp.Graph.TotalRelationships)
	assert.Equal(t, 1, resp.Graph.EntitiesByKind["function"])
	assert.Equal(t, 1, resp.Graph.EntitiesByKind["class"])
	assert.Equal(t, 1, resp.Graph.EntitiesByKind["document"])
	assert.Equal(t, 2, resp.Graph.RelationshipsByKind["calls"])
}

func TestGetStats_ReflectsActiveLenses(t *testing.T) {
	eng, _ := newHandlerEngine(t)
	sh := NewStatsHandler(eng)
	ch := NewContextHandlers(eng)

	req := httptest.NewRequest(http.MethodPost, "/api/context",
		bytes.NewBufferString(`{"currentFiles": ["crash.log"]}`))
	rec := httptest.NewRecorder()
	ch.UpdateContext(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := getStats(t, sh)
	assert.Equal(t, []string{"debugging"}, resp.ActiveLenses)
}
