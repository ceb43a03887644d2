package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/internal/config"
	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/internal/storage"
	"github.com/loupelabs/loupe/pkg/types"
)

// newHandlerEngine builds a started engine over a fresh in-memory store
// with the built-in lens lineup. Handler tests exercise the real engine
// rather than a mock: the handlers are thin and the interesting behavior
// is in the wiring.
func newHandlerEngine(t *testing.T) (*engine.ContextEngine, *storage.MemoryStore) {
	t.Helper()

	store := storage.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{
		Security: config.SecurityConfig{SecurityMode: "development"},
		Lenses: config.LensesConfig{
			EnableDebugging:     true,
			EnableDocumentation: true,
		},
	}

	eng, err := engine.FromConfig(store, cfg)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(func() { _ = eng.Shutdown(context.Background()) })

	return eng, store
}

// seedGraph stores a small chain a -> b -> c with one entity per kind the
// tests filter on.
func seedGraph(t *testing.T, store *storage.MemoryStore) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.PutEntities(ctx, "seed", []types.Entity{
		{ID: "a", Kind: types.EntityKindFunction, Name: "alpha"},
		{ID: "b", Kind: types.EntityKindClass, Name: "beta"},
		{ID: "c", Kind: types.EntityKindDocument, Name: "gamma"},
	}))
	require.NoError(t, store.PutRelationships(ctx, "seed", []types.Relationship{
		{Kind: types.RelCalls, Source: "a", Target: "b"},
		{Kind: types.RelCalls, Source: "b", Target: "c"},
	}))
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		validateBody   func(t *testing.T, body []byte)
	}{
		{
			name:           "markdown content routed to fallback adapter",
			body:           `{"content": "# Title\n\nA paragraph.", "path": "notes.md"}`,
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp ExtractResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "notes.md", resp.Source)
				assert.Equal(t, "fallback", resp.Adapter)
				assert.Greater(t, resp.Entities, 0)
			},
		},
		{
			name:           "typescript content routed to code adapter",
			body:           `{"content": "export function hello() { return 1; }", "path": "src/app.ts"}`,
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp ExtractResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, "code", resp.Adapter)
				assert.Greater(t, resp.Entities, 0)
			},
		},
		{
			name:           "missing content and path",
			body:           `{}`,
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Contains(t, resp.Error, "content or path")
			},
		},
		{
			name:           "invalid JSON body",
			body:           `{nope`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, _ := newHandlerEngine(t)
			h := NewGraphHandlers(eng, &config.Config{})

			req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()

			h.Extract(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.validateBody != nil {
				tt.validateBody(t, rec.Body.Bytes())
			}
		})
	}
}

func TestExtract_SecondPassReplacesFirst(t *testing.T) {
	eng, store := newHandlerEngine(t)
	h := NewGraphHandlers(eng, &config.Config{})

	post := func(body string) ExtractResponse {
		req := httptest.NewRequest(http.MethodPost, "/api/extract", bytes.NewBufferString(body))
		rec := httptest.NewRecorder()
		h.Extract(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp ExtractResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return resp
	}

	first := post(`{"content": "# One\n\nBody.", "path": "doc.md"}`)
	assert.Equal(t, 0, first.Replaced, "nothing to replace on first extraction")

	second := post(`{"content": "# Two\n\nDifferent body.", "path": "doc.md"}`)
	assert.Equal(t, first.Entities, second.Replaced, "re-extraction should replace the first pass")

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Entities, stats.TotalEntities, "store should hold only the second pass")
}

func TestQuery(t *testing.T) {
	tests := []struct {
		name           string
		request        QueryRequest
		expectedStatus int
		validateBody   func(t *testing.T, body []byte)
	}{
		{
			name:           "empty query returns everything",
			request:        QueryRequest{},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp engine.QueryResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, 3, resp.Total)
				assert.Empty(t, resp.AppliedLenses, "no context means no lens activation")
			},
		},
		{
			name: "kind filter",
			request: QueryRequest{
				Query: types.Query{
					Conditions: []types.QueryCondition{
						{Field: "kind", Operator: types.OpEquals, Value: "function"},
					},
				},
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp engine.QueryResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				require.Equal(t, 1, resp.Total)
				assert.Equal(t, "a", resp.Results[0].Entity.ID)
			},
		},
		{
			name: "manual override pins activation",
			request: QueryRequest{
				Activation: &types.ActivationContext{ManualOverride: "debugging"},
			},
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var resp engine.QueryResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Equal(t, []string{"debugging"}, resp.AppliedLenses)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, store := newHandlerEngine(t)
			seedGraph(t, store)
			h := NewGraphHandlers(eng, &config.Config{})

			body, err := json.Marshal(tt.request)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBuffer(body))
			rec := httptest.NewRecorder()

			h.Query(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.validateBody != nil {
				tt.validateBody(t, rec.Body.Bytes())
			}
		})
	}
}

func TestQuery_InvalidJSON(t *testing.T) {
	eng, _ := newHandlerEngine(t)
	h := NewGraphHandlers(eng, &config.Config{})

	req := httptest.NewRequest(http.MethodPost, "/api/query", bytes.NewBufferString(`{"query":`))
	rec := httptest.NewRecorder()

	h.Query(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetEntity(t *testing.T) {
	tests := []struct {
		name           string
		entityID       string
		expectedStatus int
		validateBody   func(t *testing.T, body []byte)
	}{
		{
			name:           "existing entity",
			entityID:       "a",
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var entity types.Entity
				require.NoError(t, json.Unmarshal(body, &entity))
				assert.Equal(t, "a", entity.ID)
				assert.Equal(t, types.EntityKindFunction, entity.Kind)
				assert.Equal(t, "alpha", entity.Name)
			},
		},
		{
			name:           "unknown entity",
			entityID:       "missing",
			expectedStatus: http.StatusNotFound,
			validateBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Contains(t, resp.Error, "missing")
			},
		},
		{
			name:           "empty id",
			entityID:       "",
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, store := newHandlerEngine(t)
			seedGraph(t, store)
			h := NewGraphHandlers(eng, &config.Config{})

			req := httptest.NewRequest(http.MethodGet, "/api/entities/"+tt.entityID, nil)
			req.SetPathValue("id", tt.entityID)
			rec := httptest.NewRecorder()

			h.GetEntity(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.validateBody != nil {
				tt.validateBody(t, rec.Body.Bytes())
			}
		})
	}
}

func TestTraverse(t *testing.T) {
	tests := []struct {
		name           string
		queryParams    string
		expectedStatus int
		validateBody   func(t *testing.T, body []byte)
	}{
		{
			name:           "two hops outgoing",
			queryParams:    "?node_id=a&max_depth=2",
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var result struct {
					VisitedNodes      []string `json:"visitedNodes"`
					Depth             int      `json:"depth"`
					TotalNodesVisited int      `json:"totalNodesVisited"`
					HasCycle          bool     `json:"hasCycle"`
				}
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, []string{"a", "b", "c"}, result.VisitedNodes)
				assert.Equal(t, 2, result.Depth)
				assert.Equal(t, 3, result.TotalNodesVisited)
				assert.False(t, result.HasCycle)
			},
		},
		{
			name:           "default depth stops after one hop",
			queryParams:    "?node_id=a&max_depth=1",
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var result struct {
					VisitedNodes []string `json:"visitedNodes"`
				}
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, []string{"a", "b"}, result.VisitedNodes)
			},
		},
		{
			name:           "incoming direction",
			queryParams:    "?node_id=c&max_depth=2&direction=incoming",
			expectedStatus: http.StatusOK,
			validateBody: func(t *testing.T, body []byte) {
				var result struct {
					VisitedNodes []string `json:"visitedNodes"`
				}
				require.NoError(t, json.Unmarshal(body, &result))
				assert.Equal(t, []string{"c", "b", "a"}, result.VisitedNodes)
			},
		},
		{
			name:           "missing node_id",
			queryParams:    "",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "invalid direction",
			queryParams:    "?node_id=a&direction=sideways",
			expectedStatus: http.StatusBadRequest,
			validateBody: func(t *testing.T, body []byte) {
				var resp ErrorResponse
				require.NoError(t, json.Unmarshal(body, &resp))
				assert.Contains(t, resp.Error, "sideways")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, store := newHandlerEngine(t)
			seedGraph(t, store)
			h := NewGraphHandlers(eng, &config.Config{})

			req := httptest.NewRequest(http.MethodGet, "/api/traverse"+tt.queryParams, nil)
			rec := httptest.NewRecorder()

			h.Traverse(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.validateBody != nil {
				tt.validateBody(t, rec.Body.Bytes())
			}
		})
	}
}

func TestConnected(t *testing.T) {
	eng, store := newHandlerEngine(t)
	seedGraph(t, store)
	h := NewGraphHandlers(eng, &config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/connected?node_id=b&depth=1", nil)
	rec := httptest.NewRecorder()

	h.Connected(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		NodeID    string   `json:"nodeId"`
		Connected []string `json:"connected"`
		Total     int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "b", resp.NodeID)
	assert.ElementsMatch(t, []string{"a", "c"}, resp.Connected, "one hop in both directions")
	assert.Equal(t, 2, resp.Total)
}

func TestConnected_UnknownNode(t *testing.T) {
	eng, _ := newHandlerEngine(t)
	h := NewGraphHandlers(eng, &config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/connected?node_id=ghost", nil)
	rec := httptest.NewRecorder()

	h.Connected(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Connected []string `json:"connected"`
		Total     int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Connected, "a node with no edges has no connections")
	assert.Equal(t, 0, resp.Total)
}

func TestConnected_MissingNodeID(t *testing.T) {
	eng, _ := newHandlerEngine(t)
	h := NewGraphHandlers(eng, &config.Config{})

	req := httptest.NewRequest(http.MethodGet, "/api/connected", nil)
	rec := httptest.NewRecorder()

	h.Connected(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestParseTraversalDirection(t *testing.T) {
	tests := []struct {
		input    string
		expected types.Direction
		wantErr  bool
	}{
		{"", types.DirectionOutgoing, false},
		{"outgoing", types.DirectionOutgoing, false},
		{"incoming", types.DirectionIncoming, false},
		{"both", types.DirectionBoth, false},
		{"BOTH", types.DirectionBoth, false},
		{"diagonal", "", true},
	}

	for _, tt := range tests {
		t.Run("input_"+tt.input, func(t *testing.T) {
			got, err := parseTraversalDirection(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestParseInt(t *testing.T) {
	assert.Equal(t, 7, parseInt("7", 2))
	assert.Equal(t, 2, parseInt("", 2))
	assert.Equal(t, 2, parseInt("seven", 2))
	assert.Equal(t, -3, parseInt("-3", 2))
}
