package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loupelabs/loupe/pkg/types"
)

func recordExtract(t *testing.T, filename, content string) []types.Entity {
	t.Helper()
	adapter := NewRecordAdapter(nil)
	return adapter.Extract(content, types.FileMetadataFor(filename, int64(len(content))))
}

func TestRecordAdapterKinds(t *testing.T) {
	src := `[
		{"name": "Blue Bottle", "type": "place", "lat": 51.5, "lng": -0.12},
		{"name": "Morning Run", "type": "activity"},
		{"name": "Bike Repair", "category": "service"},
		{"name": "Unlabeled", "lat": 48.85, "lng": 2.35}
	]`
	entities := recordExtract(t, "spots.json", src)

	assert.NotNil(t, findByName(entities, types.EntityKindPlace, "Blue Bottle"))
	assert.NotNil(t, findByName(entities, types.EntityKindActivity, "Morning Run"))
	assert.NotNil(t, findByName(entities, types.EntityKindService, "Bike Repair"))
	assert.NotNil(t, findByName(entities, types.EntityKindPlace, "Unlabeled"),
		"records without a type default to place")

	// Fallback baseline still present underneath.
	require.Len(t, entitiesOfKind(entities, types.EntityKindDocument), 1)
}

func TestRecordAdapterCoordinateValidation(t *testing.T) {
	src := `[
		{"name": "Valid", "lat": 51.5074, "lng": -0.1278},
		{"name": "Nested", "coordinates": {"latitude": 40.7, "longitude": -74.0}},
		{"name": "BadLat", "lat": 95.0, "lng": 10.0},
		{"name": "BadLng", "lat": 10.0, "lng": 200.0},
		{"name": "StringCoords", "lat": "48.85", "lng": "2.35"},
		{"name": "NoCoords", "category": "service"}
	]`
	entities := recordExtract(t, "coords.json", src)

	valid := findByName(entities, types.EntityKindPlace, "Valid")
	require.NotNil(t, valid)
	coords, ok := valid.Metadata["coordinates"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 51.5074, coords["lat"])
	assert.Equal(t, -0.1278, coords["lng"])

	nested := findByName(entities, types.EntityKindPlace, "Nested")
	require.NotNil(t, nested)
	assert.NotNil(t, nested.Metadata["coordinates"])

	for _, name := range []string{"BadLat", "BadLng"} {
		e := findByName(entities, types.EntityKindPlace, name)
		require.NotNil(t, e, name)
		assert.Nil(t, e.Metadata["coordinates"], name)
		assert.NotNil(t, e.Metadata["rawCoordinates"], "%s keeps the invalid values", name)
	}

	str := findByName(entities, types.EntityKindPlace, "StringCoords")
	require.NotNil(t, str)
	assert.NotNil(t, str.Metadata["coordinates"], "numeric strings parse")

	none := findByName(entities, types.EntityKindService, "NoCoords")
	require.NotNil(t, none)
	assert.Nil(t, none.Metadata["coordinates"])
	assert.Nil(t, none.Metadata["rawCoordinates"])
}

func TestRecordAdapterNearbyPlaces(t *testing.T) {
	// Two places roughly 50 meters apart on the same longitude.
	src := `[
		{"name": "Cafe", "lat": 51.50000, "lng": -0.12000},
		{"name": "Bookshop", "lat": 51.50045, "lng": -0.12000},
		{"name": "Faraway", "lat": 48.85660, "lng": 2.35220}
	]`
	adapter := NewRecordAdapter(nil)
	entities := adapter.Extract(src, types.FileMetadataFor("near.json", int64(len(src))))
	rels := adapter.DetectRelationships(entities)

	require.Len(t, rels, 1)
	near := rels[0]
	assert.Equal(t, types.RelReferences, near.Kind)
	assert.Equal(t, "near", near.Metadata["relationshipType"])

	cafe := findByName(entities, types.EntityKindPlace, "Cafe")
	bookshop := findByName(entities, types.EntityKindPlace, "Bookshop")
	assert.Equal(t, cafe.ID, near.Source)
	assert.Equal(t, bookshop.ID, near.Target)

	km, ok := near.Metadata["distanceKm"].(float64)
	require.True(t, ok)
	assert.InDelta(t, 0.05, km, 0.005)
}

func TestRecordAdapterNearThresholdOption(t *testing.T) {
	src := `[
		{"name": "A", "lat": 51.500, "lng": -0.120},
		{"name": "B", "lat": 51.520, "lng": -0.120}
	]`
	meta := types.FileMetadataFor("pair.json", int64(len(src)))

	// Roughly 2.2 km apart: outside the default threshold, inside a 5 km one.
	tight := NewRecordAdapter(nil)
	assert.Empty(t, tight.DetectRelationships(tight.Extract(src, meta)))

	wide := NewRecordAdapter(nil, WithNearThreshold(5))
	assert.Len(t, wide.DetectRelationships(wide.Extract(src, meta)), 1)
}

func TestRecordDistance(t *testing.T) {
	src := `[
		{"name": "London", "lat": 51.5074, "lng": -0.1278},
		{"name": "Paris", "lat": 48.8566, "lng": 2.3522},
		{"name": "Nowhere"}
	]`
	entities := recordExtract(t, "cities.json", src)

	london := findByName(entities, types.EntityKindPlace, "London")
	paris := findByName(entities, types.EntityKindPlace, "Paris")
	nowhere := findByName(entities, types.EntityKindPlace, "Nowhere")

	km, err := Distance(*london, *paris)
	require.NoError(t, err)
	assert.InDelta(t, 343.5, km, 2.0)

	// Distance to itself is zero.
	km, err = Distance(*london, *london)
	require.NoError(t, err)
	assert.InDelta(t, 0, km, 0.0001)

	_, err = Distance(*london, *nowhere)
	require.ErrorIs(t, err, ErrNoCoordinates)
	_, err = Distance(*nowhere, *paris)
	require.ErrorIs(t, err, ErrNoCoordinates)
}

func TestRecordIsOpenAt(t *testing.T) {
	src := `[{
		"name": "Corner Cafe",
		"lat": 51.5, "lng": -0.12,
		"hours": {
			"monday": {"open": "09:00", "close": "17:00"},
			"tuesday": "08:30-12:00",
			"friday": {"open": "00:00", "close": "24:00"},
			"saturday": {"open": "22:00", "close": "02:00"}
		}
	}]`
	entities := recordExtract(t, "cafe.json", src)
	cafe := findByName(entities, types.EntityKindPlace, "Corner Cafe")
	require.NotNil(t, cafe)

	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	tests := []struct {
		name string
		at   time.Time
		open bool
	}{
		{"monday mid-morning", monday.Add(10*time.Hour + 30*time.Minute), true},
		{"monday before opening", monday.Add(8 * time.Hour), false},
		{"monday at close", monday.Add(17 * time.Hour), false},
		{"tuesday string window", monday.AddDate(0, 0, 1).Add(9 * time.Hour), true},
		{"wednesday closed all day", monday.AddDate(0, 0, 2).Add(12 * time.Hour), false},
		{"friday open around the clock", monday.AddDate(0, 0, 4).Add(3 * time.Hour), true},
		{"saturday overnight late", monday.AddDate(0, 0, 5).Add(23 * time.Hour), true},
		{"saturday overnight early", monday.AddDate(0, 0, 5).Add(1 * time.Hour), true},
		{"saturday outside overnight", monday.AddDate(0, 0, 5).Add(12 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.open, IsOpenAt(*cafe, tt.at))
		})
	}

	noHours := types.Entity{ID: "x", Kind: types.EntityKindPlace, Metadata: map[string]interface{}{}}
	assert.False(t, IsOpenAt(noHours, monday))
}

func TestRecordAdapterParentEdges(t *testing.T) {
	src := `[
		{"id": "market", "name": "Borough Market", "lat": 51.5055, "lng": -0.0910},
		{"id": "stall-3", "name": "Cheese Stall", "parent": "market", "lat": 51.5055, "lng": -0.0911},
		{"id": "kiosk", "name": "Info Kiosk", "parent": "unknown-site"}
	]`
	entities := recordExtract(t, "market.json", src)

	market := findByName(entities, types.EntityKindPlace, "Borough Market")
	stall := findByName(entities, types.EntityKindPlace, "Cheese Stall")
	kiosk := findByName(entities, types.EntityKindPlace, "Info Kiosk")
	require.NotNil(t, market)
	require.NotNil(t, stall)
	require.NotNil(t, kiosk)

	partOf := relsOfKind(*stall, types.RelPartOf)
	require.Len(t, partOf, 1)
	assert.Equal(t, market.ID, partOf[0].Target, "parent resolves to the sibling record")

	kioskPartOf := relsOfKind(*kiosk, types.RelPartOf)
	require.Len(t, kioskPartOf, 1)
	assert.Equal(t, "unknown-site", kioskPartOf[0].Target, "unresolved parent keeps the raw value")
}

func TestRecordAdapterGeoJSON(t *testing.T) {
	src := `{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"id": "pier",
				"geometry": {"type": "Point", "coordinates": [-0.118, 51.503]},
				"properties": {"name": "South Pier", "category": "place"}
			},
			{
				"type": "Feature",
				"geometry": {"type": "LineString", "coordinates": [[0, 0], [1, 1]]},
				"properties": {"name": "Ferry Route"}
			}
		]
	}`
	entities := recordExtract(t, "harbor.geojson", src)

	pier := findByName(entities, types.EntityKindPlace, "South Pier")
	require.NotNil(t, pier)
	coords, ok := pier.Metadata["coordinates"].(map[string]interface{})
	require.True(t, ok, "point geometry becomes lat/lng")
	assert.Equal(t, 51.503, coords["lat"])
	assert.Equal(t, -0.118, coords["lng"])

	route := findByName(entities, types.EntityKindPlace, "Ferry Route")
	require.NotNil(t, route)
	assert.Nil(t, route.Metadata["coordinates"], "non-point geometry has no coordinates")
}

func TestRecordAdapterMalformedJSON(t *testing.T) {
	for _, content := range []string{`{"name": "broken"`, `not json at all`, "\x00\x01"} {
		entities := recordExtract(t, "bad.json", content)
		require.Len(t, entitiesOfKind(entities, types.EntityKindDocument), 1)
		diags := entitiesOfKind(entities, types.EntityKindDiagnostic)
		require.Len(t, diags, 1)
		assert.Equal(t, "invalid-json", diags[0].Name)
	}
}

func TestRecordAdapterEmptyInput(t *testing.T) {
	entities := recordExtract(t, "empty.json", "")
	require.Len(t, entitiesOfKind(entities, types.EntityKindDocument), 1)
	assert.Empty(t, entitiesOfKind(entities, types.EntityKindDiagnostic))
}

func TestRecordAdapterDeterministic(t *testing.T) {
	src := `[
		{"name": "A", "lat": 51.5, "lng": -0.12, "tags": ["x", "y"]},
		{"name": "B", "lat": 51.5004, "lng": -0.12}
	]`
	adapter := NewRecordAdapter(nil)
	meta := types.FileMetadataFor("det.json", int64(len(src)))

	a := adapter.Extract(src, meta)
	b := adapter.Extract(src, meta)
	require.Equal(t, a, b)
	require.Equal(t, adapter.DetectRelationships(a), adapter.DetectRelationships(b))
}
