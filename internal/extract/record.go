package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/loupelabs/loupe/pkg/types"
)

// ErrNoCoordinates is returned by Distance when an endpoint has no valid
// coordinates.
var ErrNoCoordinates = errors.New("extract: entity has no coordinates")

const earthRadiusKm = 6371.0

// defaultNearThresholdKm is how close two places must be for a proximity
// relationship.
const defaultNearThresholdKm = 0.5

// RecordAdapter extracts structured JSON records describing places,
// activities, and services. It understands flat record objects, arrays of
// records, and GeoJSON Feature/FeatureCollection documents.
//
// Coordinates are validated but invalid values are kept under
// rawCoordinates rather than dropped, so bad data stays visible. Malformed
// JSON degrades to the fallback baseline plus a diagnostic entity.
type RecordAdapter struct {
	fallback        *FallbackAdapter
	nearThresholdKm float64
}

// RecordOption configures a RecordAdapter.
type RecordOption func(*RecordAdapter)

// WithNearThreshold sets the distance in kilometers under which two located
// records count as near each other.
func WithNearThreshold(km float64) RecordOption {
	return func(a *RecordAdapter) {
		if km > 0 {
			a.nearThresholdKm = km
		}
	}
}

// NewRecordAdapter creates a record adapter around the given fallback
// extractor.
func NewRecordAdapter(fallback *FallbackAdapter, opts ...RecordOption) *RecordAdapter {
	if fallback == nil {
		fallback = NewFallbackAdapter()
	}
	a := &RecordAdapter{
		fallback:        fallback,
		nearThresholdKm: defaultNearThresholdKm,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Adapter.
func (a *RecordAdapter) Name() string { return "record" }

// Extensions implements Adapter.
func (a *RecordAdapter) Extensions() []string {
	return []string{".json", ".geojson"}
}

// Extract implements Adapter: fallback baseline first, then one entity per
// record.
func (a *RecordAdapter) Extract(content string, meta types.FileMetadata) []types.Entity {
	origin := originKey(meta)
	entities := a.fallback.Extract(content, meta)

	records, err := decodeRecords(content)
	if err != nil {
		entities = append(entities, diagnosticEntity(origin, "invalid-json", err.Error(), nil))
		return entities
	}

	recordEntities := make([]types.Entity, 0, len(records))
	for i, fields := range records {
		recordEntities = append(recordEntities, buildRecordEntity(fields, origin, i+1))
	}
	attachParentEdges(recordEntities)

	return append(entities, recordEntities...)
}

// decodeRecords parses the content into an ordered list of record field
// maps. Arrays yield one record per element, GeoJSON features yield one
// record per feature, and any other object is a single record.
func decodeRecords(content string) ([]map[string]interface{}, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, nil
	}

	var raw interface{}
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return nil, fmt.Errorf("parse records: %w", err)
	}

	switch v := raw.(type) {
	case []interface{}:
		var out []map[string]interface{}
		for _, item := range v {
			if fields, ok := item.(map[string]interface{}); ok {
				out = append(out, fields)
			}
		}
		return out, nil
	case map[string]interface{}:
		switch v["type"] {
		case "FeatureCollection":
			features, _ := v["features"].([]interface{})
			var out []map[string]interface{}
			for _, item := range features {
				if f, ok := item.(map[string]interface{}); ok {
					out = append(out, featureToRecord(f))
				}
			}
			return out, nil
		case "Feature":
			return []map[string]interface{}{featureToRecord(v)}, nil
		}
		return []map[string]interface{}{v}, nil
	default:
		// Scalar JSON values carry no records.
		return nil, nil
	}
}

// featureToRecord flattens a GeoJSON feature into a record: properties
// become fields and a Point geometry becomes lat/lng.
func featureToRecord(feature map[string]interface{}) map[string]interface{} {
	fields := map[string]interface{}{}
	if props, ok := feature["properties"].(map[string]interface{}); ok {
		for k, v := range props {
			fields[k] = v
		}
	}
	if id, ok := feature["id"]; ok {
		if _, exists := fields["id"]; !exists {
			fields["id"] = id
		}
	}
	geom, _ := feature["geometry"].(map[string]interface{})
	if geom != nil && geom["type"] == "Point" {
		if coords, ok := geom["coordinates"].([]interface{}); ok && len(coords) >= 2 {
			// GeoJSON order is [lng, lat].
			fields["lng"] = coords[0]
			fields["lat"] = coords[1]
		}
	}
	return fields
}

// buildRecordEntity turns one record's fields into an entity.
func buildRecordEntity(fields map[string]interface{}, origin string, ordinal int) types.Entity {
	kind := recordKind(fields)
	name := recordName(fields, ordinal)

	meta := map[string]interface{}{
		"entityType": string(kind),
		"ordinal":    ordinal,
	}
	for k, v := range fields {
		switch k {
		case "lat", "latitude", "lng", "lon", "longitude", "coordinates", "coords":
			continue
		}
		meta[k] = v
	}

	if point, raw, ok := recordCoordinates(fields); ok {
		meta["coordinates"] = map[string]interface{}{
			"lat": point.Lat,
			"lng": point.Lng,
		}
	} else if raw != nil {
		meta["rawCoordinates"] = raw
	}

	key := recordKey(fields, ordinal)
	content, _ := json.Marshal(fields)
	return types.Entity{
		ID:       entityID(string(kind), origin, key),
		Kind:     kind,
		Name:     name,
		Content:  string(content),
		Metadata: meta,
	}
}

// recordKind classifies a record from its type-ish fields, defaulting to
// place.
func recordKind(fields map[string]interface{}) types.EntityKind {
	for _, key := range []string{"type", "category", "kind"} {
		v, ok := fields[key].(string)
		if !ok {
			continue
		}
		switch strings.ToLower(v) {
		case "place", "location", "venue", "poi":
			return types.EntityKindPlace
		case "activity", "event":
			return types.EntityKindActivity
		case "service", "amenity":
			return types.EntityKindService
		}
	}
	return types.EntityKindPlace
}

func recordName(fields map[string]interface{}, ordinal int) string {
	for _, key := range []string{"name", "title", "label"} {
		if v, ok := fields[key].(string); ok && v != "" {
			return v
		}
	}
	return fmt.Sprintf("record %d", ordinal)
}

func recordKey(fields map[string]interface{}, ordinal int) interface{} {
	if v, ok := fields["id"].(string); ok && v != "" {
		return v
	}
	if v, ok := fields["id"].(float64); ok {
		return v
	}
	return ordinal
}

// recordCoordinates reads lat/lng from flat fields or a nested coordinates
// object. ok is true only when both values parse and sit inside the valid
// ranges; otherwise the raw value is returned for safekeeping.
func recordCoordinates(fields map[string]interface{}) (point geoPoint, raw interface{}, ok bool) {
	source := fields
	if nested, found := nestedCoordinates(fields); found {
		source = nested
	}

	lat, latOK := coordFloat(firstField(source, "lat", "latitude"))
	lng, lngOK := coordFloat(firstField(source, "lng", "lon", "longitude"))
	if !latOK && !lngOK {
		return geoPoint{}, nil, false
	}

	raw = map[string]interface{}{
		"lat": firstField(source, "lat", "latitude"),
		"lng": firstField(source, "lng", "lon", "longitude"),
	}
	if !latOK || !lngOK {
		return geoPoint{}, raw, false
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geoPoint{}, raw, false
	}
	return geoPoint{Lat: lat, Lng: lng}, raw, true
}

func nestedCoordinates(fields map[string]interface{}) (map[string]interface{}, bool) {
	for _, key := range []string{"coordinates", "coords", "location"} {
		if nested, ok := fields[key].(map[string]interface{}); ok {
			return nested, true
		}
	}
	return nil, false
}

func firstField(fields map[string]interface{}, keys ...string) interface{} {
	for _, key := range keys {
		if v, ok := fields[key]; ok {
			return v
		}
	}
	return nil
}

func coordFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// attachParentEdges adds part-of edges for records that declare a parent,
// resolving the parent to a sibling record by id or name when possible.
func attachParentEdges(entities []types.Entity) {
	byKey := map[string]string{}
	for _, e := range entities {
		if id, ok := e.Metadata["id"].(string); ok && id != "" {
			byKey[id] = e.ID
		}
		if _, exists := byKey[e.Name]; !exists {
			byKey[e.Name] = e.ID
		}
	}

	for i := range entities {
		parent, ok := entities[i].Metadata["parent"].(string)
		if !ok || parent == "" {
			continue
		}
		target := parent
		if id, found := byKey[parent]; found && id != entities[i].ID {
			target = id
		}
		entities[i].Relationships = append(entities[i].Relationships, types.Relationship{
			Kind:     types.RelPartOf,
			Source:   entities[i].ID,
			Target:   target,
			Metadata: map[string]interface{}{"parent": parent},
		})
	}
}

// DetectRelationships implements RelationshipDetector: located records
// within the near threshold of each other get a proximity edge, one per
// pair.
func (a *RecordAdapter) DetectRelationships(entities []types.Entity) []types.Relationship {
	type located struct {
		id    string
		point geoPoint
	}
	var places []located
	for _, e := range entities {
		if point, ok := entityCoordinates(e); ok {
			places = append(places, located{id: e.ID, point: point})
		}
	}

	var rels []types.Relationship
	for i := 0; i < len(places); i++ {
		for j := i + 1; j < len(places); j++ {
			km := haversineKm(places[i].point, places[j].point)
			if km > a.nearThresholdKm {
				continue
			}
			rels = append(rels, types.Relationship{
				Kind:   types.RelReferences,
				Source: places[i].id,
				Target: places[j].id,
				Metadata: map[string]interface{}{
					"relationshipType": "near",
					"distanceKm":       km,
				},
			})
		}
	}
	return rels
}

// geoPoint is a validated latitude/longitude pair.
type geoPoint struct {
	Lat float64
	Lng float64
}

// entityCoordinates reads the validated coordinates an extraction stored on
// an entity.
func entityCoordinates(e types.Entity) (geoPoint, bool) {
	coords, ok := e.Metadata["coordinates"].(map[string]interface{})
	if !ok {
		return geoPoint{}, false
	}
	lat, latOK := coordFloat(coords["lat"])
	lng, lngOK := coordFloat(coords["lng"])
	if !latOK || !lngOK {
		return geoPoint{}, false
	}
	return geoPoint{Lat: lat, Lng: lng}, true
}

// Distance returns the great-circle distance between two located entities
// in kilometers. Both endpoints must carry valid coordinates.
func Distance(a, b types.Entity) (float64, error) {
	pa, ok := entityCoordinates(a)
	if !ok {
		return 0, fmt.Errorf("distance from %s: %w", a.ID, ErrNoCoordinates)
	}
	pb, ok := entityCoordinates(b)
	if !ok {
		return 0, fmt.Errorf("distance to %s: %w", b.ID, ErrNoCoordinates)
	}
	return haversineKm(pa, pb), nil
}

func haversineKm(a, b geoPoint) float64 {
	latA := a.Lat * math.Pi / 180
	latB := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(latA)*math.Cos(latB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

// IsOpenAt reports whether a record with an hours schedule is open at the
// given time. The schedule maps lowercase weekday names to open/close
// windows; a day with open equal to close, or a close of 24:00, is open all
// day, and a window that wraps past midnight spans into the next morning.
func IsOpenAt(e types.Entity, at time.Time) bool {
	hours, ok := e.Metadata["hours"].(map[string]interface{})
	if !ok {
		return false
	}
	day := strings.ToLower(at.Weekday().String())
	window, ok := hours[day]
	if !ok {
		return false
	}

	open, end, ok := parseHoursWindow(window)
	if !ok {
		return false
	}
	minute := at.Hour()*60 + at.Minute()
	switch {
	case open == end:
		return true
	case open < end:
		return minute >= open && minute < end
	default:
		return minute >= open || minute < end
	}
}

// parseHoursWindow reads a window as {"open": "09:00", "close": "17:00"} or
// "09:00-17:00", returning minutes since midnight.
func parseHoursWindow(v interface{}) (open, end int, ok bool) {
	switch w := v.(type) {
	case map[string]interface{}:
		openStr, _ := w["open"].(string)
		closeStr, _ := w["close"].(string)
		return clockWindow(openStr, closeStr)
	case string:
		parts := strings.SplitN(w, "-", 2)
		if len(parts) != 2 {
			return 0, 0, false
		}
		return clockWindow(parts[0], parts[1])
	}
	return 0, 0, false
}

func clockWindow(openStr, closeStr string) (open, end int, ok bool) {
	open, openOK := parseClock(openStr)
	end, endOK := parseClock(closeStr)
	if !openOK || !endOK {
		return 0, 0, false
	}
	// A 24:00 close wraps to midnight, making a full-day or overnight
	// window.
	if end == 24*60 {
		end = 0
	}
	return open, end, true
}

// parseClock reads "HH:MM" into minutes since midnight, accepting 24:00 as
// end of day.
func parseClock(s string) (int, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	total := h*60 + m
	if total > 24*60 {
		return 0, false
	}
	return total, true
}
