package storage

import (
	"fmt"
	"slices"
	"strings"

	"github.com/loupelabs/loupe/pkg/types"
)

// ApplyQuery runs the store-agnostic part of query evaluation: condition
// filtering, explicit ordering, pagination and performance hints. Backends
// call it after producing their candidate entities; the input order is the
// default order, so a backend expresses "prefer recent" by handing entities
// over most-recently-written first. The input slice is not modified and the
// returned slice is never nil.
func ApplyQuery(entities []types.Entity, q types.Query) []types.Result {
	results := make([]types.Result, 0, len(entities))
	for _, e := range entities {
		if matchesAll(e, q.Conditions) {
			results = append(results, types.Result{Entity: e})
		}
	}

	if len(q.Ordering) > 0 {
		slices.SortStableFunc(results, func(a, b types.Result) int {
			return compareByOrdering(a.Entity, b.Entity, q.Ordering)
		})
	}

	if q.Pagination != nil {
		results = paginate(results, q.Pagination.Offset, q.Pagination.Limit)
	}

	if h := q.PerformanceHints; h != nil {
		if h.MaxResults > 0 && len(results) > h.MaxResults {
			results = results[:h.MaxResults]
		}
		if h.SkipContent {
			for i := range results {
				results[i].Entity.Content = ""
			}
		}
	}

	return results
}

// MatchCondition reports whether the entity satisfies one condition.
//
// Fields resolve as "id", "kind" (alias "type"), "name" and "content" on the
// entity itself; any other field name, with or without a "metadata." prefix,
// looks into the entity's metadata map. A missing field satisfies only
// not_equals.
func MatchCondition(e types.Entity, c types.QueryCondition) bool {
	value, ok := fieldValue(e, c.Field)

	switch c.Operator {
	case types.OpEquals:
		return ok && equalValues(value, c.Value)
	case types.OpNotEquals:
		return !ok || !equalValues(value, c.Value)
	case types.OpContains:
		return ok && strings.Contains(foldString(value), foldString(c.Value))
	case types.OpPrefix:
		return ok && strings.HasPrefix(foldString(value), foldString(c.Value))
	case types.OpIn:
		return ok && valueIn(value, c.Value)
	default:
		return false
	}
}

func matchesAll(e types.Entity, conditions []types.QueryCondition) bool {
	for _, c := range conditions {
		if !MatchCondition(e, c) {
			return false
		}
	}
	return true
}

// fieldValue resolves a condition or ordering field against an entity.
func fieldValue(e types.Entity, field string) (interface{}, bool) {
	switch field {
	case "id":
		return e.ID, true
	case "kind", "type":
		return string(e.Kind), true
	case "name":
		return e.Name, true
	case "content":
		return e.Content, true
	}

	key := strings.TrimPrefix(field, "metadata.")
	if e.Metadata == nil {
		return nil, false
	}
	v, ok := e.Metadata[key]
	return v, ok
}

// equalValues compares with numeric promotion so a condition value of int 3
// matches a metadata value of float64 3 (the shape JSON decoding produces).
func equalValues(a, b interface{}) bool {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			return af == bf
		}
	}
	if ab, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok {
			return ab == bb
		}
	}
	return asString(a) == asString(b)
}

func valueIn(value, set interface{}) bool {
	switch s := set.(type) {
	case []interface{}:
		for _, candidate := range s {
			if equalValues(value, candidate) {
				return true
			}
		}
	case []string:
		for _, candidate := range s {
			if equalValues(value, candidate) {
				return true
			}
		}
	}
	return false
}

// compareByOrdering walks the ordering clauses in sequence and returns the
// first non-equal comparison. Missing fields compare as zero values so they
// group together rather than erroring.
func compareByOrdering(a, b types.Entity, ordering []types.QueryOrdering) int {
	for _, o := range ordering {
		av, _ := fieldValue(a, o.Field)
		bv, _ := fieldValue(b, o.Field)

		c := compareValues(av, bv)
		if c == 0 {
			continue
		}
		if o.Direction == types.OrderDesc {
			return -c
		}
		return c
	}
	return 0
}

func compareValues(a, b interface{}) int {
	if af, aok := asNumber(a); aok {
		if bf, bok := asNumber(b); bok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(asString(a), asString(b))
}

func paginate(results []types.Result, offset, limit int) []types.Result {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []types.Result{}
	}
	results = results[offset:]
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

func asNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func asString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func foldString(v interface{}) string {
	return strings.ToLower(asString(v))
}
