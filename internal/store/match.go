package store

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Query is a filter document.
//
// Each key is a (dotted) field path; each value is either a literal compared
// for equality or an operator object. A scalar literal also matches an array
// field that contains it. Supported operators:
//
//	$in $nin $ne $gt $gte $lt $lte $exists
//
// Top-level $and and $or take arrays of sub-queries. An empty or nil Query
// matches everything.
type Query map[string]any

// Validate reports ErrInvalidQuery for unknown operators or malformed operands.
func (q Query) Validate() error {
	for key, cond := range q {
		switch key {
		case "$and", "$or":
			subs, err := subQueries(key, cond)
			if err != nil {
				return err
			}
			for _, sub := range subs {
				if err := sub.Validate(); err != nil {
					return err
				}
			}
			continue
		}
		if strings.HasPrefix(key, "$") {
			return fmt.Errorf("%w: unknown top-level operator %s", ErrInvalidQuery, key)
		}
		ops, ok := operatorMap(cond)
		if !ok {
			continue
		}
		for op, operand := range ops {
			switch op {
			case "$in", "$nin":
				if _, ok := asSlice(operand); !ok {
					return fmt.Errorf("%w: %s on %s requires an array", ErrInvalidQuery, op, key)
				}
			case "$exists":
				if _, ok := operand.(bool); !ok {
					return fmt.Errorf("%w: $exists on %s requires a boolean", ErrInvalidQuery, key)
				}
			case "$ne", "$gt", "$gte", "$lt", "$lte":
			default:
				return fmt.Errorf("%w: unknown operator %s on %s", ErrInvalidQuery, op, key)
			}
		}
	}
	return nil
}

// Match reports whether doc satisfies q. Call Validate first; unknown
// operators never match.
func Match(doc map[string]any, q Query) bool {
	for key, cond := range q {
		switch key {
		case "$and":
			subs, _ := subQueries(key, cond) //nolint:errcheck // Validated by caller
			for _, sub := range subs {
				if !Match(doc, sub) {
					return false
				}
			}
			continue
		case "$or":
			subs, _ := subQueries(key, cond) //nolint:errcheck // Validated by caller
			matched := false
			for _, sub := range subs {
				if Match(doc, sub) {
					matched = true
					break
				}
			}
			if !matched {
				return false
			}
			continue
		}

		value, present := lookup(doc, key)
		if ops, ok := operatorMap(cond); ok {
			if !matchOperators(value, present, ops) {
				return false
			}
			continue
		}
		if !matchEqual(value, present, cond) {
			return false
		}
	}
	return true
}

func subQueries(key string, cond any) ([]Query, error) {
	items, ok := asSlice(cond)
	if !ok {
		return nil, fmt.Errorf("%w: %s requires an array", ErrInvalidQuery, key)
	}
	subs := make([]Query, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("%w: %s entries must be objects", ErrInvalidQuery, key)
		}
		subs = append(subs, Query(m))
	}
	return subs, nil
}

// lookup resolves a dotted path through nested objects.
func lookup(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// operatorMap returns cond as an operator object when every key starts with '$'.
func operatorMap(cond any) (map[string]any, bool) {
	m, ok := asMap(cond)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func matchOperators(value any, present bool, ops map[string]any) bool {
	for op, operand := range ops {
		var ok bool
		switch op {
		case "$exists":
			want, _ := operand.(bool)
			ok = present == want
		case "$ne":
			ok = !matchEqual(value, present, operand)
		case "$in":
			ok = matchIn(value, present, operand)
		case "$nin":
			ok = !matchIn(value, present, operand)
		case "$gt", "$gte", "$lt", "$lte":
			ok = present && matchCompare(value, op, operand)
		}
		if !ok {
			return false
		}
	}
	return true
}

func matchIn(value any, present bool, operand any) bool {
	candidates, _ := asSlice(operand)
	for _, c := range candidates {
		if matchEqual(value, present, c) {
			return true
		}
	}
	return false
}

// matchEqual compares a field against a literal. A missing field equals nil;
// an array field matches a scalar it contains.
func matchEqual(value any, present bool, want any) bool {
	if !present {
		return want == nil
	}
	if equalValues(value, want) {
		return true
	}
	if items, ok := asSlice(value); ok {
		if _, wantSlice := asSlice(want); !wantSlice {
			for _, item := range items {
				if equalValues(item, want) {
					return true
				}
			}
		}
	}
	return false
}

func matchCompare(value any, op string, operand any) bool {
	var cmp int
	if a, ok := toFloat(value); ok {
		b, ok := toFloat(operand)
		if !ok {
			return false
		}
		switch {
		case a < b:
			cmp = -1
		case a > b:
			cmp = 1
		}
	} else if a, ok := value.(string); ok {
		b, ok := operand.(string)
		if !ok {
			return false
		}
		cmp = strings.Compare(a, b)
	} else {
		return false
	}

	switch op {
	case "$gt":
		return cmp > 0
	case "$gte":
		return cmp >= 0
	case "$lt":
		return cmp < 0
	default:
		return cmp <= 0
	}
}

// equalValues compares decoded JSON values, treating all numeric types alike.
func equalValues(a, b any) bool {
	return reflect.DeepEqual(normalize(a), normalize(b))
}

// normalize converts numbers to float64 and typed containers to generic ones.
func normalize(v any) any {
	if f, ok := toFloat(v); ok {
		return f
	}
	if m, ok := asMap(v); ok {
		out := make(map[string]any, len(m))
		for k, item := range m {
			out[k] = normalize(item)
		}
		return out
	}
	if items, ok := asSlice(v); ok {
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = normalize(item)
		}
		return out
	}
	return v
}

func toFloat(v any) (float64, bool) {
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
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Query:
		return m, true
	}
	return nil, false
}

func asSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []any:
		return s, true
	case []string:
		out := make([]any, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}
