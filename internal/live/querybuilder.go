package live

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/inventory-gateway/internal/store"
)

// TokenPrefix marks a template value as "substitute parameter <rest>".
const TokenPrefix = "$:"

// QueryBuilder binds request parameters into a resource's template query.
type QueryBuilder struct {
	Template    store.Query
	KeyParam    string
	AllowSingle bool
	AllowIndex  bool
}

// Build resolves every token in the template against params and applies the
// key parameter policy. The template itself is never modified.
func (b QueryBuilder) Build(params Params) (store.Query, error) {
	resolved, err := resolve(map[string]any(b.Template), params)
	if err != nil {
		return nil, err
	}
	q, _ := resolved.(map[string]any)
	if q == nil {
		q = map[string]any{}
	}

	key, hasKey := params[b.KeyParam]
	switch {
	case hasKey && key != nil:
		if !b.AllowSingle {
			return nil, fmt.Errorf("%w: %s may not be bound", ErrAccessDenied, b.KeyParam)
		}
		if !isScalar(key) {
			return nil, fmt.Errorf("%w: %s must be a scalar", ErrAccessDenied, b.KeyParam)
		}
		q[store.FieldID] = key
	case !b.AllowIndex:
		return nil, fmt.Errorf("%w: %s", ErrMissingParameter, b.KeyParam)
	}

	return store.Query(q), nil
}

// resolve returns a deep copy of v with every token replaced.
func resolve(v any, params Params) (any, error) {
	switch val := v.(type) {
	case string:
		name, ok := strings.CutPrefix(val, TokenPrefix)
		if !ok {
			return val, nil
		}
		bound := params[name]
		if bound == nil {
			return nil, fmt.Errorf("%w: %s", ErrMissingParameter, name)
		}
		// Operator objects would widen the template's scope.
		if !isScalar(bound) {
			return nil, fmt.Errorf("%w: %s must be a scalar", ErrAccessDenied, name)
		}
		return bound, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			r, err := resolve(item, params)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case store.Query:
		return resolve(map[string]any(val), params)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			r, err := resolve(item, params)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return val, nil
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, float64, float32, int, int32, int64, json.Number:
		return true
	default:
		return false
	}
}
