package live

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"math"
	"slices"
	"strings"
)

// Params are the values bound to one request, taken from the frame body.
type Params map[string]any

// String returns the named parameter if it is a non-empty string.
func (p Params) String(name string) (string, bool) {
	s, ok := p[name].(string)
	return s, ok && s != ""
}

// With returns a copy of p with name set to value.
func (p Params) With(name string, value any) Params {
	out := make(Params, len(p)+1)
	for k, v := range p {
		out[k] = v
	}
	out[name] = value
	return out
}

// Hash returns a structural FNV-64a hash of p. Equal parameter sets hash
// equally regardless of map iteration order; integer and float encodings of
// the same number hash equally.
func (p Params) Hash() uint64 {
	h := fnv.New64a()
	hashValue(h, map[string]any(p))
	return h.Sum64()
}

// Type tags keep values of different kinds from colliding ("1" vs 1).
const (
	tagNil    = 'n'
	tagFalse  = 'f'
	tagTrue   = 't'
	tagNumber = 'd'
	tagString = 's'
	tagArray  = 'a'
	tagObject = 'o'
	tagOther  = 'x'
)

func hashValue(h hash.Hash64, v any) {
	var buf [9]byte
	switch val := v.(type) {
	case nil:
		h.Write([]byte{tagNil})
	case bool:
		if val {
			h.Write([]byte{tagTrue})
		} else {
			h.Write([]byte{tagFalse})
		}
	case string:
		hashString(h, tagString, val)
	case []any:
		buf[0] = tagArray
		binary.BigEndian.PutUint64(buf[1:], uint64(len(val)))
		h.Write(buf[:])
		for _, item := range val {
			hashValue(h, item)
		}
	case map[string]any:
		hashObject(h, val)
	case Params:
		hashObject(h, val)
	default:
		if f, ok := number(val); ok {
			buf[0] = tagNumber
			binary.BigEndian.PutUint64(buf[1:], math.Float64bits(f))
			h.Write(buf[:])
			return
		}
		hashString(h, tagOther, fmt.Sprintf("%T:%v", val, val))
	}
}

func hashObject(h hash.Hash64, m map[string]any) {
	var buf [9]byte
	buf[0] = tagObject
	binary.BigEndian.PutUint64(buf[1:], uint64(len(m)))
	h.Write(buf[:])

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		hashString(h, tagString, k)
		hashValue(h, m[k])
	}
}

// hashString writes tag, length and bytes so adjacent strings cannot merge.
func hashString(h hash.Hash64, tag byte, s string) {
	var buf [9]byte
	buf[0] = tag
	binary.BigEndian.PutUint64(buf[1:], uint64(len(s)))
	h.Write(buf[:])
	h.Write([]byte(s))
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		if n == 0 {
			return 0, true // folds -0 into 0
		}
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
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// singularize strips a plural suffix from an English collection name.
func singularize(word string) string {
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 3:
		return word[:len(word)-3] + "y"
	case strings.HasSuffix(word, "sses"), strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "ches"), strings.HasSuffix(word, "shes"):
		return word[:len(word)-2]
	case strings.HasSuffix(word, "ss"):
		return word
	case strings.HasSuffix(word, "s") && len(word) > 1:
		return word[:len(word)-1]
	}
	return word
}

// lowerCamel joins words split on '-', '_', '.' and spaces as lowerCamelCase.
func lowerCamel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	var b strings.Builder
	for i, part := range parts {
		if i == 0 {
			b.WriteString(strings.ToLower(part[:1]) + part[1:])
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	return b.String()
}

// DefaultKeyParam derives the key parameter for collection: the singular,
// lower-camel-cased name plus "Id" ("nodes" becomes "nodeId").
func DefaultKeyParam(collection string) string {
	return singularize(lowerCamel(collection)) + "Id"
}
