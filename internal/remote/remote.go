// Package remote holds behaviour shared by RemoteStore implementations.
package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"budgetbuddy/internal/ports"
)

// CleanPath trims surrounding slashes and rejects empty segments.
func CleanPath(path string) (string, error) {
	p := strings.Trim(path, "/")
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	for _, seg := range strings.Split(p, "/") {
		if strings.TrimSpace(seg) == "" {
			return "", fmt.Errorf("empty segment in path %q", path)
		}
	}
	return p, nil
}

// Join builds a path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// Split returns the parent path and last key of path.
func Split(path string) (parent, key string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// ApplyQuery orders children and applies LimitToLast. Children missing the
// ordering field sort first. Ties break on key.
func ApplyQuery(children []ports.Child, q ports.Query) []ports.Child {
	sort.SliceStable(children, func(i, j int) bool {
		if q.OrderBy == "" {
			return children[i].Key < children[j].Key
		}
		c := compareValues(children[i].Value[q.OrderBy], children[j].Value[q.OrderBy])
		if c != 0 {
			return c < 0
		}
		return children[i].Key < children[j].Key
	})
	if q.LimitToLast > 0 && len(children) > q.LimitToLast {
		children = children[len(children)-q.LimitToLast:]
	}
	return children
}

// compareValues orders nil < bool < number < string, comparing within a kind.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		default:
			return 1
		}
	case 2:
		af, bf := toFloat(a), toFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	case 3:
		return strings.Compare(a.(string), b.(string))
	}
	return 0
}

func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case float64, float32, int, int32, int64, json.Number:
		return 2
	case string:
		return 3
	default:
		return 4
	}
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	}
	return 0
}

// Clone deep-copies a record via a JSON round trip, normalising numbers to
// json.Number the same way every backend does on read.
func Clone(r ports.Record) (ports.Record, error) {
	if r == nil {
		return nil, nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return Decode(b)
}

// Decode parses a stored JSON document into a Record, keeping numbers as json.Number.
func Decode(b []byte) (ports.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out ports.Record
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}
