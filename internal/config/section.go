package config

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingKey = errors.New("config: missing key")
	ErrWrongType  = errors.New("config: wrong value type")
)

// Section is a nested key/value configuration tree addressed with dotted paths.
// Nested tables are map[string]any values; decoders for every supported format
// produce that shape.
type Section map[string]any

// Lookup returns the raw value stored at path.
func (s Section) Lookup(path string) (any, bool) {
	if s == nil {
		return nil, false
	}
	parts := splitPath(path)
	if len(parts) == 0 {
		return nil, false
	}
	var cur any = map[string]any(s)
	for _, part := range parts {
		table, ok := asTable(cur)
		if !ok {
			return nil, false
		}
		cur, ok = table[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// Has reports whether path is defined.
func (s Section) Has(path string) bool {
	_, ok := s.Lookup(path)
	return ok
}

// String returns the string stored at path.
func (s Section) String(path string) (string, error) {
	raw, ok := s.Lookup(path)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingKey, path)
	}
	switch v := raw.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%w: %s is %T, want string", ErrWrongType, path, raw)
	}
}

// Int returns the integer stored at path.
func (s Section) Int(path string) (int, error) {
	raw, ok := s.Lookup(path)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, path)
	}
	v, ok := toInt(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %s is %T, want integer", ErrWrongType, path, raw)
	}
	return v, nil
}

// Bool returns the boolean stored at path.
func (s Section) Bool(path string) (bool, error) {
	raw, ok := s.Lookup(path)
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrMissingKey, path)
	}
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: %s: %v", ErrWrongType, path, err)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %s is %T, want bool", ErrWrongType, path, raw)
	}
}

// Duration accepts either a Go duration string or an integer count of milliseconds.
func (s Section) Duration(path string) (time.Duration, error) {
	raw, ok := s.Lookup(path)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrMissingKey, path)
	}
	if str, ok := raw.(string); ok {
		d, err := time.ParseDuration(strings.TrimSpace(str))
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %v", ErrWrongType, path, err)
		}
		return d, nil
	}
	if ms, ok := toInt(raw); ok {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, fmt.Errorf("%w: %s is %T, want duration", ErrWrongType, path, raw)
}

// Strings returns the list of strings stored at path.
func (s Section) Strings(path string) ([]string, error) {
	raw, ok := s.Lookup(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, path)
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrWrongType, path, i, item)
			}
			out = append(out, str)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want string list", ErrWrongType, path, raw)
	}
}

func (s Section) StringOr(path, def string) string {
	if v, err := s.String(path); err == nil {
		return v
	}
	return def
}

func (s Section) IntOr(path string, def int) int {
	if v, err := s.Int(path); err == nil {
		return v
	}
	return def
}

func (s Section) BoolOr(path string, def bool) bool {
	if v, err := s.Bool(path); err == nil {
		return v
	}
	return def
}

func (s Section) DurationOr(path string, def time.Duration) time.Duration {
	if v, err := s.Duration(path); err == nil {
		return v
	}
	return def
}

// Sub returns the table at path, or an empty section.
func (s Section) Sub(path string) Section {
	raw, ok := s.Lookup(path)
	if !ok {
		return Section{}
	}
	table, ok := asTable(raw)
	if !ok {
		return Section{}
	}
	return Section(table)
}

// Set stores value at path, creating intermediate tables. It mutates s and returns it.
func (s Section) Set(path string, value any) Section {
	parts := splitPath(path)
	if len(parts) == 0 {
		return s
	}
	table := map[string]any(s)
	for _, part := range parts[:len(parts)-1] {
		next, ok := asTable(table[part])
		if !ok {
			next = make(map[string]any)
			table[part] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value
	return s
}

// WithFallback returns a deep copy of s where keys missing from s are taken from fallback.
func (s Section) WithFallback(fallback Section) Section {
	out := fallback.Clone()
	if out == nil {
		out = Section{}
	}
	mergeInto(out, s)
	return out
}

// Clone returns a deep copy of the tables in s; leaf values are shared.
func (s Section) Clone() Section {
	if s == nil {
		return nil
	}
	return Section(cloneTable(s))
}

// Keys returns the top-level keys in sorted order.
func (s Section) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func mergeInto(dst map[string]any, src map[string]any) {
	for k, v := range src {
		srcTable, srcIsTable := asTable(v)
		dstTable, dstIsTable := asTable(dst[k])
		if srcIsTable && dstIsTable {
			merged := cloneTable(dstTable)
			mergeInto(merged, srcTable)
			dst[k] = merged
			continue
		}
		if srcIsTable {
			dst[k] = cloneTable(srcTable)
			continue
		}
		dst[k] = v
	}
}

func cloneTable(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if table, ok := asTable(v); ok {
			out[k] = cloneTable(table)
			continue
		}
		out[k] = v
	}
	return out
}

func asTable(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case Section:
		return map[string]any(t), true
	default:
		return nil, false
	}
}

func splitPath(path string) []string {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	parts := strings.Split(path, ".")
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}
	return parts
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int8:
		return int(n), true
	case int16:
		return int(n), true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint:
		return int(n), true
	case uint8:
		return int(n), true
	case uint16:
		return int(n), true
	case uint32:
		return int(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	case float32:
		if float64(n) != math.Trunc(float64(n)) {
			return 0, false
		}
		return int(n), true
	default:
		return 0, false
	}
}
