// Package kv holds flat, dot-keyed configuration values ("llm.provider")
// with the lenient typed reads every config store shares.
package kv

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

// Values is a concurrency-safe flat key/value map.
type Values struct {
	mu sync.RWMutex
	m  map[string]any
}

// New copies initial into a fresh Values.
func New(initial map[string]any) *Values {
	v := &Values{m: make(map[string]any, len(initial))}
	maps.Copy(v.m, initial)
	return v
}

func (v *Values) Get(key string) (any, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	val, ok := v.m[key]
	return val, ok
}

func (v *Values) GetString(key string) string {
	s, _ := lookup[string](v, key)
	return s
}

// GetInt accepts the integer shapes TOML and callers produce.
func (v *Values) GetInt(key string) int {
	val, _ := v.Get(key)
	switch n := val.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func (v *Values) GetBool(key string) bool {
	b, _ := lookup[bool](v, key)
	return b
}

// GetDuration accepts a time.Duration or a string such as "6h".
func (v *Values) GetDuration(key string) time.Duration {
	val, _ := v.Get(key)
	switch d := val.(type) {
	case time.Duration:
		return d
	case string:
		parsed, err := time.ParseDuration(d)
		if err == nil {
			return parsed
		}
	}
	return 0
}

// Keys returns every key in sorted order.
func (v *Values) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Sorted(maps.Keys(v.m))
}

// Set stores value under key and returns a func restoring the previous
// state of that key.
func (v *Values) Set(key string, value any) (undo func()) {
	v.mu.Lock()
	defer v.mu.Unlock()

	prev, existed := v.m[key]
	v.m[key] = value
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if existed {
			v.m[key] = prev
		} else {
			delete(v.m, key)
		}
	}
}

// Replace swaps the whole map.
func (v *Values) Replace(m map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.m = m
}

// Snapshot returns a copy of the current values.
func (v *Values) Snapshot() map[string]any {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return maps.Clone(v.m)
}

func lookup[T any](v *Values, key string) (T, bool) {
	val, _ := v.Get(key)
	t, ok := val.(T)
	return t, ok
}

// Flatten turns nested tables into dot keys: {"a": {"b": 1}} becomes
// {"a.b": 1}.
func Flatten(nested map[string]any) map[string]any {
	flat := make(map[string]any)
	flattenInto(flat, "", nested)
	return flat
}

func flattenInto(dst map[string]any, prefix string, m map[string]any) {
	for k, val := range m {
		if prefix != "" {
			k = prefix + "." + k
		}
		if table, ok := val.(map[string]any); ok {
			flattenInto(dst, k, table)
			continue
		}
		dst[k] = val
	}
}

// Nest is the inverse of Flatten. It fails when a key is both a value and
// a table ("a" and "a.b").
func Nest(flat map[string]any) (map[string]any, error) {
	root := make(map[string]any)
	for _, key := range slices.Sorted(maps.Keys(flat)) {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			switch child := node[part].(type) {
			case nil:
				next := make(map[string]any)
				node[part] = next
				node = next
			case map[string]any:
				node = child
			default:
				return nil, fmt.Errorf("config key %q conflicts with value at %q", key, part)
			}
		}

		leaf := parts[len(parts)-1]
		if _, taken := node[leaf]; taken {
			return nil, fmt.Errorf("config key %q conflicts with an existing table", key)
		}
		node[leaf] = flat[key]
	}
	return root, nil
}
