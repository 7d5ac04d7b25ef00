package domain

import (
	"fmt"
	"sort"
)

// Record maps destination field names to converted values. A nil value means
// the source explicitly left the field blank.
type Record map[string]any

// Int64 returns an integer field.
func (r Record) Int64(key string) (int64, bool) {
	value, ok := r[key]
	if !ok || value == nil {
		return 0, false
	}
	v, ok := value.(int64)
	return v, ok
}

// String returns a string field, empty when missing or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Keys returns the field names in sorted order.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Format renders a value for human consumption.
func Format(value any) string {
	if value == nil {
		return "<blank>"
	}
	return fmt.Sprint(value)
}
