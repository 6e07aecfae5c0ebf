// Package param holds the in-memory patch model and the static tables that
// map symbolic parameter names onto bytes and bit fields of a patch dump.
package param

import (
	"sort"
)

// Parameter declares the legal inclusive range of a named value.
type Parameter struct {
	Name     string
	Min, Max int
}

// Clamp limits v to the declared range.
func (p Parameter) Clamp(v int) int {
	if v < p.Min {
		return p.Min
	}
	if v > p.Max {
		return p.Max
	}
	return v
}

// Model is one patch: named integer parameters plus identity fields.
type Model struct {
	Bank   int
	Number int
	Name   string

	// Studio and StudioName identify the auxiliary studio object a
	// multi-object format references. Formats without studios leave them zero.
	Studio     int
	StudioName string

	values map[string]int
	ranges map[string]Parameter
}

func NewModel() *Model {
	return &Model{
		values: make(map[string]int),
		ranges: make(map[string]Parameter),
	}
}

// Declare registers the range of a parameter. A value already present is
// clamped to the new range.
func (m *Model) Declare(p Parameter) {
	m.ranges[p.Name] = p
	if v, ok := m.values[p.Name]; ok {
		m.values[p.Name] = p.Clamp(v)
	}
}

// Range returns the declared range of key.
func (m *Model) Range(key string) (Parameter, bool) {
	p, ok := m.ranges[key]
	return p, ok
}

// Set stores v under key, clamped to the declared range if there is one,
// and returns the stored value.
func (m *Model) Set(key string, v int) int {
	if p, ok := m.ranges[key]; ok {
		v = p.Clamp(v)
	}
	m.values[key] = v
	return v
}

func (m *Model) Get(key string) (int, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Value returns the value of key, or zero when it is not set.
func (m *Model) Value(key string) int {
	return m.values[key]
}

func (m *Model) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

func (m *Model) Delete(key string) {
	delete(m.values, key)
}

func (m *Model) Len() int {
	return len(m.values)
}

// Keys returns the set parameter names in sorted order.
func (m *Model) Keys() []string {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a deep copy of m.
func (m *Model) Clone() *Model {
	c := *m
	c.values = make(map[string]int, len(m.values))
	for k, v := range m.values {
		c.values[k] = v
	}
	c.ranges = make(map[string]Parameter, len(m.ranges))
	for k, p := range m.ranges {
		c.ranges[k] = p
	}
	return &c
}

// Equal reports whether m and o have the same identity fields and values.
func (m *Model) Equal(o *Model) bool {
	if m.Bank != o.Bank || m.Number != o.Number || m.Name != o.Name ||
		m.Studio != o.Studio || m.StudioName != o.StudioName {
		return false
	}
	if len(m.values) != len(o.values) {
		return false
	}
	for k, v := range m.values {
		if w, ok := o.values[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Diff lists the keys in names whose values differ between m and o,
// including keys set in only one of them.
func (m *Model) Diff(o *Model, names []string) []string {
	var diff []string
	for _, k := range names {
		a, aok := m.values[k]
		b, bok := o.values[k]
		if a != b || aok != bok {
			diff = append(diff, k)
		}
	}
	return diff
}
