package nav

import (
	"errors"
	"fmt"
	"sort"
)

// ErrFieldNotFound is returned for an unknown field key.
var ErrFieldNotFound = errors.New("nav: flow field not found")

// FieldManager keeps the flow fields built for different move orders and
// tracks which of them went stale after a cost change.
//
// Instead of one path search per agent, every agent of an order samples the
// same field: for 100 agents with one goal that is 1 field build instead of
// 100 searches.
type FieldManager struct {
	fields map[string]*managedField
	active string
}

type managedField struct {
	field *FlowField
	dest  GridIndex
	stale bool
}

// NewFieldManager creates an empty manager.
func NewFieldManager() *FieldManager {
	return &FieldManager{fields: make(map[string]*managedField)}
}

// Build computes a field toward dest for units, stores it under key and
// makes it active. An existing field under key is replaced.
func (m *FieldManager) Build(key string, grid *Grid, dest GridIndex, units []UnitID) (*FlowField, error) {
	f, err := BuildFlowField(grid, dest, units)
	if err != nil {
		return nil, fmt.Errorf("build field %q: %w", key, err)
	}
	m.fields[key] = &managedField{field: f, dest: dest}
	m.active = key
	return f, nil
}

// Get returns the field stored under key.
func (m *FieldManager) Get(key string) (*FlowField, bool) {
	mf, ok := m.fields[key]
	if !ok {
		return nil, false
	}
	return mf.field, true
}

// Active returns the most recently built field, if any.
func (m *FieldManager) Active() (string, *FlowField, bool) {
	mf, ok := m.fields[m.active]
	if !ok {
		return "", nil, false
	}
	return m.active, mf.field, true
}

// SetActive selects which stored field is active.
func (m *FieldManager) SetActive(key string) error {
	if _, ok := m.fields[key]; !ok {
		return fmt.Errorf("%w: %q", ErrFieldNotFound, key)
	}
	m.active = key
	return nil
}

// Keys returns the stored field keys in sorted order.
func (m *FieldManager) Keys() []string {
	keys := make([]string, 0, len(m.fields))
	for k := range m.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of stored fields.
func (m *FieldManager) Len() int { return len(m.fields) }

// MarkStale flags every field whose snapshot predates revision and returns
// how many were newly flagged.
func (m *FieldManager) MarkStale(revision uint64) int {
	n := 0
	for _, mf := range m.fields {
		if !mf.stale && mf.field.GridRevision < revision {
			mf.stale = true
			n++
		}
	}
	return n
}

// MarkAllStale flags every field regardless of revision.
func (m *FieldManager) MarkAllStale() {
	for _, mf := range m.fields {
		mf.stale = true
	}
}

// Stale returns the keys of stale fields in sorted order.
func (m *FieldManager) Stale() []string {
	var keys []string
	for k, mf := range m.fields {
		if mf.stale {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// IsStale reports whether the field under key is flagged stale.
func (m *FieldManager) IsStale(key string) bool {
	mf, ok := m.fields[key]
	return ok && mf.stale
}

// Rebuild recomputes one stored field against the current grid, keeping
// its destination and units.
func (m *FieldManager) Rebuild(key string, grid *Grid) (*FlowField, error) {
	mf, ok := m.fields[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFieldNotFound, key)
	}
	f, err := BuildFlowField(grid, mf.dest, mf.field.Units)
	if err != nil {
		return nil, fmt.Errorf("rebuild field %q: %w", key, err)
	}
	mf.field = f
	mf.stale = false
	return f, nil
}

// Remove deletes a field. Removing the active field leaves no field active.
func (m *FieldManager) Remove(key string) {
	delete(m.fields, key)
	if m.active == key {
		m.active = ""
	}
}

// DiscardStale removes every stale field and returns their keys.
func (m *FieldManager) DiscardStale() []string {
	keys := m.Stale()
	for _, k := range keys {
		m.Remove(k)
	}
	return keys
}

// Clear removes all fields.
func (m *FieldManager) Clear() {
	m.fields = make(map[string]*managedField)
	m.active = ""
}
