package catalogsync

import (
	"github.com/google/uuid"
)

// DependencyKind names a kind of entity products depend on
type DependencyKind string

const (
	DependencyCategory  DependencyKind = "category"
	DependencyBusiness  DependencyKind = "business"
	DependencyWarehouse DependencyKind = "warehouse"
)

// EntityMap maps remote ids to local ids for one dependency kind.
// It is read-only once built.
type EntityMap struct {
	kind    DependencyKind
	entries map[int64]uuid.UUID
}

// Kind returns the dependency kind of the map
func (m *EntityMap) Kind() DependencyKind {
	return m.kind
}

// Lookup returns the local id bound to remoteID
func (m *EntityMap) Lookup(remoteID int64) (uuid.UUID, bool) {
	if m == nil {
		return uuid.Nil, false
	}
	id, ok := m.entries[remoteID]
	return id, ok
}

// LookupPtr resolves an optional remote reference.
// A nil reference resolves to nil; an unmapped one reports false.
func (m *EntityMap) LookupPtr(remoteID *int64) (*uuid.UUID, bool) {
	if remoteID == nil {
		return nil, true
	}
	id, ok := m.Lookup(*remoteID)
	if !ok {
		return nil, false
	}
	return &id, true
}

// Len returns the number of mappings
func (m *EntityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// EntityMapBuilder accumulates mappings before freezing them into an EntityMap
type EntityMapBuilder struct {
	kind    DependencyKind
	entries map[int64]uuid.UUID
}

// NewEntityMapBuilder creates a builder for the given kind
func NewEntityMapBuilder(kind DependencyKind) *EntityMapBuilder {
	return &EntityMapBuilder{kind: kind, entries: make(map[int64]uuid.UUID)}
}

// Set records a mapping
func (b *EntityMapBuilder) Set(remoteID int64, localID uuid.UUID) {
	b.entries[remoteID] = localID
}

// Build freezes the builder; later Set calls do not affect the returned map
func (b *EntityMapBuilder) Build() *EntityMap {
	entries := make(map[int64]uuid.UUID, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	return &EntityMap{kind: b.kind, entries: entries}
}

// DependencyMaps bundles the maps produced by dependency resolution
type DependencyMaps struct {
	Categories *EntityMap
	Businesses *EntityMap
	Warehouses *EntityMap
}
