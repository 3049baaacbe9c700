package exchange

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]EntityDefinition)
	registryMu sync.RWMutex
)

// Register adds an entity definition to the registry.
// Panics if an entity with the same type is already registered.
func Register(def EntityDefinition) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[def.Type]; exists {
		panic(fmt.Sprintf("entity already registered: %s", def.Type))
	}
	if len(def.Fields) == 0 {
		panic(fmt.Sprintf("entity %s registered without fields", def.Type))
	}

	registry[def.Type] = def
}

// Lookup returns an entity definition by type.
// Returns false if not found.
func Lookup(entityType string) (EntityDefinition, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	def, ok := registry[entityType]
	return def, ok
}

// AllEntities returns all registered entity definitions.
// Sorted by type for consistent ordering.
func AllEntities() []EntityDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]EntityDefinition, 0, len(registry))
	for _, def := range registry {
		result = append(result, def)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Type < result[j].Type
	})

	return result
}

// EntityCount returns the number of registered entity types.
func EntityCount() int {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return len(registry)
}

// ClearRegistry removes all registered entities.
// Primarily useful for testing.
func ClearRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]EntityDefinition)
}

// AllTargetFields returns the target field keys of an entity in registry
// order. Used as the default column selection for exports.
func (d EntityDefinition) AllTargetFields() []string {
	fields := make([]string, len(d.Fields))
	for i, f := range d.Fields {
		fields[i] = f.TargetField
	}
	return fields
}

// FieldByTarget returns the field spec for a target key.
func (d EntityDefinition) FieldByTarget(target string) (FieldSpec, bool) {
	for _, f := range d.Fields {
		if f.TargetField == target {
			return f, true
		}
	}
	return FieldSpec{}, false
}
