package exchange

import (
	"fmt"
	"strings"
)

// universallyRequired lists the target keys (normalized) that are marked
// required when the inference engine assigns them. A conservative default,
// not a declared property of the registry.
var universallyRequired = map[string]bool{
	"email":          true,
	"firstname":      true,
	"lastname":       true,
	"name":           true,
	"title":          true,
	"classification": true,
}

// InferMappings proposes a source-column to target-field assignment for the
// given entity. Deterministic and confidence-free: both sides are normalized
// (lowercased, separator characters stripped) and the first field whose label
// or target key matches exactly wins, in registry order.
//
// Existing mappings with a non-empty target field are never overwritten, so
// the engine is safely re-runnable as an "auto-map remaining columns" action.
func InferMappings(columns []string, def EntityDefinition, existing []ColumnMapping) []ColumnMapping {
	prior := make(map[string]ColumnMapping, len(existing))
	for _, m := range existing {
		prior[m.SourceColumn] = m
	}

	// Fields already claimed by an existing mapping are not proposed twice.
	taken := make(map[string]bool, len(existing))
	for _, m := range existing {
		if m.TargetField != "" {
			taken[m.TargetField] = true
		}
	}

	result := make([]ColumnMapping, 0, len(columns))
	for _, col := range columns {
		if m, ok := prior[col]; ok && m.TargetField != "" {
			result = append(result, m)
			continue
		}

		mapping := ColumnMapping{SourceColumn: col}
		if m, ok := prior[col]; ok {
			mapping = m // keep operator-set transform/required on unmapped columns
		}

		normalized := normalizeHeader(col)
		for _, field := range def.Fields {
			if taken[field.TargetField] {
				continue
			}
			if normalizeHeader(field.Label) == normalized || normalizeHeader(field.TargetField) == normalized {
				mapping.TargetField = field.TargetField
				mapping.Required = universallyRequired[normalizeHeader(field.TargetField)]
				taken[field.TargetField] = true
				break
			}
		}

		result = append(result, mapping)
	}

	return result
}

// normalizeHeader lowercases a name and strips spaces, hyphens and underscores.
func normalizeHeader(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	return s
}

// ValidateMappings checks a finalized mapping list before submission.
// It fails when no column has a target field, when a required mapping has an
// empty target field, when two columns claim the same target, or when a
// target is not a field of the given entity (a mapping finalized for one
// entity type cannot be replayed against another). Transform tokens are
// opaque here and interpreted only by the job executor.
func ValidateMappings(def EntityDefinition, mappings []ColumnMapping) error {
	mapped := 0
	targets := make(map[string]string, len(mappings))

	for _, m := range mappings {
		if m.TargetField == "" {
			if m.Required {
				return fmt.Errorf("%w: column %q", ErrRequiredUnmapped, m.SourceColumn)
			}
			continue
		}
		mapped++

		if _, ok := def.FieldByTarget(m.TargetField); !ok {
			return fmt.Errorf("%q is not a field of entity %s", m.TargetField, def.Type)
		}
		if other, dup := targets[m.TargetField]; dup {
			return fmt.Errorf("field %q mapped more than once (columns %q and %q)",
				m.TargetField, other, m.SourceColumn)
		}
		targets[m.TargetField] = m.SourceColumn
	}

	if mapped == 0 {
		return ErrNoMappedColumns
	}
	return nil
}

// ToggleAllColumns implements the bulk column toggle for export selection:
// when every available column is already selected it deselects all, otherwise
// it selects all. Round-tripping twice returns to the starting state.
func ToggleAllColumns(selected, all []string) []string {
	if len(all) == 0 {
		return nil
	}

	chosen := make(map[string]bool, len(selected))
	for _, c := range selected {
		chosen[c] = true
	}

	allSelected := true
	for _, c := range all {
		if !chosen[c] {
			allSelected = false
			break
		}
	}

	if allSelected {
		return []string{}
	}
	out := make([]string, len(all))
	copy(out, all)
	return out
}
