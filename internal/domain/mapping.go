package domain

import (
	"fmt"
	"strings"
)

// MappingMode selects how a source column contributes to the output.
type MappingMode string

const (
	MappingIgnore   MappingMode = "ignore"
	MappingStandard MappingMode = "standard"
	MappingMetadata MappingMode = "metadata"
)

// MappingRule describes the handling for one source column. Category may be
// a comma-separated list; metadata values fan out to every listed category.
type MappingRule struct {
	Mode        MappingMode `json:"mode"`
	TargetLabel string      `json:"targetLabel"`
	Category    string      `json:"category,omitempty"`
}

// ColumnMapping binds a source column name to its rule. Mappings are kept as
// an ordered slice so category and attribute emission order follows the
// configuration, not map iteration.
type ColumnMapping struct {
	Column string      `json:"column"`
	Rule   MappingRule `json:"rule"`
}

// Mapping is the ordered collection of per-column rules.
type Mapping []ColumnMapping

// recognizedStandardLabels is the fixed slot domain for Standard rules.
var recognizedStandardLabels = map[string]struct{}{
	"nodetype": {}, "title": {}, "description": {}, "location": {},
	"created": {}, "modified": {}, "createdby": {}, "createby": {},
	"action": {}, "file": {}, "filepath": {}, "category": {}, "version": {},
	"docnum": {}, "modifiedby": {},
}

// Normalize returns a copy with folded column names, trimmed labels, and
// lower-cased modes.
func (m Mapping) Normalize() Mapping {
	out := make(Mapping, len(m))
	for i, cm := range m {
		out[i] = ColumnMapping{
			Column: NormalizeColumn(cm.Column),
			Rule: MappingRule{
				Mode:        MappingMode(strings.ToLower(strings.TrimSpace(string(cm.Rule.Mode)))),
				TargetLabel: strings.TrimSpace(cm.Rule.TargetLabel),
				Category:    strings.TrimSpace(cm.Rule.Category),
			},
		}
	}
	return out
}

// Validate rejects unknown modes and unrecognized standard target labels.
// These are configuration errors, fatal to the run, never per-row failures.
func (m Mapping) Validate() error {
	for _, cm := range m {
		switch cm.Rule.Mode {
		case MappingIgnore, MappingMetadata:
		case MappingStandard:
			label := strings.ToLower(cm.Rule.TargetLabel)
			if _, ok := recognizedStandardLabels[label]; !ok {
				return fmt.Errorf("column %q: unrecognized standard target label %q", cm.Column, cm.Rule.TargetLabel)
			}
		default:
			return fmt.Errorf("column %q: unknown mapping mode %q", cm.Column, cm.Rule.Mode)
		}
	}
	return nil
}

// Lookup finds the rule for a normalized column name.
func (m Mapping) Lookup(column string) (MappingRule, bool) {
	want := NormalizeColumn(column)
	for _, cm := range m {
		if cm.Column == want {
			return cm.Rule, true
		}
	}
	return MappingRule{}, false
}

// DefaultMapping builds a mapping from a header row: recognized standard
// labels map to Standard slots, everything else becomes Metadata.
func DefaultMapping(header []string) Mapping {
	mapping := make(Mapping, 0, len(header))
	for _, col := range header {
		trimmed := strings.TrimSpace(col)
		rule := MappingRule{Mode: MappingMetadata, TargetLabel: trimmed}
		if _, ok := recognizedStandardLabels[NormalizeColumn(col)]; ok {
			rule.Mode = MappingStandard
		}
		mapping = append(mapping, ColumnMapping{Column: NormalizeColumn(col), Rule: rule})
	}
	return mapping
}
