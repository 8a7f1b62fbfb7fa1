package domain

import (
	"fmt"
	"strings"
)

// Action and node type override values accepted by the generator.
const (
	OverrideNone         = "none"
	ActionSync           = "sync"
	ActionAddVersion     = "addversion"
	ActionDelete         = "delete"
	ActionUpdate         = "update"
	ActionUpdateMetadata = "update-metadata"
	NodeTypeFolder       = "folder"
	NodeTypeDocument     = "document"
)

// Replacement is one ordered special-character substitution rule.
type Replacement struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// DefaultReplacements mirrors the replacement set the target system needs:
// ampersands spelled out, curly quotes straightened.
func DefaultReplacements() []Replacement {
	return []Replacement{
		{From: "&", To: "and"},
		{From: "’", To: "'"},
		{From: "“", To: `"`},
		{From: "”", To: `"`},
	}
}

// GeneratorSettings is the global configuration consumed by the mapper,
// serializer, and pipeline. It is resolved once per run; per-row data never
// mutates it.
type GeneratorSettings struct {
	ActionOverride     string        `mapstructure:"action_override"`
	NodeTypeOverride   string        `mapstructure:"node_type_override"`
	DefaultCategory    string        `mapstructure:"default_category"`
	LocationPrefix     string        `mapstructure:"location_prefix"`
	CreatedByOverride  string        `mapstructure:"created_by_override"`
	UseSourceCreatedBy bool          `mapstructure:"use_source_created_by"`
	BatchSize          int           `mapstructure:"batch_size"`
	CDATALabels        []string      `mapstructure:"cdata_labels"`
	ForceReprocess     bool          `mapstructure:"force_reprocess"`
	CSVDelimiter       string        `mapstructure:"csv_delimiter"`
	CSVQuote           string        `mapstructure:"csv_quote"`
	OutputBase         string        `mapstructure:"output_base"`
	DocnumSeed         int           `mapstructure:"docnum_seed"`
	Replacements       []Replacement `mapstructure:"replacements"`
}

// DefaultGeneratorSettings returns the defaults the original tool shipped
// with; the configuration file overrides individual fields.
func DefaultGeneratorSettings() GeneratorSettings {
	return GeneratorSettings{
		ActionOverride:     ActionSync,
		NodeTypeOverride:   NodeTypeFolder,
		UseSourceCreatedBy: true,
		BatchSize:          7000,
		CDATALabels:        []string{"*"},
		OutputBase:         "import.xml",
		DocnumSeed:         100000,
		Replacements:       DefaultReplacements(),
	}
}

// Validate catches configuration errors before any row is touched.
func (s GeneratorSettings) Validate() error {
	if s.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", s.BatchSize)
	}
	switch strings.ToLower(s.ActionOverride) {
	case OverrideNone, ActionSync, ActionAddVersion, ActionDelete, ActionUpdateMetadata, "":
	default:
		return fmt.Errorf("unknown action override %q", s.ActionOverride)
	}
	switch strings.ToLower(s.NodeTypeOverride) {
	case OverrideNone, NodeTypeFolder, NodeTypeDocument, "":
	default:
		return fmt.Errorf("unknown node type override %q", s.NodeTypeOverride)
	}
	return nil
}
