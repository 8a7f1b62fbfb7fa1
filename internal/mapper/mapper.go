// Package mapper turns a raw source row into the intermediate record the
// serializer renders. Map is a pure function of its inputs: the same row,
// mapping, and settings always produce the same intermediate record, which
// is what makes fragment re-derivation during reconciliation reproducible.
package mapper

import (
	"fmt"
	"log"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/rpattn/oigen/internal/domain"
)

// MappingError marks a per-row failure. The pipeline records it on the
// ledger entry and continues; it never aborts the run.
type MappingError struct {
	RowIndex int
	Reason   string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("row %d: %s", e.RowIndex, e.Reason)
}

// primaryOrder fixes the emission order of standard fields. Labels outside
// this list are appended in sorted order so rendering stays byte-stable.
var primaryOrder = []string{
	"location", "title", "description", "created", "createby",
	"version", "file", "mimetype", "docnum", "createdby",
}

// Map resolves one raw row against the mapping rules and global settings.
// The mapping must already be normalized and validated; unrecognized
// standard labels are a configuration error handled before any row is seen.
func Map(rowIndex int, raw domain.RawRow, mapping domain.Mapping, settings domain.GeneratorSettings) (domain.IntermediateRecord, error) {
	std := map[string]string{}
	var catOrder []string
	metaByCat := map[string][]domain.Field{}
	metaIndex := map[string]map[string]int{}

	// Duplicate labels within a category keep the first position but take
	// the last value.
	addMeta := func(category, label, value string) {
		if _, seen := metaByCat[category]; !seen {
			catOrder = append(catOrder, category)
			metaIndex[category] = map[string]int{}
		}
		if idx, ok := metaIndex[category][label]; ok {
			metaByCat[category][idx].Value = value
			return
		}
		metaIndex[category][label] = len(metaByCat[category])
		metaByCat[category] = append(metaByCat[category], domain.Field{Label: label, Value: value})
	}

	for _, cm := range mapping {
		value, ok := raw.Get(cm.Column)
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)

		switch cm.Rule.Mode {
		case domain.MappingIgnore:
			continue
		case domain.MappingStandard:
			label := strings.ToLower(cm.Rule.TargetLabel)
			std[label] = value
			for _, cat := range splitCategories(cm.Rule.Category) {
				addMeta(cat, cm.Rule.TargetLabel, value)
			}
		case domain.MappingMetadata:
			cats := splitCategories(cm.Rule.Category)
			if len(cats) == 0 && settings.DefaultCategory != "" {
				cats = []string{settings.DefaultCategory}
			}
			if len(cats) == 0 {
				log.Printf("[mapper] row %d: metadata column %q has no category and no default is configured, value dropped", rowIndex, cm.Column)
				continue
			}
			for _, cat := range cats {
				addMeta(cat, cm.Rule.TargetLabel, value)
			}
		}
	}

	applyLocationPrefix(std, settings.LocationPrefix)

	if !settings.UseSourceCreatedBy || std["createdby"] == "" {
		if settings.CreatedByOverride != "" {
			std["createdby"] = settings.CreatedByOverride
		}
	}

	if override := strings.ToLower(settings.ActionOverride); override != "" && override != domain.OverrideNone {
		std["action"] = override
	}
	if override := strings.ToLower(settings.NodeTypeOverride); override != "" && override != domain.OverrideNone {
		std["nodetype"] = override
	}

	rename := normalizeFilePath(rowIndex, std)

	action := strings.ToLower(std["action"])
	if action == domain.ActionUpdateMetadata || action == "update (metadata)" {
		action = domain.ActionUpdate
		std["action"] = action
		delete(std, "file")
		delete(std, "filepath")
	}
	if action == "" {
		// Absent action defaults to sync; an absent node type is an error.
		action = domain.ActionSync
		std["action"] = action
	}

	nodeType := strings.ToLower(std["nodetype"])
	if nodeType == "" {
		return domain.IntermediateRecord{}, &MappingError{RowIndex: rowIndex, Reason: "missing required 'nodetype'"}
	}

	if action != domain.ActionDelete && action != domain.ActionAddVersion && action != domain.ActionUpdate {
		if v, err := strconv.Atoi(strings.TrimSpace(std["version"])); err == nil && v > 1 {
			action = domain.ActionAddVersion
			std["action"] = action
		}
	}

	if nodeType == domain.NodeTypeDocument && std["docnum"] == "" &&
		action != domain.ActionDelete && action != domain.ActionUpdate {
		// Deterministic per row, so regeneration reproduces the same bytes.
		std["docnum"] = strconv.Itoa(settings.DocnumSeed + rowIndex)
	}
	if nodeType == domain.NodeTypeDocument && std["mimetype"] == "" &&
		action != domain.ActionDelete {
		std["mimetype"] = "application/octet-stream"
	}

	if title, ok := std["title"]; ok {
		std["title"] = strings.ReplaceAll(title, ":", "")
	}
	cleanLocationTail(std)

	if action == domain.ActionSync && nodeType == domain.NodeTypeDocument && std["file"] == "" && std["filepath"] == "" {
		return domain.IntermediateRecord{}, &MappingError{RowIndex: rowIndex, Reason: "missing required 'file' for document sync"}
	}

	rec := domain.IntermediateRecord{
		NodeType:   nodeType,
		Action:     action,
		Standard:   orderStandard(std),
		FileRename: rename,
	}
	for _, cat := range catOrder {
		rec.Categories = append(rec.Categories, domain.CategoryBlock{Name: cat, Attributes: metaByCat[cat]})
	}
	rec.DisplayIdentifier = displayIdentifier(rec, rowIndex)

	return rec, nil
}

func splitCategories(raw string) []string {
	var cats []string
	for _, c := range strings.Split(raw, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cats = append(cats, c)
		}
	}
	return cats
}

// applyLocationPrefix fills an absent location from the configured prefix
// and prefixes bare values. A value already containing the ':' segment
// separator is treated as fully qualified and left alone.
func applyLocationPrefix(std map[string]string, prefix string) {
	if prefix == "" {
		return
	}
	loc, ok := std["location"]
	switch {
	case !ok || loc == "":
		std["location"] = prefix
	case !strings.Contains(loc, ":"):
		std["location"] = prefix + ":" + loc
	}
}

// normalizeFilePath rewrites the mapped file path to forward slashes with a
// colon-free base name and resolves the mimetype from the extension. It
// returns a rename instruction when the normalized path differs from the
// source value.
func normalizeFilePath(rowIndex int, std map[string]string) *domain.FileRename {
	key := "file"
	original := std[key]
	if original == "" {
		key = "filepath"
		original = std[key]
	}
	if original == "" {
		return nil
	}

	standardized := strings.ReplaceAll(original, `\`, "/")
	cleaned := path.Clean(standardized)
	dir, base := path.Split(cleaned)
	newBase := strings.ReplaceAll(base, ":", "")

	normalized := newBase
	if dir != "" && dir != "./" {
		normalized = strings.TrimSuffix(dir, "/") + "/" + newBase
	}
	std[key] = normalized

	ext := strings.TrimPrefix(strings.ToLower(path.Ext(newBase)), ".")
	if mime, ok := mimeByExtension[ext]; ok {
		std["mimetype"] = mime
	}

	if normalized != standardized {
		log.Printf("[mapper] row %d: file path normalized from %q to %q", rowIndex, original, normalized)
		return &domain.FileRename{Original: original, Normalized: normalized}
	}
	return nil
}

// cleanLocationTail strips colons from the final location segment while
// keeping the ':' separators between segments intact.
func cleanLocationTail(std map[string]string) {
	loc, ok := std["location"]
	if !ok || !strings.Contains(loc, ":") {
		return
	}
	parts := strings.Split(loc, ":")
	tail := parts[len(parts)-1]
	std["location"] = strings.Join(parts[:len(parts)-1], ":") + ":" + strings.ReplaceAll(tail, ":", "")
}

func orderStandard(std map[string]string) []domain.Field {
	emitted := map[string]bool{"action": true, "nodetype": true}
	fields := make([]domain.Field, 0, len(std))

	for _, label := range primaryOrder {
		if value, ok := std[label]; ok && value != "" {
			fields = append(fields, domain.Field{Label: label, Value: value})
			emitted[label] = true
		}
	}

	var extras []string
	for label, value := range std {
		if !emitted[label] && value != "" {
			extras = append(extras, label)
		}
	}
	sort.Strings(extras)
	for _, label := range extras {
		fields = append(fields, domain.Field{Label: label, Value: std[label]})
	}

	return fields
}

func displayIdentifier(rec domain.IntermediateRecord, rowIndex int) string {
	if title, ok := rec.StandardValue("title"); ok && strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if loc, ok := rec.StandardValue("location"); ok && strings.TrimSpace(loc) != "" {
		return strings.TrimSpace(loc)
	}
	return fmt.Sprintf("Row_%d_Object", rowIndex)
}
