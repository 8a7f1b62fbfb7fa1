// Package reprocess reconciles the target system's failure report against
// the status ledger and regenerates import XML for the rows the operator
// decides to re-import.
package reprocess

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/oigen/internal/domain"
	"github.com/rpattn/oigen/internal/mapper"
	"github.com/rpattn/oigen/internal/repository"
	"github.com/rpattn/oigen/internal/xmlgen"

	"github.com/google/uuid"
)

const xmlHeader = `<?xml version="1.0" encoding="utf-8"?>` + "\n"

// Service reconciles failure reports and exports reprocess documents.
type Service struct {
	records  repository.RecordRepository
	settings domain.GeneratorSettings
}

// NewService creates a new reprocess service.
func NewService(records repository.RecordRepository, settings domain.GeneratorSettings) *Service {
	return &Service{records: records, settings: settings}
}

// ParseFailureReport reads the target system's failure report. The report is
// a sequence of comment tokens carrying the error text, each followed by the
// <node> element it refers to. The node's title (or location when no title
// is present) identifies the failed row.
func ParseFailureReport(r io.Reader) ([]domain.FailureEntry, error) {
	decoder := xml.NewDecoder(r)
	decoder.Strict = false

	var entries []domain.FailureEntry
	var pendingError string

	for {
		token, err := decoder.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse failure report: %w", err)
		}

		switch t := token.(type) {
		case xml.Comment:
			text := strings.TrimSpace(string(t))
			if after, ok := strings.CutPrefix(text, "Error:"); ok {
				pendingError = strings.TrimSpace(after)
			}
		case xml.StartElement:
			if t.Name.Local != "node" {
				continue
			}
			identifier, err := extractIdentifier(decoder)
			if err != nil {
				return nil, err
			}
			if identifier == "" {
				log.Printf("[reprocess] skipping node with no title or location in failure report")
				pendingError = ""
				continue
			}
			entries = append(entries, domain.FailureEntry{
				Identifier:   identifier,
				ErrorMessage: pendingError,
			})
			pendingError = ""
		}
	}

	return entries, nil
}

// extractIdentifier walks one <node> subtree and returns the title text,
// falling back to location when no title element is present.
func extractIdentifier(decoder *xml.Decoder) (string, error) {
	var title, location string
	var current string
	depth := 1

	for depth > 0 {
		token, err := decoder.Token()
		if err != nil {
			return "", fmt.Errorf("failure report node truncated: %w", err)
		}
		switch t := token.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				current = t.Name.Local
			}
		case xml.EndElement:
			depth--
			current = ""
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" {
				break
			}
			switch current {
			case "title":
				title += text
			case "location":
				location += text
			}
		}
	}

	if title != "" {
		return title, nil
	}
	return location, nil
}

// Reconcile matches failure entries against the ledger. A single match gets
// its fragment regenerated from the stored raw data; zero matches suggest a
// skip; multiple matches are surfaced as ambiguous with every candidate
// identity and no suggested re-import.
func (s *Service) Reconcile(ctx context.Context, entries []domain.FailureEntry) ([]domain.ReprocessCandidate, error) {
	candidates := make([]domain.ReprocessCandidate, 0, len(entries))

	for _, entry := range entries {
		candidate := domain.ReprocessCandidate{
			Identifier:    entry.Identifier,
			ReportedError: entry.ErrorMessage,
		}

		matches, err := s.records.FindByDisplayIdentifier(ctx, entry.Identifier)
		if err != nil {
			return nil, fmt.Errorf("failed to look up %q in ledger: %w", entry.Identifier, err)
		}

		switch len(matches) {
		case 0:
			candidate.SuggestedAction = domain.CandidateSkip
		case 1:
			candidate.RecordID = matches[0].ID
			fragment, regenErr := s.regenerate(matches[0])
			if regenErr != nil {
				candidate.SuggestedAction = domain.CandidateSkip
				candidate.RegenerationError = regenErr.Error()
				break
			}
			candidate.Fragment = fragment
			candidate.SuggestedAction = domain.CandidateReImport
		default:
			candidate.Ambiguous = true
			candidate.SuggestedAction = domain.CandidateSkip
			for _, match := range matches {
				candidate.MatchIDs = append(candidate.MatchIDs, match.ID)
			}
		}

		candidates = append(candidates, candidate)
	}

	return candidates, nil
}

// regenerate re-derives the XML fragment from the stored raw data under the
// mapping the row was ingested with, so the result is byte-identical to the
// original render. Records from before mappings were persisted fall back to
// the header-derived default.
func (s *Service) regenerate(record domain.Record) (string, error) {
	if len(record.RawData) == 0 {
		return "", fmt.Errorf("record %s has no stored raw data", record.ID)
	}

	mapping := record.Mapping
	if len(mapping) == 0 {
		mapping = domain.DefaultMapping(record.RawData.Columns())
	}
	mapping = mapping.Normalize()

	intermediate, err := mapper.Map(record.SourceRowIndex, record.RawData, mapping, s.settings)
	if err != nil {
		return "", fmt.Errorf("failed to re-derive record %s: %w", record.ID, err)
	}

	cdata := xmlgen.NewCDATAPolicy(s.settings.CDATALabels)
	return xmlgen.Render(intermediate, s.settings.Replacements, cdata), nil
}

// ExportResult reports what an export run produced.
type ExportResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Export regenerates the fragments for the given records, writes them into a
// single <import> document, and transitions each record to reprocessed.
func (s *Service) Export(ctx context.Context, ids []uuid.UUID, outputPath string) (ExportResult, error) {
	result := ExportResult{}
	if len(ids) == 0 {
		return result, errors.New("no records selected for reprocess export")
	}
	if strings.TrimSpace(outputPath) == "" {
		outputPath = filepath.Join(filepath.Dir(s.settings.OutputBase), "reprocess.xml")
	}
	abs, err := filepath.Abs(outputPath)
	if err != nil {
		return result, fmt.Errorf("resolve reprocess output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return result, fmt.Errorf("ensure reprocess output directory: %w", err)
	}

	type exportItem struct {
		id       uuid.UUID
		fragment string
	}
	items := make([]exportItem, 0, len(ids))

	for _, id := range ids {
		record, err := s.records.GetByID(ctx, id)
		if err != nil {
			return result, fmt.Errorf("failed to load record %s: %w", id, err)
		}
		fragment, err := s.regenerate(record)
		if err != nil {
			return result, err
		}
		items = append(items, exportItem{id: id, fragment: fragment})
	}

	var doc strings.Builder
	doc.WriteString(xmlHeader)
	doc.WriteString("<import>")
	for _, item := range items {
		doc.WriteString(item.fragment)
	}
	doc.WriteString("</import>")

	if err := writeDocument(abs, doc.String()); err != nil {
		return result, err
	}

	for _, item := range items {
		if _, err := s.records.Transition(ctx, item.id, domain.StatusReprocessed, domain.TransitionFields{
			OutputContainer: domain.StringPtr(abs),
		}); err != nil {
			return result, fmt.Errorf("failed to mark record %s reprocessed: %w", item.id, err)
		}
	}

	log.Printf("[reprocess] exported %d records to %s", len(items), abs)
	result.Path = abs
	result.Count = len(items)
	return result, nil
}

func writeDocument(path, content string) error {
	tempFile, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp reprocess file: %w", err)
	}
	tempPath := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = tempFile.Close()
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.WriteString(content); err != nil {
		return fmt.Errorf("write reprocess document: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		return fmt.Errorf("sync reprocess document: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close reprocess document: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("promote reprocess document: %w", err)
	}
	cleanup = false
	return nil
}
