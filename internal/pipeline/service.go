package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rpattn/oigen/internal/domain"
	"github.com/rpattn/oigen/internal/mapper"
	"github.com/rpattn/oigen/internal/repository"
	"github.com/rpattn/oigen/internal/xmlgen"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when an ingestion run is started while another
// one is still executing. The ledger has a single writer per process.
var ErrRunInProgress = errors.New("an import run is already in progress")

// Service turns tabular uploads into batched import XML, recording every
// row's outcome in the status ledger.
type Service struct {
	records  repository.RecordRepository
	settings domain.GeneratorSettings
	running  atomic.Bool
}

// NewService creates a new pipeline service.
func NewService(records repository.RecordRepository, settings domain.GeneratorSettings) *Service {
	return &Service{records: records, settings: settings}
}

// Request describes one ingestion run.
type Request struct {
	FileName string
	Data     io.Reader

	// Mapping overrides the header-derived default when non-nil.
	Mapping domain.Mapping

	// Force reopens settled rows (success / reprocessed) for this run.
	Force bool
}

// Summary returns run level metrics.
type Summary struct {
	TotalRows      int                `json:"totalRows"`
	Succeeded      int                `json:"succeeded"`
	Failed         int                `json:"failed"`
	Skipped        int                `json:"skipped"`
	Stopped        bool               `json:"stopped,omitempty"`
	Containers     []xmlgen.Container `json:"containers"`
	NodeTypeCounts map[string]int     `json:"nodeTypeCounts"`
	RenameScript   string             `json:"renameScript,omitempty"`
}

// Run executes the full pipeline over the uploaded table. Row failures are
// recorded and skipped over; ledger failures abort the run. Cancellation is
// honored between rows and the open container is finalized before returning.
func (s *Service) Run(ctx context.Context, req Request) (Summary, error) {
	summary := Summary{NodeTypeCounts: map[string]int{}}

	if !s.running.CompareAndSwap(false, true) {
		return summary, ErrRunInProgress
	}
	defer s.running.Store(false)

	if req.Data == nil {
		return summary, errors.New("data reader is required")
	}
	if err := s.settings.Validate(); err != nil {
		return summary, fmt.Errorf("invalid generator settings: %w", err)
	}

	payload, err := io.ReadAll(req.Data)
	if err != nil {
		return summary, fmt.Errorf("failed to read upload: %w", err)
	}
	if len(payload) == 0 {
		return summary, errors.New("file is empty")
	}

	table, err := parseTable(req.FileName, payload, s.settings.CSVDelimiter, s.settings.CSVQuote)
	if err != nil {
		return summary, err
	}

	mapping := req.Mapping
	if mapping == nil {
		mapping = domain.DefaultMapping(table.header)
	}
	mapping = mapping.Normalize()
	if err := mapping.Validate(); err != nil {
		return summary, fmt.Errorf("invalid column mapping: %w", err)
	}

	writer, err := xmlgen.NewBatchWriter(s.settings.OutputBase, s.settings.BatchSize)
	if err != nil {
		return summary, err
	}

	force := req.Force || s.settings.ForceReprocess
	cdata := xmlgen.NewCDATAPolicy(s.settings.CDATALabels)
	summary.TotalRows = len(table.rows)

	var renames []domain.FileRename

	// Rows buffered into the currently open container. They stay in
	// processing until the container file actually reaches disk; only then
	// are they transitioned to success.
	type bufferedRow struct {
		id       uuid.UUID
		nodeType string
		fields   domain.TransitionFields
	}
	var buffered []bufferedRow

	settleBuffered := func() error {
		for _, row := range buffered {
			if _, err := s.transition(ctx, row.id, domain.StatusSuccess, row.fields); err != nil {
				return err
			}
			summary.NodeTypeCounts[row.nodeType]++
			summary.Succeeded++
		}
		buffered = buffered[:0]
		return nil
	}
	failBuffered := func(cause error) {
		for _, row := range buffered {
			s.markFailed(ctx, row.id, cause)
			summary.Failed++
		}
		buffered = buffered[:0]
	}

	for i, cells := range table.rows {
		// Row numbering is 1-based everywhere the outside sees it: the
		// ledger, docnums, and fallback display identifiers.
		rowIndex := i + 1

		if ctx.Err() != nil {
			log.Printf("[pipeline] run cancelled after %d rows", i)
			summary.Stopped = true
			break
		}

		raw := domain.NewRawRow(table.header, cells)
		seed := domain.Record{
			RowKey:         raw.Key(rowIndex),
			SourceRowIndex: rowIndex,
			RawData:        raw,
			Mapping:        mapping,
		}

		record, _, err := s.getOrCreate(ctx, seed)
		if err != nil {
			_ = writer.Close()
			return summary, fmt.Errorf("ledger unavailable at row %d: %w", rowIndex, err)
		}

		if repository.ShouldSkip(record, force) {
			summary.Skipped++
			continue
		}

		record, err = s.transition(ctx, record.ID, domain.StatusProcessing, domain.TransitionFields{})
		if err != nil {
			_ = writer.Close()
			return summary, fmt.Errorf("ledger unavailable at row %d: %w", rowIndex, err)
		}

		intermediate, mapErr := mapper.Map(rowIndex, raw, mapping, s.settings)
		if mapErr != nil {
			s.markFailed(ctx, record.ID, mapErr)
			summary.Failed++
			continue
		}

		fragment := xmlgen.Render(intermediate, s.settings.Replacements, cdata)

		container, finalized, err := writer.Append(fragment)
		if err != nil {
			s.markFailed(ctx, record.ID, err)
			summary.Failed++
			failBuffered(err)
			return summary, fmt.Errorf("failed to write container at row %d: %w", rowIndex, err)
		}

		buffered = append(buffered, bufferedRow{
			id:       record.ID,
			nodeType: intermediate.NodeType,
			fields: domain.TransitionFields{
				NodeType:          domain.StringPtr(intermediate.NodeType),
				Action:            domain.StringPtr(intermediate.Action),
				DisplayIdentifier: domain.StringPtr(intermediate.DisplayIdentifier),
				RenderedFragment:  domain.StringPtr(fragment),
				OutputContainer:   domain.StringPtr(container),
			},
		})
		if finalized {
			if err := settleBuffered(); err != nil {
				_ = writer.Close()
				return summary, fmt.Errorf("ledger unavailable at row %d: %w", rowIndex, err)
			}
		}

		if intermediate.FileRename != nil {
			renames = append(renames, *intermediate.FileRename)
		}
	}

	if err := writer.Close(); err != nil {
		failBuffered(err)
		return summary, fmt.Errorf("failed to finalize containers: %w", err)
	}
	if err := settleBuffered(); err != nil {
		return summary, fmt.Errorf("ledger unavailable finalizing run: %w", err)
	}
	summary.Containers = writer.Containers()

	if len(renames) > 0 {
		scriptPath, err := writeRenameScript(s.settings.OutputBase, renames)
		if err != nil {
			return summary, err
		}
		summary.RenameScript = scriptPath
	}

	log.Printf("[pipeline] run complete: %d succeeded, %d failed, %d skipped, %d containers",
		summary.Succeeded, summary.Failed, summary.Skipped, len(summary.Containers))
	return summary, nil
}

// getOrCreate retries once before giving up; a second failure means the
// ledger itself is unhealthy and the run must stop.
func (s *Service) getOrCreate(ctx context.Context, seed domain.Record) (domain.Record, bool, error) {
	record, created, err := s.records.GetOrCreate(ctx, seed)
	if err == nil {
		return record, created, nil
	}
	log.Printf("[pipeline] retrying ledger insert for row %d: %v", seed.SourceRowIndex, err)
	return s.records.GetOrCreate(ctx, seed)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, status domain.Status, fields domain.TransitionFields) (domain.Record, error) {
	record, err := s.records.Transition(ctx, id, status, fields)
	if err == nil {
		return record, nil
	}
	log.Printf("[pipeline] retrying ledger transition to %s: %v", status, err)
	return s.records.Transition(ctx, id, status, fields)
}

func (s *Service) markFailed(ctx context.Context, id uuid.UUID, cause error) {
	_, err := s.transition(ctx, id, domain.StatusFailed, domain.TransitionFields{
		ErrorDetail: cause.Error(),
	})
	if err != nil {
		log.Printf("[pipeline] failed to record row failure: %v", err)
	}
}

// writeRenameScript emits a PowerShell script next to the containers that
// renames the source files whose names were normalized for import.
func writeRenameScript(outputBase string, renames []domain.FileRename) (string, error) {
	abs, err := filepath.Abs(outputBase)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}
	scriptPath := filepath.Join(filepath.Dir(abs), "rename_files.ps1")

	var b strings.Builder
	b.WriteString("# Renames source files to match the file names referenced in the generated import XML.\n")
	for _, r := range renames {
		if r.Original == r.Normalized {
			continue
		}
		fmt.Fprintf(&b, "Rename-Item -LiteralPath %q -NewName %q\n",
			filepath.FromSlash(r.Original), filepath.Base(r.Normalized))
	}

	if err := os.WriteFile(scriptPath, []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write rename script: %w", err)
	}
	return scriptPath, nil
}
