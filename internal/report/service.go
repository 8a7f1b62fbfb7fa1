// Package report summarizes the status ledger for operators: how many rows
// landed in each state, what the successful output looked like, and which
// rows still need attention.
package report

import (
	"context"
	"fmt"

	"github.com/rpattn/oigen/internal/domain"
	"github.com/rpattn/oigen/internal/repository"

	"github.com/google/uuid"
)

// Service builds ledger reports.
type Service struct {
	records repository.RecordRepository
}

// NewService creates a new report service.
func NewService(records repository.RecordRepository) *Service {
	return &Service{records: records}
}

// FailedItem is one row that needs attention.
type FailedItem struct {
	ID                uuid.UUID `json:"id"`
	SourceRowIndex    int       `json:"sourceRowIndex"`
	DisplayIdentifier string    `json:"displayIdentifier,omitempty"`
	ErrorDetail       string    `json:"errorDetail"`
}

// Report is the full ledger summary.
type Report struct {
	StatusCounts   map[domain.Status]int `json:"statusCounts"`
	NodeTypeCounts map[string]int        `json:"nodeTypeCounts"`
	FailedItems    []FailedItem          `json:"failedItems"`
}

// Build assembles the report: counts per status, node-type breakdown of the
// successful rows, and the current failure list.
func (s *Service) Build(ctx context.Context, limit int) (Report, error) {
	report := Report{FailedItems: []FailedItem{}}

	statusCounts, err := s.records.StatusCounts(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to load status counts: %w", err)
	}
	report.StatusCounts = statusCounts

	nodeTypeCounts, err := s.records.NodeTypeCounts(ctx, domain.StatusSuccess)
	if err != nil {
		return report, fmt.Errorf("failed to load node type counts: %w", err)
	}
	report.NodeTypeCounts = nodeTypeCounts

	failed, err := s.records.ListByStatus(ctx, domain.StatusFailed, limit, 0)
	if err != nil {
		return report, fmt.Errorf("failed to list failed records: %w", err)
	}
	for _, record := range failed {
		report.FailedItems = append(report.FailedItems, FailedItem{
			ID:                record.ID,
			SourceRowIndex:    record.SourceRowIndex,
			DisplayIdentifier: record.DisplayIdentifier,
			ErrorDetail:       record.ErrorDetail,
		})
	}

	return report, nil
}
