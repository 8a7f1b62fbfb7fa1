package repository

import (
	"context"

	"github.com/rpattn/oigen/internal/domain"

	"github.com/google/uuid"
)

// RecordRepository defines the interface for the durable per-row status
// ledger. Every row ever seen by the generator has exactly one ledger entry,
// keyed by its content-derived row key.
type RecordRepository interface {
	// GetOrCreate loads the record for the row key, inserting a fresh
	// pending entry if none exists. The bool reports whether the record was
	// newly created.
	GetOrCreate(ctx context.Context, record domain.Record) (domain.Record, bool, error)

	// Transition moves a record to the given status, stamping the attempt
	// time. Nil pointer fields in TransitionFields keep their stored value;
	// ErrorDetail is always written so stale failure text never survives a
	// later success.
	Transition(ctx context.Context, id uuid.UUID, status domain.Status, fields domain.TransitionFields) (domain.Record, error)

	GetByID(ctx context.Context, id uuid.UUID) (domain.Record, error)
	GetByRowKey(ctx context.Context, rowKey string) (domain.Record, error)

	// FindByDisplayIdentifier returns every record whose display identifier
	// matches, newest attempt first. Reconciliation treats more than one
	// match as ambiguous.
	FindByDisplayIdentifier(ctx context.Context, identifier string) ([]domain.Record, error)

	ListByStatus(ctx context.Context, status domain.Status, limit int, offset int) ([]domain.Record, error)
	StatusCounts(ctx context.Context) (map[domain.Status]int, error)
	NodeTypeCounts(ctx context.Context, status domain.Status) (map[string]int, error)
}

// ShouldSkip reports whether a row can be skipped during ingestion. Only a
// success record is settled, and force reopens even those. Every other
// status, reprocessed included, is retried on the next run.
func ShouldSkip(record domain.Record, force bool) bool {
	return record.Status == domain.StatusSuccess && !force
}
