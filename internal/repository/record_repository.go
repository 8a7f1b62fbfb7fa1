package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rpattn/oigen/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrRecordNotFound is returned when a ledger lookup matches nothing.
var ErrRecordNotFound = errors.New("import record not found")

const recordColumns = `id, row_key, source_row_index, status, node_type, action,
	display_identifier, rendered_fragment, error_detail, output_container,
	raw_data, mapping, last_attempt_at`

type recordRepository struct {
	pool *pgxpool.Pool
}

// NewRecordRepository wires a ledger repository backed by pgxpool.
func NewRecordRepository(pool *pgxpool.Pool) RecordRepository {
	return &recordRepository{pool: pool}
}

func (r *recordRepository) GetOrCreate(ctx context.Context, record domain.Record) (domain.Record, bool, error) {
	if r.pool == nil {
		return domain.Record{}, false, fmt.Errorf("record repository not initialized")
	}

	rawJSON, err := json.Marshal(record.RawData)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("failed to encode raw row data: %w", err)
	}
	mapping := record.Mapping
	if mapping == nil {
		mapping = domain.Mapping{}
	}
	mappingJSON, err := json.Marshal(mapping)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("failed to encode mapping: %w", err)
	}

	id := record.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	tag, err := r.pool.Exec(
		ctx,
		`INSERT INTO import_records (id, row_key, source_row_index, status, raw_data, mapping)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (row_key) DO NOTHING`,
		id,
		record.RowKey,
		record.SourceRowIndex,
		domain.StatusPending,
		rawJSON,
		mappingJSON,
	)
	if err != nil {
		return domain.Record{}, false, fmt.Errorf("failed to insert import record: %w", err)
	}
	created := tag.RowsAffected() == 1

	stored, err := r.GetByRowKey(ctx, record.RowKey)
	if err != nil {
		return domain.Record{}, false, err
	}
	return stored, created, nil
}

func (r *recordRepository) Transition(ctx context.Context, id uuid.UUID, status domain.Status, fields domain.TransitionFields) (domain.Record, error) {
	if r.pool == nil {
		return domain.Record{}, fmt.Errorf("record repository not initialized")
	}
	if !status.Valid() {
		return domain.Record{}, fmt.Errorf("invalid target status %q", status)
	}

	row := r.pool.QueryRow(
		ctx,
		`UPDATE import_records
		 SET status = $2,
		     node_type = COALESCE($3, node_type),
		     action = COALESCE($4, action),
		     display_identifier = COALESCE($5, display_identifier),
		     rendered_fragment = COALESCE($6, rendered_fragment),
		     output_container = COALESCE($7, output_container),
		     error_detail = $8,
		     last_attempt_at = NOW()
		 WHERE id = $1
		 RETURNING `+recordColumns,
		id,
		status,
		fields.NodeType,
		fields.Action,
		fields.DisplayIdentifier,
		fields.RenderedFragment,
		fields.OutputContainer,
		fields.ErrorDetail,
	)

	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("transition %s: %w", id, ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to transition import record: %w", err)
	}
	return record, nil
}

func (r *recordRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Record, error) {
	if r.pool == nil {
		return domain.Record{}, fmt.Errorf("record repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT `+recordColumns+` FROM import_records WHERE id = $1`,
		id,
	)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("record %s: %w", id, ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to load import record: %w", err)
	}
	return record, nil
}

func (r *recordRepository) GetByRowKey(ctx context.Context, rowKey string) (domain.Record, error) {
	if r.pool == nil {
		return domain.Record{}, fmt.Errorf("record repository not initialized")
	}

	row := r.pool.QueryRow(
		ctx,
		`SELECT `+recordColumns+` FROM import_records WHERE row_key = $1`,
		rowKey,
	)
	record, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Record{}, fmt.Errorf("row key %s: %w", rowKey, ErrRecordNotFound)
		}
		return domain.Record{}, fmt.Errorf("failed to load import record by row key: %w", err)
	}
	return record, nil
}

func (r *recordRepository) FindByDisplayIdentifier(ctx context.Context, identifier string) ([]domain.Record, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+recordColumns+`
		 FROM import_records
		 WHERE display_identifier = $1
		 ORDER BY last_attempt_at DESC, source_row_index ASC`,
		identifier,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find records by display identifier: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *recordRepository) ListByStatus(ctx context.Context, status domain.Status, limit int, offset int) ([]domain.Record, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	if limit <= 0 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+recordColumns+`
		 FROM import_records
		 WHERE status = $1
		 ORDER BY source_row_index ASC
		 LIMIT $2 OFFSET $3`,
		status,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records by status: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

func (r *recordRepository) StatusCounts(ctx context.Context) (map[domain.Status]int, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT status, COUNT(*) FROM import_records GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if scanErr := rows.Scan(&status, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", scanErr)
		}
		counts[domain.Status(status)] = count
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate status counts: %w", rowsErr)
	}
	return counts, nil
}

func (r *recordRepository) NodeTypeCounts(ctx context.Context, status domain.Status) (map[string]int, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("record repository not initialized")
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT COALESCE(node_type, ''), COUNT(*)
		 FROM import_records
		 WHERE status = $1
		 GROUP BY node_type`,
		status,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to count records by node type: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			nodeType string
			count    int
		)
		if scanErr := rows.Scan(&nodeType, &count); scanErr != nil {
			return nil, fmt.Errorf("failed to scan node type count: %w", scanErr)
		}
		counts[nodeType] = count
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate node type counts: %w", rowsErr)
	}
	return counts, nil
}

func collectRecords(rows pgx.Rows) ([]domain.Record, error) {
	records := []domain.Record{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import record: %w", err)
		}
		records = append(records, record)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		return nil, fmt.Errorf("failed to iterate import records: %w", rowsErr)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (domain.Record, error) {
	var (
		record            domain.Record
		status            string
		nodeType          pgtype.Text
		action            pgtype.Text
		displayIdentifier pgtype.Text
		renderedFragment  pgtype.Text
		errorDetail       pgtype.Text
		outputContainer   pgtype.Text
		rawJSON           []byte
		mappingJSON       []byte
		lastAttemptAt     pgtype.Timestamptz
	)

	if err := row.Scan(
		&record.ID,
		&record.RowKey,
		&record.SourceRowIndex,
		&status,
		&nodeType,
		&action,
		&displayIdentifier,
		&renderedFragment,
		&errorDetail,
		&outputContainer,
		&rawJSON,
		&mappingJSON,
		&lastAttemptAt,
	); err != nil {
		return domain.Record{}, err
	}

	record.Status = domain.Status(status)
	record.NodeType = nodeType.String
	record.Action = action.String
	record.DisplayIdentifier = displayIdentifier.String
	record.RenderedFragment = renderedFragment.String
	record.ErrorDetail = errorDetail.String
	record.OutputContainer = outputContainer.String
	if lastAttemptAt.Valid {
		record.LastAttemptAt = lastAttemptAt.Time
	}

	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &record.RawData); err != nil {
			return domain.Record{}, fmt.Errorf("failed to decode raw row data: %w", err)
		}
	}
	if len(mappingJSON) > 0 {
		if err := json.Unmarshal(mappingJSON, &record.Mapping); err != nil {
			return domain.Record{}, fmt.Errorf("failed to decode mapping: %w", err)
		}
	}

	return record, nil
}
