package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
)

// RawField is one column/value pair from the source row.
type RawField struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// RawRow preserves the original row verbatim in column order. It marshals to
// a JSON array so the stored form round-trips without losing ordering, which
// keeps fragment re-derivation byte-stable.
type RawRow []RawField

// NewRawRow pairs a header with the cells of one data row. Short rows are
// padded with empty values, extra cells are dropped.
func NewRawRow(header []string, cells []string) RawRow {
	row := make(RawRow, len(header))
	for i, col := range header {
		value := ""
		if i < len(cells) {
			value = cells[i]
		}
		row[i] = RawField{Column: col, Value: value}
	}
	return row
}

// Get returns the value for a column matched by normalized name.
func (r RawRow) Get(column string) (string, bool) {
	want := NormalizeColumn(column)
	for _, f := range r {
		if NormalizeColumn(f.Column) == want {
			return f.Value, true
		}
	}
	return "", false
}

// Columns returns the column names in source order.
func (r RawRow) Columns() []string {
	cols := make([]string, len(r))
	for i, f := range r {
		cols[i] = f.Column
	}
	return cols
}

// Key derives the deterministic re-identification key for this row. Reruns
// over the same source recompute the same key, so the ledger attaches to the
// existing record instead of minting a duplicate identity. Marshalling a
// slice of string pairs cannot fail, so the key is total.
func (r RawRow) Key(rowIndex int) string {
	payload, _ := json.Marshal(r)
	sum := sha256.Sum256(append([]byte(fmt.Sprintf("%d:", rowIndex)), payload...))
	return hex.EncodeToString(sum[:])
}

// NormalizeColumn folds a column name for mapping rule lookup.
func NormalizeColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
