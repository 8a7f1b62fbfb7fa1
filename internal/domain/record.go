package domain

import (
	"time"

	"github.com/google/uuid"
)

// Status tracks a record through its processing lifecycle.
type Status string

const (
	StatusPending     Status = "pending"
	StatusProcessing  Status = "processing"
	StatusSuccess     Status = "success"
	StatusFailed      Status = "failed"
	StatusReprocessed Status = "reprocessed"
)

// Valid reports whether the status is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSuccess, StatusFailed, StatusReprocessed:
		return true
	}
	return false
}

// Record is one source row tracked in the ledger. RawData and Mapping are
// immutable once set; everything the serializer needs to re-derive the XML
// fragment lives here, so reconciliation never touches the original source
// file.
type Record struct {
	ID                uuid.UUID `json:"id"`
	RowKey            string    `json:"rowKey"`
	SourceRowIndex    int       `json:"sourceRowIndex"`
	Status            Status    `json:"status"`
	NodeType          string    `json:"nodeType,omitempty"`
	Action            string    `json:"action,omitempty"`
	DisplayIdentifier string    `json:"displayIdentifier,omitempty"`
	RenderedFragment  string    `json:"renderedFragment,omitempty"`
	ErrorDetail       string    `json:"errorDetail,omitempty"`
	OutputContainer   string    `json:"outputContainer,omitempty"`
	RawData           RawRow    `json:"rawData"`
	Mapping           Mapping   `json:"mapping,omitempty"`
	LastAttemptAt     time.Time `json:"lastAttemptAt"`
}

// TransitionFields carries the optional columns updated alongside a status
// change. Nil pointers leave the stored value untouched, mirroring the
// COALESCE semantics of the ledger UPDATE. ErrorDetail is always written so
// a successful retry clears a stale failure message.
type TransitionFields struct {
	NodeType          *string
	Action            *string
	DisplayIdentifier *string
	RenderedFragment  *string
	OutputContainer   *string
	ErrorDetail       string
}

// StringPtr is a small helper for building TransitionFields literals.
func StringPtr(s string) *string { return &s }
