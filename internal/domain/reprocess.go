package domain

import "github.com/google/uuid"

// CandidateAction is the suggested (and caller-overridable) handling for a
// reconciled failure entry.
type CandidateAction string

const (
	CandidateReImport CandidateAction = "re-import"
	CandidateSkip     CandidateAction = "skip"
)

// FailureEntry is one failed import reported by the target system.
type FailureEntry struct {
	Identifier   string `json:"identifier"`
	ErrorMessage string `json:"errorMessage"`
}

// ReprocessCandidate pairs a reported failure with its ledger match and a
// regenerated fragment. Ambiguous matches carry every candidate identity and
// are never resolved silently; the caller decides.
type ReprocessCandidate struct {
	Identifier        string          `json:"identifier"`
	ReportedError     string          `json:"reportedError"`
	RecordID          uuid.UUID       `json:"recordId,omitempty"`
	MatchIDs          []uuid.UUID     `json:"matchIds,omitempty"`
	Ambiguous         bool            `json:"ambiguous"`
	Fragment          string          `json:"fragment,omitempty"`
	SuggestedAction   CandidateAction `json:"suggestedAction"`
	RegenerationError string          `json:"regenerationError,omitempty"`
}
