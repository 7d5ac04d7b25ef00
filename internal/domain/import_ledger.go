package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ImportOutcome records how the import of one export file ended.
type ImportOutcome string

const (
	// OutcomeSuccess means every line of the file was applied.
	OutcomeSuccess ImportOutcome = "success"
	// OutcomeSourceError means the directory reported a failed export.
	OutcomeSourceError ImportOutcome = "source-error"
	// OutcomeLocalError means the file was applied but some lines were
	// rejected or skipped locally.
	OutcomeLocalError ImportOutcome = "local-error"
)

// ParseImportOutcome validates an outcome read back from the store.
func ParseImportOutcome(value string) (ImportOutcome, error) {
	switch ImportOutcome(value) {
	case OutcomeSuccess, OutcomeSourceError, OutcomeLocalError:
		return ImportOutcome(value), nil
	}
	return "", fmt.Errorf("unknown import outcome %q", value)
}

// ImportLedgerEntry is the append-only audit record written once per file.
type ImportLedgerEntry struct {
	ID            uuid.UUID     `json:"id"`
	Date          time.Time     `json:"date"`
	Kind          Kind          `json:"kind"`
	IsIncremental bool          `json:"is_incremental"`
	Outcome       ImportOutcome `json:"outcome"`
	NumApplied    *int          `json:"num_applied,omitempty"`
	Message       string        `json:"message"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewImportLedgerEntry creates a ledger entry with a fresh id.
func NewImportLedgerEntry(kind Kind, date time.Time, outcome ImportOutcome, message string) ImportLedgerEntry {
	return ImportLedgerEntry{
		ID:            uuid.New(),
		Date:          date,
		Kind:          kind,
		IsIncremental: true,
		Outcome:       outcome,
		Message:       message,
		CreatedAt:     time.Now(),
	}
}

// WithApplied returns a copy of the entry carrying the number of applied records.
func (e ImportLedgerEntry) WithApplied(n int) ImportLedgerEntry {
	e.NumApplied = &n
	return e
}
