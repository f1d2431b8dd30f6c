package storage

import (
	"context"

	"symbol-price-recorder/internal/domain"
)

// JournalStore provides access to the announcement_journal storage.
// The journal is an audit trail of announced transactions; the ledger itself
// stays authoritative for whether a day is recorded.
type JournalStore interface {
	// Append adds a new entry. Returns ErrDuplicateKey if tx_hash exists.
	Append(ctx context.Context, e *domain.JournalEntry) error

	// GetByDay retrieves all entries for an asset on a day, ordered by announced_at ASC.
	GetByDay(ctx context.Context, assetID int, day domain.Day) ([]*domain.JournalEntry, error)

	// GetByRange retrieves entries for an asset with day in [from, to] (inclusive),
	// ordered by day then announced_at ASC.
	GetByRange(ctx context.Context, assetID int, from, to domain.Day) ([]*domain.JournalEntry, error)
}

// ValidateEntry checks the fields every backend requires.
func ValidateEntry(e *domain.JournalEntry) error {
	if e == nil || e.TxHash == "" || e.KeyHex == "" || e.Day.IsZero() {
		return ErrInvalidInput
	}
	switch e.Action {
	case domain.JournalActionSave, domain.JournalActionDelete:
		return nil
	default:
		return ErrInvalidInput
	}
}
