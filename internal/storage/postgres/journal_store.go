package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"symbol-price-recorder/internal/domain"
	"symbol-price-recorder/internal/storage"
)

// JournalStore implements storage.JournalStore using PostgreSQL.
type JournalStore struct {
	pool *Pool
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(pool *Pool) *JournalStore {
	return &JournalStore{pool: pool}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append adds a new entry. Returns ErrDuplicateKey if tx_hash exists.
func (s *JournalStore) Append(ctx context.Context, e *domain.JournalEntry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	query := `
		INSERT INTO announcement_journal (
			tx_hash, run_id, action, day, asset_id, key_hex, value, size_delta, announced_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := s.pool.Exec(ctx, query,
		e.TxHash,
		e.RunID,
		string(e.Action),
		e.Day.Start(time.UTC),
		e.AssetID,
		e.KeyHex,
		e.Value,
		e.SizeDelta,
		e.AnnouncedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// GetByDay retrieves all entries for an asset on a day, ordered by announced_at ASC.
func (s *JournalStore) GetByDay(ctx context.Context, assetID int, day domain.Day) ([]*domain.JournalEntry, error) {
	return s.GetByRange(ctx, assetID, day, day)
}

// GetByRange retrieves entries with day in [from, to] (inclusive), ordered by day then announced_at ASC.
func (s *JournalStore) GetByRange(ctx context.Context, assetID int, from, to domain.Day) ([]*domain.JournalEntry, error) {
	query := `
		SELECT tx_hash, run_id, action, day, asset_id, key_hex, value, size_delta, announced_at
		FROM announcement_journal
		WHERE asset_id = $1 AND day >= $2 AND day <= $3
		ORDER BY day ASC, announced_at ASC, tx_hash ASC
	`

	rows, err := s.pool.Query(ctx, query, assetID, from.Start(time.UTC), to.Start(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("query journal range: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func scanJournalEntries(rows pgx.Rows) ([]*domain.JournalEntry, error) {
	var result []*domain.JournalEntry
	for rows.Next() {
		var (
			e      domain.JournalEntry
			action string
			day    time.Time
		)
		err := rows.Scan(
			&e.TxHash,
			&e.RunID,
			&action,
			&day,
			&e.AssetID,
			&e.KeyHex,
			&e.Value,
			&e.SizeDelta,
			&e.AnnouncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Action = domain.JournalAction(action)
		e.Day = domain.DayOf(day, time.UTC)
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
