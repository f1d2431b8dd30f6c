package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"symbol-price-recorder/internal/domain"
	"symbol-price-recorder/internal/storage"
)

// JournalStore implements storage.JournalStore using ClickHouse.
// ReplacingMergeTree does not reject duplicates, so Append checks first.
type JournalStore struct {
	conn *Conn
}

// NewJournalStore creates a new JournalStore.
func NewJournalStore(conn *Conn) *JournalStore {
	return &JournalStore{conn: conn}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append adds a new entry. Returns ErrDuplicateKey if tx_hash exists.
func (s *JournalStore) Append(ctx context.Context, e *domain.JournalEntry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	exists, err := s.exists(ctx, e.TxHash)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO announcement_journal (
			tx_hash, run_id, action, day, asset_id, key_hex, value, size_delta, announced_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	err = batch.Append(
		e.TxHash, e.RunID, string(e.Action), e.Day.Start(time.UTC),
		uint32(e.AssetID), e.KeyHex, e.Value, int32(e.SizeDelta), e.AnnouncedAt,
	)
	if err != nil {
		return fmt.Errorf("append to batch: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
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
		FROM announcement_journal FINAL
		WHERE asset_id = ? AND day >= ? AND day <= ?
		ORDER BY day ASC, announced_at ASC, tx_hash ASC
	`

	rows, err := s.conn.Query(ctx, query, uint32(assetID), from.Start(time.UTC), to.Start(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("query journal range: %w", err)
	}
	defer rows.Close()

	return scanJournalEntries(rows)
}

func (s *JournalStore) exists(ctx context.Context, txHash string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM announcement_journal WHERE tx_hash = ?`, txHash).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func scanJournalEntries(rows driver.Rows) ([]*domain.JournalEntry, error) {
	var result []*domain.JournalEntry
	for rows.Next() {
		var (
			e         domain.JournalEntry
			action    string
			day       time.Time
			assetID   uint32
			sizeDelta int32
		)
		err := rows.Scan(
			&e.TxHash, &e.RunID, &action, &day, &assetID,
			&e.KeyHex, &e.Value, &sizeDelta, &e.AnnouncedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		e.Action = domain.JournalAction(action)
		e.Day = domain.DayOf(day, time.UTC)
		e.AssetID = int(assetID)
		e.SizeDelta = int(sizeDelta)
		result = append(result, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
