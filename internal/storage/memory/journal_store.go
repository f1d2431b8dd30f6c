package memory

import (
	"context"
	"sort"
	"sync"

	"symbol-price-recorder/internal/domain"
	"symbol-price-recorder/internal/storage"
)

// JournalStore is an in-memory implementation of storage.JournalStore.
type JournalStore struct {
	mu   sync.RWMutex
	data map[string]*domain.JournalEntry // keyed by tx hash
}

// NewJournalStore creates a new in-memory journal store.
func NewJournalStore() *JournalStore {
	return &JournalStore{
		data: make(map[string]*domain.JournalEntry),
	}
}

// Compile-time interface check.
var _ storage.JournalStore = (*JournalStore)(nil)

// Append adds a new entry. Returns ErrDuplicateKey if tx_hash exists.
func (s *JournalStore) Append(_ context.Context, e *domain.JournalEntry) error {
	if err := storage.ValidateEntry(e); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[e.TxHash]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *e
	s.data[e.TxHash] = &copy
	return nil
}

// GetByDay retrieves all entries for an asset on a day, ordered by announced_at ASC.
func (s *JournalStore) GetByDay(ctx context.Context, assetID int, day domain.Day) ([]*domain.JournalEntry, error) {
	return s.GetByRange(ctx, assetID, day, day)
}

// GetByRange retrieves entries with day in [from, to] (inclusive), ordered by day then announced_at ASC.
func (s *JournalStore) GetByRange(_ context.Context, assetID int, from, to domain.Day) ([]*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.JournalEntry
	for _, e := range s.data {
		if e.AssetID != assetID || e.Day.Before(from) || e.Day.After(to) {
			continue
		}
		copy := *e
		result = append(result, &copy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Day.Equal(result[j].Day) {
			return result[i].Day.Before(result[j].Day)
		}
		if result[i].AnnouncedAt != result[j].AnnouncedAt {
			return result[i].AnnouncedAt < result[j].AnnouncedAt
		}
		return result[i].TxHash < result[j].TxHash
	})

	return result, nil
}
