// Package metastore reads and writes daily price entries as account metadata
// on the signer's own Symbol account.
package metastore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"symbol-price-recorder/internal/domain"
	"symbol-price-recorder/internal/keycodec"
	"symbol-price-recorder/internal/observability"
	"symbol-price-recorder/internal/storage"
	"symbol-price-recorder/internal/symbol"
)

var (
	// ErrStoreQuery is returned when the node metadata query fails.
	ErrStoreQuery = errors.New("metadata query failed")

	// ErrStoreWrite is returned when a transaction cannot be built, signed,
	// announced or confirmed.
	ErrStoreWrite = errors.New("metadata write failed")
)

// DefaultConfirmTimeout bounds AwaitConfirmed when no timeout is configured.
const DefaultConfirmTimeout = 3 * time.Minute

// Receipt describes what Save or Delete did for one day.
type Receipt struct {
	Action      domain.JournalAction
	Day         domain.Day
	AssetID     int
	Key         keycodec.Key
	Value       []byte
	SizeDelta   int16
	TxHash      string
	AnnouncedAt time.Time
	Skipped     bool // Save found the day already recorded; nothing was announced
	Confirmed   bool
}

// Store implements exists/get/save/delete over a Symbol node.
type Store struct {
	node           symbol.NodeClient
	facade         symbol.Facade
	endpoint       string
	confirmer      symbol.Confirmer
	confirmTimeout time.Duration
	journal        storage.JournalStore
	runID          string
	metrics        *observability.Metrics
	logger         *logrus.Entry
	now            func() time.Time
}

// Option configures Store.
type Option func(*Store)

// WithConfirmer makes Save and Delete wait for confirmation, up to timeout.
func WithConfirmer(c symbol.Confirmer, timeout time.Duration) Option {
	return func(s *Store) {
		s.confirmer = c
		if timeout > 0 {
			s.confirmTimeout = timeout
		}
	}
}

// WithJournal records every announcement in j under runID.
func WithJournal(j storage.JournalStore, runID string) Option {
	return func(s *Store) {
		s.journal = j
		s.runID = runID
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logrus.Entry) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the time source for receipts.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store that signs with facade and talks to node.
func New(node symbol.NodeClient, facade symbol.Facade, opts ...Option) *Store {
	s := &Store{
		node:           node,
		facade:         facade,
		confirmTimeout: DefaultConfirmTimeout,
		logger:         logrus.NewEntry(logrus.StandardLogger()),
		now:            time.Now,
	}
	if e, ok := node.(interface{ Endpoint() string }); ok {
		s.endpoint = e.Endpoint()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Owner returns the signer address, which is both source and target of every entry.
func (s *Store) Owner() symbol.Address { return s.facade.Address() }

// Exists reports whether owner has an entry for (day, assetID).
func (s *Store) Exists(ctx context.Context, day domain.Day, assetID int, owner symbol.Address) (bool, error) {
	entry, err := s.Get(ctx, day, assetID, owner)
	if err != nil {
		return false, err
	}
	return entry != nil, nil
}

// Get returns owner's entry for (day, assetID), or nil if there is none.
func (s *Store) Get(ctx context.Context, day domain.Day, assetID int, owner symbol.Address) (*symbol.MetadataEntry, error) {
	key, err := keycodec.Derive(day, assetID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	entries, err := s.node.SearchMetadata(ctx, symbol.MetadataQuery{
		Target:    owner,
		Source:    owner,
		ScopedKey: key.Uint64(),
		Type:      symbol.MetadataAccount,
	})
	s.metrics.ObserveNodeCall("metadata", start)
	if err != nil {
		s.logFields(day, key).WithError(err).Error("metadata query failed")
		return nil, fmt.Errorf("%w: day %s key %s: %w", ErrStoreQuery, day, key.Hex(), err)
	}

	if len(entries) == 0 {
		return nil, nil
	}
	entry := entries[0]
	return &entry, nil
}

// GetPrice returns owner's recorded price for (day, assetID); ok is false if
// nothing is recorded.
func (s *Store) GetPrice(ctx context.Context, day domain.Day, assetID int, owner symbol.Address) (price decimal.Decimal, ok bool, err error) {
	entry, err := s.Get(ctx, day, assetID, owner)
	if err != nil || entry == nil {
		return decimal.Decimal{}, false, err
	}
	price, err = domain.DecodePrice(entry.Value)
	if err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("%w: day %s: %w", ErrStoreQuery, day, err)
	}
	return price, true, nil
}

// Save records price for (day, assetID) unless the signer already has an entry.
func (s *Store) Save(ctx context.Context, day domain.Day, assetID int, price decimal.Decimal) (*Receipt, error) {
	key, err := keycodec.Derive(day, assetID)
	if err != nil {
		return nil, err
	}
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: day %s: price %s is not positive", ErrStoreWrite, day, price)
	}
	if domain.StoredMicros(price) <= 0 {
		return nil, fmt.Errorf("%w: day %s: price %s rounds to zero micro-units", ErrStoreWrite, day, price)
	}

	exists, err := s.Exists(ctx, day, assetID, s.Owner())
	if err != nil {
		return nil, err
	}
	if exists {
		s.logFields(day, key).Info("day already recorded, not announcing")
		return &Receipt{Action: domain.JournalActionSave, Day: day, AssetID: assetID, Key: key, Skipped: true}, nil
	}

	value := domain.EncodePrice(price)
	r := &Receipt{
		Action:    domain.JournalActionSave,
		Day:       day,
		AssetID:   assetID,
		Key:       key,
		Value:     value,
		SizeDelta: symbol.SizeDelta(0, len(value)),
	}
	if err := s.submit(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// Delete clears the signer's entry for (day, assetID). When there is no entry
// it still announces an empty, zero-delta update to the same key.
func (s *Store) Delete(ctx context.Context, day domain.Day, assetID int) (*Receipt, error) {
	key, err := keycodec.Derive(day, assetID)
	if err != nil {
		return nil, err
	}

	entry, err := s.Get(ctx, day, assetID, s.Owner())
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		Action:  domain.JournalActionDelete,
		Day:     day,
		AssetID: assetID,
		Key:     key,
		Value:   []byte{},
	}
	if entry != nil {
		r.Value = symbol.UpdateValue(entry.Value, nil)
		r.SizeDelta = symbol.SizeDelta(entry.ValueSize, 0)
	} else {
		s.logFields(day, key).Info("no entry to delete, announcing empty update")
	}

	if err := s.submit(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// submit signs, announces and optionally confirms r, filling in its hash.
func (s *Store) submit(ctx context.Context, r *Receipt) error {
	log := s.logFields(r.Day, r.Key).WithField("action", r.Action)

	tx, err := s.facade.SignAccountMetadata(symbol.AccountMetadata{
		Target:    s.Owner(),
		ScopedKey: r.Key.Uint64(),
		SizeDelta: r.SizeDelta,
		Value:     r.Value,
	})
	if err != nil {
		log.WithError(err).Error("build transaction failed")
		return fmt.Errorf("%w: day %s key %s: %w", ErrStoreWrite, r.Day, r.Key.Hex(), err)
	}

	if s.confirmer != nil {
		s.confirmer.Expect(tx.HashHex())
	}

	start := time.Now()
	err = s.node.Announce(ctx, tx)
	s.metrics.ObserveNodeCall("announce", start)
	s.metrics.RecordAnnouncement(string(r.Action), err)
	if err != nil {
		log.WithError(err).Error("announce failed")
		return fmt.Errorf("%w: day %s key %s: %w", ErrStoreWrite, r.Day, r.Key.Hex(), err)
	}

	r.TxHash = tx.HashHex()
	r.AnnouncedAt = s.now()
	log = log.WithFields(logrus.Fields{"tx_hash": r.TxHash, "size_delta": r.SizeDelta, "fee": tx.Fee})
	log.Info("transaction announced")

	s.appendJournal(ctx, r)

	if s.confirmer == nil {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()
	if err := s.confirmer.AwaitConfirmed(cctx, r.TxHash); err != nil {
		s.confirmation("failed")
		log.WithError(err).Error("transaction not confirmed")
		return fmt.Errorf("%w: day %s tx %s: %w", ErrStoreWrite, r.Day, r.TxHash, err)
	}
	s.confirmation("confirmed")
	r.Confirmed = true
	log.Info("transaction confirmed")
	return nil
}

// appendJournal logs and swallows journal failures; the ledger stays authoritative.
func (s *Store) appendJournal(ctx context.Context, r *Receipt) {
	if s.journal == nil {
		return
	}

	e := &domain.JournalEntry{
		RunID:       s.runID,
		Action:      r.Action,
		Day:         r.Day,
		AssetID:     r.AssetID,
		KeyHex:      r.Key.Hex(),
		SizeDelta:   int(r.SizeDelta),
		TxHash:      r.TxHash,
		AnnouncedAt: r.AnnouncedAt.UnixMilli(),
	}
	if r.Action == domain.JournalActionSave {
		e.Value = string(r.Value)
	}

	if err := s.journal.Append(ctx, e); err != nil {
		if s.metrics != nil {
			s.metrics.JournalErrors.Inc()
		}
		s.logFields(r.Day, r.Key).WithError(err).Warn("journal append failed")
	}
}

func (s *Store) confirmation(outcome string) {
	if s.metrics != nil {
		s.metrics.Confirmations.WithLabelValues(outcome).Inc()
	}
}

func (s *Store) logFields(day domain.Day, key keycodec.Key) *logrus.Entry {
	fields := logrus.Fields{"day": day.String(), "key": key.Hex()}
	if s.endpoint != "" {
		fields["endpoint"] = s.endpoint
	}
	return s.logger.WithFields(fields)
}
