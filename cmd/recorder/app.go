package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"

	"symbol-price-recorder/internal/backfill"
	"symbol-price-recorder/internal/config"
	"symbol-price-recorder/internal/keycodec"
	"symbol-price-recorder/internal/logging"
	"symbol-price-recorder/internal/metastore"
	"symbol-price-recorder/internal/observability"
	"symbol-price-recorder/internal/pricing"
	"symbol-price-recorder/internal/storage"
	chstore "symbol-price-recorder/internal/storage/clickhouse"
	"symbol-price-recorder/internal/storage/memory"
	pgstore "symbol-price-recorder/internal/storage/postgres"
	"symbol-price-recorder/internal/symbol"
	"symbol-price-recorder/internal/throttle"
)

// app holds everything a run needs. Close releases connections in reverse order.
type app struct {
	cfg     *config.Config
	metrics *observability.Metrics
	store   *metastore.Store
	runner  *backfill.Runner
	journal storage.JournalStore

	closers []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *logrus.Logger, runID string) (*app, error) {
	a := &app{
		cfg:     cfg,
		metrics: observability.NewMetrics("symbol_price_recorder"),
	}
	log := logger.WithField("run_id", runID)

	network, err := symbol.NetworkByName(cfg.Symbol.Network)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	keys, err := symbol.NewKeyPair(cfg.Symbol.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrConfig, err)
	}
	signer := symbol.NewSigner(network, keys,
		symbol.WithFeeMultiplier(cfg.Symbol.FeeMultiplier),
		symbol.WithDeadline(cfg.Symbol.Deadline),
	)
	node := symbol.NewHTTPClient(cfg.Symbol.NodeURL, symbol.WithTimeout(cfg.Symbol.RequestTimeout))

	log.WithFields(logrus.Fields{
		"network": network.Name,
		"address": signer.Address().String(),
		"node":    node.Endpoint(),
	}).Info("signer ready")

	opts := []metastore.Option{
		metastore.WithMetrics(a.metrics),
		metastore.WithLogger(logging.Component(logger, "metastore").WithField("run_id", runID)),
	}

	if cfg.Symbol.AwaitConfirmation {
		lcfg := symbol.DefaultListenerConfig()
		listener, err := symbol.NewListener(ctx, symbol.WebSocketURL(cfg.Symbol.NodeURL), signer.Address(), &lcfg)
		if err != nil {
			return nil, fmt.Errorf("connect listener: %w", err)
		}
		a.closers = append(a.closers, listener.Close)
		opts = append(opts, metastore.WithConfirmer(listener, cfg.Symbol.ConfirmTimeout))
	}

	journal, err := a.openJournal(ctx, cfg.Journal)
	if err != nil {
		a.Close()
		return nil, err
	}
	if journal != nil {
		a.journal = journal
		opts = append(opts, metastore.WithJournal(journal, runID))
	}

	a.store = metastore.New(node, signer, opts...)

	fetcher := pricing.NewClient(
		pricing.WithBaseURL(cfg.CoinGecko.BaseURL),
		pricing.WithVsCurrency(cfg.CoinGecko.VsCurrency),
		pricing.WithAPIKey(cfg.CoinGecko.APIKey, cfg.CoinGecko.Pro),
		pricing.WithTimeout(cfg.CoinGecko.Timeout),
		pricing.WithLogger(logging.Component(logger, "pricing").WithField("run_id", runID)),
	)

	a.runner = backfill.NewRunner(backfill.Options{
		Recorder:    a.store,
		Fetcher:     fetcher,
		AssetID:     cfg.Asset.ID,
		CoinID:      cfg.CoinGecko.CoinID,
		SavePacer:   throttle.Every(cfg.Schedule.SaveInterval),
		DeletePacer: throttle.Every(cfg.Schedule.DeleteInterval),
		Metrics:     a.metrics,
		Logger:      logging.Component(logger, "backfill").WithField("run_id", runID),
	})
	return a, nil
}

func (a *app) openJournal(ctx context.Context, cfg config.JournalConfig) (storage.JournalStore, error) {
	switch cfg.Backend {
	case config.JournalMemory:
		return memory.NewJournalStore(), nil
	case config.JournalPostgres:
		pool, err := pgstore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres journal: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		return pgstore.NewJournalStore(pool), nil
	case config.JournalClickhouse:
		conn, err := chstore.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open clickhouse journal: %w", err)
		}
		a.closers = append(a.closers, conn.Close)
		return chstore.NewJournalStore(conn), nil
	default:
		return nil, nil
	}
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}

// show prints the recorded price of every day in r.
func (a *app) show(ctx context.Context, r backfill.Range) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tKEY\tPRICE")

	owner := a.store.Owner()
	for d := r.Start; d.Before(r.End); d = d.AddDays(1) {
		key, err := keycodec.Derive(d, a.cfg.Asset.ID)
		if err != nil {
			return err
		}
		price, ok, err := a.store.GetPrice(ctx, d, a.cfg.Asset.ID, owner)
		if err != nil {
			return err
		}
		value := "-"
		if ok {
			value = price.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", d, key.Hex(), value)
	}
	return w.Flush()
}

// showJournal prints the announcements journaled for r.
func (a *app) showJournal(ctx context.Context, r backfill.Range) error {
	if a.journal == nil {
		return fmt.Errorf("%w: journal mode needs journal.backend postgres or clickhouse", config.ErrConfig)
	}
	if r.Start.Equal(r.End) {
		return nil
	}

	entries, err := a.journal.GetByRange(ctx, a.cfg.Asset.ID, r.Start, r.End.AddDays(-1))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DAY\tACTION\tVALUE\tDELTA\tTX_HASH\tANNOUNCED_AT\tRUN_ID")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t%s\n",
			e.Day, e.Action, e.Value, e.SizeDelta, e.TxHash,
			time.UnixMilli(e.AnnouncedAt).UTC().Format(time.RFC3339), e.RunID)
	}
	return w.Flush()
}
