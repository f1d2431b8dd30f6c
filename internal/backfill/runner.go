// Package backfill walks a day range and records every day the ledger is
// missing, and deletes recently recorded days.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"symbol-price-recorder/internal/domain"
	"symbol-price-recorder/internal/metastore"
	"symbol-price-recorder/internal/observability"
	"symbol-price-recorder/internal/pricing"
	"symbol-price-recorder/internal/symbol"
	"symbol-price-recorder/internal/throttle"
)

// ErrInvalidRange is returned when a range starts after it ends.
var ErrInvalidRange = errors.New("invalid day range")

// Recorder is the ledger side of a run.
type Recorder interface {
	Owner() symbol.Address
	Exists(ctx context.Context, day domain.Day, assetID int, owner symbol.Address) (bool, error)
	Save(ctx context.Context, day domain.Day, assetID int, price decimal.Decimal) (*metastore.Receipt, error)
	Delete(ctx context.Context, day domain.Day, assetID int) (*metastore.Receipt, error)
}

// Range is the half-open day interval [Start, End).
type Range struct {
	Start domain.Day
	End   domain.Day
}

// Validate returns ErrInvalidRange if Start is after End.
func (r Range) Validate() error {
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: %s is after %s", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

// Days returns the number of days in the range.
func (r Range) Days() int {
	if r.Start.After(r.End) {
		return 0
	}
	return r.Start.DaysUntil(r.End)
}

func (r Range) String() string {
	return fmt.Sprintf("[%s, %s)", r.Start, r.End)
}

// Options contains configuration for creating a Runner.
type Options struct {
	Recorder    Recorder
	Fetcher     pricing.Fetcher
	AssetID     int
	CoinID      string
	SavePacer   throttle.Pacer // spaces consecutive writes in Resume and Fill
	DeletePacer throttle.Pacer // spaces consecutive deletes
	Metrics     *observability.Metrics
	Logger      *logrus.Entry
}

// Runner drives Recorder and Fetcher one day at a time.
type Runner struct {
	recorder    Recorder
	fetcher     pricing.Fetcher
	assetID     int
	coinID      string
	savePacer   throttle.Pacer
	deletePacer throttle.Pacer
	metrics     *observability.Metrics
	logger      *logrus.Entry
}

// NewRunner creates a Runner. Missing pacers default to 30s between saves
// and 1s between deletes.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		recorder:    opts.Recorder,
		fetcher:     opts.Fetcher,
		assetID:     opts.AssetID,
		coinID:      opts.CoinID,
		savePacer:   opts.SavePacer,
		deletePacer: opts.DeletePacer,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
	}
	if r.savePacer == nil {
		r.savePacer = throttle.Every(30 * time.Second)
	}
	if r.deletePacer == nil {
		r.deletePacer = throttle.Every(time.Second)
	}
	if r.logger == nil {
		r.logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return r
}

// Result contains statistics from a run.
type Result struct {
	LatestRecorded domain.Day   // zero if the scan found nothing
	ResumeFrom     domain.Day   // first day the forward fill looked at
	Recorded       []domain.Day // days announced, in order
	Skipped        int          // days found already recorded during the fill
	Deleted        []domain.Day // days a delete was announced for, in order
	Duration       time.Duration
}

// Resume finds the latest recorded day in r by scanning back from r.End-1 to
// r.Start, then fills every day after it (or from r.Start if none) up to r.End.
// Gaps before the latest recorded day are not looked for.
func (rn *Runner) Resume(ctx context.Context, r Range) (*Result, error) {
	start := time.Now()
	result := &Result{}
	if err := r.Validate(); err != nil {
		return result, err
	}

	log := rn.logger.WithField("range", r.String())
	log.Info("scanning for latest recorded day")

	owner := rn.recorder.Owner()
	for d := r.End.AddDays(-1); !d.Before(r.Start); d = d.AddDays(-1) {
		exists, err := rn.recorder.Exists(ctx, d, rn.assetID, owner)
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("scan %s: %w", d, err)
		}
		if exists {
			result.LatestRecorded = d
			break
		}
	}

	result.ResumeFrom = r.Start
	if !result.LatestRecorded.IsZero() {
		result.ResumeFrom = result.LatestRecorded.AddDays(1)
		log.WithField("latest", result.LatestRecorded.String()).Info("latest recorded day found")
	} else {
		log.Info("no recorded day in range")
	}

	err := rn.fill(ctx, Range{Start: result.ResumeFrom, End: r.End}, result)
	result.Duration = time.Since(start)
	rn.logDone(log, result, err)
	return result, err
}

// Fill records every missing day in r without a preliminary scan.
func (rn *Runner) Fill(ctx context.Context, r Range) (*Result, error) {
	start := time.Now()
	result := &Result{ResumeFrom: r.Start}
	if err := r.Validate(); err != nil {
		return result, err
	}

	err := rn.fill(ctx, r, result)
	result.Duration = time.Since(start)
	rn.logDone(rn.logger.WithField("range", r.String()), result, err)
	return result, err
}

func (rn *Runner) fill(ctx context.Context, r Range, result *Result) error {
	owner := rn.recorder.Owner()

	for d := r.Start; d.Before(r.End); d = d.AddDays(1) {
		log := rn.logger.WithField("day", d.String())

		exists, err := rn.recorder.Exists(ctx, d, rn.assetID, owner)
		if err != nil {
			return fmt.Errorf("check %s: %w", d, err)
		}
		if exists {
			result.Skipped++
			rn.inc(func(m *observability.Metrics) { m.DaysSkipped.Inc() })
			log.Debug("already recorded")
			continue
		}

		if err := rn.savePacer.Wait(ctx); err != nil {
			return fmt.Errorf("wait before %s: %w", d, err)
		}

		price, err := rn.fetcher.FetchPrice(ctx, d, rn.coinID)
		rn.metrics.RecordPriceFetch(err)
		if err != nil {
			return fmt.Errorf("fetch price for %s: %w", d, err)
		}

		receipt, err := rn.recorder.Save(ctx, d, rn.assetID, price)
		if err != nil {
			return fmt.Errorf("save %s: %w", d, err)
		}
		if receipt.Skipped {
			result.Skipped++
			rn.inc(func(m *observability.Metrics) { m.DaysSkipped.Inc() })
			continue
		}

		result.Recorded = append(result.Recorded, d)
		rn.inc(func(m *observability.Metrics) {
			m.DaysRecorded.Inc()
			m.LastRecordedPrice.Set(price.InexactFloat64())
		})
		log.WithFields(logrus.Fields{"price": price.String(), "tx_hash": receipt.TxHash}).Info("price recorded")
	}
	return nil
}

// DeleteRecent deletes the entries for the n days before today, newest first.
func (rn *Runner) DeleteRecent(ctx context.Context, today domain.Day, n int) (*Result, error) {
	start := time.Now()
	result := &Result{}
	if n < 0 {
		return result, fmt.Errorf("%w: cannot delete %d days", ErrInvalidRange, n)
	}

	for i := 1; i <= n; i++ {
		d := today.AddDays(-i)

		if err := rn.deletePacer.Wait(ctx); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("wait before deleting %s: %w", d, err)
		}

		receipt, err := rn.recorder.Delete(ctx, d, rn.assetID)
		if err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("delete %s: %w", d, err)
		}

		result.Deleted = append(result.Deleted, d)
		rn.inc(func(m *observability.Metrics) { m.DaysDeleted.Inc() })
		rn.logger.WithFields(logrus.Fields{"day": d.String(), "tx_hash": receipt.TxHash}).Info("entry deleted")
	}

	result.Duration = time.Since(start)
	return result, nil
}

func (rn *Runner) inc(f func(m *observability.Metrics)) {
	if rn.metrics != nil {
		f(rn.metrics)
	}
}

func (rn *Runner) logDone(log *logrus.Entry, result *Result, err error) {
	log = log.WithFields(logrus.Fields{
		"recorded": len(result.Recorded),
		"skipped":  result.Skipped,
		"duration": result.Duration.String(),
	})
	if err != nil {
		log.WithError(err).Error("backfill aborted")
		return
	}
	log.Info("backfill complete")
}
