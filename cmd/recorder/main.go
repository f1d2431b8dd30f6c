package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"symbol-price-recorder/internal/backfill"
	"symbol-price-recorder/internal/config"
	"symbol-price-recorder/internal/domain"
	"symbol-price-recorder/internal/keycodec"
	"symbol-price-recorder/internal/logging"
)

const (
	modeInit    = "init"
	modeDaily   = "daily"
	modeDelete  = "delete"
	modeShow    = "show"
	modeJournal = "journal"
	modeKey     = "key"
)

type flags struct {
	mode       string
	configPath string
	envFile    string
	from       string
	to         string
	days       int
	day        string
	assetID    int
}

func main() {
	var f flags
	flag.StringVar(&f.mode, "mode", modeDaily, "Mode: init, daily, delete, show, journal, key")
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.envFile, "env-file", ".env", "Path to .env file (skipped if missing)")
	flag.StringVar(&f.from, "from", "", "First day of the range, YYYY-MM-DD (overrides the mode default)")
	flag.StringVar(&f.to, "to", "", "Day after the last day of the range, YYYY-MM-DD (overrides the mode default)")
	flag.IntVar(&f.days, "days", 0, "Days to delete before today (delete mode; 0 uses the config)")
	flag.StringVar(&f.day, "day", "", "Day to derive the key for, YYYY-MM-DD (key mode; default today)")
	flag.IntVar(&f.assetID, "asset", -1, "Asset id (key mode; default from config)")
	flag.Parse()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "recorder: %v\n", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return err
	}

	if f.mode == modeKey {
		return printKey(f)
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		MaxAge: cfg.Logging.MaxAge,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrConfig, err)
	}

	runID := uuid.NewString()
	log := logger.WithFields(logrus.Fields{"run_id": runID, "mode": f.mode})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	today := domain.DayOf(time.Now(), loc)

	app, err := newApp(ctx, cfg, logger, runID)
	if err != nil {
		log.WithError(err).Error("startup failed")
		return err
	}
	defer app.Close()

	start := time.Now()
	err = app.dispatch(ctx, f, today, log)
	app.metrics.RecordRun(f.mode, time.Since(start), err)

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if perr := app.metrics.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, f.mode); perr != nil {
			log.WithError(perr).Warn("failed to push metrics")
		}
		cancel()
	}

	if err != nil {
		fields := logrus.Fields{"duration": time.Since(start).String()}
		if errors.Is(err, context.Canceled) {
			log.WithFields(fields).Warn("run interrupted")
		} else {
			log.WithFields(fields).WithError(err).Error("run failed")
		}
		return err
	}
	log.WithField("duration", time.Since(start).String()).Info("run finished")
	return nil
}

func (a *app) dispatch(ctx context.Context, f flags, today domain.Day, log *logrus.Entry) error {
	switch f.mode {
	case modeInit:
		r, err := rangeFor(f, today.StartOfYear(), today)
		if err != nil {
			return err
		}
		result, err := a.runner.Fill(ctx, r)
		logResult(log, result)
		return err

	case modeDaily:
		// Yesterday's year, so the run on Jan 1 still covers Dec 31.
		r, err := rangeFor(f, today.AddDays(-1).StartOfYear(), today)
		if err != nil {
			return err
		}
		result, err := a.runner.Resume(ctx, r)
		logResult(log, result)
		return err

	case modeDelete:
		n := f.days
		if n == 0 {
			n = a.cfg.Schedule.DeleteDays
		}
		result, err := a.runner.DeleteRecent(ctx, today, n)
		logResult(log, result)
		return err

	case modeShow:
		r, err := rangeFor(f, today.AddDays(-7), today)
		if err != nil {
			return err
		}
		return a.show(ctx, r)

	case modeJournal:
		r, err := rangeFor(f, today.AddDays(-7), today)
		if err != nil {
			return err
		}
		return a.showJournal(ctx, r)

	default:
		return fmt.Errorf("%w: unknown mode %q", config.ErrConfig, f.mode)
	}
}

// rangeFor applies -from/-to over the mode defaults.
func rangeFor(f flags, start, end domain.Day) (backfill.Range, error) {
	var err error
	if f.from != "" {
		if start, err = domain.ParseDay(f.from); err != nil {
			return backfill.Range{}, fmt.Errorf("-from: %w", err)
		}
	}
	if f.to != "" {
		if end, err = domain.ParseDay(f.to); err != nil {
			return backfill.Range{}, fmt.Errorf("-to: %w", err)
		}
	}
	r := backfill.Range{Start: start, End: end}
	return r, r.Validate()
}

func logResult(log *logrus.Entry, result *backfill.Result) {
	if result == nil {
		return
	}
	fields := logrus.Fields{
		"recorded": len(result.Recorded),
		"skipped":  result.Skipped,
		"deleted":  len(result.Deleted),
	}
	if !result.ResumeFrom.IsZero() {
		fields["resume_from"] = result.ResumeFrom.String()
	}
	log.WithFields(fields).Info("summary")
}

func printKey(f flags) error {
	key, err := keyFor(f)
	if err != nil {
		return err
	}
	fmt.Println(key.Hex())
	return nil
}

// keyFor derives the key from the same file and environment as the other
// modes, without requiring signer credentials.
func keyFor(f flags) (keycodec.Key, error) {
	cfg, err := config.Read(f.configPath)
	if err != nil {
		return 0, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return 0, err
	}

	day := domain.DayOf(time.Now(), loc)
	if f.day != "" {
		if day, err = domain.ParseDay(f.day); err != nil {
			return 0, err
		}
	}
	assetID := cfg.Asset.ID
	if f.assetID >= 0 {
		assetID = f.assetID
	}
	return keycodec.Derive(day, assetID)
}
