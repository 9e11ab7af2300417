package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/monitor"
	"github.com/abchrisxyz/ergowatch/core/node"
	"github.com/abchrisxyz/ergowatch/core/store/migrate"
	"github.com/abchrisxyz/ergowatch/core/tracking"
	"github.com/abchrisxyz/ergowatch/core/types"
	"github.com/abchrisxyz/ergowatch/core/workers/chain"
	"github.com/abchrisxyz/ergowatch/core/workers/coingecko"
	"github.com/abchrisxyz/ergowatch/core/workers/diffs"
	"github.com/abchrisxyz/ergowatch/core/workers/exchanges"
	"github.com/abchrisxyz/ergowatch/core/workers/network"
	"github.com/abchrisxyz/ergowatch/core/workers/timestamps"
)

type runner struct {
	name string
	run  func(context.Context) error
}

func runNode(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
		logger.SetLevel(lvl)
	}

	db, closeDB, err := openDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := migrate.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mon := monitor.New(cfg.MonitorPort)
	if err := mon.Start(); err != nil {
		return err
	}
	defer mon.Close()

	nc := node.New(cfg.NodeID, cfg.NodeURL)
	tracker := tracking.NewTracker(nc, cfg.PollingInterval)

	// The chain worker registers the tracker cursor; downstream workers
	// subscribe to the chain worker. All subscriptions happen before the
	// tracker starts, so the worker graph is fixed by construction.
	chainWorker, err := chain.NewWorker(tracker, db, mon)
	if err != nil {
		return errors.Wrap(err, "initializing core worker")
	}
	runners := []runner{{chain.WorkerID, chainWorker.Run}}

	if cfg.Workers.Timestamps {
		flow, err := timestamps.NewWorkflow(db)
		if err != nil {
			return errors.Wrap(err, "initializing timestamps worker")
		}
		w, err := framework.NewWorker[types.CoreData, struct{}](ctx, timestamps.WorkerID, flow, chainWorker, mon)
		if err != nil {
			return errors.Wrap(err, "initializing timestamps worker")
		}
		runners = append(runners, runner{timestamps.WorkerID, w.Run})
	}

	if cfg.Workers.Network {
		flow, err := network.NewWorkflow(db)
		if err != nil {
			return errors.Wrap(err, "initializing network worker")
		}
		w, err := framework.NewWorker[types.CoreData, struct{}](ctx, network.WorkerID, flow, chainWorker, mon)
		if err != nil {
			return errors.Wrap(err, "initializing network worker")
		}
		runners = append(runners, runner{network.WorkerID, w.Run})
	}

	if cfg.Workers.Coingecko {
		w, err := coingecko.NewWorker(ctx, db, cfg.CoingeckoURL, chainWorker, mon)
		if err != nil {
			return errors.Wrap(err, "initializing coingecko worker")
		}
		runners = append(runners, runner{coingecko.WorkerID, w.Run})
	}

	if cfg.Workers.Diffs {
		diffsWorker, querySender, err := diffs.NewWorker(ctx, db, chainWorker, mon)
		if err != nil {
			return errors.Wrap(err, "initializing diffs worker")
		}
		runners = append(runners, runner{diffs.WorkerID, diffsWorker.Run})

		// Exchanges query past diffs, so they sit strictly after the diffs
		// worker in the pipeline.
		if cfg.Workers.Exchanges {
			flow, err := exchanges.NewWorkflow(db, exchanges.DefaultExchanges, querySender)
			if err != nil {
				return errors.Wrap(err, "initializing exchanges worker")
			}
			w, err := framework.NewWorker[diffs.Data, struct{}](ctx, exchanges.WorkerID, flow, diffsWorker.Source(), mon)
			if err != nil {
				return errors.Wrap(err, "initializing exchanges worker")
			}
			runners = append(runners, runner{exchanges.WorkerID, w.Run})
		}
	} else if cfg.Workers.Exchanges {
		return errors.New("exchanges worker requires the diffs worker")
	}

	errCh := make(chan error, len(runners))
	for _, r := range runners {
		r := r
		go func() {
			if err := r.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- errors.Wrapf(err, "worker %s", r.name)
				return
			}
			errCh <- nil
		}()
	}

	if err := tracker.Start(); err != nil {
		return err
	}
	logger.Infow("ergowatch started", "node", cfg.NodeURL, "workers", len(runners))

	var fatal error
	consumed := 0
	select {
	case <-ctx.Done():
		logger.Infow("shutdown signal received")
	case err := <-errCh:
		consumed = 1
		if err != nil {
			fatal = err
			logger.Errorw("worker failed, shutting down", "err", err)
		}
	}

	// Wind everything down and collect stragglers.
	stop()
	if err := tracker.Close(); err != nil {
		logger.Warnw("shutdown incomplete", "err", err)
	}
	for i := consumed; i < len(runners); i++ {
		if err := <-errCh; err != nil {
			fatal = multierr.Append(fatal, err)
		}
	}
	return fatal
}

func openDB(url string) (*gorm.DB, func(), error) {
	db, err := gorm.Open(postgres.Open(url), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "connecting to database")
	}
	closeDB := func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	return db, closeDB, nil
}
