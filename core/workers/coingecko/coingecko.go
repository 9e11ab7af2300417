// Package coingecko interpolates an ERG/USD price for every block from an
// external hourly price feed. Block prices beyond the feed's last datapoint
// are provisional and revised once later datapoints arrive.
package coingecko

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/tevino/abool"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

const WorkerID = "coingecko"

const (
	// pollInterval is the pause between feed sync checks.
	pollInterval = 10 * time.Second
	// throttleDuration is the backoff after an empty or failed feed poll.
	throttleDuration = 60 * time.Second
	// hourMillis is the feed's datapoint interval.
	hourMillis = 3_600_000
)

// genesisUSD is the assumed price for the first few blocks, prior to the
// feed's first datapoint.
const genesisUSD = 0.91

// HourlyRecord is one feed datapoint.
type HourlyRecord struct {
	Timestamp types.Timestamp
	USD       float64
}

// BlockRecord is the price assigned to one block.
type BlockRecord struct {
	Height types.Height
	USD    float64
}

// ProvisionalRecord marks a block whose price awaits later feed datapoints.
type ProvisionalRecord struct {
	Height    types.Height
	Timestamp types.Timestamp
}

// Batch holds the mutations of one block.
type Batch struct {
	Block       BlockRecord
	Provisional *ProvisionalRecord
}

// Cache holds the hourly records needed for interpolation and the
// provisional records awaiting revision. Owned by the worker's single
// goroutine.
type Cache struct {
	RecentHourly []HourlyRecord
	Provisional  []ProvisionalRecord
}

// Trim removes hourly records no longer needed: everything prior to the
// first provisional record, except the most recent of them.
func (c *Cache) Trim() {
	if len(c.RecentHourly) == 0 {
		return
	}
	var since types.Timestamp
	if len(c.Provisional) > 0 {
		first := c.Provisional[0].Timestamp
		for _, hr := range c.RecentHourly {
			if hr.Timestamp <= first && hr.Timestamp > since {
				since = hr.Timestamp
			}
		}
	} else {
		since = c.RecentHourly[len(c.RecentHourly)-1].Timestamp
	}
	kept := c.RecentHourly[:0]
	for _, hr := range c.RecentHourly {
		if hr.Timestamp >= since {
			kept = append(kept, hr)
		}
	}
	c.RecentHourly = kept
}

// Workflow consumes core data and persists block prices.
type Workflow struct {
	store *framework.PgStore[Batch]
	cache *Cache
}

// NewWorkflow bootstraps the coingecko schema and loads the cache.
func NewWorkflow(db *gorm.DB) (*Workflow, error) {
	store, err := framework.NewPgStore[Batch](db, schema, WorkerID, &batchStore{})
	if err != nil {
		return nil, err
	}
	w := &Workflow{store: store, cache: &Cache{}}
	if err := w.loadCache(); err != nil {
		return nil, err
	}
	return w, nil
}

var _ framework.Workflow[types.CoreData, struct{}] = (*Workflow)(nil)

func (w *Workflow) Header() types.Header { return w.store.Header() }

func (w *Workflow) IncludeBlock(ctx context.Context, data *types.Stamped[types.CoreData]) (struct{}, error) {
	batch := prepareBatch(data.Height, data.Timestamp, w.cache.RecentHourly)
	if err := w.store.Persist(ctx, types.Wrap(data, batch)); err != nil {
		return struct{}{}, err
	}
	if batch.Provisional != nil {
		w.cache.Provisional = append(w.cache.Provisional, *batch.Provisional)
	}
	w.cache.Trim()
	return struct{}{}, nil
}

func (w *Workflow) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	header, err := w.store.RollBack(ctx, height)
	if err != nil {
		return header, err
	}
	kept := w.cache.Provisional[:0]
	for _, pr := range w.cache.Provisional {
		if pr.Height != height {
			kept = append(kept, pr)
		}
	}
	w.cache.Provisional = kept
	return header, nil
}

// prepareBatch assigns a price to the block at the given timestamp.
func prepareBatch(height types.Height, timestamp types.Timestamp, hourly []HourlyRecord) Batch {
	// Blocks prior to the feed's first datapoint.
	if height <= 3 || len(hourly) == 0 {
		return Batch{Block: BlockRecord{Height: height, USD: genesisUSD}}
	}
	for i := 0; i+1 < len(hourly); i++ {
		a, b := hourly[i], hourly[i+1]
		if timestamp >= a.Timestamp && timestamp <= b.Timestamp {
			return Batch{Block: BlockRecord{Height: height, USD: interpolate(timestamp, a, b)}}
		}
	}
	// Beyond the last datapoint: carry it forward, revise later.
	last := hourly[len(hourly)-1]
	return Batch{
		Block:       BlockRecord{Height: height, USD: last.USD},
		Provisional: &ProvisionalRecord{Height: height, Timestamp: timestamp},
	}
}

func interpolate(t types.Timestamp, a, b HourlyRecord) float64 {
	if b.Timestamp == a.Timestamp {
		return a.USD
	}
	frac := float64(t-a.Timestamp) / float64(b.Timestamp-a.Timestamp)
	return a.USD + frac*(b.USD-a.USD)
}

// Worker combines the event handling workflow with the feed poller. All
// state is driven from a single select loop, so the cache needs no locking.
type Worker struct {
	worker    *framework.Worker[types.CoreData, struct{}]
	flow      *Workflow
	service   *Service
	throttled *abool.AtomicBool
}

// NewWorker subscribes the workflow to the given source.
func NewWorker(
	ctx context.Context,
	db *gorm.DB,
	feedURL string,
	source framework.Source[types.CoreData],
	reporter framework.Reporter,
) (*Worker, error) {
	flow, err := NewWorkflow(db)
	if err != nil {
		return nil, err
	}
	worker, err := framework.NewWorker[types.CoreData, struct{}](ctx, WorkerID, flow, source, reporter)
	if err != nil {
		return nil, err
	}
	return &Worker{
		worker:    worker,
		flow:      flow,
		service:   NewService(feedURL),
		throttled: abool.New(),
	}, nil
}

// IsThrottled reports whether feed polling is backing off.
func (w *Worker) IsThrottled() bool { return w.throttled.IsSet() }

// Run drives the worker: upstream events, feed polls and the throttle bit
// all live in one select loop.
func (w *Worker) Run(ctx context.Context) error {
	pollTicker := time.NewTicker(pollInterval)
	defer pollTicker.Stop()

	var throttleC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			logger.Infow("Worker stopping", "worker", WorkerID)
			return ctx.Err()
		case <-throttleC:
			logger.Debugw("Throttling off", "worker", WorkerID)
			w.throttled.UnSet()
			throttleC = nil
		case <-pollTicker.C:
			if w.throttled.IsSet() || !w.timeToSync() {
				continue
			}
			if ok := w.poll(ctx); !ok {
				// Feed is down or has nothing new yet.
				logger.Debugw("Throttling on", "worker", WorkerID)
				w.throttled.Set()
				throttleC = time.After(throttleDuration)
			}
		case event, ok := <-w.worker.Events():
			if !ok {
				return errors.Errorf("worker %s: upstream channel disconnected", WorkerID)
			}
			if err := w.worker.ProcessUpstreamEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

// timeToSync reports whether the feed should have a new datapoint by now.
func (w *Worker) timeToSync() bool {
	last := w.flow.lastHourlyTimestamp()
	return time.Now().UnixMilli()-int64(last) >= hourMillis
}

// poll fetches new feed datapoints. Returns false when there is nothing to
// ingest.
func (w *Worker) poll(ctx context.Context) bool {
	since := w.flow.lastHourlyTimestamp()
	records, err := w.service.Fetch(ctx, since, types.Timestamp(time.Now().UnixMilli()))
	if err != nil {
		logger.Warnw("Feed poll failed", "worker", WorkerID, "err", err)
		return false
	}
	if len(records) == 0 {
		return false
	}
	if err := w.flow.ingestHourly(ctx, records); err != nil {
		logger.Errorw("Feed ingestion failed", "worker", WorkerID, "err", err)
		return false
	}
	return true
}
