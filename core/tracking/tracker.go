// Package tracking maintains the canonical main chain view and fans out
// Include/Rollback/Genesis events to registered cursors, in order.
package tracking

import (
	"context"
	"sync"
	"time"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/node"
	"github.com/abchrisxyz/ergowatch/core/types"
	"github.com/abchrisxyz/ergowatch/core/utils"
)

// DefaultPollingInterval is the pause between node polls when no new block is
// available. A soft upper bound on chain-follow latency.
const DefaultPollingInterval = 5 * time.Second

// Tracker is the single owner of main chain state. It drives a set of
// cursors, each representing one subscription position, until they converge
// on the node's tip, then follows the tip forever.
type Tracker struct {
	utils.StartStopOnce

	nc              *node.Client
	pollingInterval time.Duration

	// Cursors are registered before Start and uniquely owned by the tracker.
	mu      sync.Mutex
	cursors []*cursor

	ctx      context.Context
	cancel   context.CancelFunc
	chDone   chan struct{}
}

// NewTracker returns a tracker polling the given node.
func NewTracker(nc *node.Client, pollingInterval time.Duration) *Tracker {
	if pollingInterval <= 0 {
		pollingInterval = DefaultPollingInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		nc:              nc,
		pollingInterval: pollingInterval,
		ctx:             ctx,
		cancel:          cancel,
		chDone:          make(chan struct{}),
	}
}

// AddCursor registers a new subscriber at the given position and returns the
// channel its events will be delivered on. If an existing cursor is already
// at that position the new sink joins it, so both observe the exact same
// event sequence. Must be called before Start.
func (t *Tracker) AddCursor(name string, header types.Header) <-chan *Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan *Event, EventChannelCapacity)

	for _, cur := range t.cursors {
		if cur.isAt(header.Height, header.HeaderID) {
			cur.sinks = append(cur.sinks, ch)
			return ch
		}
	}

	t.cursors = append(t.cursors, &cursor{
		name:            name,
		height:          header.Height,
		headerID:        header.HeaderID,
		nc:              t.nc,
		sinks:           []chan<- *Event{ch},
		pollingInterval: t.pollingInterval,
	})
	return ch
}

// Start enters the drive loop in a dedicated goroutine.
func (t *Tracker) Start() error {
	return t.StartOnce("Tracker", func() error {
		go t.run()
		return nil
	})
}

// Close stops the drive loop and waits for it to wind down.
func (t *Tracker) Close() error {
	return t.StopOnce("Tracker", func() error {
		t.cancel()
		<-t.chDone
		return nil
	})
}

func (t *Tracker) run() {
	defer close(t.chDone)

	if len(t.cursors) == 0 {
		logger.Warnw("Tracker: started with no cursors")
		return
	}
	if len(t.cursors) > 1 {
		if err := t.joinCursors(); err != nil {
			t.exit(err)
			return
		}
	}
	t.exit(t.singleCursor())
}

func (t *Tracker) exit(err error) {
	if err != nil && t.ctx.Err() == nil {
		// Permanent node errors and broken protocol invariants are bugs.
		// Never swallowed.
		logger.Fatalw("Tracker: drive loop failed", "err", err)
	}
	logger.Infow("Tracker: stopped")
}

// joinCursors progresses all cursors, one step at a time, until they are all
// at the same position and merged into one.
func (t *Tracker) joinCursors() error {
	logger.Infow("Tracker: converging cursors", "count", len(t.cursors))
	for {
		for _, cur := range t.cursors {
			if err := cur.step(t.ctx); err != nil {
				return err
			}
		}
		t.mergeCursors()
		if len(t.cursors) == 1 {
			logger.Infow("Tracker: cursors converged")
			return nil
		}
	}
}

// mergeCursors coalesces cursors that reached the same position. Merging is
// best-effort within a pass: lagging cursors are only compared against the
// highest cursor, so coalescing opportunities behind the tip can be missed
// for one pass. They are picked up again once positions match the tip.
func (t *Tracker) mergeCursors() {
	head := t.cursors[0]
	for _, cur := range t.cursors[1:] {
		if cur.height > head.height {
			head = cur
		}
	}

	merged := make([]*cursor, 0, len(t.cursors))
	merged = append(merged, head)
	for _, cur := range t.cursors {
		if cur == head {
			continue
		}
		if cur.isOn(head) {
			logger.Infow("Tracker: merging cursors", "into", head.name, "from", cur.name)
			head.merge(cur)
			continue
		}
		merged = append(merged, cur)
	}
	t.cursors = merged
}

// singleCursor follows the node tip with the one remaining cursor.
func (t *Tracker) singleCursor() error {
	if len(t.cursors) != 1 {
		logger.Fatalw("Tracker: watch phase entered with multiple cursors", "count", len(t.cursors))
	}
	return t.cursors[0].watch(t.ctx)
}

// SinkCounts returns the number of sinks per cursor, keyed by cursor name.
// Exposed for tests inspecting fan-in reuse.
func (t *Tracker) SinkCounts() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, len(t.cursors))
	for _, cur := range t.cursors {
		counts[cur.name] = len(cur.sinks)
	}
	return counts
}
