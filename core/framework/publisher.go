package framework

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// Publisher owns the source side of a worker: one tracking cursor at the
// worker's head, fed from live events, and zero or more lagging cursors
// catching up from the worker's store. Lagging cursors are progressed
// independently of what happens upstream; eventually they all reach the head
// and get merged into the tracking cursor.
type Publisher[D any] struct {
	workerID string

	mu       sync.Mutex
	tracking *Cursor[D]
	lagging  []*Cursor[D]
}

// NewPublisher returns an empty publisher for the given worker.
func NewPublisher[D any](workerID string) *Publisher[D] {
	return &Publisher[D]{workerID: workerID}
}

// Subscribe registers a subscriber at the given position. head is the owning
// worker's current position; subscribers ahead of it are capped to it and
// will idempotently skip replayed events they already persisted.
func (p *Publisher[D]) Subscribe(head, header types.Header, name string) <-chan *Event[D] {
	ch := make(chan *Event[D], EventChannelCapacity)

	capped := header
	if header.Height > head.Height {
		logger.Infow("Subscriber is ahead of source - capping to source position",
			"worker", p.workerID, "cursor", name)
		capped = head
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// At tracking position: join or create the tracking cursor.
	if capped.Height == head.Height && capped.HeaderID == head.HeaderID {
		if p.tracking != nil {
			p.tracking.sinks = append(p.tracking.sinks, ch)
			return ch
		}
		p.tracking = &Cursor[D]{id: name, header: capped, sinks: []chan<- *Event[D]{ch}}
		return ch
	}

	// Join a lagging cursor at the same position, if any.
	for _, cur := range p.lagging {
		if cur.IsAt(capped) {
			cur.sinks = append(cur.sinks, ch)
			return ch
		}
	}

	p.lagging = append(p.lagging, &Cursor[D]{id: name, header: capped, sinks: []chan<- *Event[D]{ch}})
	return ch
}

// ForwardInclude delivers live block data to the tracking cursor, if any.
// Lagging cursors are not driven by live events.
func (p *Publisher[D]) ForwardInclude(ctx context.Context, data *types.Stamped[D]) error {
	p.mu.Lock()
	tracking := p.tracking
	p.mu.Unlock()
	if tracking == nil {
		return nil
	}
	return tracking.Include(ctx, data)
}

// ForwardRollback delivers a rollback to the tracking cursor, if any.
func (p *Publisher[D]) ForwardRollback(ctx context.Context, prev types.Header) error {
	p.mu.Lock()
	tracking := p.tracking
	p.mu.Unlock()
	if tracking == nil {
		return nil
	}
	return tracking.RollBack(ctx, prev)
}

// HasLagging reports whether any cursor is still catching up.
func (p *Publisher[D]) HasLagging() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lagging) > 0
}

// ProgressLagging replays up to n blocks to each lagging cursor using getAt,
// never going past head, then merges any cursor that reached it.
func (p *Publisher[D]) ProgressLagging(
	ctx context.Context,
	n int,
	head types.Header,
	getAt func(context.Context, types.Height) (*types.Stamped[D], error),
) error {
	p.mu.Lock()
	lagging := make([]*Cursor[D], len(p.lagging))
	copy(lagging, p.lagging)
	p.mu.Unlock()

	for _, cur := range lagging {
		steps := int(head.Height - cur.header.Height)
		if steps > n {
			steps = n
		}
		for i := 0; i < steps; i++ {
			data, err := getAt(ctx, cur.header.Height+1)
			if err != nil {
				return errors.Wrapf(err, "replaying to cursor %s", cur.id)
			}
			if err := cur.Include(ctx, data); err != nil {
				return err
			}
		}
	}
	p.merge(head)
	return nil
}

// merge moves lagging cursors that reached head into the tracking cursor, or
// promotes the first of them when there is none.
func (p *Publisher[D]) merge(head types.Header) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var remaining []*Cursor[D]
	for _, cur := range p.lagging {
		if !cur.IsAt(head) {
			remaining = append(remaining, cur)
			continue
		}
		if p.tracking != nil {
			logger.Infow("Merging cursor with tracking one", "worker", p.workerID, "cursor", cur.id)
			p.tracking.Merge(cur)
		} else {
			logger.Infow("Making cursor the tracking one", "worker", p.workerID, "cursor", cur.id)
			cur.id = "main"
			p.tracking = cur
		}
	}
	p.lagging = remaining
}

// SinkCounts returns the number of sinks per cursor id. Exposed for tests.
func (p *Publisher[D]) SinkCounts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[string]int)
	if p.tracking != nil {
		counts[p.tracking.id] = len(p.tracking.sinks)
	}
	for _, cur := range p.lagging {
		counts[cur.id] = len(cur.sinks)
	}
	return counts
}
