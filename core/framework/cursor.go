package framework

import (
	"context"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// Cursor is a subscription position on a source worker, carrying one or more
// sinks. All sinks of a cursor observe the exact same event sequence, in
// registration order.
type Cursor[D any] struct {
	id     string
	header types.Header
	sinks  []chan<- *Event[D]
}

// IsAt checks whether the cursor sits on the given position. Positions are
// compared by height and header id.
func (c *Cursor[D]) IsAt(header types.Header) bool {
	return c.header.Height == header.Height && c.header.HeaderID == header.HeaderID
}

// Merge takes over other's sinks. The other cursor is consumed.
func (c *Cursor[D]) Merge(other *Cursor[D]) {
	c.sinks = append(c.sinks, other.sinks...)
	other.sinks = nil
}

// Include delivers stamped data to all sinks and advances the cursor.
// Sends block when a sink's channel is full; only context cancellation
// interrupts a delivery.
func (c *Cursor[D]) Include(ctx context.Context, data *types.Stamped[D]) error {
	if err := c.broadcast(ctx, IncludeEvent(data)); err != nil {
		return err
	}
	c.header = data.Header()
	return nil
}

// RollBack delivers a rollback of the block at the cursor's height and winds
// the cursor back to prev.
func (c *Cursor[D]) RollBack(ctx context.Context, prev types.Header) error {
	if err := c.broadcast(ctx, RollbackEvent[D](c.header.Height)); err != nil {
		return err
	}
	c.header = prev
	return nil
}

func (c *Cursor[D]) broadcast(ctx context.Context, event *Event[D]) error {
	for _, sink := range c.sinks {
		select {
		case sink <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
