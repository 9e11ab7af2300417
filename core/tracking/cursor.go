package tracking

import (
	"context"
	"time"

	"github.com/jpillora/backoff"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/node"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// chainSliceWindow is the number of headers fetched ahead of the cursor in a
// single step.
const chainSliceWindow = 10

// cursor is a subscription position in the chain, carrying one or more
// sinks. All sinks of a single cursor observe exactly the same event
// sequence. Cursors are uniquely owned by their tracker and never shared.
type cursor struct {
	name            string
	height          types.Height
	headerID        types.HeaderID
	nc              *node.Client
	sinks           []chan<- *Event
	pollingInterval time.Duration
}

// isAt checks if the cursor is at the given position.
func (c *cursor) isAt(height types.Height, headerID types.HeaderID) bool {
	return c.height == height && c.headerID == headerID
}

// isOn checks if the cursor is at the same position as other.
func (c *cursor) isOn(other *cursor) bool {
	return c.isAt(other.height, other.headerID)
}

// merge takes over other's sinks. The other cursor is consumed.
func (c *cursor) merge(other *cursor) {
	c.sinks = append(c.sinks, other.sinks...)
	other.sinks = nil
}

// step progresses the cursor by at most one pass. Returns without doing
// anything if the node has nothing new.
func (c *cursor) step(ctx context.Context) error {
	if c.height == -1 {
		return c.emitGenesis(ctx)
	}
	headers, err := c.fetchNewHeaders(ctx)
	if err != nil {
		if node.IsTransient(err) {
			logger.Warnw("Tracker: node error during step", "cursor", c.name, "err", err)
			return nil
		}
		return err
	}
	if headers == nil {
		return nil
	}
	return c.processNewHeaders(ctx, headers)
}

// watch follows the node tip forever, sleeping pollingInterval between polls.
// Transient node errors are logged and retried with backoff, capped at the
// polling interval. Only context cancellation ends the loop.
func (c *cursor) watch(ctx context.Context) error {
	retry := &backoff.Backoff{
		Min:    time.Second,
		Max:    c.pollingInterval,
		Factor: 2,
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.height == -1 {
			if err := c.emitGenesis(ctx); err != nil {
				return err
			}
			continue
		}
		headers, err := c.fetchNewHeaders(ctx)
		if err != nil {
			if !node.IsTransient(err) {
				return err
			}
			logger.Warnw("Tracker: node error, retrying", "cursor", c.name, "err", err)
			if err := sleepCtx(ctx, retry.Duration()); err != nil {
				return err
			}
			continue
		}
		retry.Reset()
		if headers == nil {
			if err := sleepCtx(ctx, c.pollingInterval); err != nil {
				return err
			}
			continue
		}
		if err := c.processNewHeaders(ctx, headers); err != nil {
			return err
		}
	}
}

// fetchNewHeaders returns main chain headers above the cursor, if any. A nil
// slice means the cursor is up to date with the node.
func (c *cursor) fetchNewHeaders(ctx context.Context) ([]node.Header, error) {
	headers, err := c.nc.ChainSlice(ctx, c.height, c.height+chainSliceWindow)
	if err != nil {
		return nil, err
	}
	switch len(headers) {
	case 0:
		// The node always returns at least its own tip.
		logger.Fatalw("Tracker: got empty chain slice", "cursor", c.name, "height", c.height)
		return nil, nil
	case 1:
		if headers[0].ID == c.headerID {
			return nil, nil
		}
		return headers, nil
	default:
		return headers, nil
	}
}

func (c *cursor) processNewHeaders(ctx context.Context, headers []node.Header) error {
	for i := range headers {
		h := &headers[i]
		if h.Height == c.height {
			// Different block at our current height. The last included block
			// is not part of the main chain anymore, so roll back and
			// reconsider this header from the new, lower tip.
			logger.Warnw("Tracker: new block at same height", "cursor", c.name, "height", h.Height)
			if err := c.rollBack(ctx); err != nil {
				return err
			}
		}
		if h.Height != c.height+1 {
			logger.Fatalw("Tracker: header skips a height",
				"cursor", c.name, "headerHeight", h.Height, "cursorHeight", c.height)
		}
		if h.ParentID != c.headerID {
			// New block is not a child of our tip. Roll back and re-enter the
			// step from the new, lower tip.
			logger.Warnw("Tracker: new block is not a child", "cursor", c.name, "height", h.Height)
			if err := c.rollBack(ctx); err != nil {
				return err
			}
			return nil
		}
		if err := c.include(ctx, h.ID); err != nil {
			return err
		}
	}
	return nil
}

// include fetches the block with the given header id, broadcasts its
// inclusion and advances the cursor.
func (c *cursor) include(ctx context.Context, headerID types.HeaderID) error {
	logger.Infow("Tracker: including block", "cursor", c.name, "height", c.height+1, "headerId", headerID)
	rawBlock, err := c.nc.Block(ctx, headerID)
	if err != nil {
		return err
	}
	block, err := node.RenderBlock(rawBlock)
	if err != nil {
		return err
	}
	stamped := types.StampAt(block.Header.PositionHeader(), block)
	event := &Event{Kind: KindInclude, Block: stamped}
	if err := c.broadcast(ctx, event); err != nil {
		return err
	}
	c.height = block.Header.Height
	c.headerID = block.Header.ID
	return nil
}

// rollBack broadcasts the undoing of the block at the cursor's tip and winds
// the cursor back to its parent.
func (c *cursor) rollBack(ctx context.Context) error {
	logger.Infow("Tracker: rolling back block", "cursor", c.name, "height", c.height, "headerId", c.headerID)
	rawBlock, err := c.nc.Block(ctx, c.headerID)
	if err != nil {
		return err
	}
	parent := types.Header{
		Height:   c.height - 1,
		HeaderID: rawBlock.Header.ParentID,
	}
	event := &Event{Kind: KindRollback, Height: c.height, Parent: parent}
	if err := c.broadcast(ctx, event); err != nil {
		return err
	}
	c.height = parent.Height
	c.headerID = parent.HeaderID
	return nil
}

// emitGenesis performs the genesis handshake for a cursor starting from the
// initial sentinel: one Genesis event carrying the chain's genesis outputs,
// then the cursor sits on the genesis sentinel.
func (c *cursor) emitGenesis(ctx context.Context) error {
	logger.Infow("Tracker: emitting genesis boxes", "cursor", c.name)
	boxes, err := c.nc.GenesisBoxes(ctx)
	if err != nil {
		return err
	}
	event := &Event{Kind: KindGenesis, GenesisBoxes: boxes}
	if err := c.broadcast(ctx, event); err != nil {
		return err
	}
	genesis := types.GenesisHeader()
	c.height = genesis.Height
	c.headerID = genesis.HeaderID
	return nil
}

// broadcast delivers the event to every sink in registration order. Sends on
// full channels block until the receiver drains space; only context
// cancellation interrupts a delivery.
func (c *cursor) broadcast(ctx context.Context, event *Event) error {
	for _, sink := range c.sinks {
		select {
		case sink <- event:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
