package framework

import (
	"context"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// Source is the upstream side of a subscription. The tracker-fed chain
// worker and any SourceWorker implement it.
type Source[S any] interface {
	// Header returns the source's current position.
	Header() types.Header

	// ContainsHeader reports whether the given header is on the source's
	// main chain. Used by subscribers to detect a stale head on startup.
	ContainsHeader(ctx context.Context, header types.Header) (bool, error)

	// Subscribe registers a subscriber at the given position and returns the
	// channel its events will arrive on. A subscriber ahead of the source is
	// clamped down to the source's position; events it already persisted are
	// skipped idempotently on delivery.
	Subscribe(ctx context.Context, header types.Header, name string) <-chan *Event[S]
}

// Workflow is the per-worker logic consuming events and producing persisted
// state plus, for sources, downstream payloads. Sinks set D = struct{}.
type Workflow[U, D any] interface {
	// IncludeBlock processes new block data and returns the payload for
	// downstream subscribers.
	IncludeBlock(ctx context.Context, data *types.Stamped[U]) (D, error)

	// RollBack undoes the block at the given height and returns the new,
	// previous head.
	RollBack(ctx context.Context, height types.Height) (types.Header, error)

	// Header returns the last processed header.
	Header() types.Header
}

// SourceableWorkflow is implemented by workflows whose worker re-publishes
// events downstream. GetAt reads persisted derived data back for replay to
// lagging cursors.
type SourceableWorkflow[U, D any] interface {
	Workflow[U, D]

	ContainsHeader(ctx context.Context, header types.Header) (bool, error)

	GetAt(ctx context.Context, height types.Height) (*types.Stamped[D], error)
}
