package tracking

import (
	"github.com/abchrisxyz/ergowatch/core/node"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// EventChannelCapacity is the capacity of channels carrying tracking events.
// Sending on a full channel blocks the tracker until the slowest sink drains
// space.
const EventChannelCapacity = 8

type EventKind int

const (
	// KindGenesis is emitted exactly once, on cursors starting from the
	// initial sentinel.
	KindGenesis EventKind = iota
	// KindInclude announces a new block on the main chain.
	KindInclude
	// KindRollback announces that the block at Height is no longer on the
	// main chain and must be undone.
	KindRollback
)

func (k EventKind) String() string {
	switch k {
	case KindGenesis:
		return "genesis"
	case KindInclude:
		return "include"
	case KindRollback:
		return "rollback"
	}
	return "unknown"
}

// Event is a tracking message fanned out to cursor sinks. Exactly one payload
// field is set, according to Kind.
type Event struct {
	Kind EventKind

	// Block is set for Include events. The block is frozen at the moment it
	// leaves the node client and shared read-only across all sinks.
	Block *types.Stamped[*types.Block]

	// Height and Parent are set for Rollback events. Parent is the position
	// downstream state should resume from.
	Height types.Height
	Parent types.Header

	// GenesisBoxes is set for Genesis events.
	GenesisBoxes []node.Output
}
