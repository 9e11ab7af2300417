// Package framework implements the generic worker machinery: event handling
// loops, source re-publishing with lagging cursor replay, the query channel
// and the store adapter binding worker state to the chain position.
package framework

import (
	"github.com/abchrisxyz/ergowatch/core/types"
)

// EventChannelCapacity is the capacity of channels carrying worker events.
const EventChannelCapacity = 8

type EventKind int

const (
	// KindInclude carries new block data for the subscriber's next height.
	KindInclude EventKind = iota
	// KindRollback announces the block at Height has been undone upstream.
	KindRollback
)

// Event is a message from a source to its subscribers. Exactly one payload
// field is set, according to Kind. Genesis data travels as an Include at
// height zero.
type Event[D any] struct {
	Kind   EventKind
	Data   *types.Stamped[D] // Include
	Height types.Height      // Rollback
}

// IncludeEvent wraps stamped data for delivery.
func IncludeEvent[D any](data *types.Stamped[D]) *Event[D] {
	return &Event[D]{Kind: KindInclude, Data: data}
}

// RollbackEvent announces the undoing of the block at the given height.
func RollbackEvent[D any](height types.Height) *Event[D] {
	return &Event[D]{Kind: KindRollback, Height: height}
}
