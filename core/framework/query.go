package framework

import (
	"context"

	"github.com/pkg/errors"
)

// QueryChannelCapacity bounds pending queries on a single query channel.
const QueryChannelCapacity = 8

// QueryWrapper pairs a query with its one-shot reply channel.
type QueryWrapper[Q, R any] struct {
	Query Q
	Reply chan<- R
}

// QuerySender is the requesting side of a query channel. Queries are
// synchronous: the caller blocks until the answering worker replies. This
// imposes a strict no-cycles rule on the worker graph; a worker may only
// query workers strictly earlier in the pipeline.
type QuerySender[Q, R any] struct {
	tx chan<- QueryWrapper[Q, R]
}

// NewQueryChannel returns the two ends of a query channel. The receiving end
// goes into the answering worker's select loop.
func NewQueryChannel[Q, R any]() (QuerySender[Q, R], <-chan QueryWrapper[Q, R]) {
	ch := make(chan QueryWrapper[Q, R], QueryChannelCapacity)
	return QuerySender[Q, R]{tx: ch}, ch
}

// Query sends q and waits for the reply. A disconnected or dead answering
// worker leaves the caller blocked until its context is cancelled; dead
// worker detection is the monitor's job.
func (s QuerySender[Q, R]) Query(ctx context.Context, q Q) (R, error) {
	var zero R
	reply := make(chan R, 1)
	select {
	case s.tx <- QueryWrapper[Q, R]{Query: q, Reply: reply}:
	case <-ctx.Done():
		return zero, errors.Wrap(ctx.Err(), "sending query")
	}
	select {
	case r := <-reply:
		return r, nil
	case <-ctx.Done():
		return zero, errors.Wrap(ctx.Err(), "awaiting query response")
	}
}
