package framework

import (
	"context"

	"github.com/pkg/errors"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// Reporter receives worker liveness updates. Satisfied by *monitor.Monitor.
// Implementations must never block.
type Reporter interface {
	Report(workerID string, height types.Height)
}

// Worker pairs a workflow with its upstream subscription and owns the
// receive loop.
type Worker[U, D any] struct {
	id       string
	workflow Workflow[U, D]
	rx       <-chan *Event[U]
	reporter Reporter
}

// NewWorker subscribes the given workflow to its source and returns the
// worker driving it.
//
// Before subscribing, the workflow's head is checked against the source's
// main chain. A worker could have crashed during a reorg that the source
// completed later, leaving the workflow's head on an abandoned fork. Such
// heads are rolled back until back on the main chain. A workflow ahead of
// its source is left as is.
func NewWorker[U, D any](
	ctx context.Context,
	id string,
	workflow Workflow[U, D],
	source Source[U],
	reporter Reporter,
) (*Worker[U, D], error) {
	if err := ensureMainChain(ctx, id, workflow, source); err != nil {
		return nil, err
	}
	rx := source.Subscribe(ctx, workflow.Header(), id)
	return &Worker[U, D]{
		id:       id,
		workflow: workflow,
		rx:       rx,
		reporter: reporter,
	}, nil
}

func ensureMainChain[U, D any](ctx context.Context, id string, workflow Workflow[U, D], source Source[U]) error {
	if workflow.Header().Height > source.Header().Height {
		return nil
	}
	for {
		ok, err := source.ContainsHeader(ctx, workflow.Header())
		if err != nil {
			return errors.Wrapf(err, "checking main chain for worker %s", id)
		}
		if ok {
			return nil
		}
		logger.Infow("Worker head is not on main chain - rolling back",
			"worker", id, "height", workflow.Header().Height, "headerId", workflow.Header().HeaderID)
		if _, err := workflow.RollBack(ctx, workflow.Header().Height); err != nil {
			return errors.Wrapf(err, "rolling back worker %s", id)
		}
	}
}

// ID returns the worker's name.
func (w *Worker[U, D]) ID() string { return w.id }

// Events exposes the upstream channel for workers composing their own select
// loop (e.g. to also poll an external feed). Use with ProcessUpstreamEvent.
func (w *Worker[U, D]) Events() <-chan *Event[U] { return w.rx }

// Run consumes upstream events until the context is cancelled. A closed
// upstream channel means the source died; that is fatal for this worker.
func (w *Worker[U, D]) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			logger.Infow("Worker stopping", "worker", w.id)
			return ctx.Err()
		case event, ok := <-w.rx:
			if !ok {
				return errors.Errorf("worker %s: upstream channel disconnected", w.id)
			}
			if err := w.ProcessUpstreamEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

// ProcessUpstreamEvent routes one event into the workflow, enforcing the
// contract rules, and reports the resulting height.
func (w *Worker[U, D]) ProcessUpstreamEvent(ctx context.Context, event *Event[U]) error {
	switch event.Kind {
	case KindInclude:
		// A capped cursor replays events prior to this workflow's head.
		// Skip them, they are already persisted.
		if event.Data.Height <= w.workflow.Header().Height {
			return nil
		}
		if _, err := w.include(ctx, event.Data); err != nil {
			return err
		}
	case KindRollback:
		if _, err := w.rollBack(ctx, event.Height); err != nil {
			return err
		}
	}
	w.reportStatus()
	return nil
}

func (w *Worker[U, D]) include(ctx context.Context, data *types.Stamped[U]) (D, error) {
	// The next block must be a child of the last included one.
	head := w.workflow.Header()
	if data.Height != head.Height+1 || data.ParentID != head.HeaderID {
		logger.Fatalw("Worker received non-contiguous block",
			"worker", w.id,
			"blockHeight", data.Height, "blockParent", data.ParentID,
			"headHeight", head.Height, "headId", head.HeaderID)
	}
	return w.workflow.IncludeBlock(ctx, data)
}

func (w *Worker[U, D]) rollBack(ctx context.Context, height types.Height) (types.Header, error) {
	if height != w.workflow.Header().Height {
		logger.Fatalw("Worker received rollback for unexpected height",
			"worker", w.id, "height", height, "headHeight", w.workflow.Header().Height)
	}
	return w.workflow.RollBack(ctx, height)
}

func (w *Worker[U, D]) reportStatus() {
	if w.reporter != nil {
		w.reporter.Report(w.id, w.workflow.Header().Height)
	}
}
