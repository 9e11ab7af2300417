// Package chain implements the core worker: the first consumer of tracker
// events, maintainer of the canonical core tables, and the source all other
// workers subscribe to.
package chain

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/node"
	"github.com/abchrisxyz/ergowatch/core/tracking"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// WorkerID is the chain worker's name.
const WorkerID = "core"

// laggingBatchSize is the number of blocks a lagging cursor is replayed by
// between upstream polls.
const laggingBatchSize = 10

// Worker consumes tracker events and re-publishes resolved core data to
// downstream workers.
type Worker struct {
	store     *Store
	rx        <-chan *tracking.Event
	reporter  framework.Reporter
	publisher *framework.Publisher[types.CoreData]
}

// NewWorker loads the store and registers a tracker cursor at its head.
func NewWorker(tracker *tracking.Tracker, db *gorm.DB, reporter framework.Reporter) (*Worker, error) {
	store, err := NewStore(db)
	if err != nil {
		return nil, err
	}
	rx := tracker.AddCursor(WorkerID, store.Header())
	return &Worker{
		store:     store,
		rx:        rx,
		reporter:  reporter,
		publisher: framework.NewPublisher[types.CoreData](WorkerID),
	}, nil
}

// Header implements framework.Source.
func (w *Worker) Header() types.Header { return w.store.Header() }

// ContainsHeader implements framework.Source.
func (w *Worker) ContainsHeader(ctx context.Context, header types.Header) (bool, error) {
	if header.IsInitial() {
		return true, nil
	}
	return w.store.IsMainChain(ctx, header)
}

// Subscribe implements framework.Source.
func (w *Worker) Subscribe(_ context.Context, header types.Header, name string) <-chan *framework.Event[types.CoreData] {
	return w.publisher.Subscribe(w.store.Header(), header, name)
}

// Run drives the worker until the context is cancelled. Downstream
// subscribers behind the store's head are caught up from the core tables
// before the live loop starts.
func (w *Worker) Run(ctx context.Context) error {
	for w.publisher.HasLagging() {
	drain:
		for i := 0; i < laggingBatchSize; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event, ok := <-w.rx:
				if !ok {
					return errors.New("core worker: tracker channel disconnected")
				}
				if err := w.processEvent(ctx, event); err != nil {
					return err
				}
			default:
				break drain
			}
		}
		err := w.publisher.ProgressLagging(ctx, laggingBatchSize, w.store.Header(), w.store.GetAt)
		if err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Infow("Worker stopping", "worker", WorkerID)
			return ctx.Err()
		case event, ok := <-w.rx:
			if !ok {
				return errors.New("core worker: tracker channel disconnected")
			}
			if err := w.processEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) processEvent(ctx context.Context, event *tracking.Event) error {
	switch event.Kind {
	case tracking.KindGenesis:
		data, err := w.store.IncludeGenesisBoxes(ctx, genesisBlock(event.GenesisBoxes))
		if err != nil {
			return err
		}
		if err := w.publisher.ForwardInclude(ctx, data); err != nil {
			return err
		}
	case tracking.KindInclude:
		// Replays of already persisted blocks are skipped idempotently.
		if event.Block.Height <= w.store.Header().Height {
			return nil
		}
		data, err := w.store.IncludeBlock(ctx, event.Block)
		if err != nil {
			return err
		}
		if err := w.publisher.ForwardInclude(ctx, data); err != nil {
			return err
		}
	case tracking.KindRollback:
		prev, err := w.store.RollBack(ctx, event.Height)
		if err != nil {
			return err
		}
		if err := w.publisher.ForwardRollback(ctx, prev); err != nil {
			return err
		}
	}
	if w.reporter != nil {
		w.reporter.Report(WorkerID, w.store.Header().Height)
	}
	return nil
}

// genesisBlock wraps the genesis outputs into a pseudo block at height zero
// so they flow through downstream workers like any other block.
func genesisBlock(boxes []node.Output) *types.Block {
	genesis := types.GenesisHeader()
	outputs := make([]types.Output, len(boxes))
	for i := range boxes {
		outputs[i] = node.RenderOutput(&boxes[i], types.ZeroHeader)
	}
	return &types.Block{
		Header: types.BlockHeader{
			ID:        genesis.HeaderID,
			ParentID:  genesis.ParentID,
			Height:    genesis.Height,
			Timestamp: genesis.Timestamp,
		},
		Transactions: []types.Transaction{
			{
				ID:      types.ZeroHeader,
				Index:   0,
				Outputs: outputs,
			},
		},
	}
}
