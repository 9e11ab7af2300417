// Package diffs tracks per-address nanoERG supply changes. It re-publishes
// its records to downstream workers and answers historical diff queries.
package diffs

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

const WorkerID = "diffs"

// DiffRecord is the net supply change of one address in one transaction.
type DiffRecord struct {
	AddressID types.AddressID
	Height    types.Height
	TxIndex   int32
	Nano      types.NanoERG
}

// Data is the downstream payload: all diff records of one block.
type Data struct {
	Records []DiffRecord
}

// Query asks for an address' past supply diffs up to and including MaxHeight.
type Query struct {
	AddressID types.AddressID
	MaxHeight types.Height
}

// SupplyDiff is one element of a query response.
type SupplyDiff struct {
	Height types.Height
	Nano   types.NanoERG
}

// Workflow consumes core data and persists diff records.
type Workflow struct {
	store *framework.SourceStore[Data, Data]
}

// NewWorkflow bootstraps the diffs schema.
func NewWorkflow(db *gorm.DB) (*Workflow, error) {
	store, err := framework.NewSourceStore[Data, Data](db, schema, WorkerID, &batchStore{})
	if err != nil {
		return nil, err
	}
	return &Workflow{store: store}, nil
}

var _ framework.SourceableWorkflow[types.CoreData, Data] = (*Workflow)(nil)

func (w *Workflow) Header() types.Header { return w.store.Header() }

func (w *Workflow) IncludeBlock(ctx context.Context, data *types.Stamped[types.CoreData]) (Data, error) {
	batch := extractDiffs(data.Data.Block)
	if err := w.store.Persist(ctx, types.Wrap(data, batch)); err != nil {
		return Data{}, err
	}
	return batch, nil
}

func (w *Workflow) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	return w.store.RollBack(ctx, height)
}

func (w *Workflow) ContainsHeader(ctx context.Context, header types.Header) (bool, error) {
	return w.store.ContainsHeader(ctx, header)
}

func (w *Workflow) GetAt(ctx context.Context, height types.Height) (*types.Stamped[Data], error) {
	return w.store.GetAt(ctx, height)
}

// extractDiffs nets each transaction's inputs and outputs per address.
func extractDiffs(block *types.Block) Data {
	var records []DiffRecord
	for i := range block.Transactions {
		tx := &block.Transactions[i]
		net := make(map[types.AddressID]types.NanoERG)
		order := []types.AddressID{}
		credit := func(addr types.AddressID, nano types.NanoERG) {
			if _, seen := net[addr]; !seen {
				order = append(order, addr)
			}
			net[addr] += nano
		}
		for j := range tx.Outputs {
			credit(tx.Outputs[j].AddressID, tx.Outputs[j].Value)
		}
		for j := range tx.Inputs {
			credit(tx.Inputs[j].AddressID, -tx.Inputs[j].Value)
		}
		for _, addr := range order {
			if net[addr] == 0 {
				continue
			}
			records = append(records, DiffRecord{
				AddressID: addr,
				Height:    block.Header.Height,
				TxIndex:   tx.Index,
				Nano:      net[addr],
			})
		}
	}
	return Data{Records: records}
}

// Worker wraps the source worker with a query-serving select loop.
type Worker struct {
	source  *framework.SourceWorker[types.CoreData, Data]
	flow    *Workflow
	queryRx <-chan framework.QueryWrapper[Query, []SupplyDiff]
}

// NewWorker subscribes the workflow to the given source and returns the
// worker plus the sender side of its query channel.
func NewWorker(
	ctx context.Context,
	db *gorm.DB,
	source framework.Source[types.CoreData],
	reporter framework.Reporter,
) (*Worker, framework.QuerySender[Query, []SupplyDiff], error) {
	flow, err := NewWorkflow(db)
	if err != nil {
		return nil, framework.QuerySender[Query, []SupplyDiff]{}, err
	}
	sw, err := framework.NewSourceWorker[types.CoreData, Data](ctx, WorkerID, flow, source, reporter)
	if err != nil {
		return nil, framework.QuerySender[Query, []SupplyDiff]{}, err
	}
	sender, queryRx := framework.NewQueryChannel[Query, []SupplyDiff]()
	return &Worker{source: sw, flow: flow, queryRx: queryRx}, sender, nil
}

// Source exposes the worker as a source for downstream workers.
func (w *Worker) Source() framework.Source[Data] { return w.source }

// Run drives the worker. The event loop is a select between upstream events
// and incoming queries; queries are answered from persisted state only.
// While downstream subscribers are catching up, store replay is interleaved
// with query service so queriers are not starved.
func (w *Worker) Run(ctx context.Context) error {
	for w.source.HasLagging() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case qw := <-w.queryRx:
			if err := w.answer(ctx, qw); err != nil {
				return err
			}
		case event, ok := <-w.source.Events():
			if !ok {
				return errors.Errorf("worker %s: upstream channel disconnected", WorkerID)
			}
			if err := w.source.ProcessUpstreamEvent(ctx, event); err != nil {
				return err
			}
		default:
			if err := w.source.PumpLagging(ctx); err != nil {
				return err
			}
		}
	}
	for {
		select {
		case <-ctx.Done():
			logger.Infow("Worker stopping", "worker", WorkerID)
			return ctx.Err()
		case qw := <-w.queryRx:
			if err := w.answer(ctx, qw); err != nil {
				return err
			}
		case event, ok := <-w.source.Events():
			if !ok {
				return errors.Errorf("worker %s: upstream channel disconnected", WorkerID)
			}
			if err := w.source.ProcessUpstreamEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

func (w *Worker) answer(ctx context.Context, qw framework.QueryWrapper[Query, []SupplyDiff]) error {
	res, err := w.flow.QueryDiffs(ctx, qw.Query)
	if err != nil {
		return errors.Wrap(err, "answering diffs query")
	}
	qw.Reply <- res
	return nil
}
