// Package timestamps maintains hourly and daily timestamp indexes: for each
// round hour/day, the height of the first block at or after it.
package timestamps

import (
	"context"

	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

const WorkerID = "timestamps"

const (
	hourMillis = 3_600_000
	dayMillis  = 86_400_000
)

// Record maps a rounded timestamp to the height that first crossed it.
type Record struct {
	Timestamp types.Timestamp
	Height    types.Height
}

// Batch holds the records produced by one block.
type Batch struct {
	Hourly []Record
	Daily  []Record
}

// Workflow consumes core data and persists timestamp records.
type Workflow struct {
	store *framework.PgStore[Batch]
}

// NewWorkflow bootstraps the timestamps schema.
func NewWorkflow(db *gorm.DB) (*Workflow, error) {
	store, err := framework.NewPgStore[Batch](db, schema, WorkerID, &batchStore{})
	if err != nil {
		return nil, err
	}
	return &Workflow{store: store}, nil
}

var _ framework.Workflow[types.CoreData, struct{}] = (*Workflow)(nil)

func (w *Workflow) Header() types.Header { return w.store.Header() }

func (w *Workflow) IncludeBlock(ctx context.Context, data *types.Stamped[types.CoreData]) (struct{}, error) {
	batch := makeBatch(w.store.Header().Timestamp, data.Timestamp, data.Height)
	return struct{}{}, w.store.Persist(ctx, types.Wrap(data, batch))
}

func (w *Workflow) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	return w.store.RollBack(ctx, height)
}

// makeBatch emits one record per hour/day boundary crossed between the
// previous block's timestamp and this one's. Tagging records with the
// crossing height keeps rollbacks deterministic.
func makeBatch(prevTS, ts types.Timestamp, height types.Height) Batch {
	var batch Batch
	for _, t := range boundariesCrossed(prevTS, ts, hourMillis) {
		batch.Hourly = append(batch.Hourly, Record{Timestamp: t, Height: height})
	}
	for _, t := range boundariesCrossed(prevTS, ts, dayMillis) {
		batch.Daily = append(batch.Daily, Record{Timestamp: t, Height: height})
	}
	return batch
}

func boundariesCrossed(prevTS, ts types.Timestamp, period types.Timestamp) []types.Timestamp {
	if ts <= prevTS {
		return nil
	}
	var out []types.Timestamp
	// First boundary strictly after the previous timestamp.
	t := (prevTS/period + 1) * period
	for ; t <= ts; t += period {
		out = append(out, t)
	}
	return out
}
