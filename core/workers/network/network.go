// Package network indexes per-block network parameters: difficulty, votes,
// block version, and daily aggregates derived from a rolling 24h window
// (mean difficulty and estimated hash rate).
package network

import (
	"context"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

const WorkerID = "network"

// Batch holds one block's network parameters.
type Batch struct {
	Height            types.Height
	Timestamp         types.Timestamp
	Difficulty        decimal.Decimal
	Difficulty24hMean decimal.Decimal
	HashRate24hMean   decimal.Decimal
	Votes             types.Votes
	Version           uint8
	NBits             int64
}

// Workflow consumes core data and persists network parameters. The
// difficulty cache holds the trailing 24h of datapoints feeding the daily
// aggregates.
type Workflow struct {
	store      *framework.PgStore[Batch]
	difficulty *difficultyCache
}

// NewWorkflow bootstraps the network schema and reloads the difficulty
// window from persisted rows.
func NewWorkflow(db *gorm.DB) (*Workflow, error) {
	store, err := framework.NewPgStore[Batch](db, schema, WorkerID, &batchStore{})
	if err != nil {
		return nil, err
	}
	w := &Workflow{store: store, difficulty: newDifficultyCache()}
	if err := w.loadCache(); err != nil {
		return nil, err
	}
	return w, nil
}

var _ framework.Workflow[types.CoreData, struct{}] = (*Workflow)(nil)

func (w *Workflow) Header() types.Header { return w.store.Header() }

func (w *Workflow) IncludeBlock(ctx context.Context, data *types.Stamped[types.CoreData]) (struct{}, error) {
	h := &data.Data.Block.Header

	// New datapoint enters the window before the aggregates are taken.
	w.difficulty.push(data.Timestamp, h.Difficulty)

	batch := Batch{
		Height:            data.Height,
		Timestamp:         data.Timestamp,
		Difficulty:        h.Difficulty,
		Difficulty24hMean: w.difficulty.dailyMeanDifficulty(),
		HashRate24hMean:   w.difficulty.hashRate(),
		Votes:             h.Votes,
		Version:           h.Version,
		NBits:             h.NBits,
	}
	return struct{}{}, w.store.Persist(ctx, types.Wrap(data, batch))
}

func (w *Workflow) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	header, err := w.store.RollBack(ctx, height)
	if err != nil {
		return header, err
	}
	// The rolled back block's datapoint left the window, reload from rows.
	if err := w.loadCache(); err != nil {
		return header, err
	}
	return header, nil
}

// loadCache seeds the difficulty window with the trailing 24h of persisted
// datapoints.
func (w *Workflow) loadCache() error {
	type row struct {
		Timestamp  types.Timestamp
		Difficulty decimal.Decimal
	}
	var rows []row
	stmt := `
		select timestamp
			, difficulty
		from network.params
		where timestamp >= (select coalesce(max(timestamp), 0) from network.params) - ?
		order by timestamp;
	`
	if err := w.store.DB().Raw(stmt, dayMillis).Scan(&rows).Error; err != nil {
		return errors.Wrap(err, "loading difficulty window")
	}
	w.difficulty = newDifficultyCache()
	for _, r := range rows {
		w.difficulty.push(r.Timestamp, r.Difficulty)
	}
	return nil
}
