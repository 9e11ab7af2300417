// Package exchanges tracks the ERG supply held on exchanges, split between
// known main addresses and spotted deposit addresses.
//
// Deposit spotting: an address sending to an exchange main address is
// considered a deposit address of that exchange from that point on. Its
// earlier balance history is patched into the deposit supply retroactively,
// via a query to the diffs worker.
package exchanges

import (
	"context"

	"gorm.io/gorm"
	"gopkg.in/guregu/null.v4"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
	"github.com/abchrisxyz/ergowatch/core/workers/diffs"
)

const WorkerID = "exchanges"

// ExchangeID identifies a tracked exchange.
type ExchangeID = int32

// Exchange is a tracked exchange and its known main addresses (ergo trees).
type Exchange struct {
	ID    ExchangeID
	Name  string
	Trees []string
}

// DefaultExchanges is the built-in tracking list. The node command passes it
// to NewWorkflow as is; the configuration has no setting for it.
var DefaultExchanges = []Exchange{
	{ID: 1, Name: "coinex", Trees: []string{
		"0008cd027304abbaebe8bb3a9e963dfa9fa4964d7d001e6a1bd225eadc84048ae49b627c",
	}},
	{ID: 2, Name: "kucoin", Trees: []string{
		"0008cd03f00473f6e7dc871b879f44c3c215df14e46e2355bd7ba677d1e2a9aeb36a6bd5",
		"0008cd0384508d46e79ab13e44a0f7a5eab9da9c2d84c0da6daff9f351e91cea0aee4481",
	}},
}

// SupplyRecord is the cumulative exchange supply at a height.
type SupplyRecord struct {
	Height   types.Height
	Main     types.NanoERG
	Deposits types.NanoERG
}

// DepositRecord is a spotted deposit address. PatchedHeight records the
// height whose supply absorbed the address' earlier history, if any.
type DepositRecord struct {
	AddressID     types.AddressID
	CexID         ExchangeID
	SpotHeight    types.Height
	PatchedHeight null.Int
}

// Batch holds the mutations of one block.
type Batch struct {
	Supply      SupplyRecord
	NewDeposits []DepositRecord
}

// Workflow consumes diff records and persists exchange supply.
type Workflow struct {
	store     *framework.PgStore[Batch]
	exchanges []Exchange
	querier   framework.QuerySender[diffs.Query, []diffs.SupplyDiff]

	// cache mirrors persisted state for cheap lookups.
	supply   SupplyRecord
	main     map[types.AddressID]ExchangeID
	deposits map[types.AddressID]ExchangeID
	// main address trees not yet seen on chain.
	pendingTrees map[string]ExchangeID
}

// NewWorkflow bootstraps the exchanges schema and loads the tracking state.
func NewWorkflow(
	db *gorm.DB,
	exchanges []Exchange,
	querier framework.QuerySender[diffs.Query, []diffs.SupplyDiff],
) (*Workflow, error) {
	batch := &batchStore{}
	store, err := framework.NewPgStore[Batch](db, schema, WorkerID, batch)
	if err != nil {
		return nil, err
	}
	w := &Workflow{
		store:     store,
		exchanges: exchanges,
		querier:   querier,
	}
	if err := w.loadCache(); err != nil {
		return nil, err
	}
	return w, nil
}

var _ framework.Workflow[diffs.Data, struct{}] = (*Workflow)(nil)

func (w *Workflow) Header() types.Header { return w.store.Header() }

func (w *Workflow) IncludeBlock(ctx context.Context, data *types.Stamped[diffs.Data]) (struct{}, error) {
	if err := w.resolvePendingTrees(); err != nil {
		return struct{}{}, err
	}

	newDeposits := w.spotDeposits(data.Data.Records)

	// Patch in the earlier history of freshly spotted deposit addresses.
	var patch types.NanoERG
	for i := range newDeposits {
		history, err := w.querier.Query(ctx, diffs.Query{
			AddressID: newDeposits[i].AddressID,
			MaxHeight: data.Height - 1,
		})
		if err != nil {
			return struct{}{}, err
		}
		var sum types.NanoERG
		for _, sd := range history {
			sum += sd.Nano
		}
		if sum != 0 {
			patch += sum
			newDeposits[i].PatchedHeight = null.IntFrom(int64(data.Height))
		}
	}

	var dMain, dDeposits types.NanoERG
	for _, r := range data.Data.Records {
		if _, ok := w.main[r.AddressID]; ok {
			dMain += r.Nano
		}
		if _, ok := w.deposits[r.AddressID]; ok {
			dDeposits += r.Nano
		}
	}

	batch := Batch{
		Supply: SupplyRecord{
			Height:   data.Height,
			Main:     w.supply.Main + dMain,
			Deposits: w.supply.Deposits + dDeposits + patch,
		},
		NewDeposits: newDeposits,
	}
	if err := w.store.Persist(ctx, types.Wrap(data, batch)); err != nil {
		return struct{}{}, err
	}
	w.supply = batch.Supply
	return struct{}{}, nil
}

func (w *Workflow) RollBack(ctx context.Context, height types.Height) (types.Header, error) {
	header, err := w.store.RollBack(ctx, height)
	if err != nil {
		return header, err
	}
	// Spotted deposits and supply may have been undone, reload from store.
	if err := w.loadCache(); err != nil {
		return header, err
	}
	return header, nil
}

// spotDeposits finds addresses sending to a main address. Per transaction:
// if a main address is credited, every debited non-exchange address becomes
// a deposit address of that exchange.
func (w *Workflow) spotDeposits(records []diffs.DiffRecord) []DepositRecord {
	byTx := make(map[int32][]diffs.DiffRecord)
	var txOrder []int32
	for _, r := range records {
		if _, ok := byTx[r.TxIndex]; !ok {
			txOrder = append(txOrder, r.TxIndex)
		}
		byTx[r.TxIndex] = append(byTx[r.TxIndex], r)
	}

	var out []DepositRecord
	for _, txIdx := range txOrder {
		txRecords := byTx[txIdx]
		var cexID ExchangeID
		credited := false
		for _, r := range txRecords {
			if id, ok := w.main[r.AddressID]; ok && r.Nano > 0 {
				cexID = id
				credited = true
				break
			}
		}
		if !credited {
			continue
		}
		for _, r := range txRecords {
			if r.Nano >= 0 {
				continue
			}
			if _, ok := w.main[r.AddressID]; ok {
				continue
			}
			if _, ok := w.deposits[r.AddressID]; ok {
				continue
			}
			logger.Infow("Spotted new deposit address",
				"worker", WorkerID, "addressId", r.AddressID, "cexId", cexID, "height", r.Height)
			w.deposits[r.AddressID] = cexID
			out = append(out, DepositRecord{
				AddressID:  r.AddressID,
				CexID:      cexID,
				SpotHeight: r.Height,
			})
		}
	}
	return out
}
