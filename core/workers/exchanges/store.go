package exchanges

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

var schema = framework.Schema{
	Name: "exchanges",
	SQL: `
		create schema exchanges;

		create table exchanges._rev (
			singleton integer primary key default 1,
			rev_major integer not null,
			rev_minor integer not null,
			check(singleton = 1)
		);
		insert into exchanges._rev (rev_major, rev_minor) values (1, 0);

		create table exchanges._header (
			worker_id text primary key,
			height integer not null,
			timestamp bigint not null,
			header_id text not null,
			parent_id text not null
		);

		create table exchanges.deposit_addresses (
			address_id bigint primary key,
			cex_id integer not null,
			spot_height integer not null,
			patched_height integer
		);
		create index deposit_addresses_spot_height_idx
			on exchanges.deposit_addresses (spot_height);

		create table exchanges.supply (
			height integer primary key,
			main bigint not null,
			deposits bigint not null
		);
	`,
}

type batchStore struct{}

var _ framework.BatchStore[Batch] = (*batchStore)(nil)

func (s *batchStore) Persist(tx *gorm.DB, batch *types.Stamped[Batch]) error {
	stmt := "insert into exchanges.supply (height, main, deposits) values (?, ?, ?);"
	if err := tx.Exec(stmt, batch.Data.Supply.Height, batch.Data.Supply.Main, batch.Data.Supply.Deposits).Error; err != nil {
		return errors.Wrap(err, "inserting supply record")
	}
	for _, d := range batch.Data.NewDeposits {
		stmt := `
			insert into exchanges.deposit_addresses
				(address_id, cex_id, spot_height, patched_height)
			values (?, ?, ?, ?);
		`
		if err := tx.Exec(stmt, d.AddressID, d.CexID, d.SpotHeight, d.PatchedHeight).Error; err != nil {
			return errors.Wrap(err, "inserting deposit address")
		}
	}
	return nil
}

func (s *batchStore) RollBack(tx *gorm.DB, header types.Header) error {
	if err := tx.Exec("delete from exchanges.supply where height = ?;", header.Height).Error; err != nil {
		return errors.Wrap(err, "rolling back supply record")
	}
	err := tx.Exec("delete from exchanges.deposit_addresses where spot_height = ?;", header.Height).Error
	return errors.Wrap(err, "rolling back deposit addresses")
}

// loadCache rebuilds the in-memory tracking state from persisted rows.
func (w *Workflow) loadCache() error {
	db := w.store.DB()

	w.supply = SupplyRecord{}
	type supplyRow struct {
		Height   types.Height
		Main     types.NanoERG
		Deposits types.NanoERG
	}
	var supplyRows []supplyRow
	stmt := "select height, main, deposits from exchanges.supply order by height desc limit 1;"
	if err := db.Raw(stmt).Scan(&supplyRows).Error; err != nil {
		return errors.Wrap(err, "loading supply record")
	}
	if len(supplyRows) > 0 {
		r := supplyRows[0]
		w.supply = SupplyRecord{Height: r.Height, Main: r.Main, Deposits: r.Deposits}
	}

	w.deposits = make(map[types.AddressID]ExchangeID)
	type depositRow struct {
		AddressID types.AddressID
		CexID     ExchangeID
	}
	var depositRows []depositRow
	if err := db.Raw("select address_id, cex_id from exchanges.deposit_addresses;").Scan(&depositRows).Error; err != nil {
		return errors.Wrap(err, "loading deposit addresses")
	}
	for _, r := range depositRows {
		w.deposits[r.AddressID] = r.CexID
	}

	// Main addresses resolve against the global address index as their trees
	// appear on chain.
	w.main = make(map[types.AddressID]ExchangeID)
	w.pendingTrees = make(map[string]ExchangeID)
	for _, cex := range w.exchanges {
		for _, tree := range cex.Trees {
			w.pendingTrees[tree] = cex.ID
		}
	}
	return w.resolvePendingTrees()
}

// resolvePendingTrees maps configured main address trees to address ids once
// the chain worker has interned them.
func (w *Workflow) resolvePendingTrees() error {
	if len(w.pendingTrees) == 0 {
		return nil
	}
	db := w.store.DB()
	for tree, cexID := range w.pendingTrees {
		var ids []types.AddressID
		if err := db.Raw("select id from core.addresses where ergo_tree = ?;", tree).Scan(&ids).Error; err != nil {
			return errors.Wrap(err, "resolving main address")
		}
		if len(ids) == 0 {
			continue
		}
		w.main[ids[0]] = cexID
		delete(w.pendingTrees, tree)
	}
	return nil
}

// Deposits returns the number of tracked deposit addresses. Exposed for
// tests.
func (w *Workflow) Deposits() int { return len(w.deposits) }
