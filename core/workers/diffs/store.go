package diffs

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

var schema = framework.Schema{
	Name: "diffs",
	SQL: `
		create schema diffs;

		create table diffs._rev (
			singleton integer primary key default 1,
			rev_major integer not null,
			rev_minor integer not null,
			check(singleton = 1)
		);
		insert into diffs._rev (rev_major, rev_minor) values (1, 0);

		create table diffs._header (
			worker_id text primary key,
			height integer not null,
			timestamp bigint not null,
			header_id text not null,
			parent_id text not null
		);

		create table diffs.supply_diffs (
			address_id bigint not null,
			height integer not null,
			tx_idx integer not null,
			nano bigint not null
		);
		create index supply_diffs_height_idx on diffs.supply_diffs (height);
		create index supply_diffs_address_idx on diffs.supply_diffs (address_id);
	`,
}

type batchStore struct{}

var _ framework.SourceableBatchStore[Data, Data] = (*batchStore)(nil)

func (s *batchStore) Persist(tx *gorm.DB, batch *types.Stamped[Data]) error {
	for _, r := range batch.Data.Records {
		stmt := "insert into diffs.supply_diffs (address_id, height, tx_idx, nano) values (?, ?, ?, ?);"
		if err := tx.Exec(stmt, r.AddressID, r.Height, r.TxIndex, r.Nano).Error; err != nil {
			return errors.Wrap(err, "inserting supply diff")
		}
	}
	return nil
}

func (s *batchStore) RollBack(tx *gorm.DB, header types.Header) error {
	err := tx.Exec("delete from diffs.supply_diffs where height = ?;", header.Height).Error
	return errors.Wrap(err, "rolling back supply diffs")
}

func (s *batchStore) GetAt(db *gorm.DB, height types.Height) (Data, error) {
	type row struct {
		AddressID types.AddressID
		Height    types.Height
		TxIdx     int32
		Nano      types.NanoERG
	}
	var rows []row
	stmt := `
		select address_id
			, height
			, tx_idx
			, nano
		from diffs.supply_diffs
		where height = ?
		order by tx_idx;
	`
	if err := db.Raw(stmt, height).Scan(&rows).Error; err != nil {
		return Data{}, errors.Wrapf(err, "reading supply diffs at height %d", height)
	}
	records := make([]DiffRecord, len(rows))
	for i, r := range rows {
		records[i] = DiffRecord{
			AddressID: r.AddressID,
			Height:    r.Height,
			TxIndex:   r.TxIdx,
			Nano:      r.Nano,
		}
	}
	return Data{Records: records}, nil
}

// QueryDiffs is the read-only lookup behind the worker's query channel.
func (w *Workflow) QueryDiffs(ctx context.Context, q Query) ([]SupplyDiff, error) {
	type row struct {
		Height types.Height
		Nano   types.NanoERG
	}
	var rows []row
	stmt := `
		select height
			, sum(nano) as nano
		from diffs.supply_diffs
		where address_id = ?
			and height <= ?
		group by height
		order by height;
	`
	err := w.store.DB().WithContext(ctx).Raw(stmt, q.AddressID, q.MaxHeight).Scan(&rows).Error
	if err != nil {
		return nil, errors.Wrapf(err, "querying diffs of address %d", q.AddressID)
	}
	out := make([]SupplyDiff, len(rows))
	for i, r := range rows {
		out[i] = SupplyDiff{Height: r.Height, Nano: r.Nano}
	}
	return out, nil
}
