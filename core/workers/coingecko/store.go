package coingecko

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

var schema = framework.Schema{
	Name: "coingecko",
	SQL: `
		create schema coingecko;

		create table coingecko._rev (
			singleton integer primary key default 1,
			rev_major integer not null,
			rev_minor integer not null,
			check(singleton = 1)
		);
		insert into coingecko._rev (rev_major, rev_minor) values (1, 0);

		create table coingecko._header (
			worker_id text primary key,
			height integer not null,
			timestamp bigint not null,
			header_id text not null,
			parent_id text not null
		);

		create table coingecko.hourly (
			timestamp bigint primary key,
			usd double precision not null
		);

		create table coingecko.block_prices (
			height integer primary key,
			timestamp bigint not null,
			usd double precision not null,
			provisional boolean not null
		);
	`,
}

type batchStore struct{}

var _ framework.BatchStore[Batch] = (*batchStore)(nil)

func (s *batchStore) Persist(tx *gorm.DB, batch *types.Stamped[Batch]) error {
	stmt := "insert into coingecko.block_prices (height, timestamp, usd, provisional) values (?, ?, ?, ?);"
	err := tx.Exec(stmt, batch.Data.Block.Height, batch.Timestamp, batch.Data.Block.USD, batch.Data.Provisional != nil).Error
	return errors.Wrap(err, "inserting block price")
}

func (s *batchStore) RollBack(tx *gorm.DB, header types.Header) error {
	err := tx.Exec("delete from coingecko.block_prices where height = ?;", header.Height).Error
	return errors.Wrap(err, "rolling back block price")
}

// loadCache reads back recent hourly records and pending provisional block
// prices.
func (w *Workflow) loadCache() error {
	db := w.store.DB()

	type hourlyRow struct {
		Timestamp types.Timestamp
		USD       float64
	}
	var hourlyRows []hourlyRow
	stmt := `
		select timestamp
			, usd
		from coingecko.hourly
		order by timestamp desc
		limit 48;
	`
	if err := db.Raw(stmt).Scan(&hourlyRows).Error; err != nil {
		return errors.Wrap(err, "loading hourly records")
	}
	w.cache.RecentHourly = make([]HourlyRecord, len(hourlyRows))
	for i, r := range hourlyRows {
		// Reverse into ascending order.
		w.cache.RecentHourly[len(hourlyRows)-1-i] = HourlyRecord{Timestamp: r.Timestamp, USD: r.USD}
	}

	type provRow struct {
		Height    types.Height
		Timestamp types.Timestamp
	}
	var provRows []provRow
	stmt = `
		select height
			, timestamp
		from coingecko.block_prices
		where provisional
		order by height;
	`
	if err := db.Raw(stmt).Scan(&provRows).Error; err != nil {
		return errors.Wrap(err, "loading provisional block prices")
	}
	w.cache.Provisional = make([]ProvisionalRecord, len(provRows))
	for i, r := range provRows {
		w.cache.Provisional[i] = ProvisionalRecord{Height: r.Height, Timestamp: r.Timestamp}
	}
	w.cache.Trim()
	return nil
}

func (w *Workflow) lastHourlyTimestamp() types.Timestamp {
	if n := len(w.cache.RecentHourly); n > 0 {
		return w.cache.RecentHourly[n-1].Timestamp
	}
	return types.GenesisTimestamp
}

// ingestHourly stores new feed datapoints and revises provisional block
// prices that now fall within the known range.
func (w *Workflow) ingestHourly(ctx context.Context, records []HourlyRecord) error {
	db := w.store.DB().WithContext(ctx)
	err := db.Transaction(func(tx *gorm.DB) error {
		for _, r := range records {
			stmt := `
				insert into coingecko.hourly (timestamp, usd)
				values (?, ?)
				on conflict (timestamp) do nothing;
			`
			if err := tx.Exec(stmt, r.Timestamp, r.USD).Error; err != nil {
				return errors.Wrap(err, "inserting hourly record")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	w.cache.RecentHourly = append(w.cache.RecentHourly, records...)

	return w.reviseProvisional(ctx)
}

// reviseProvisional finalizes provisional block prices covered by the feed.
func (w *Workflow) reviseProvisional(ctx context.Context) error {
	if len(w.cache.Provisional) == 0 {
		w.cache.Trim()
		return nil
	}
	last := w.lastHourlyTimestamp()
	db := w.store.DB().WithContext(ctx)

	var remaining []ProvisionalRecord
	for _, pr := range w.cache.Provisional {
		if pr.Timestamp > last {
			remaining = append(remaining, pr)
			continue
		}
		batch := prepareBatch(pr.Height, pr.Timestamp, w.cache.RecentHourly)
		stmt := "update coingecko.block_prices set usd = ?, provisional = false where height = ?;"
		if err := db.Exec(stmt, batch.Block.USD, pr.Height).Error; err != nil {
			return errors.Wrapf(err, "revising block price at height %d", pr.Height)
		}
	}
	w.cache.Provisional = remaining
	w.cache.Trim()
	return nil
}
