package timestamps

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

var schema = framework.Schema{
	Name: "timestamps",
	SQL: `
		create schema timestamps;

		create table timestamps._rev (
			singleton integer primary key default 1,
			rev_major integer not null,
			rev_minor integer not null,
			check(singleton = 1)
		);
		insert into timestamps._rev (rev_major, rev_minor) values (1, 0);

		create table timestamps._header (
			worker_id text primary key,
			height integer not null,
			timestamp bigint not null,
			header_id text not null,
			parent_id text not null
		);

		create table timestamps.hourly (
			timestamp bigint primary key,
			height integer not null
		);
		create index hourly_height_idx on timestamps.hourly (height);

		create table timestamps.daily (
			timestamp bigint primary key,
			height integer not null
		);
		create index daily_height_idx on timestamps.daily (height);
	`,
}

type batchStore struct{}

var _ framework.BatchStore[Batch] = (*batchStore)(nil)

func (s *batchStore) Persist(tx *gorm.DB, batch *types.Stamped[Batch]) error {
	for _, r := range batch.Data.Hourly {
		stmt := "insert into timestamps.hourly (timestamp, height) values (?, ?);"
		if err := tx.Exec(stmt, r.Timestamp, r.Height).Error; err != nil {
			return errors.Wrap(err, "inserting hourly record")
		}
	}
	for _, r := range batch.Data.Daily {
		stmt := "insert into timestamps.daily (timestamp, height) values (?, ?);"
		if err := tx.Exec(stmt, r.Timestamp, r.Height).Error; err != nil {
			return errors.Wrap(err, "inserting daily record")
		}
	}
	return nil
}

func (s *batchStore) RollBack(tx *gorm.DB, header types.Header) error {
	if err := tx.Exec("delete from timestamps.hourly where height = ?;", header.Height).Error; err != nil {
		return errors.Wrap(err, "rolling back hourly records")
	}
	if err := tx.Exec("delete from timestamps.daily where height = ?;", header.Height).Error; err != nil {
		return errors.Wrap(err, "rolling back daily records")
	}
	return nil
}
