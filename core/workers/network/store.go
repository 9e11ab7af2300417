package network

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/types"
)

var schema = framework.Schema{
	Name: "network",
	SQL: `
		create schema network;

		create table network._rev (
			singleton integer primary key default 1,
			rev_major integer not null,
			rev_minor integer not null,
			check(singleton = 1)
		);
		insert into network._rev (rev_major, rev_minor) values (1, 0);

		create table network._header (
			worker_id text primary key,
			height integer not null,
			timestamp bigint not null,
			header_id text not null,
			parent_id text not null
		);

		create table network.params (
			height integer primary key,
			timestamp bigint not null,
			difficulty numeric not null,
			difficulty_24h_mean numeric not null,
			hash_rate_24h_mean numeric not null,
			vote0 smallint not null,
			vote1 smallint not null,
			vote2 smallint not null,
			version smallint not null,
			n_bits bigint not null
		);
		create index params_timestamp_idx on network.params (timestamp);
	`,
}

type batchStore struct{}

var _ framework.BatchStore[Batch] = (*batchStore)(nil)

func (s *batchStore) Persist(tx *gorm.DB, batch *types.Stamped[Batch]) error {
	b := batch.Data
	stmt := `
		insert into network.params
			(height, timestamp, difficulty, difficulty_24h_mean, hash_rate_24h_mean, vote0, vote1, vote2, version, n_bits)
		values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	err := tx.Exec(stmt,
		b.Height,
		b.Timestamp,
		b.Difficulty,
		b.Difficulty24hMean,
		b.HashRate24hMean,
		b.Votes[0],
		b.Votes[1],
		b.Votes[2],
		b.Version,
		b.NBits,
	).Error
	return errors.Wrap(err, "inserting network params")
}

func (s *batchStore) RollBack(tx *gorm.DB, header types.Header) error {
	err := tx.Exec("delete from network.params where height = ?;", header.Height).Error
	return errors.Wrap(err, "rolling back network params")
}
