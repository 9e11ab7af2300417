package framework_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/internal/testutils"
	"github.com/abchrisxyz/ergowatch/core/types"
)

var testSchema = framework.Schema{
	Name: "test_fw",
	SQL: `
		create schema test_fw;

		create table test_fw._rev (
			singleton integer primary key default 1,
			rev_major integer not null,
			rev_minor integer not null,
			check(singleton = 1)
		);
		insert into test_fw._rev (rev_major, rev_minor) values (1, 0);

		create table test_fw._header (
			worker_id text primary key,
			height integer not null,
			timestamp bigint not null,
			header_id text not null,
			parent_id text not null
		);

		create table test_fw.kv (
			height integer not null,
			v text not null
		);
	`,
}

type kvBatchStore struct{}

func (s *kvBatchStore) Persist(tx *gorm.DB, batch *types.Stamped[string]) error {
	return tx.Exec("insert into test_fw.kv (height, v) values (?, ?);", batch.Height, batch.Data).Error
}

func (s *kvBatchStore) RollBack(tx *gorm.DB, header types.Header) error {
	return tx.Exec("delete from test_fw.kv where height = ?;", header.Height).Error
}

func (s *kvBatchStore) GetAt(db *gorm.DB, height types.Height) (string, error) {
	var vs []string
	if err := db.Raw("select v from test_fw.kv where height = ?;", height).Scan(&vs).Error; err != nil {
		return "", err
	}
	if len(vs) == 0 {
		return "", nil
	}
	return vs[0], nil
}

func prepStoreTest(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutils.GormDB(t)
	require.NoError(t, db.Exec("drop schema if exists test_fw cascade;").Error)
	require.NoError(t, db.Exec("create schema if not exists core;").Error)
	require.NoError(t, db.Exec(`
		create table if not exists core.headers (
			height integer not null,
			timestamp bigint not null,
			header_id text primary key,
			parent_id text not null,
			main_chain boolean not null
		);
	`).Error)
	require.NoError(t, db.Exec("delete from core.headers;").Error)
	for _, name := range []string{"1", "2"} {
		h := testutils.FromID(name).Header()
		require.NoError(t, db.Exec(
			"insert into core.headers (height, timestamp, header_id, parent_id, main_chain) values (?, ?, ?, ?, true);",
			h.Height, h.Timestamp, h.HeaderID, h.ParentID,
		).Error)
	}
	return db
}

func TestPgStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := prepStoreTest(t)

	store, err := framework.NewSourceStore[string, string](db, testSchema, "test", &kvBatchStore{})
	require.NoError(t, err)
	assert.True(t, store.Header().IsInitial())

	// Genesis batch.
	genesis := types.GenesisHeader()
	require.NoError(t, store.Persist(ctx, types.StampAt(genesis, "genesis")))
	assert.True(t, store.Header().IsGenesis())

	// Two real blocks.
	for _, name := range []string{"1", "2"} {
		h := testutils.FromID(name).Header()
		require.NoError(t, store.Persist(ctx, types.StampAt(h, "block-"+name)))
		assert.Equal(t, h, store.Header())
	}

	// The persisted header survives a restart.
	reopened, err := framework.NewSourceStore[string, string](db, testSchema, "test", &kvBatchStore{})
	require.NoError(t, err)
	assert.Equal(t, testutils.FromID("2").Header(), reopened.Header())

	// Replay read.
	stamped, err := store.GetAt(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "block-1", stamped.Data)
	assert.Equal(t, testutils.FromID("1").HeaderID(), stamped.HeaderID)

	// Rolling back height 2 resolves the parent from core.headers and
	// leaves state as before its inclusion.
	prev, err := store.RollBack(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, testutils.FromID("1").Header(), prev)
	assert.Equal(t, prev, store.Header())

	v, err := (&kvBatchStore{}).GetAt(db, 2)
	require.NoError(t, err)
	assert.Equal(t, "", v)
}

func TestPgStore_ContainsHeader(t *testing.T) {
	ctx := context.Background()
	db := prepStoreTest(t)

	store, err := framework.NewPgStore[string](db, testSchema, "test", &kvBatchStore{})
	require.NoError(t, err)

	ok, err := store.ContainsHeader(ctx, types.InitialHeader())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ContainsHeader(ctx, testutils.FromID("1").Header())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.ContainsHeader(ctx, testutils.FromID("7").Header())
	require.NoError(t, err)
	assert.False(t, ok)
}
