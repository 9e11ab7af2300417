package network

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/abchrisxyz/ergowatch/core/internal/testutils"
	"github.com/abchrisxyz/ergowatch/core/types"
)

func d(i int64) decimal.Decimal { return decimal.NewFromInt(i) }

func TestDifficultyCache_WindowTrimming(t *testing.T) {
	c := newDifficultyCache()

	c.push(0, d(100))
	c.push(dayMillis, d(200))
	assert.Len(t, c.points, 2)

	// The next point pushes the first one out of the 24h window.
	c.push(dayMillis+1, d(300))
	assert.Len(t, c.points, 2)
	assert.Equal(t, types.Timestamp(dayMillis), c.points[0].timestamp)
}

func TestDifficultyCache_Aggregates(t *testing.T) {
	c := newDifficultyCache()
	assert.True(t, c.dailyMeanDifficulty().IsZero())
	assert.True(t, c.hashRate().IsZero())

	c.push(0, d(100))
	c.push(100_000, d(200))

	assert.True(t, c.dailyMeanDifficulty().Equal(d(150)),
		"got %s", c.dailyMeanDifficulty())
	// 300 difficulty over 100 seconds.
	assert.True(t, c.hashRate().Equal(d(3)), "got %s", c.hashRate())
}

func TestDifficultyCache_SinglePoint(t *testing.T) {
	c := newDifficultyCache()
	c.push(1000, d(500))

	assert.True(t, c.dailyMeanDifficulty().Equal(d(500)))
	// Degenerate window clamps to one second.
	assert.True(t, c.hashRate().Equal(d(500)))
}

func stampedBlock(name string, difficulty decimal.Decimal, votes types.Votes) *types.Stamped[types.CoreData] {
	header := testutils.FromID(name).Header()
	block := &types.Block{
		Header: types.BlockHeader{
			ID:         header.HeaderID,
			ParentID:   header.ParentID,
			Height:     header.Height,
			Timestamp:  header.Timestamp,
			Difficulty: difficulty,
			Votes:      votes,
			Version:    2,
		},
	}
	return types.StampAt(header, types.CoreData{Block: block})
}

func prepNetworkTest(t *testing.T) *gorm.DB {
	t.Helper()
	db := testutils.GormDB(t)
	require.NoError(t, db.Exec("drop schema if exists network cascade;").Error)
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

func paramsCount(t *testing.T, db *gorm.DB) int {
	t.Helper()
	var count int
	require.NoError(t, db.Raw("select count(*) from network.params;").Scan(&count).Error)
	return count
}

func TestWorkflow_IncludeAndRollBack(t *testing.T) {
	ctx := context.Background()
	db := prepNetworkTest(t)

	flow, err := NewWorkflow(db)
	require.NoError(t, err)
	assert.True(t, flow.Header().IsInitial())

	// Genesis carries no difficulty.
	_, err = flow.IncludeBlock(ctx, stampedBlock("0", decimal.Zero, types.Votes{}))
	require.NoError(t, err)
	assert.True(t, flow.Header().IsGenesis())

	_, err = flow.IncludeBlock(ctx, stampedBlock("1", d(100), types.Votes{0, 4, 0}))
	require.NoError(t, err)
	_, err = flow.IncludeBlock(ctx, stampedBlock("2", d(200), types.Votes{}))
	require.NoError(t, err)
	assert.Equal(t, testutils.FromID("2").Header(), flow.Header())
	assert.Equal(t, 3, paramsCount(t, db))

	// The aggregates cover the whole window so far.
	var mean decimal.Decimal
	require.NoError(t, db.Raw("select difficulty_24h_mean from network.params where height = 2;").Scan(&mean).Error)
	assert.True(t, mean.Equal(d(100)), "got %s", mean)

	var vote int16
	require.NoError(t, db.Raw("select vote1 from network.params where height = 1;").Scan(&vote).Error)
	assert.Equal(t, int16(4), vote)

	// Rolling back undoes the row and the head, leaving state as before the
	// inclusion.
	prev, err := flow.RollBack(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, testutils.FromID("1").Header(), prev)
	assert.Equal(t, prev, flow.Header())
	assert.Equal(t, 2, paramsCount(t, db))

	// Re-including yields the same aggregates: the difficulty window was
	// rebuilt from persisted rows.
	_, err = flow.IncludeBlock(ctx, stampedBlock("2", d(200), types.Votes{}))
	require.NoError(t, err)
	require.NoError(t, db.Raw("select difficulty_24h_mean from network.params where height = 2;").Scan(&mean).Error)
	assert.True(t, mean.Equal(d(100)), "got %s", mean)

	// A restart lands on the persisted position.
	reopened, err := NewWorkflow(db)
	require.NoError(t, err)
	assert.Equal(t, testutils.FromID("2").Header(), reopened.Header())
}
