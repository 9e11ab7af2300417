package coingecko

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/types"
)

func hr(ts types.Timestamp, usd float64) HourlyRecord {
	return HourlyRecord{Timestamp: ts, USD: usd}
}

func TestInterpolate(t *testing.T) {
	a := hr(1000, 1.0)
	b := hr(2000, 3.0)

	assert.Equal(t, 1.0, interpolate(1000, a, b))
	assert.Equal(t, 3.0, interpolate(2000, a, b))
	assert.Equal(t, 2.0, interpolate(1500, a, b))

	// Degenerate window.
	assert.Equal(t, 1.0, interpolate(1000, a, a))
}

func TestPrepareBatch_EarlyBlocks(t *testing.T) {
	batch := prepareBatch(1, types.GenesisTimestamp, nil)
	assert.Equal(t, genesisUSD, batch.Block.USD)
	assert.Nil(t, batch.Provisional)
}

func TestPrepareBatch_WithinKnownRange(t *testing.T) {
	hourly := []HourlyRecord{hr(1000, 1.0), hr(2000, 3.0), hr(3000, 5.0)}

	batch := prepareBatch(100, 2500, hourly)
	assert.Equal(t, 4.0, batch.Block.USD)
	assert.Nil(t, batch.Provisional)
}

func TestPrepareBatch_BeyondLastDatapoint(t *testing.T) {
	hourly := []HourlyRecord{hr(1000, 1.0), hr(2000, 3.0)}

	batch := prepareBatch(100, 9000, hourly)
	assert.Equal(t, 3.0, batch.Block.USD)
	require.NotNil(t, batch.Provisional)
	assert.Equal(t, types.Height(100), batch.Provisional.Height)
	assert.Equal(t, types.Timestamp(9000), batch.Provisional.Timestamp)
}

func TestCacheTrim_KeepsRecordsForProvisional(t *testing.T) {
	c := &Cache{
		RecentHourly: []HourlyRecord{hr(1000, 1), hr(2000, 2), hr(3000, 3), hr(4000, 4)},
		Provisional:  []ProvisionalRecord{{Height: 10, Timestamp: 3500}},
	}
	c.Trim()

	// Everything before the last record preceding the first provisional
	// timestamp is dropped.
	assert.Equal(t, []HourlyRecord{hr(3000, 3), hr(4000, 4)}, c.RecentHourly)
}

func TestCacheTrim_NoProvisional(t *testing.T) {
	c := &Cache{
		RecentHourly: []HourlyRecord{hr(1000, 1), hr(2000, 2), hr(3000, 3)},
	}
	c.Trim()
	assert.Equal(t, []HourlyRecord{hr(3000, 3)}, c.RecentHourly)
}

func TestCacheTrim_Empty(t *testing.T) {
	c := &Cache{}
	c.Trim()
	assert.Empty(t, c.RecentHourly)
}
