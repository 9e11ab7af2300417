package timestamps

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/abchrisxyz/ergowatch/core/types"
)

func TestBoundariesCrossed(t *testing.T) {
	// No boundary between two timestamps within the same hour.
	assert.Empty(t, boundariesCrossed(1000, 2000, hourMillis))

	// One boundary crossed.
	got := boundariesCrossed(hourMillis-1, hourMillis+1, hourMillis)
	assert.Equal(t, []types.Timestamp{hourMillis}, got)

	// A block landing exactly on a boundary claims it.
	got = boundariesCrossed(hourMillis-1, hourMillis, hourMillis)
	assert.Equal(t, []types.Timestamp{hourMillis}, got)

	// A long gap yields every skipped boundary.
	got = boundariesCrossed(0, 3*hourMillis+5, hourMillis)
	assert.Equal(t, []types.Timestamp{hourMillis, 2 * hourMillis, 3 * hourMillis}, got)

	// Timestamps never go backwards, but guard anyway.
	assert.Empty(t, boundariesCrossed(5000, 5000, hourMillis))
	assert.Empty(t, boundariesCrossed(5000, 4000, hourMillis))
}

func TestMakeBatch(t *testing.T) {
	prev := types.Timestamp(23*hourMillis + 500)
	ts := types.Timestamp(25*hourMillis + 100)

	batch := makeBatch(prev, ts, 42)
	assert.Equal(t, []Record{
		{Timestamp: 24 * hourMillis, Height: 42},
		{Timestamp: 25 * hourMillis, Height: 42},
	}, batch.Hourly)
	// 24h boundary is also a day boundary.
	assert.Equal(t, []Record{{Timestamp: dayMillis, Height: 42}}, batch.Daily)
}
