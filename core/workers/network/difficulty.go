package network

import (
	"github.com/shopspring/decimal"

	"github.com/abchrisxyz/ergowatch/core/types"
)

// dayMillis is the span of the rolling aggregation window.
const dayMillis types.Timestamp = 86_400_000

type difficultyPoint struct {
	timestamp  types.Timestamp
	difficulty decimal.Decimal
}

// difficultyCache holds the trailing 24h of per-block difficulties. A
// block's difficulty approximates the expected number of hashes needed to
// mine it, so the window sum over its duration estimates the network hash
// rate.
type difficultyCache struct {
	points []difficultyPoint
}

func newDifficultyCache() *difficultyCache {
	return &difficultyCache{}
}

// push appends a datapoint and drops everything that fell out of the
// window.
func (c *difficultyCache) push(timestamp types.Timestamp, difficulty decimal.Decimal) {
	c.points = append(c.points, difficultyPoint{timestamp: timestamp, difficulty: difficulty})
	since := timestamp - dayMillis
	kept := c.points[:0]
	for _, p := range c.points {
		if p.timestamp >= since {
			kept = append(kept, p)
		}
	}
	c.points = kept
}

// dailyMeanDifficulty returns the mean difficulty over the window.
func (c *difficultyCache) dailyMeanDifficulty() decimal.Decimal {
	if len(c.points) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range c.points {
		sum = sum.Add(p.difficulty)
	}
	return sum.Div(decimal.NewFromInt(int64(len(c.points))))
}

// hashRate estimates hashes per second over the window.
func (c *difficultyCache) hashRate() decimal.Decimal {
	if len(c.points) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, p := range c.points {
		sum = sum.Add(p.difficulty)
	}
	elapsed := (c.points[len(c.points)-1].timestamp - c.points[0].timestamp) / 1000
	if elapsed < 1 {
		elapsed = 1
	}
	return sum.Div(decimal.NewFromInt(int64(elapsed)))
}
