package node_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/internal/testutils"
	"github.com/abchrisxyz/ergowatch/core/node"
)

func TestRenderBlock(t *testing.T) {
	mock := testutils.NewMockNode("1", "2")
	defer mock.Close()

	nc := node.New("test", mock.URL())
	tb := testutils.FromID("2")
	raw, err := nc.Block(context.Background(), tb.HeaderID())
	require.NoError(t, err)

	block, err := node.RenderBlock(raw)
	require.NoError(t, err)

	assert.Equal(t, tb.Header(), block.Header.PositionHeader())
	assert.Equal(t, "1234567890", block.Header.Difficulty.String())
	assert.Equal(t, [3]int8{0, 0, 0}, block.Header.Votes)

	require.Len(t, block.Transactions, 1)
	tx := block.Transactions[0]
	assert.Equal(t, int32(0), tx.Index)
	require.Len(t, tx.Outputs, 1)
	assert.Equal(t, int64(67_500_000_000), tx.Outputs[0].Value)
	assert.Equal(t, tx.ID, tx.Outputs[0].TransactionID)
}

func TestRenderHeader_BadVotes(t *testing.T) {
	h := &node.Header{
		ID:         "x",
		Votes:      "zz",
		Difficulty: "1",
	}
	_, err := node.RenderHeader(h)
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrDeserialization)
}

func TestRenderHeader_BadDifficulty(t *testing.T) {
	h := &node.Header{
		ID:         "x",
		Votes:      "00ff01",
		Difficulty: "not-a-number",
	}
	_, err := node.RenderHeader(h)
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrDeserialization)
}

func TestParseVotesViaHeader(t *testing.T) {
	h := &node.Header{
		ID:         "x",
		Votes:      "04ff00",
		Difficulty: "10",
	}
	rendered, err := node.RenderHeader(h)
	require.NoError(t, err)
	assert.Equal(t, [3]int8{4, -1, 0}, rendered.Votes)
}
