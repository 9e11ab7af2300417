package node_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/internal/testutils"
	"github.com/abchrisxyz/ergowatch/core/node"
	"github.com/abchrisxyz/ergowatch/core/types"
)

func TestClient_Info(t *testing.T) {
	mock := testutils.NewMockNode("1", "2", "3")
	defer mock.Close()

	nc := node.New("test", mock.URL())
	info, err := nc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(3), info.FullHeight)
	assert.Equal(t, testutils.FromID("3").HeaderID(), info.BestFullHeaderID)
}

func TestClient_ChainSlice(t *testing.T) {
	mock := testutils.NewMockNode("1", "2", "3", "4", "5")
	defer mock.Close()

	nc := node.New("test", mock.URL())
	ctx := context.Background()

	// Below the head: strictly above fromHeight, capped at the head.
	headers, err := nc.ChainSlice(ctx, 2, 12)
	require.NoError(t, err)
	require.Len(t, headers, 3)
	assert.Equal(t, int32(3), headers[0].Height)
	assert.Equal(t, int32(5), headers[2].Height)

	// At the head: exactly one header, the tip itself.
	headers, err = nc.ChainSlice(ctx, 5, 15)
	require.NoError(t, err)
	require.Len(t, headers, 1)
	assert.Equal(t, testutils.FromID("5").HeaderID(), headers[0].ID)
}

func TestClient_BlockAndHeader(t *testing.T) {
	mock := testutils.NewMockNode("1", "2")
	defer mock.Close()

	nc := node.New("test", mock.URL())
	ctx := context.Background()

	tb := testutils.FromID("2")
	block, err := nc.Block(ctx, tb.HeaderID())
	require.NoError(t, err)
	assert.Equal(t, tb.HeaderID(), block.Header.ID)
	require.Len(t, block.BlockTransactions.Transactions, 1)

	header, err := nc.Header(ctx, tb.HeaderID())
	require.NoError(t, err)
	assert.Equal(t, tb.ParentID(), header.ParentID)

	ids, err := nc.BlocksAt(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []types.HeaderID{tb.HeaderID()}, ids)
}

func TestClient_ErrorMapping(t *testing.T) {
	mock := testutils.NewMockNode("1")
	defer mock.Close()

	nc := node.New("test", mock.URL())
	ctx := context.Background()

	_, err := nc.Block(ctx, "no-such-header")
	assert.ErrorIs(t, err, node.ErrNotFound)
	assert.False(t, node.IsTransient(err))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	_, err = node.New("test", srv.URL).Info(ctx)
	assert.ErrorIs(t, err, node.ErrUnreachable)
	assert.True(t, node.IsTransient(err))

	srv400 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv400.Close()
	_, err = node.New("test", srv400.URL).Info(ctx)
	assert.ErrorIs(t, err, node.ErrBadRequest)

	srvBad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srvBad.Close()
	_, err = node.New("test", srvBad.URL).Info(ctx)
	assert.ErrorIs(t, err, node.ErrDeserialization)

	// Connection failure maps to unreachable.
	down := httptest.NewServer(nil)
	down.Close()
	_, err = node.New("test", down.URL).Info(ctx)
	assert.ErrorIs(t, err, node.ErrUnreachable)
}

func TestClient_GenesisBoxes(t *testing.T) {
	mock := testutils.NewMockNode("1")
	defer mock.Close()

	nc := node.New("test", mock.URL())
	boxes, err := nc.GenesisBoxes(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, boxes)
	assert.Greater(t, boxes[0].Value, int64(0))
}
