package exchanges

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/types"
	"github.com/abchrisxyz/ergowatch/core/workers/diffs"
)

func newTestWorkflow(main map[types.AddressID]ExchangeID) *Workflow {
	return &Workflow{
		main:     main,
		deposits: make(map[types.AddressID]ExchangeID),
	}
}

func TestSpotDeposits_SenderToMainBecomesDeposit(t *testing.T) {
	w := newTestWorkflow(map[types.AddressID]ExchangeID{100: 1})

	// Address 7 sends 500 to main address 100.
	records := []diffs.DiffRecord{
		{AddressID: 100, Height: 50, TxIndex: 0, Nano: 500},
		{AddressID: 7, Height: 50, TxIndex: 0, Nano: -500},
	}

	spotted := w.spotDeposits(records)
	require.Len(t, spotted, 1)
	assert.Equal(t, types.AddressID(7), spotted[0].AddressID)
	assert.Equal(t, ExchangeID(1), spotted[0].CexID)
	assert.Equal(t, types.Height(50), spotted[0].SpotHeight)
	assert.False(t, spotted[0].PatchedHeight.Valid)

	// Subsequent sends from the same address spot nothing new.
	spotted = w.spotDeposits(records)
	assert.Empty(t, spotted)
}

func TestSpotDeposits_IgnoresUnrelatedTransactions(t *testing.T) {
	w := newTestWorkflow(map[types.AddressID]ExchangeID{100: 1})

	records := []diffs.DiffRecord{
		{AddressID: 8, Height: 50, TxIndex: 0, Nano: 300},
		{AddressID: 9, Height: 50, TxIndex: 0, Nano: -300},
	}

	assert.Empty(t, w.spotDeposits(records))
	assert.Equal(t, 0, w.Deposits())
}

func TestSpotDeposits_MainAddressesAreNeverDeposits(t *testing.T) {
	w := newTestWorkflow(map[types.AddressID]ExchangeID{100: 1, 101: 2})

	// One exchange's main address funding another's: neither side may be
	// marked as a deposit address.
	records := []diffs.DiffRecord{
		{AddressID: 100, Height: 50, TxIndex: 0, Nano: 500},
		{AddressID: 101, Height: 50, TxIndex: 0, Nano: -500},
	}

	assert.Empty(t, w.spotDeposits(records))
}

func TestSpotDeposits_WithdrawalSpotsNothing(t *testing.T) {
	w := newTestWorkflow(map[types.AddressID]ExchangeID{100: 1})

	// Main address sends out: the receiver is a withdrawal target, not a
	// deposit address.
	records := []diffs.DiffRecord{
		{AddressID: 100, Height: 50, TxIndex: 0, Nano: -500},
		{AddressID: 7, Height: 50, TxIndex: 0, Nano: 500},
	}

	assert.Empty(t, w.spotDeposits(records))
}

func TestSpotDeposits_SeparateTransactions(t *testing.T) {
	w := newTestWorkflow(map[types.AddressID]ExchangeID{100: 1})

	// Tx 0 is a plain transfer; tx 1 is a deposit.
	records := []diffs.DiffRecord{
		{AddressID: 8, Height: 50, TxIndex: 0, Nano: 300},
		{AddressID: 9, Height: 50, TxIndex: 0, Nano: -300},
		{AddressID: 100, Height: 50, TxIndex: 1, Nano: 200},
		{AddressID: 9, Height: 50, TxIndex: 1, Nano: -200},
	}

	spotted := w.spotDeposits(records)
	require.Len(t, spotted, 1)
	assert.Equal(t, types.AddressID(9), spotted[0].AddressID)
}

func TestDefaultExchanges(t *testing.T) {
	require.NotEmpty(t, DefaultExchanges)
	for _, cex := range DefaultExchanges {
		assert.NotZero(t, cex.ID)
		assert.NotEmpty(t, cex.Name)
		assert.NotEmpty(t, cex.Trees)
	}
}
