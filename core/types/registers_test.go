package types_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/types"
)

func TestRegisters_PlainValues(t *testing.T) {
	regs := types.NewRegisters([]byte(`{"R4": "0e2098479c", "R6": "05a4c3edd9998877"}`))

	r4, ok := regs.R4()
	require.True(t, ok)
	assert.Equal(t, int16(4), r4.ID)
	assert.Equal(t, "0e2098479c", r4.SerializedValue)

	_, ok = regs.R5()
	assert.False(t, ok)

	r6, ok := regs.Get(6)
	require.True(t, ok)
	assert.Equal(t, "05a4c3edd9998877", r6.SerializedValue)
}

func TestRegisters_ObjectValues(t *testing.T) {
	regs := types.NewRegisters([]byte(`{"R4": {"serializedValue": "0e0102", "sigmaType": "Coll[Byte]"}}`))

	r4, ok := regs.R4()
	require.True(t, ok)
	assert.Equal(t, "0e0102", r4.SerializedValue)
}

func TestRegisters_Empty(t *testing.T) {
	regs := types.NewRegisters(nil)
	_, ok := regs.R4()
	assert.False(t, ok)
	assert.Equal(t, "{}", string(regs.Raw()))

	_, ok = types.NewRegisters([]byte(`{}`)).R9()
	assert.False(t, ok)

	_, ok = types.NewRegisters([]byte(`{"R4": "0e"}`)).Get(3)
	assert.False(t, ok)
}
