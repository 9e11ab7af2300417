package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/utils"
)

func TestStartStopOnce(t *testing.T) {
	var once utils.StartStopOnce

	calls := 0
	require.NoError(t, once.StartOnce("svc", func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.True(t, once.Started())

	require.Error(t, once.StartOnce("svc", func() error { calls++; return nil }))
	assert.Equal(t, 1, calls)

	require.NoError(t, once.StopOnce("svc", func() error { return nil }))
	require.Error(t, once.StopOnce("svc", func() error { return nil }))
	assert.False(t, once.Started())
}

func TestStartStopOnce_StopBeforeStart(t *testing.T) {
	var once utils.StartStopOnce
	require.Error(t, once.StopOnce("svc", func() error { return nil }))
}

func TestMailbox_DeliverAndRetrieve(t *testing.T) {
	m := utils.NewMailbox[int](10)

	assert.False(t, m.Deliver(1))
	assert.False(t, m.Deliver(2))
	assert.False(t, m.Deliver(3))

	select {
	case <-m.Notify():
	default:
		t.Fatal("expected notification")
	}

	for want := 1; want <= 3; want++ {
		got, ok := m.Retrieve()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := m.Retrieve()
	assert.False(t, ok)
}

func TestMailbox_DropsOldestWhenOverCapacity(t *testing.T) {
	m := utils.NewMailbox[int](2)

	assert.False(t, m.Deliver(1))
	assert.False(t, m.Deliver(2))
	assert.True(t, m.Deliver(3))

	got, ok := m.Retrieve()
	require.True(t, ok)
	assert.Equal(t, 2, got)
	got, ok = m.Retrieve()
	require.True(t, ok)
	assert.Equal(t, 3, got)
}

func TestMailbox_RetrieveLatestAndClear(t *testing.T) {
	m := utils.NewMailbox[string](10)
	m.Deliver("a")
	m.Deliver("b")
	m.Deliver("c")

	got, ok := m.RetrieveLatestAndClear()
	require.True(t, ok)
	assert.Equal(t, "c", got)

	_, ok = m.Retrieve()
	assert.False(t, ok)
}
