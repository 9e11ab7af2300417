package monitor_test

import (
	"testing"

	"github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/monitor"
	"github.com/abchrisxyz/ergowatch/core/types"
)

func TestMonitor_RecordsLatestHeights(t *testing.T) {
	g := gomega.NewWithT(t)

	m := monitor.New(0)
	require.NoError(t, m.Start())
	defer m.Close()

	m.Report("core", 100)
	m.Report("diffs", 98)
	m.Report("core", 101)

	g.Eventually(func() types.Height {
		h, _ := m.WorkerHeight("core")
		return h
	}).Should(gomega.Equal(types.Height(101)))
	g.Eventually(func() types.Height {
		h, _ := m.WorkerHeight("diffs")
		return h
	}).Should(gomega.Equal(types.Height(98)))

	heights := m.Heights()
	assert.Len(t, heights, 2)
}

func TestMonitor_ReportNeverBlocks(t *testing.T) {
	m := monitor.New(0)
	// Not started: nothing drains the mailbox. Flooding it must not block.
	for i := 0; i < 10_000; i++ {
		m.Report("w", types.Height(i))
	}

	_, ok := m.WorkerHeight("w")
	assert.False(t, ok)
}

func TestMonitor_DoubleStart(t *testing.T) {
	m := monitor.New(0)
	require.NoError(t, m.Start())
	require.Error(t, m.Start())
	require.NoError(t, m.Close())
	require.Error(t, m.Close())
}
