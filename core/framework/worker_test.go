package framework_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abchrisxyz/ergowatch/core/framework"
	"github.com/abchrisxyz/ergowatch/core/internal/testutils"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// fakeWorkflow applies string payloads in memory. Its state is the stack of
// applied headers.
type fakeWorkflow struct {
	mu       sync.Mutex
	applied  []types.Header
	payloads []string
}

func newFakeWorkflow(names ...string) *fakeWorkflow {
	f := &fakeWorkflow{}
	for _, name := range names {
		f.applied = append(f.applied, testutils.FromID(name).Header())
	}
	return f
}

func (f *fakeWorkflow) Header() types.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.applied) == 0 {
		return types.InitialHeader()
	}
	return f.applied[len(f.applied)-1]
}

func (f *fakeWorkflow) IncludeBlock(_ context.Context, data *types.Stamped[string]) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, data.Header())
	f.payloads = append(f.payloads, data.Data)
	return data.Data + "'", nil
}

func (f *fakeWorkflow) RollBack(_ context.Context, height types.Height) (types.Header, error) {
	f.mu.Lock()
	if len(f.applied) == 0 || f.applied[len(f.applied)-1].Height != height {
		f.mu.Unlock()
		return types.Header{}, errors.Errorf("unexpected rollback of height %d", height)
	}
	f.applied = f.applied[:len(f.applied)-1]
	f.mu.Unlock()
	return f.Header(), nil
}

func (f *fakeWorkflow) payloadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

// fakeSource hands out a fixed channel and records the subscription header.
type fakeSource struct {
	header       types.Header
	mainChain    map[types.HeaderID]bool
	subscribedAt *types.Header
	ch           chan *framework.Event[string]
}

func newFakeSource(tip string, mainChain ...string) *fakeSource {
	s := &fakeSource{
		header:    testutils.FromID(tip).Header(),
		mainChain: make(map[types.HeaderID]bool),
		ch:        make(chan *framework.Event[string], framework.EventChannelCapacity),
	}
	for _, name := range mainChain {
		s.mainChain[testutils.FromID(name).HeaderID()] = true
	}
	return s
}

func (s *fakeSource) Header() types.Header { return s.header }

func (s *fakeSource) ContainsHeader(_ context.Context, header types.Header) (bool, error) {
	if header.IsInitial() {
		return true, nil
	}
	return s.mainChain[header.HeaderID], nil
}

func (s *fakeSource) Subscribe(_ context.Context, header types.Header, _ string) <-chan *framework.Event[string] {
	h := header
	s.subscribedAt = &h
	return s.ch
}

func include(name string) *framework.Event[string] {
	tb := testutils.FromID(name)
	return framework.IncludeEvent(types.StampAt(tb.Header(), "block-"+name))
}

func TestWorker_AppliesEventsInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flow := newFakeWorkflow("1", "2")
	source := newFakeSource("2", "1", "2")

	worker, err := framework.NewWorker[string, string](ctx, "test", flow, source, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	source.ch <- include("3")
	source.ch <- include("4")
	source.ch <- framework.RollbackEvent[string](4)
	source.ch <- include("4")

	require.Eventually(t, func() bool {
		return flow.Header().Height == 4 && flow.payloadCount() == 3
	}, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"block-3", "block-4", "block-4"}, flow.payloads)
}

func TestWorker_SkipsAlreadyPersistedBlocks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flow := newFakeWorkflow("1", "2", "3")
	source := newFakeSource("3", "1", "2", "3")

	worker, err := framework.NewWorker[string, string](ctx, "test", flow, source, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	// A lagging cursor catching up replays blocks the workflow already
	// persisted. They must be skipped silently.
	source.ch <- include("2")
	source.ch <- include("3")
	source.ch <- include("4")

	require.Eventually(t, func() bool { return flow.Header().Height == 4 }, time.Second, time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, []string{"block-4"}, flow.payloads)
}

func TestWorker_RollsBackToMainChainOnStartup(t *testing.T) {
	ctx := context.Background()

	// The worker persisted 3bis, then crashed. Meanwhile the source moved
	// on: 3bis is not on its main chain anymore.
	flow := newFakeWorkflow("1", "2", "3bis")
	source := newFakeSource("5", "1", "2", "3", "4", "5")

	_, err := framework.NewWorker[string, string](ctx, "test", flow, source, nil)
	require.NoError(t, err)

	// One rollback reaches block 2, which is on the main chain.
	assert.Equal(t, testutils.FromID("2").Header(), flow.Header())
	require.NotNil(t, source.subscribedAt)
	assert.Equal(t, testutils.FromID("2").Header(), *source.subscribedAt)
}

func TestWorker_AheadOfSourceDoesNotRollBack(t *testing.T) {
	ctx := context.Background()

	flow := newFakeWorkflow("1", "2", "3", "4", "5")
	source := newFakeSource("2", "1", "2")

	_, err := framework.NewWorker[string, string](ctx, "test", flow, source, nil)
	require.NoError(t, err)

	assert.Equal(t, testutils.FromID("5").Header(), flow.Header())
}

type recordingReporter struct {
	heights []types.Height
}

func (r *recordingReporter) Report(_ string, height types.Height) {
	r.heights = append(r.heights, height)
}

func TestWorker_ReportsHeightAfterEachEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	flow := newFakeWorkflow("1")
	source := newFakeSource("1", "1")
	reporter := &recordingReporter{}

	worker, err := framework.NewWorker[string, string](ctx, "test", flow, source, reporter)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	source.ch <- include("2")
	source.ch <- include("3")

	require.Eventually(t, func() bool { return flow.Header().Height == 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, []types.Height{2, 3}, reporter.heights)
}
