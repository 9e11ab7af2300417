package framework

import (
	"context"

	"github.com/pkg/errors"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
)

// laggingBatchSize is the number of blocks a lagging cursor is replayed by
// between upstream polls.
const laggingBatchSize = 10

// SourceWorker is a worker that also acts as a source for downstream
// workers: upstream events are applied to the workflow and re-published with
// the workflow's own payload, while lagging subscribers are caught up from
// the local store.
type SourceWorker[U, D any] struct {
	worker    *Worker[U, D]
	workflow  SourceableWorkflow[U, D]
	publisher *Publisher[D]
}

// NewSourceWorker subscribes the workflow to its upstream source and returns
// a worker that downstream workers can subscribe to in turn.
func NewSourceWorker[U, D any](
	ctx context.Context,
	id string,
	workflow SourceableWorkflow[U, D],
	source Source[U],
	reporter Reporter,
) (*SourceWorker[U, D], error) {
	worker, err := NewWorker[U, D](ctx, id, workflow, source, reporter)
	if err != nil {
		return nil, err
	}
	return &SourceWorker[U, D]{
		worker:    worker,
		workflow:  workflow,
		publisher: NewPublisher[D](id),
	}, nil
}

// ID returns the worker's name.
func (s *SourceWorker[U, D]) ID() string { return s.worker.id }

// Events exposes the upstream channel for workers composing their own select
// loop (e.g. to also serve queries). Use with ProcessUpstreamEvent.
func (s *SourceWorker[U, D]) Events() <-chan *Event[U] { return s.worker.rx }

// Run drives the worker until the context is cancelled. While lagging
// cursors exist, upstream events are interleaved with store-backed replay;
// once all cursors track the head the loop degenerates to the base receive
// loop.
func (s *SourceWorker[U, D]) Run(ctx context.Context) error {
	if err := s.CatchUpLagging(ctx); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			logger.Infow("Worker stopping", "worker", s.worker.id)
			return ctx.Err()
		case event, ok := <-s.worker.rx:
			if !ok {
				return errors.Errorf("worker %s: upstream channel disconnected", s.worker.id)
			}
			if err := s.ProcessUpstreamEvent(ctx, event); err != nil {
				return err
			}
		}
	}
}

// HasLagging reports whether any subscriber is still catching up.
func (s *SourceWorker[U, D]) HasLagging() bool { return s.publisher.HasLagging() }

// PumpLagging replays one batch from the store to each lagging cursor.
func (s *SourceWorker[U, D]) PumpLagging(ctx context.Context) error {
	return s.publisher.ProgressLagging(ctx, laggingBatchSize, s.workflow.Header(), s.workflow.GetAt)
}

// CatchUpLagging progresses lagging cursors, interleaved with upstream
// events, until none is left behind.
func (s *SourceWorker[U, D]) CatchUpLagging(ctx context.Context) error {
	for s.publisher.HasLagging() {
	drain:
		for i := 0; i < laggingBatchSize; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event, ok := <-s.worker.rx:
				if !ok {
					return errors.Errorf("worker %s: upstream channel disconnected", s.worker.id)
				}
				if err := s.ProcessUpstreamEvent(ctx, event); err != nil {
					return err
				}
			default:
				// No events from upstream, move on.
				break drain
			}
		}
		err := s.publisher.ProgressLagging(ctx, laggingBatchSize, s.workflow.Header(), s.workflow.GetAt)
		if err != nil {
			return err
		}
	}
	return nil
}

// ProcessUpstreamEvent applies one upstream event to the workflow and
// forwards the result to the tracking cursor.
func (s *SourceWorker[U, D]) ProcessUpstreamEvent(ctx context.Context, event *Event[U]) error {
	switch event.Kind {
	case KindInclude:
		// A capped cursor replays events prior to this workflow's head.
		// Skip them, they are already persisted.
		if event.Data.Height <= s.workflow.Header().Height {
			return nil
		}
		downstream, err := s.worker.include(ctx, event.Data)
		if err != nil {
			return err
		}
		if err := s.publisher.ForwardInclude(ctx, types.Wrap(event.Data, downstream)); err != nil {
			return err
		}
	case KindRollback:
		prev, err := s.worker.rollBack(ctx, event.Height)
		if err != nil {
			return err
		}
		if err := s.publisher.ForwardRollback(ctx, prev); err != nil {
			return err
		}
	}
	s.worker.reportStatus()
	return nil
}

// Header implements Source.
func (s *SourceWorker[U, D]) Header() types.Header {
	return s.workflow.Header()
}

// ContainsHeader implements Source.
func (s *SourceWorker[U, D]) ContainsHeader(ctx context.Context, header types.Header) (bool, error) {
	return s.workflow.ContainsHeader(ctx, header)
}

// Subscribe implements Source.
func (s *SourceWorker[U, D]) Subscribe(_ context.Context, header types.Header, name string) <-chan *Event[D] {
	return s.publisher.Subscribe(s.workflow.Header(), header, name)
}

// SinkCounts returns the number of sinks per cursor id. Exposed for tests.
func (s *SourceWorker[U, D]) SinkCounts() map[string]int {
	return s.publisher.SinkCounts()
}
