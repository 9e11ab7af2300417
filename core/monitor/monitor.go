// Package monitor passively records the latest height reported by each
// worker and exposes it for liveness probes.
package monitor

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/abchrisxyz/ergowatch/core/logger"
	"github.com/abchrisxyz/ergowatch/core/types"
	"github.com/abchrisxyz/ergowatch/core/utils"
)

// mailboxCapacity bounds buffered worker updates. Overflow drops the oldest
// update, which only delays liveness reporting.
const mailboxCapacity = 100

// statusSchedule is the cron schedule of the periodic status log line.
const statusSchedule = "@every 1m"

// WorkerMessage is a single liveness update.
type WorkerMessage struct {
	ID     string
	Height types.Height
}

// Monitor records worker heights. Report never applies backpressure.
type Monitor struct {
	utils.StartStopOnce

	mailbox *utils.Mailbox[WorkerMessage]

	mu      sync.RWMutex
	heights map[string]types.Height

	registry *prometheus.Registry
	gauge    *prometheus.GaugeVec
	cron     *cron.Cron
	server   *http.Server

	chStop chan struct{}
	wgDone sync.WaitGroup
}

// New returns a monitor. A port of 0 disables the HTTP listener.
func New(port int) *Monitor {
	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ergowatch_worker_height",
		Help: "Latest height reported by each worker.",
	}, []string{"worker"})
	registry.MustRegister(gauge)

	m := &Monitor{
		mailbox:  utils.NewMailbox[WorkerMessage](mailboxCapacity),
		heights:  make(map[string]types.Height),
		registry: registry,
		gauge:    gauge,
		cron:     cron.New(),
		chStop:   make(chan struct{}),
	}
	if port > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", m.handleHealth)
		m.server = &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	}
	return m
}

// Report delivers a worker update. Never blocks; a full mailbox drops the
// oldest unprocessed update.
func (m *Monitor) Report(workerID string, height types.Height) {
	m.mailbox.Deliver(WorkerMessage{ID: workerID, Height: height})
}

// WorkerHeight returns the latest height reported by the given worker.
func (m *Monitor) WorkerHeight(workerID string) (types.Height, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.heights[workerID]
	return h, ok
}

// Heights returns a copy of the latest height per worker.
func (m *Monitor) Heights() map[string]types.Height {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]types.Height, len(m.heights))
	for id, h := range m.heights {
		out[id] = h
	}
	return out
}

func (m *Monitor) Start() error {
	return m.StartOnce("Monitor", func() error {
		m.wgDone.Add(1)
		go m.consume()
		if _, err := m.cron.AddFunc(statusSchedule, m.logStatus); err != nil {
			return err
		}
		m.cron.Start()
		if m.server != nil {
			go func() {
				if err := m.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Errorw("Monitor: http server failed", "err", err)
				}
			}()
		}
		return nil
	})
}

func (m *Monitor) Close() error {
	return m.StopOnce("Monitor", func() error {
		close(m.chStop)
		m.cron.Stop()
		if m.server != nil {
			m.server.Close()
		}
		m.wgDone.Wait()
		return nil
	})
}

func (m *Monitor) consume() {
	defer m.wgDone.Done()
	for {
		select {
		case <-m.chStop:
			return
		case <-m.mailbox.Notify():
			for {
				msg, ok := m.mailbox.Retrieve()
				if !ok {
					break
				}
				m.record(msg)
			}
		}
	}
}

func (m *Monitor) record(msg WorkerMessage) {
	m.mu.Lock()
	m.heights[msg.ID] = msg.Height
	m.mu.Unlock()
	m.gauge.WithLabelValues(msg.ID).Set(float64(msg.Height))
}

func (m *Monitor) logStatus() {
	heights := m.Heights()
	if len(heights) == 0 {
		return
	}
	kv := make([]interface{}, 0, len(heights)*2)
	for id, h := range heights {
		kv = append(kv, id, h)
	}
	logger.Infow("Monitor: worker heights", kv...)
}

func (m *Monitor) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}
