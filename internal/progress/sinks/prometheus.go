package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mkarpis/linkmind/internal/progress"
)

// PrometheusSink exports pipeline progress metrics. It owns all collectors
// for status transitions, terminal outcomes, and in-flight links.
type PrometheusSink struct {
	transitions *prometheus.CounterVec
	terminal    *prometheus.CounterVec
	inFlight    prometheus.Gauge
	retries     prometheus.Counter

	tracker *linkTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmind_status_transitions_total",
			Help: "Link status transitions partitioned by resulting status.",
		}, []string{"status"}),
		terminal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "linkmind_links_terminal_total",
			Help: "Links reaching a terminal status partitioned by outcome.",
		}, []string{"status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "linkmind_links_in_flight",
			Help: "Links currently between submission and a terminal status.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "linkmind_stage_retries_total",
			Help: "Stage attempts re-entered after a retryable failure.",
		}),
	}
	s.tracker = newLinkTracker()
	for _, collector := range []prometheus.Collector{
		s.transitions,
		s.terminal,
		s.inFlight,
		s.retries,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	s.transitions.WithLabelValues(string(evt.New)).Inc()
	if evt.Old == evt.New {
		// Same-state transitions are retries of FETCHING or CLASSIFYING.
		s.retries.Inc()
	}
	if evt.New.Terminal() {
		s.terminal.WithLabelValues(string(evt.New)).Inc()
		if s.tracker.complete(evt.LinkID) {
			s.inFlight.Dec()
		}
		return
	}
	if s.tracker.start(evt.LinkID) {
		s.inFlight.Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error { return nil }

type linkTracker struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newLinkTracker() *linkTracker {
	return &linkTracker{active: make(map[string]struct{})}
}

func (t *linkTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; ok {
		return false
	}
	t.active[id] = struct{}{}
	return true
}

func (t *linkTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[id]; !ok {
		return false
	}
	delete(t.active, id)
	return true
}
