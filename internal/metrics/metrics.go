package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/will7200/ssdtf/element"
)

// Gauges
var (
	ElementState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ssdtf_element_state",
		Help: "Current lifecycle state of an element (1 null, 2 ready, 3 paused, 4 playing)",
	}, []string{"element"})
)

// Counters
var (
	BuffersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssdtf_buffers_total",
		Help: "Buffers handled by the sink chain by flow result",
	}, []string{"element", "flow"})
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssdtf_events_total",
		Help: "Events relayed by receiving pad, type and outcome",
	}, []string{"element", "pad", "type", "handled"})
	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssdtf_queries_total",
		Help: "Queries forwarded by receiving pad, type and outcome",
	}, []string{"element", "pad", "type", "handled"})
	PanicsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssdtf_panics_recovered_total",
		Help: "Panics recovered from element callbacks by site",
	}, []string{"element", "site"})
	StateChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ssdtf_state_changes_total",
		Help: "State transitions attempted by outcome",
	}, []string{"element", "transition", "outcome"})
)

// Observer records element activity in the package metrics.
type Observer struct{}

var _ element.Observer = Observer{}

func (Observer) BufferHandled(name string, ret element.FlowReturn) {
	BuffersTotal.WithLabelValues(name, ret.String()).Inc()
}

func (Observer) EventHandled(name string, from element.PadDirection, ev *element.Event, ok bool) {
	EventsTotal.WithLabelValues(name, from.String(), ev.Type.String(), handled(ok)).Inc()
}

func (Observer) QueryHandled(name string, from element.PadDirection, q *element.Query, ok bool) {
	QueriesTotal.WithLabelValues(name, from.String(), q.Type.String(), handled(ok)).Inc()
}

func (Observer) PanicRecovered(name, site string) {
	PanicsTotal.WithLabelValues(name, site).Inc()
}

func (Observer) StateChanged(name string, t element.StateChange, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	} else {
		ElementState.WithLabelValues(name).Set(float64(t.To))
	}
	StateChangesTotal.WithLabelValues(name, t.String(), outcome).Inc()
}

func handled(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
