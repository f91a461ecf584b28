package wifi_manager

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tollgate_wifi"

// StatsCollector exports the callback counters and the current state of a Manager.
type StatsCollector struct {
	manager *Manager

	callbacksDesc *prometheus.Desc
	stateDesc     *prometheus.Desc
}

// NewStatsCollector returns a collector bound to m. Register it with a prometheus.Registerer.
func NewStatsCollector(m *Manager) *StatsCollector {
	return &StatsCollector{
		manager: m,
		callbacksDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "callbacks_total"),
			"Callback broadcasts by type.",
			[]string{"type"}, nil,
		),
		stateDesc: prometheus.NewDesc(
			prometheus.BuildFQName(metricsNamespace, "", "state"),
			"1 for the current state of the manager, 0 otherwise.",
			[]string{"state"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.callbacksDesc
	ch <- c.stateDesc
}

// Collect implements prometheus.Collector. Counters are read atomically; the
// state read waits for the dispatch lock.
func (c *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.manager.callbacks.stats.snapshot()
	for _, v := range []struct {
		label string
		value uint64
	}{
		{"connect", s.Connect},
		{"connect_fail", s.ConnectFail},
		{"disconnect", s.Disconnect},
		{"reconnect", s.Reconnect},
		{"joined", s.Joined},
		{"left", s.Left},
		{"scan_done", s.ScanDone},
	} {
		ch <- prometheus.MustNewConstMetric(c.callbacksDesc, prometheus.CounterValue, float64(v.value), v.label)
	}

	current := c.manager.State()
	for st := StateUninitialized; st <= StateScanning; st++ {
		value := 0.0
		if st == current {
			value = 1
		}
		ch <- prometheus.MustNewConstMetric(c.stateDesc, prometheus.GaugeValue, value, st.String())
	}
}

// MetricsReporter is an ErrorReporter counting rejected events.
type MetricsReporter struct {
	invalidEvents *prometheus.CounterVec
}

// NewMetricsReporter creates the reporter and registers its counter with reg.
func NewMetricsReporter(reg prometheus.Registerer) (*MetricsReporter, error) {
	r := &MetricsReporter{
		invalidEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "invalid_events_total",
			Help:      "Events rejected by the state machine, by state and event.",
		}, []string{"state", "event"}),
	}
	if err := reg.Register(r.invalidEvents); err != nil {
		return nil, err
	}
	return r, nil
}

// ReportInvalidEvent implements ErrorReporter.
func (r *MetricsReporter) ReportInvalidEvent(state State, kind EventKind) {
	r.invalidEvents.WithLabelValues(state.String(), kind.String()).Inc()
}
