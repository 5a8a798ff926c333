package telemetry

import "github.com/prometheus/client_golang/prometheus"

// HubSource is the read side of the subscriber hub.
type HubSource interface {
	Len() int
	Broadcasts() uint64
}

// WatchHub exports the hub's live stream count and broadcast total. The
// values are read at scrape time.
func (m *Metrics) WatchHub(h HubSource) {
	m.factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mcp_streams_active",
			Help: "Number of open event streams",
		},
		func() float64 { return float64(h.Len()) },
	)
	m.factory.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "mcp_broadcasts_total",
			Help: "Total number of responses broadcast to event streams",
		},
		func() float64 { return float64(h.Broadcasts()) },
	)
}
