package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sniffer"

// Metrics groups the daemon's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	PacketsReceived prometheus.Counter
	BytesReceived   prometheus.Counter
	PacketsFailed   *prometheus.CounterVec
	RecordsStored   *prometheus.CounterVec
	WindowAppends   prometheus.Counter
	WindowSize      prometheus.Gauge
	HandleLatency   prometheus.Histogram

	// StoreUp is nil until RegisterStoreUp is called.
	StoreUp prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		PacketsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Datagrams read from the UDP socket",
		}),
		BytesReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Payload bytes read from the UDP socket",
		}),
		PacketsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_failed_total",
			Help:      "Datagrams dropped, by failure class",
		}, []string{"class"}),
		RecordsStored: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_stored_total",
			Help:      "Records inserted into the persistent store, by table",
		}, []string{"table"}),
		WindowAppends: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "window_appends_total",
			Help:      "Records appended to the in-memory window",
		}),
		WindowSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "window_size",
			Help:      "Records currently held by the in-memory window",
		}),
		HandleLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "packet_handle_seconds",
			Help:      "Time from receipt to sink delivery per datagram",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1},
		}),
	}
}

// RegisterStoreUp adds the store connection gauge. Only persistent mode calls it.
func (m *Metrics) RegisterStoreUp() prometheus.Gauge {
	if m.StoreUp == nil {
		m.StoreUp = promauto.With(m.Registry).NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_up",
			Help:      "1 when the persistent store connection is open",
		})
	}
	return m.StoreUp
}

func (m *Metrics) ObserveLatency(start time.Time) {
	m.HandleLatency.Observe(time.Since(start).Seconds())
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}
