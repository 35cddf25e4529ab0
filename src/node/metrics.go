package node

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "p2pool"

// Metrics holds the Prometheus metrics of a node actor. Each actor registers
// them on its own registry so that several actors can live in one process.
type Metrics struct {
	registry *prometheus.Registry

	// Commands counts processed commands by kind and outcome.
	Commands *prometheus.CounterVec

	// CommandDuration observes the time spent executing a command.
	CommandDuration *prometheus.HistogramVec

	// Events counts network events by kind.
	Events *prometheus.CounterVec

	// InventorySent counts inventory messages sent on new connections.
	InventorySent prometheus.Counter

	// ConnectedPeers tracks the number of connected peers.
	ConnectedPeers prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Total commands processed by kind and status",
		}, []string{"kind", "status"}),
		CommandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Command execution time by kind",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "network_events_total",
			Help:      "Total network events handled by kind",
		}, []string{"kind"}),
		InventorySent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "inventory_sent_total",
			Help:      "Total inventory messages sent to new peers",
		}),
		ConnectedPeers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "connected_peers",
			Help:      "Current number of connected peers",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// kindOf turns *net.ConnectionClosedEvent into "connection_closed" and
// *node.GetPeersRequest into "get_peers".
func kindOf(v interface{}) string {
	name := fmt.Sprintf("%T", v)
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	if strings.HasSuffix(name, "Event") {
		name = strings.TrimSuffix(name, "Event")
	} else {
		name = strings.TrimSuffix(name, "Request")
	}

	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
