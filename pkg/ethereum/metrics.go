package ethereum

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	nodesTotal *prometheus.GaugeVec
	nodeSynced *prometheus.GaugeVec
}

var (
	metricsInstance *Metrics
	once            sync.Once
)

// GetMetricsInstance registers the pool metrics once per process.
func GetMetricsInstance(namespace string) *Metrics {
	once.Do(func() {
		metricsInstance = &Metrics{
			nodesTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "nodes_total",
				Help:      "Total number of nodes in the pool",
			}, []string{"type", "status"}),
			nodeSynced: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "node_synced",
				Help:      "Whether the node reports itself as synced (1) or not (0)",
			}, []string{"node"}),
		}

		prometheus.MustRegister(metricsInstance.nodesTotal, metricsInstance.nodeSynced)
	})

	return metricsInstance
}

func (m *Metrics) SetNodesTotal(count float64, labels []string) {
	if m == nil || m.nodesTotal == nil {
		return
	}

	m.nodesTotal.WithLabelValues(labels...).Set(count)
}

func (m *Metrics) SetNodeSynced(node string, synced bool) {
	if m == nil || m.nodeSynced == nil {
		return
	}

	value := 0.0
	if synced {
		value = 1
	}

	m.nodeSynced.WithLabelValues(node).Set(value)
}
