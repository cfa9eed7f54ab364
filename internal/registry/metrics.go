package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	instantiatedNodes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mtua",
		Name:      "instantiated_nodes_total",
		Help:      "Nodes built by the registry, by type.",
	}, []string{"type"})

	decodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mtua",
		Name:      "descriptor_decode_errors_total",
		Help:      "Type or instance declaration descriptors that failed to decode.",
	})
)
