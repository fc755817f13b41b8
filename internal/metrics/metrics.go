// Package metrics exposes Prometheus instrumentation for the relay fabric.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	NodesRegistered prometheus.Counter
	MessagesRelayed prometheus.Counter
	MessagesBounced prometheus.Counter
	MessagesDropped *prometheus.CounterVec
	VerifyFailures  prometheus.Counter
}

// New creates and registers all relay metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		NodesRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_nodes_registered_total",
			Help: "Total number of nodes registered with the relayer",
		}),
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_relayed_total",
			Help: "Total number of messages forwarded to their target",
		}),
		MessagesBounced: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_messages_bounced_total",
			Help: "Total number of messages returned to their sender with an error annotation",
		}),
		MessagesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_dropped_total",
			Help: "Total number of messages dropped by the relayer",
		}, []string{"reason"}), // reason: miss_key, verify_failed, no_route
		VerifyFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "relay_verify_failures_total",
			Help: "Total number of signature verification failures",
		}),
	}
}

// Drop reasons.
const (
	DropMissKey      = "miss_key"
	DropVerifyFailed = "verify_failed"
	DropNoRoute      = "no_route"
)
