package bridge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// bridgeCallsTotal counts every outgoing/incoming bridge call by transport
// ("http", "subprocess", "server") and outcome ("success", "timeout",
// "error", or a Response error code like "MODULE_NOT_FOUND").
var bridgeCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "razy_bridge_calls_total",
	Help: "Bridge calls by transport and outcome.",
}, []string{"transport", "outcome"})
