package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MonitorCycles counts completed health-check sweeps across all
	// registered instances.
	MonitorCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "apmec_monitor_cycles_total",
		Help: "Number of completed monitoring sweeps",
	})

	// MonitorFailures counts health-check failures that triggered a
	// policy action.
	MonitorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apmec_monitor_failures_total",
		Help: "Number of health-check failures per driver",
	}, []string{"driver"})

	// PolicyActions counts policy action invocations by action name and
	// outcome.
	PolicyActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "apmec_policy_actions_total",
		Help: "Number of policy action invocations",
	}, []string{"action", "outcome"})
)
