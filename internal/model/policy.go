package model

// Policy types understood by the orchestrator.
const (
	PolicyTypeScaling  = "tosca.policies.apmec.Scaling"
	PolicyTypeAlarming = "tosca.policies.apmec.Alarming"
)

// DefaultAlarmActions are the action names a trigger may invoke directly
// without resolving a backend policy.
var DefaultAlarmActions = []string{"respawn", "log", "log_and_kill", "notify"}

// MonitoringPolicy is the parsed monitoring block of a descriptor: per-VDU
// monitor driver configuration plus an instance-wide monitoring delay.
type MonitoringPolicy struct {
	// MonitoringDelay is the seconds to wait after boot before the first
	// check. Zero means use the configured boot wait.
	MonitoringDelay int                          `json:"monitoring_delay,omitempty" yaml:"monitoring_delay,omitempty"`
	VDUs            map[string]map[string]VDUMonitor `json:"vdus" yaml:"vdus"`
}

// VDUMonitor configures one monitor driver for one VDU.
type VDUMonitor struct {
	// Params are driver-specific knobs (count, interval, timeout,
	// monitoring_delay, mgmt_ip).
	Params map[string]string `json:"monitoring_params,omitempty" yaml:"monitoring_params,omitempty"`
	// Actions maps a driver result key (e.g. "failure") to a policy
	// action name (e.g. "respawn").
	Actions map[string]string `json:"actions" yaml:"actions"`
}

// PolicyDef is a named policy attached to a descriptor.
type PolicyDef struct {
	Name       string
	Type       string
	Properties map[string]any
	Triggers   map[string]AlarmTrigger
}

// AlarmTrigger is one trigger of an alarming policy.
type AlarmTrigger struct {
	EventType string `yaml:"event_type"`
	// Condition carries threshold/comparison_operator etc.
	Condition map[string]any `yaml:"condition"`
	// Actions are the policy action names to run when the alarm fires.
	Actions []string `yaml:"action"`
}

// ScalingType derives the backend scale direction for a scaling policy bound
// to an alarm trigger: a greater-than comparison scales out, everything else
// scales in.
func (t AlarmTrigger) ScalingType() string {
	if op, ok := t.Condition["comparison_operator"].(string); ok && op == "gt" {
		return ScaleTypeOut
	}
	return ScaleTypeIn
}
