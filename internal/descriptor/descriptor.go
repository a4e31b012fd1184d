// Package descriptor parses the TOSCA-style YAML templates (MEAD, MESD,
// MECAD) into the normalized metadata the orchestrator needs: management
// driver, monitoring policy per VDU, attached policies, and the constituent
// application list for composed descriptors.
package descriptor

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/edvin/apmec/internal/model"
)

const vduTypePrefix = "tosca.nodes.mec.VDU"

// MEADInfo is the normalized metadata extracted from one MEAD template.
type MEADInfo struct {
	Name         string
	Description  string
	MgmtDriver   string
	ServiceTypes []string
	Monitoring   *model.MonitoringPolicy
	Policies     []model.PolicyDef
}

// MESDInfo is the normalized metadata of a composed service descriptor.
type MESDInfo struct {
	Name        string
	Description string
	MEADs       []string
}

// MECADInfo is the normalized metadata of an application chain descriptor.
type MECADInfo struct {
	Name        string
	Description string
	MEADs       []string
}

type rawMEAD struct {
	Version     string `yaml:"tosca_definitions_version"`
	Description string `yaml:"description"`
	Metadata    struct {
		TemplateName string `yaml:"template_name"`
	} `yaml:"metadata"`
	ServiceTypes []string `yaml:"service_types"`
	Topology     struct {
		NodeTemplates map[string]rawNode      `yaml:"node_templates"`
		Policies      []map[string]rawPolicy  `yaml:"policies"`
	} `yaml:"topology_template"`
}

type rawNode struct {
	Type       string         `yaml:"type"`
	Properties map[string]any `yaml:"properties"`
}

type rawPolicy struct {
	Type       string                        `yaml:"type"`
	Properties map[string]any                `yaml:"properties"`
	Triggers   map[string]model.AlarmTrigger `yaml:"triggers"`
}

type rawComposed struct {
	Version     string `yaml:"tosca_definitions_version"`
	Description string `yaml:"description"`
	Metadata    struct {
		TemplateName string `yaml:"template_name"`
	} `yaml:"metadata"`
	Imports struct {
		MEADs struct {
			Templates []string `yaml:"mead_templates"`
		} `yaml:"meads"`
	} `yaml:"imports"`
}

// ParseMEAD validates a MEAD template and extracts its metadata.
func ParseMEAD(raw string) (*MEADInfo, error) {
	var tpl rawMEAD
	if err := yaml.Unmarshal([]byte(raw), &tpl); err != nil {
		return nil, fmt.Errorf("parse mead: %w", err)
	}
	if err := checkVersion(tpl.Version); err != nil {
		return nil, err
	}

	vdus := make(map[string]rawNode)
	for name, node := range tpl.Topology.NodeTemplates {
		if strings.HasPrefix(node.Type, vduTypePrefix) {
			vdus[name] = node
		}
	}
	if len(vdus) == 0 {
		return nil, fmt.Errorf("parse mead: template defines no VDU node")
	}

	info := &MEADInfo{
		Name:         tpl.Metadata.TemplateName,
		Description:  tpl.Description,
		ServiceTypes: tpl.ServiceTypes,
	}

	for _, node := range vdus {
		driver, _ := node.Properties["mgmt_driver"].(string)
		if driver == "" {
			continue
		}
		if info.MgmtDriver != "" && info.MgmtDriver != driver {
			return nil, fmt.Errorf("parse mead: multiple mgmt drivers specified (%s, %s)", info.MgmtDriver, driver)
		}
		info.MgmtDriver = driver
	}

	mon, err := vduMonitoring(vdus)
	if err != nil {
		return nil, err
	}
	info.Monitoring = mon

	for _, entry := range tpl.Topology.Policies {
		for name, p := range entry {
			def := model.PolicyDef{
				Name:       name,
				Type:       p.Type,
				Properties: p.Properties,
				Triggers:   p.Triggers,
			}
			if def.Type == model.PolicyTypeAlarming && len(def.Triggers) == 0 {
				return nil, fmt.Errorf("parse mead: alarming policy %q has no triggers", name)
			}
			info.Policies = append(info.Policies, def)
		}
	}

	return info, nil
}

// vduMonitoring builds the per-VDU monitoring policy. A VDU whose
// monitoring_policy is absent or "noop" is skipped; nil is returned when no
// VDU defines one.
func vduMonitoring(vdus map[string]rawNode) (*model.MonitoringPolicy, error) {
	policy := &model.MonitoringPolicy{VDUs: make(map[string]map[string]model.VDUMonitor)}

	for vduName, node := range vdus {
		prop, ok := node.Properties["monitoring_policy"]
		if !ok {
			continue
		}
		if s, isStr := prop.(string); isStr {
			if s == "noop" {
				continue
			}
			return nil, fmt.Errorf("parse mead: vdu %s: monitoring_policy must be a mapping", vduName)
		}

		block, ok := prop.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("parse mead: vdu %s: monitoring_policy must be a mapping", vduName)
		}
		driver, _ := block["name"].(string)
		if driver == "" {
			return nil, fmt.Errorf("parse mead: vdu %s: monitoring_policy has no driver name", vduName)
		}

		mon := model.VDUMonitor{
			Params:  stringify(asMap(block["parameters"])),
			Actions: stringify(asMap(block["actions"])),
		}
		if len(mon.Actions) == 0 {
			return nil, fmt.Errorf("parse mead: vdu %s: monitoring_policy has no actions", vduName)
		}

		if delay, ok := intValue(block["monitoring_delay"]); ok {
			if delay > policy.MonitoringDelay {
				policy.MonitoringDelay = delay
			}
		}

		policy.VDUs[vduName] = map[string]model.VDUMonitor{driver: mon}
	}

	if len(policy.VDUs) == 0 {
		return nil, nil
	}
	return policy, nil
}

// ParseMESD validates a MESD template and extracts the constituent MEAD
// template names.
func ParseMESD(raw string) (*MESDInfo, error) {
	tpl, err := parseComposed(raw, "mesd")
	if err != nil {
		return nil, err
	}
	return &MESDInfo{
		Name:        tpl.Metadata.TemplateName,
		Description: tpl.Description,
		MEADs:       tpl.Imports.MEADs.Templates,
	}, nil
}

// ParseMECAD validates a MECAD template and extracts the chain's MEAD
// template names in declared order.
func ParseMECAD(raw string) (*MECADInfo, error) {
	tpl, err := parseComposed(raw, "mecad")
	if err != nil {
		return nil, err
	}
	return &MECADInfo{
		Name:        tpl.Metadata.TemplateName,
		Description: tpl.Description,
		MEADs:       tpl.Imports.MEADs.Templates,
	}, nil
}

func parseComposed(raw, kind string) (*rawComposed, error) {
	var tpl rawComposed
	if err := yaml.Unmarshal([]byte(raw), &tpl); err != nil {
		return nil, fmt.Errorf("parse %s: %w", kind, err)
	}
	if err := checkVersion(tpl.Version); err != nil {
		return nil, err
	}
	if len(tpl.Imports.MEADs.Templates) == 0 {
		return nil, fmt.Errorf("parse %s: template imports no mead_templates", kind)
	}
	return &tpl, nil
}

func checkVersion(version string) error {
	if version == "" {
		return fmt.Errorf("descriptor: missing tosca_definitions_version")
	}
	if !strings.Contains(version, "mec") {
		return fmt.Errorf("descriptor: unsupported tosca_definitions_version %q", version)
	}
	return nil
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func stringify(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = fmt.Sprint(v)
	}
	return out
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
