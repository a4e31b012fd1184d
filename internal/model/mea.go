package model

import "time"

// Reserved attribute keys on MEA instances.
const (
	AttrMonitoringPolicy = "monitoring_policy"
	AttrAlarmingPolicy   = "alarming_policy"
	AttrFailureCount     = "failure_count"
	AttrConfig           = "config"
	AttrParamValues      = "param_values"
)

// MEA is a running application instance placed on a VIM. InstanceID is the
// backend stack identifier, nil until the backend create succeeds.
type MEA struct {
	ID            string            `json:"id" db:"id"`
	TenantID      string            `json:"tenant_id" db:"tenant_id"`
	Name          string            `json:"name" db:"name"`
	Description   string            `json:"description" db:"description"`
	MEADID        string            `json:"mead_id" db:"mead_id"`
	VIMID         string            `json:"vim_id" db:"vim_id"`
	InstanceID    *string           `json:"instance_id,omitempty" db:"instance_id"`
	MgmtURL       *string           `json:"mgmt_url,omitempty" db:"mgmt_url"`
	Status        string            `json:"status" db:"status"`
	ErrorReason   *string           `json:"error_reason,omitempty" db:"error_reason"`
	PlacementAttr map[string]string `json:"placement_attr,omitempty"`
	Attributes    map[string]string `json:"attributes"`
	MEAD          *MEAD             `json:"mead,omitempty"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// BackendInstanceID returns the backend stack id or the empty string.
func (m *MEA) BackendInstanceID() string {
	if m.InstanceID == nil {
		return ""
	}
	return *m.InstanceID
}

// RegionName returns the placement region, if any.
func (m *MEA) RegionName() string {
	return m.PlacementAttr["region_name"]
}
