package model

import "time"

// DescriptorAttrKey is the attribute key under which the raw descriptor
// text is stored for a template row.
const DescriptorAttrKey = "mead"

// MEAD is an onboarded or inline application descriptor (template).
// Templates are immutable once referenced by an instance.
type MEAD struct {
	ID             string            `json:"id" db:"id"`
	TenantID       string            `json:"tenant_id" db:"tenant_id"`
	Name           string            `json:"name" db:"name"`
	Description    string            `json:"description" db:"description"`
	MgmtDriver     string            `json:"mgmt_driver" db:"mgmt_driver"`
	ServiceTypes   []string          `json:"service_types" db:"service_types"`
	TemplateSource string            `json:"template_source" db:"template_source"`
	Attributes     map[string]string `json:"attributes"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}
