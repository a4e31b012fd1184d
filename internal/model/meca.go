package model

import "time"

// MECAD is a descriptor for a MEC application chain deployed via workflow
// automation. MEADs lists the constituent application descriptor names in
// chain order.
type MECAD struct {
	ID             string            `json:"id" db:"id"`
	TenantID       string            `json:"tenant_id" db:"tenant_id"`
	Name           string            `json:"name" db:"name"`
	Description    string            `json:"description" db:"description"`
	MEADs          []string          `json:"meads"`
	TemplateSource string            `json:"template_source" db:"template_source"`
	Attributes     map[string]string `json:"attributes"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at" db:"updated_at"`
}

// MECA is a running application chain tracked by a workflow execution id.
type MECA struct {
	ID          string            `json:"id" db:"id"`
	TenantID    string            `json:"tenant_id" db:"tenant_id"`
	Name        string            `json:"name" db:"name"`
	Description string            `json:"description" db:"description"`
	MECADID     string            `json:"mecad_id" db:"mecad_id"`
	VIMID       string            `json:"vim_id" db:"vim_id"`
	// WorkflowID tracks the backend workflow execution driving this chain.
	WorkflowID  *string           `json:"workflow_id,omitempty" db:"workflow_id"`
	MEAIDs      map[string]string `json:"mea_ids"`
	MgmtURLs    map[string]string `json:"mgmt_urls"`
	Status      string            `json:"status" db:"status"`
	ErrorReason *string           `json:"error_reason,omitempty" db:"error_reason"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}
