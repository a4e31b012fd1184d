package model

import "time"

// MESD is a descriptor for a composed multi-application edge service. MEADs
// lists the names of the constituent application descriptors.
type MESD struct {
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

// MES is a running composed edge service. MEAIDs and MgmtURLs map constituent
// MEAD name to the created instance id / management URL.
type MES struct {
	ID          string            `json:"id" db:"id"`
	TenantID    string            `json:"tenant_id" db:"tenant_id"`
	Name        string            `json:"name" db:"name"`
	Description string            `json:"description" db:"description"`
	MESDID      string            `json:"mesd_id" db:"mesd_id"`
	VIMID       string            `json:"vim_id" db:"vim_id"`
	MEAIDs      map[string]string `json:"mea_ids"`
	MgmtURLs    map[string]string `json:"mgmt_urls"`
	Status      string            `json:"status" db:"status"`
	ErrorReason *string           `json:"error_reason,omitempty" db:"error_reason"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
}
