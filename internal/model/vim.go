package model

import "time"

// VIM is a registered Virtual Infrastructure Manager, the backend where
// instances are placed. Auth holds the encrypted credential blob; decrypted
// credentials are only ever exposed through VIMService.GetVIM and are never
// persisted on instance rows.
type VIM struct {
	ID            string            `json:"id" db:"id"`
	TenantID      string            `json:"tenant_id" db:"tenant_id"`
	Name          string            `json:"name" db:"name"`
	Description   string            `json:"description" db:"description"`
	Type          string            `json:"type" db:"type"`
	Auth          []byte            `json:"-" db:"auth"`
	PlacementAttr map[string]string `json:"placement_attr,omitempty"`
	IsDefault     bool              `json:"is_default" db:"is_default"`
	Status        string            `json:"status" db:"status"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at" db:"updated_at"`
}

// VIMAuth is a decrypted VIM credential set handed to infra drivers.
type VIMAuth struct {
	AuthURL  string `json:"auth_url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Project  string `json:"project"`
}

// VIMRecord is a VIM with decrypted auth, as returned by the VIM client
// contract used by the lifecycle orchestrators.
type VIMRecord struct {
	ID         string
	Name       string
	Type       string
	Auth       VIMAuth
	RegionName string
}
