package request

// VIMAuth carries plaintext credentials in requests only; they are sealed
// before storage and never echoed back.
type VIMAuth struct {
	AuthURL  string `json:"auth_url" validate:"required,url"`
	Username string `json:"username"`
	Password string `json:"password"`
	Project  string `json:"project"`
}

type RegisterVIM struct {
	Name          string            `json:"name" validate:"required,slug"`
	Description   string            `json:"description"`
	Type          string            `json:"type" validate:"required"`
	Auth          VIMAuth           `json:"auth" validate:"required"`
	PlacementAttr map[string]string `json:"placement_attr"`
	IsDefault     bool              `json:"is_default"`
}

type UpdateVIM struct {
	Description   *string           `json:"description"`
	Auth          *VIMAuth          `json:"auth"`
	PlacementAttr map[string]string `json:"placement_attr"`
}
