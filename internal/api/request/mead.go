package request

type CreateMEAD struct {
	Name         string   `json:"name" validate:"omitempty,slug"`
	Description  string   `json:"description"`
	ServiceTypes []string `json:"service_types"`
	// Attributes carries the raw TOSCA descriptor under the "mead" key.
	Attributes map[string]string `json:"attributes" validate:"required"`
}

type CreateMESD struct {
	Name        string            `json:"name" validate:"omitempty,slug"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes" validate:"required"`
}

type CreateMECAD struct {
	Name        string            `json:"name" validate:"omitempty,slug"`
	Description string            `json:"description"`
	Attributes  map[string]string `json:"attributes" validate:"required"`
}
