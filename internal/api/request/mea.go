package request

type CreateMEA struct {
	Name         string            `json:"name" validate:"required,slug"`
	Description  string            `json:"description"`
	MEADID       string            `json:"mead_id"`
	MEADTemplate string            `json:"mead_template"`
	VIMID        string            `json:"vim_id"`
	Region       string            `json:"region"`
	ParamValues  map[string]string `json:"param_values"`
	Config       string            `json:"config"`
	Attributes   map[string]string `json:"attributes"`
}

type UpdateMEA struct {
	Config string `json:"config" validate:"required"`
}

type ScaleMEA struct {
	Policy string `json:"policy" validate:"required"`
	Type   string `json:"type" validate:"required,oneof=in out"`
}
