package request

type CreateMES struct {
	Name        string `json:"name" validate:"required,slug"`
	Description string `json:"description"`
	MESDID      string `json:"mesd_id" validate:"required"`
	VIMID       string `json:"vim_id"`
}

type CreateMECA struct {
	Name        string `json:"name" validate:"required,slug"`
	Description string `json:"description"`
	MECADID     string `json:"mecad_id" validate:"required"`
	VIMID       string `json:"vim_id"`
}
