package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
)

type MECAD struct {
	svc *core.MECADService
}

func NewMECAD(services *core.Services) *MECAD {
	return &MECAD{svc: services.MECAD}
}

func (h *MECAD) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMECAD
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw := req.Attributes[model.ResTypeMECAD]
	if raw == "" {
		response.WriteError(w, http.StatusBadRequest, "attributes.mecad descriptor is required")
		return
	}

	mecad := &model.MECAD{
		TenantID:    request.Tenant(r),
		Name:        req.Name,
		Description: req.Description,
	}
	created, err := h.svc.Create(r.Context(), mecad, raw)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *MECAD) List(w http.ResponseWriter, r *http.Request) {
	mecads, err := h.svc.List(r.Context(), request.Tenant(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mecads)
}

func (h *MECAD) Get(w http.ResponseWriter, r *http.Request) {
	mecad, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "mecadID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mecad)
}

func (h *MECAD) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "mecadID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
