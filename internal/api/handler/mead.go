package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
)

type MEAD struct {
	svc *core.MEADService
}

func NewMEAD(services *core.Services) *MEAD {
	return &MEAD{svc: services.MEAD}
}

func (h *MEAD) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMEAD
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw := req.Attributes[model.DescriptorAttrKey]
	if raw == "" {
		response.WriteError(w, http.StatusBadRequest, "attributes.mead descriptor is required")
		return
	}

	mead := &model.MEAD{
		TenantID:     request.Tenant(r),
		Name:         req.Name,
		Description:  req.Description,
		ServiceTypes: req.ServiceTypes,
	}
	created, err := h.svc.Create(r.Context(), mead, raw)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *MEAD) List(w http.ResponseWriter, r *http.Request) {
	meads, err := h.svc.List(r.Context(), request.Tenant(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, meads)
}

func (h *MEAD) Get(w http.ResponseWriter, r *http.Request) {
	mead, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "meadID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mead)
}

func (h *MEAD) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "meadID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
