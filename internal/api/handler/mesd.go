package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
)

type MESD struct {
	svc *core.MESDService
}

func NewMESD(services *core.Services) *MESD {
	return &MESD{svc: services.MESD}
}

func (h *MESD) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMESD
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	raw := req.Attributes[model.ResTypeMESD]
	if raw == "" {
		response.WriteError(w, http.StatusBadRequest, "attributes.mesd descriptor is required")
		return
	}

	mesd := &model.MESD{
		TenantID:    request.Tenant(r),
		Name:        req.Name,
		Description: req.Description,
	}
	created, err := h.svc.Create(r.Context(), mesd, raw)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, created)
}

func (h *MESD) List(w http.ResponseWriter, r *http.Request) {
	mesds, err := h.svc.List(r.Context(), request.Tenant(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mesds)
}

func (h *MESD) Get(w http.ResponseWriter, r *http.Request) {
	mesd, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "mesdID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mesd)
}

func (h *MESD) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "mesdID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
