package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
)

type MES struct {
	svc *core.MESService
}

func NewMES(services *core.Services) *MES {
	return &MES{svc: services.MES}
}

func (h *MES) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMES
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mes, err := h.svc.Create(r.Context(), core.CreateMESRequest{
		TenantID:    request.Tenant(r),
		Name:        req.Name,
		Description: req.Description,
		MESDID:      req.MESDID,
		VIMID:       req.VIMID,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, mes)
}

func (h *MES) List(w http.ResponseWriter, r *http.Request) {
	mess, err := h.svc.List(r.Context(), request.Tenant(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mess)
}

func (h *MES) Get(w http.ResponseWriter, r *http.Request) {
	mes, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "mesID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mes)
}

func (h *MES) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "mesID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
