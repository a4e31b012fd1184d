package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
)

type MECA struct {
	svc *core.MECAService
}

func NewMECA(services *core.Services) *MECA {
	return &MECA{svc: services.MECA}
}

// Create returns 202; the chain is built by a Temporal workflow.
func (h *MECA) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMECA
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	meca, err := h.svc.Create(r.Context(), core.CreateMECARequest{
		TenantID:    request.Tenant(r),
		Name:        req.Name,
		Description: req.Description,
		MECADID:     req.MECADID,
		VIMID:       req.VIMID,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, meca)
}

func (h *MECA) List(w http.ResponseWriter, r *http.Request) {
	mecas, err := h.svc.List(r.Context(), request.Tenant(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mecas)
}

func (h *MECA) Get(w http.ResponseWriter, r *http.Request) {
	meca, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "mecaID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, meca)
}

func (h *MECA) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "mecaID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
