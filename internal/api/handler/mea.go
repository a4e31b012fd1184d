package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/driver"
)

type MEA struct {
	svc *core.MEAService
}

func NewMEA(services *core.Services) *MEA {
	return &MEA{svc: services.MEA}
}

// Create returns 202: the row is PENDING_CREATE and the backend deployment
// continues in the background.
func (h *MEA) Create(w http.ResponseWriter, r *http.Request) {
	var req request.CreateMEA
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mea, err := h.svc.Create(r.Context(), core.CreateMEARequest{
		TenantID:     request.Tenant(r),
		Name:         req.Name,
		Description:  req.Description,
		MEADID:       req.MEADID,
		MEADTemplate: req.MEADTemplate,
		VIMID:        req.VIMID,
		Region:       req.Region,
		ParamValues:  req.ParamValues,
		Config:       req.Config,
		Attributes:   req.Attributes,
	})
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, mea)
}

func (h *MEA) List(w http.ResponseWriter, r *http.Request) {
	meas, err := h.svc.List(r.Context(), request.Tenant(r))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, meas)
}

func (h *MEA) Get(w http.ResponseWriter, r *http.Request) {
	mea, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "meaID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, mea)
}

func (h *MEA) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateMEA
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mea, err := h.svc.Update(r.Context(), chi.URLParam(r, "meaID"), req.Config)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, mea)
}

func (h *MEA) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "meaID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *MEA) Scale(w http.ResponseWriter, r *http.Request) {
	var req request.ScaleMEA
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	mea, err := h.svc.Scale(r.Context(), chi.URLParam(r, "meaID"), req.Policy, req.Type)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusAccepted, mea)
}

func (h *MEA) Resources(w http.ResponseWriter, r *http.Request) {
	resources, err := h.svc.Resources(r.Context(), chi.URLParam(r, "meaID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, resources)
}

// Trigger is the alarm callback endpoint. The URL was handed out when the
// alarm policy was bound; the trigger, action and access key are checked
// against that binding before any action fires.
func (h *MEA) Trigger(w http.ResponseWriter, r *http.Request) {
	var payload driver.AlarmPayload
	if err := request.Decode(r, &payload); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := h.svc.CreateTrigger(r.Context(),
		chi.URLParam(r, "meaID"),
		chi.URLParam(r, "policy"),
		chi.URLParam(r, "action"),
		chi.URLParam(r, "key"),
		payload,
	)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
