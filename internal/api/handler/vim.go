package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/edvin/apmec/internal/api/request"
	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
	"github.com/edvin/apmec/internal/model"
)

type VIM struct {
	svc *core.VIMService
}

func NewVIM(services *core.Services) *VIM {
	return &VIM{svc: services.VIM}
}

func (h *VIM) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterVIM
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	vim := &model.VIM{
		TenantID:      request.Tenant(r),
		Name:          req.Name,
		Description:   req.Description,
		Type:          req.Type,
		PlacementAttr: req.PlacementAttr,
		IsDefault:     req.IsDefault,
	}
	auth := model.VIMAuth{
		AuthURL:  req.Auth.AuthURL,
		Username: req.Auth.Username,
		Password: req.Auth.Password,
		Project:  req.Auth.Project,
	}
	if err := h.svc.Register(r.Context(), vim, auth); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusCreated, vim)
}

func (h *VIM) List(w http.ResponseWriter, r *http.Request) {
	vims, err := h.svc.List(r.Context())
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, vims)
}

func (h *VIM) Get(w http.ResponseWriter, r *http.Request) {
	vim, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "vimID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, vim)
}

func (h *VIM) Update(w http.ResponseWriter, r *http.Request) {
	var req request.UpdateVIM
	if err := request.Decode(r, &req); err != nil {
		response.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	vim, err := h.svc.GetByID(r.Context(), chi.URLParam(r, "vimID"))
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	if req.Description != nil {
		vim.Description = *req.Description
	}
	if req.PlacementAttr != nil {
		vim.PlacementAttr = req.PlacementAttr
	}
	var auth *model.VIMAuth
	if req.Auth != nil {
		auth = &model.VIMAuth{
			AuthURL:  req.Auth.AuthURL,
			Username: req.Auth.Username,
			Password: req.Auth.Password,
			Project:  req.Auth.Project,
		}
	}

	if err := h.svc.Update(r.Context(), vim, auth); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, vim)
}

func (h *VIM) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "vimID")); err != nil {
		response.WriteServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
