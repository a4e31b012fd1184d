package handler

import (
	"net/http"
	"strconv"

	"github.com/edvin/apmec/internal/api/response"
	"github.com/edvin/apmec/internal/core"
)

type Event struct {
	svc *core.EventService
}

func NewEvent(services *core.Services) *Event {
	return &Event{svc: services.Event}
}

func (h *Event) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := core.EventFilter{
		ResourceID:   q.Get("resource_id"),
		ResourceType: q.Get("resource_type"),
		EventType:    q.Get("event_type"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			response.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		filter.Limit = limit
	}

	events, err := h.svc.List(r.Context(), filter)
	if err != nil {
		response.WriteServiceError(w, err)
		return
	}
	response.WriteJSON(w, http.StatusOK, events)
}
