package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMEADCreate_InvalidJSON(t *testing.T) {
	h := &MEAD{svc: nil}
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/meads", "not json")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestMEADCreate_MissingAttributes(t *testing.T) {
	h := &MEAD{svc: nil}
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/meads", map[string]any{
		"name": "sample-mead",
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestMEADCreate_MissingDescriptor(t *testing.T) {
	h := &MEAD{svc: nil}
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/meads", map[string]any{
		"name":       "sample-mead",
		"attributes": map[string]string{"other": "x"},
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "descriptor is required")
}
