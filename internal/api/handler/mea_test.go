package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newMEAHandler() *MEA {
	return &MEA{svc: nil}
}

// --- Create ---

func TestMEACreate_InvalidJSON(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/meas", "{bad json")

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "invalid JSON")
}

func TestMEACreate_MissingName(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/meas", map[string]any{
		"mead_id": "mead-1",
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestMEACreate_BadName(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/meas", map[string]any{
		"name":    "Not A Slug!",
		"mead_id": "mead-1",
	})

	h.Create(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- Update ---

func TestMEAUpdate_MissingConfig(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPut, "/meas/mea-1", map[string]any{})
	r = withChiURLParam(r, "meaID", "mea-1")

	h.Update(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

// --- Scale ---

func TestMEAScale_InvalidType(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/meas/mea-1/scale", map[string]any{
		"policy": "sp1",
		"type":   "sideways",
	})
	r = withChiURLParam(r, "meaID", "mea-1")

	h.Scale(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeErrorResponse(rec)
	assert.Contains(t, body["error"], "validation error")
}

func TestMEAScale_MissingPolicy(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequest(http.MethodPost, "/meas/mea-1/scale", map[string]any{
		"type": "out",
	})
	r = withChiURLParam(r, "meaID", "mea-1")

	h.Scale(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- Trigger ---

func TestMEATrigger_InvalidJSON(t *testing.T) {
	h := newMEAHandler()
	rec := httptest.NewRecorder()
	r := newRequestRaw(http.MethodPost, "/meas/mea-1/triggers/p1/respawn/abc", "{")
	r = withChiURLParam(r, "meaID", "mea-1")

	h.Trigger(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
