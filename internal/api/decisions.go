// internal/api/decisions.go
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"dgit/internal/decision"
	"dgit/internal/errors"
	"dgit/internal/validation"
)

// maxInputBytes bounds an execution context body.
const maxInputBytes = 1 << 20

func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if err := validation.Required(map[string]string{"path": path}); err != nil {
		h.fail(w, r, err)
		return
	}
	b, err := h.resolver.GetContentByPath(r.PathValue("id"), r.PathValue("name"), path)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Execute runs the branch's index.json with the request body as input.
func (h *Handler) Execute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxInputBytes))
	if err != nil {
		h.fail(w, r, errors.ValidationError("reading request body", err.Error()))
		return
	}
	input := json.RawMessage(bytes.TrimSpace(body))
	if len(input) > 0 && !json.Valid(input) {
		h.fail(w, r, errors.ValidationError("request body must be JSON", nil))
		return
	}

	result, err := h.resolver.ExecuteIndex(r.Context(), r.PathValue("id"), r.PathValue("name"), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req decision.SimulateRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.resolver.Simulate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
