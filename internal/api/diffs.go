// internal/api/diffs.go
package api

import (
	"net/http"

	"dgit/internal/diff"
	"dgit/internal/validation"
)

// DiffResponse is a diff with optional line patches for the modified paths.
type DiffResponse struct {
	*diff.Result
	Patches []*diff.Patch `json:"patches,omitempty"`
}

func (h *Handler) respondDiff(w http.ResponseWriter, r *http.Request, result *diff.Result) {
	resp := DiffResponse{Result: result}
	if r.URL.Query().Get("patch") == "true" {
		patches, err := h.diffs.PatchPaths(result.Modified)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Patches = patches
	}
	writeJSON(w, http.StatusOK, resp)
}

// baseTarget reads the base and target query parameters.
func baseTarget(r *http.Request) (string, string, error) {
	base, target := r.URL.Query().Get("base"), r.URL.Query().Get("target")
	if err := validation.Required(map[string]string{"base": base, "target": target}); err != nil {
		return "", "", err
	}
	return base, target, nil
}

func (h *Handler) DiffTrees(w http.ResponseWriter, r *http.Request) {
	base, target, err := baseTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.diffs.DiffTrees(base, target)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondDiff(w, r, result)
}

func (h *Handler) DiffCommits(w http.ResponseWriter, r *http.Request) {
	base, target, err := baseTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.diffs.DiffCommits(base, target)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondDiff(w, r, result)
}

func (h *Handler) DiffBranches(w http.ResponseWriter, r *http.Request) {
	base, target, err := baseTarget(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.diffs.DiffBranches(r.PathValue("id"), base, target)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondDiff(w, r, result)
}
