// internal/api/mergerequests.go
package api

import (
	"net/http"

	"dgit/internal/errors"
	"dgit/internal/mergerequest"
	"dgit/internal/validation"
)

type createMergeRequestRequest struct {
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
}

func (req createMergeRequestRequest) Validate() error {
	return validation.Required(map[string]string{
		"source_branch": req.SourceBranch,
		"target_branch": req.TargetBranch,
		"title":         req.Title,
	})
}

type updateMergeRequestRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type statusRequest struct {
	Status mergerequest.Status `json:"status"`
}

// mergeRequest records a merge. Without a commit id the target branch is
// fast-forwarded to the source head.
type mergeRequest struct {
	MergedCommitID string `json:"merged_commit_id,omitempty"`
}

type commentRequest struct {
	Comment string `json:"comment"`
}

func (req commentRequest) Validate() error {
	return validation.Required(map[string]string{"comment": req.Comment})
}

// MergeRequestDiff pairs the compared branch names with their diff.
type MergeRequestDiff struct {
	*mergerequest.DiffTarget
	Diff DiffResponse `json:"diff"`
}

func (h *Handler) CreateMergeRequest(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createMergeRequestRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	repoID := r.PathValue("id")
	source, err := h.branches.FindByName(repoID, req.SourceBranch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	target, err := h.branches.FindByName(repoID, req.TargetBranch)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	mr, err := h.mrs.Create(mergerequest.NewMergeRequest{
		RepositoryID:   repoID,
		SourceBranchID: source.ID,
		TargetBranchID: target.ID,
		Title:          req.Title,
		Description:    req.Description,
		CreatedBy:      user,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mr)
}

func (h *Handler) ListMergeRequests(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := mergerequest.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.fail(w, r, errors.ValidationError("unknown status", status))
		return
	}
	mrs, err := h.mrs.ListByRepository(r.PathValue("id"), status, p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mrs)
}

func (h *Handler) GetMergeRequest(w http.ResponseWriter, r *http.Request) {
	mr, err := h.mrs.FindByID(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

func (h *Handler) UpdateMergeRequest(w http.ResponseWriter, r *http.Request) {
	var req updateMergeRequestRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	mr, err := h.mrs.Update(r.PathValue("id"), req.Title, req.Description)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

func (h *Handler) UpdateMergeRequestStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	mr, err := h.mrs.UpdateStatus(r.PathValue("id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

func (h *Handler) Merge(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req mergeRequest
	if err := validation.DecodeOptionalRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	id := r.PathValue("id")
	var mr *mergerequest.MergeRequest
	if req.MergedCommitID != "" {
		mr, err = h.mrs.Merge(id, user, req.MergedCommitID)
	} else {
		mr, err = h.vcs.MergeRequest(r.Context(), id, user)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mr)
}

func (h *Handler) MergeRequestDiff(w http.ResponseWriter, r *http.Request) {
	target, err := h.mrs.GetBranchNamesForDiff(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.diffs.DiffBranches(target.RepositoryID, target.TargetBranchName, target.SourceBranchName)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := MergeRequestDiff{DiffTarget: target, Diff: DiffResponse{Result: result}}
	if r.URL.Query().Get("patch") == "true" {
		if resp.Diff.Patches, err = h.diffs.PatchPaths(result.Modified); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req commentRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	c, err := h.mrs.AddComment(r.PathValue("id"), user, req.Comment)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	comments, err := h.mrs.ListComments(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}
