// internal/api/branches.go
package api

import (
	"fmt"
	"net/http"

	"dgit/internal/branch"
	"dgit/internal/errors"
	"dgit/internal/storage"
	"dgit/internal/validation"
)

type createBranchRequest struct {
	Name         string  `json:"name"`
	HeadCommitID *string `json:"head_commit_id,omitempty"`
}

func (req createBranchRequest) Validate() error {
	return branch.ValidateName(req.Name)
}

type updateHeadRequest struct {
	HeadCommitID *string `json:"head_commit_id"`
}

type commitTreeRequest struct {
	TreeID  string `json:"tree_id"`
	Message string `json:"message,omitempty"`
}

// checkCommit rejects a head that is not a commit of the repository.
func (h *Handler) checkCommit(repositoryID string, commitID *string) error {
	if commitID == nil {
		return nil
	}
	c, err := h.commits.FindByID(*commitID)
	if err != nil {
		return err
	}
	if c.RepositoryID != repositoryID {
		return fmt.Errorf("commit %s in repository %s: %w", *commitID, repositoryID, storage.ErrNotFound)
	}
	return nil
}

func (h *Handler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createBranchRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	repoID := r.PathValue("id")
	if _, err := h.repos.FindByID(repoID); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.checkCommit(repoID, req.HeadCommitID); err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.branches.Create(repoID, req.Name, user, req.HeadCommitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBranches(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	branches, err := h.branches.ListByRepository(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, branches)
}

func (h *Handler) GetBranch(w http.ResponseWriter, r *http.Request) {
	b, err := h.branches.FindByName(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) UpdateHead(w http.ResponseWriter, r *http.Request) {
	var req updateHeadRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	repoID := r.PathValue("id")
	b, err := h.branches.FindByName(repoID, r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.checkCommit(repoID, req.HeadCommitID); err != nil {
		h.fail(w, r, err)
		return
	}

	b, err = h.branches.UpdateHead(b.ID, req.HeadCommitID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	b, err := h.branches.FindByName(r.PathValue("id"), r.PathValue("name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	deleted, err := h.branches.Delete(b.ID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !deleted {
		h.fail(w, r, errors.NotFound("branch not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBranchCommits(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	commits, err := h.commits.ListByBranch(r.PathValue("id"), r.PathValue("name"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

func (h *Handler) CommitTree(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req commitTreeRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := validation.Required(map[string]string{"tree_id": req.TreeID}); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.vcs.CommitTree(r.Context(), r.PathValue("id"), r.PathValue("name"), req.TreeID, user, req.Message)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
