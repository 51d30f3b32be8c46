// internal/api/objects.go
package api

import (
	"encoding/json"
	"net/http"

	"dgit/internal/commit"
	"dgit/internal/errors"
	"dgit/internal/tree"
	"dgit/internal/validation"
)

type createBlobRequest struct {
	Content json.RawMessage `json:"content"`
}

func (req createBlobRequest) Validate() error {
	if len(req.Content) == 0 || string(req.Content) == "null" {
		return errors.ValidationError("content is required", nil)
	}
	return nil
}

func (h *Handler) CreateBlob(w http.ResponseWriter, r *http.Request) {
	var req createBlobRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	repoID := r.PathValue("id")
	if _, err := h.repos.FindByID(repoID); err != nil {
		h.fail(w, r, err)
		return
	}

	b, err := h.blobs.Create(repoID, req.Content)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBlobs(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	blobs, err := h.blobs.ListByRepository(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, blobs)
}

func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	b, err := h.blobs.FindByID(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) GetBlobByHash(w http.ResponseWriter, r *http.Request) {
	b, err := h.blobs.FindByRepositoryAndHash(r.PathValue("id"), r.PathValue("hash"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

type createTreeRequest struct {
	Entries []tree.Entry `json:"entries"`
}

func (h *Handler) CreateTree(w http.ResponseWriter, r *http.Request) {
	var req createTreeRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	repoID := r.PathValue("id")
	if _, err := h.repos.FindByID(repoID); err != nil {
		h.fail(w, r, err)
		return
	}

	t, err := h.trees.Create(repoID, req.Entries)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) ListTrees(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	trees, err := h.trees.ListByRepository(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, trees)
}

func (h *Handler) GetTree(w http.ResponseWriter, r *http.Request) {
	t, err := h.trees.FindByID(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) AddEntry(w http.ResponseWriter, r *http.Request) {
	var entry tree.Entry
	if err := validation.DecodeRequest(r, &entry); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.trees.AddEntry(r.PathValue("id"), entry)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) UpdateEntry(w http.ResponseWriter, r *http.Request) {
	var patch tree.EntryPatch
	if err := validation.DecodeRequest(r, &patch); err != nil {
		h.fail(w, r, err)
		return
	}
	t, err := h.trees.UpdateEntry(r.PathValue("id"), r.PathValue("entry"), patch)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) RemoveEntry(w http.ResponseWriter, r *http.Request) {
	t, err := h.trees.RemoveEntry(r.PathValue("id"), r.PathValue("entry"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) CloneTree(w http.ResponseWriter, r *http.Request) {
	t, err := h.trees.Clone(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

type createCommitRequest struct {
	TreeID              string  `json:"tree_id"`
	ParentCommitID      *string `json:"parent_commit_id,omitempty"`
	MergeParentCommitID *string `json:"merge_parent_commit_id,omitempty"`
	Message             string  `json:"message,omitempty"`
}

// CreateCommit records a commit without moving any branch.
func (h *Handler) CreateCommit(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createCommitRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	repoID := r.PathValue("id")
	if _, err := h.repos.FindByID(repoID); err != nil {
		h.fail(w, r, err)
		return
	}

	c, err := h.commits.Create(commit.NewCommit{
		RepositoryID:        repoID,
		TreeID:              req.TreeID,
		ParentCommitID:      req.ParentCommitID,
		MergeParentCommitID: req.MergeParentCommitID,
		AuthorID:            user,
		Message:             req.Message,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) ListCommits(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	commits, err := h.commits.ListByRepository(r.PathValue("id"), p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commits)
}

func (h *Handler) GetCommit(w http.ResponseWriter, r *http.Request) {
	c, err := h.commits.FindByID(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
