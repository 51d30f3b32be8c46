// internal/api/repositories.go
package api

import (
	"net/http"

	"dgit/internal/errors"
	"dgit/internal/repository"
	"dgit/internal/validation"
)

type createRepositoryRequest struct {
	Name string `json:"name"`
}

func (req createRepositoryRequest) Validate() error {
	return repository.ValidateName(req.Name)
}

func (h *Handler) CreateRepository(w http.ResponseWriter, r *http.Request) {
	user, err := userID(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req createRepositoryRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	repo, err := h.repos.Create(req.Name, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

func (h *Handler) ListRepositories(w http.ResponseWriter, r *http.Request) {
	p, err := page(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	repos, err := h.repos.List(p)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repos)
}

func (h *Handler) GetRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := h.repos.FindByID(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

func (h *Handler) DeleteRepository(w http.ResponseWriter, r *http.Request) {
	if _, err := userID(r); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.vcs.DeleteRepository(r.Context(), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.repos.Members(r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	Role repository.Role `json:"role"`
}

func (h *Handler) AddMember(w http.ResponseWriter, r *http.Request) {
	var req addMemberRequest
	if err := validation.DecodeRequest(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.repos.AddMember(r.PathValue("id"), r.PathValue("user"), req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	removed, err := h.repos.RemoveMember(r.PathValue("id"), r.PathValue("user"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !removed {
		h.fail(w, r, errors.NotFound("membership not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
