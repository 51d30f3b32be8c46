// internal/api/api.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"dgit/internal/blob"
	"dgit/internal/branch"
	"dgit/internal/commit"
	"dgit/internal/decision"
	"dgit/internal/diff"
	"dgit/internal/errors"
	"dgit/internal/logging"
	"dgit/internal/mergerequest"
	"dgit/internal/repository"
	"dgit/internal/storage"
	"dgit/internal/tree"
	"dgit/internal/vcs"

	"go.uber.org/dig"
	"go.uber.org/zap"
)

// UserHeader carries the caller's identity. Authentication happens upstream.
const UserHeader = "X-User-ID"

// Deps lists everything the handlers need.
type Deps struct {
	dig.In

	Repositories  repository.Box
	Blobs         blob.Box
	Trees         tree.Box
	Commits       commit.Box
	Branches      branch.Box
	MergeRequests mergerequest.Box
	Diffs         *diff.Engine
	Resolver      *decision.Resolver
	VCS           *vcs.Service
	Logger        *logging.Logger
}

// Handler serves the JSON API over the stores.
type Handler struct {
	repos    repository.Box
	blobs    blob.Box
	trees    tree.Box
	commits  commit.Box
	branches branch.Box
	mrs      mergerequest.Box
	diffs    *diff.Engine
	resolver *decision.Resolver
	vcs      *vcs.Service
	logger   *logging.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		repos:    d.Repositories,
		blobs:    d.Blobs,
		trees:    d.Trees,
		commits:  d.Commits,
		branches: d.Branches,
		mrs:      d.MergeRequests,
		diffs:    d.Diffs,
		resolver: d.Resolver,
		vcs:      d.VCS,
		logger:   d.Logger,
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)

	// Repositories
	mux.HandleFunc("POST /repositories", h.CreateRepository)
	mux.HandleFunc("GET /repositories", h.ListRepositories)
	mux.HandleFunc("GET /repositories/{id}", h.GetRepository)
	mux.HandleFunc("DELETE /repositories/{id}", h.DeleteRepository)
	mux.HandleFunc("GET /repositories/{id}/members", h.ListMembers)
	mux.HandleFunc("PUT /repositories/{id}/members/{user}", h.AddMember)
	mux.HandleFunc("DELETE /repositories/{id}/members/{user}", h.RemoveMember)

	// Branches
	mux.HandleFunc("POST /repositories/{id}/branches", h.CreateBranch)
	mux.HandleFunc("GET /repositories/{id}/branches", h.ListBranches)
	mux.HandleFunc("GET /repositories/{id}/branches/{name}", h.GetBranch)
	mux.HandleFunc("PUT /repositories/{id}/branches/{name}/head", h.UpdateHead)
	mux.HandleFunc("DELETE /repositories/{id}/branches/{name}", h.DeleteBranch)
	mux.HandleFunc("GET /repositories/{id}/branches/{name}/commits", h.ListBranchCommits)
	mux.HandleFunc("POST /repositories/{id}/branches/{name}/commits", h.CommitTree)

	// Objects
	mux.HandleFunc("POST /repositories/{id}/blobs", h.CreateBlob)
	mux.HandleFunc("GET /repositories/{id}/blobs", h.ListBlobs)
	mux.HandleFunc("GET /repositories/{id}/blobs/hash/{hash}", h.GetBlobByHash)
	mux.HandleFunc("GET /blobs/{id}", h.GetBlob)
	mux.HandleFunc("POST /repositories/{id}/trees", h.CreateTree)
	mux.HandleFunc("GET /repositories/{id}/trees", h.ListTrees)
	mux.HandleFunc("GET /trees/{id}", h.GetTree)
	mux.HandleFunc("POST /trees/{id}/entries", h.AddEntry)
	mux.HandleFunc("PATCH /trees/{id}/entries/{entry}", h.UpdateEntry)
	mux.HandleFunc("DELETE /trees/{id}/entries/{entry}", h.RemoveEntry)
	mux.HandleFunc("POST /trees/{id}/clone", h.CloneTree)
	mux.HandleFunc("POST /repositories/{id}/commits", h.CreateCommit)
	mux.HandleFunc("GET /repositories/{id}/commits", h.ListCommits)
	mux.HandleFunc("GET /commits/{id}", h.GetCommit)

	// Diffs
	mux.HandleFunc("GET /repositories/{id}/diff/trees", h.DiffTrees)
	mux.HandleFunc("GET /repositories/{id}/diff/commits", h.DiffCommits)
	mux.HandleFunc("GET /repositories/{id}/diff/branches", h.DiffBranches)

	// Merge requests
	mux.HandleFunc("POST /repositories/{id}/merge-requests", h.CreateMergeRequest)
	mux.HandleFunc("GET /repositories/{id}/merge-requests", h.ListMergeRequests)
	mux.HandleFunc("GET /merge-requests/{id}", h.GetMergeRequest)
	mux.HandleFunc("PATCH /merge-requests/{id}", h.UpdateMergeRequest)
	mux.HandleFunc("PUT /merge-requests/{id}/status", h.UpdateMergeRequestStatus)
	mux.HandleFunc("POST /merge-requests/{id}/merge", h.Merge)
	mux.HandleFunc("GET /merge-requests/{id}/diff", h.MergeRequestDiff)
	mux.HandleFunc("POST /merge-requests/{id}/comments", h.AddComment)
	mux.HandleFunc("GET /merge-requests/{id}/comments", h.ListComments)

	// Decisions
	mux.HandleFunc("GET /repositories/{id}/branches/{name}/content", h.GetContent)
	mux.HandleFunc("POST /repositories/{id}/branches/{name}/execute", h.Execute)
	mux.HandleFunc("POST /decisions/simulate", h.Simulate)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// fail writes err as an API error. Internal errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := errors.From(err)
	if apiErr.Code >= http.StatusInternalServerError {
		h.logger.WithRequestID(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, apiErr.Code, apiErr)
}

func userID(r *http.Request) (string, error) {
	user := r.Header.Get(UserHeader)
	if user == "" {
		return "", errors.Unauthorized(UserHeader + " header is required")
	}
	return user, nil
}

// page reads the skip and take query parameters.
func page(r *http.Request) (storage.Page, error) {
	var p storage.Page
	for name, dst := range map[string]*int{"skip": &p.Skip, "take": &p.Take} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return p, errors.ValidationError(name+" must be a non-negative integer", raw)
		}
		*dst = n
	}
	return p, nil
}
