// internal/mergerequest/types.go
package mergerequest

import (
	"errors"
	"time"

	"dgit/internal/storage"
)

// Status is the lifecycle state of a merge request. OPEN is the only state
// that can be left; MERGED and CLOSED are terminal.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusMerged Status = "MERGED"
	StatusClosed Status = "CLOSED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusMerged, StatusClosed:
		return true
	}
	return false
}

var (
	// ErrNotMergeable is returned by Merge when the request exists but is no
	// longer OPEN.
	ErrNotMergeable = errors.New("merge request is not open")

	// ErrInvalidTransition rejects status changes the lifecycle forbids,
	// including marking a request MERGED without going through Merge.
	ErrInvalidTransition = errors.New("invalid merge request status transition")
)

// MergeRequest proposes incorporating the source branch into the target.
type MergeRequest struct {
	ID             string    `json:"id"`
	RepositoryID   string    `json:"repository_id"`
	SourceBranchID string    `json:"source_branch_id"`
	TargetBranchID string    `json:"target_branch_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description,omitempty"`
	Status         Status    `json:"status"`
	CreatedBy      string    `json:"created_by"`
	MergedBy       *string   `json:"merged_by"`
	MergedCommitID *string   `json:"merged_commit_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (m *MergeRequest) GetID() string {
	return m.ID
}

// Comment is an append-only review note.
type Comment struct {
	ID             string    `json:"id"`
	MergeRequestID string    `json:"merge_request_id"`
	UserID         string    `json:"user_id"`
	Comment        string    `json:"comment"`
	CreatedAt      time.Time `json:"created_at"`
}

type NewMergeRequest struct {
	RepositoryID   string `json:"repository_id"`
	SourceBranchID string `json:"source_branch_id"`
	TargetBranchID string `json:"target_branch_id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	CreatedBy      string `json:"created_by"`
}

func (n NewMergeRequest) Validate() error {
	switch {
	case n.RepositoryID == "":
		return storage.Invalidf("repository id is required")
	case n.SourceBranchID == "" || n.TargetBranchID == "":
		return storage.Invalidf("source and target branches are required")
	case n.SourceBranchID == n.TargetBranchID:
		return storage.Invalidf("source and target branches must differ")
	case n.Title == "":
		return storage.Invalidf("title is required")
	case n.CreatedBy == "":
		return storage.Invalidf("creator is required")
	}
	return nil
}

// DiffTarget names the branches a merge request compares.
type DiffTarget struct {
	RepositoryID     string `json:"repository_id"`
	SourceBranchName string `json:"source_branch_name"`
	TargetBranchName string `json:"target_branch_name"`
}

// Box defines the interface for merge request storage operations
type Box interface {
	Create(input NewMergeRequest) (*MergeRequest, error)
	FindByID(id string) (*MergeRequest, error)
	ListByRepository(repositoryID string, status Status, page storage.Page) ([]*MergeRequest, error)
	Update(id string, title, description *string) (*MergeRequest, error)

	// UpdateStatus closes an open request. It refuses MERGED, which only
	// Merge may set together with the merge bookkeeping.
	UpdateStatus(id string, status Status) (*MergeRequest, error)

	// Merge atomically moves an OPEN request to MERGED, recording who merged
	// it and the resulting commit. The commit id is trusted as given.
	Merge(id, mergedBy, mergedCommitID string) (*MergeRequest, error)

	// FastForward merges an OPEN request and moves its target branch from
	// expectedHead to head in one transaction. A target that has moved since
	// the caller read it fails with branch.ErrHeadMoved and changes nothing.
	FastForward(id, mergedBy string, expectedHead *string, head string) (*MergeRequest, error)

	AddComment(mergeRequestID, userID, comment string) (*Comment, error)
	ListComments(mergeRequestID string, page storage.Page) ([]*Comment, error)

	GetBranchNamesForDiff(mergeRequestID string) (*DiffTarget, error)
}
