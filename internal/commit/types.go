// internal/commit/types.go
package commit

import (
	"time"

	"dgit/internal/storage"
)

// Commit links a tree to its parents. ParentCommitID carries linear history;
// MergeParentCommitID is the second parent of a merge commit.
type Commit struct {
	ID                  string    `json:"id"`
	RepositoryID        string    `json:"repository_id"`
	TreeID              string    `json:"tree_id"`
	ParentCommitID      *string   `json:"parent_commit_id"`
	MergeParentCommitID *string   `json:"merge_parent_commit_id"`
	AuthorID            string    `json:"author_id"`
	Message             string    `json:"message,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

func (c *Commit) GetID() string {
	return c.ID
}

// Parents returns the ids of both parents that are set, first parent first.
func (c *Commit) Parents() []string {
	var parents []string
	if c.ParentCommitID != nil && *c.ParentCommitID != "" {
		parents = append(parents, *c.ParentCommitID)
	}
	if c.MergeParentCommitID != nil && *c.MergeParentCommitID != "" {
		parents = append(parents, *c.MergeParentCommitID)
	}
	return parents
}

// NewCommit holds the caller supplied fields of a commit. Ownership of TreeID
// and the parents by RepositoryID is the caller's responsibility.
type NewCommit struct {
	RepositoryID        string  `json:"repository_id"`
	TreeID              string  `json:"tree_id"`
	ParentCommitID      *string `json:"parent_commit_id,omitempty"`
	MergeParentCommitID *string `json:"merge_parent_commit_id,omitempty"`
	AuthorID            string  `json:"author_id"`
	Message             string  `json:"message,omitempty"`
}

// Box defines how commits are stored and traversed
type Box interface {
	Create(input NewCommit) (*Commit, error)
	FindByID(id string) (*Commit, error)
	ListByRepository(repositoryID string, page storage.Page) ([]*Commit, error)

	// ListByBranch walks first-parent history back from the branch head.
	ListByBranch(repositoryID, branchName string, page storage.Page) ([]*Commit, error)

	// IsAncestor reports whether ancestorID is reachable from descendantID
	// through either parent. A commit is its own ancestor.
	IsAncestor(ancestorID, descendantID string) (bool, error)
}
