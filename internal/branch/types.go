// internal/branch/types.go
package branch

import (
	"fmt"
	"time"

	"dgit/internal/storage"
)

// DefaultName is the branch every new repository starts with.
const DefaultName = "main"

var (
	// ErrNoCommits reports a branch whose head is still unset.
	ErrNoCommits = fmt.Errorf("branch has no commits: %w", storage.ErrNotFound)

	// ErrHeadMoved is returned by compare-and-swap head updates when the
	// branch no longer points at the expected commit.
	ErrHeadMoved = fmt.Errorf("branch head moved: %w", storage.ErrConflict)
)

// Branch is a mutable named pointer into the commit graph.
type Branch struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	Name         string    `json:"name"`
	HeadCommitID *string   `json:"head_commit_id"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (b *Branch) GetID() string {
	return b.ID
}

// SameHead reports whether two head pointers name the same commit. Nil and
// empty both mean no commits.
func SameHead(a, b *string) bool {
	var x, y string
	if a != nil {
		x = *a
	}
	if b != nil {
		y = *b
	}
	return x == y
}

// Head returns the head commit id or ErrNoCommits.
func (b *Branch) Head() (string, error) {
	if b.HeadCommitID == nil || *b.HeadCommitID == "" {
		return "", fmt.Errorf("branch %q: %w", b.Name, ErrNoCommits)
	}
	return *b.HeadCommitID, nil
}

// Box defines the interface for branch storage operations
type Box interface {
	Create(repositoryID, name, createdBy string, headCommitID *string) (*Branch, error)
	FindByID(id string) (*Branch, error)
	FindByName(repositoryID, name string) (*Branch, error)
	ListByRepository(repositoryID string, page storage.Page) ([]*Branch, error)

	// UpdateHead moves the pointer unconditionally; nil clears it.
	UpdateHead(id string, headCommitID *string) (*Branch, error)
	Delete(id string) (bool, error)
}

// ValidateName rejects names that cannot be used as a branch name.
func ValidateName(name string) error {
	if name == "" {
		return storage.Invalidf("branch name is required")
	}
	if len(name) > 255 {
		return storage.Invalidf("branch name is too long")
	}
	return nil
}
