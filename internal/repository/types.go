// internal/repository/types.go
package repository

import (
	"errors"
	"time"

	"dgit/internal/storage"
)

type Role string

const (
	RoleOwner  Role = "OWNER"
	RoleWriter Role = "WRITER"
	RoleReader Role = "READER"
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleWriter || r == RoleReader
}

// ErrOwnerRequired is returned when removing the member that owns the
// repository.
var ErrOwnerRequired = errors.New("repository owner cannot be removed")

type Repository struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	OwnerID       string    `json:"owner_id"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
}

func (r *Repository) GetID() string {
	return r.ID
}

type Membership struct {
	RepositoryID string    `json:"repository_id"`
	UserID       string    `json:"user_id"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

// Box defines repository lifecycle and membership operations
type Box interface {
	// Create stores the repository, its owner membership and an empty
	// default branch together.
	Create(name, ownerID string) (*Repository, error)
	FindByID(id string) (*Repository, error)
	List(page storage.Page) ([]*Repository, error)

	AddMember(repositoryID, userID string, role Role) (*Membership, error)
	RemoveMember(repositoryID, userID string) (bool, error)
	Members(repositoryID string) ([]*Membership, error)

	// Delete removes the repository and everything stored for it. Nothing is
	// removed unless everything is.
	Delete(id string) error
}

func ValidateName(name string) error {
	if name == "" {
		return storage.Invalidf("repository name is required")
	}
	if len(name) > 100 {
		return storage.Invalidf("repository name is too long")
	}
	return nil
}
