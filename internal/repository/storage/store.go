// internal/repository/storage/store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"dgit/internal/branch"
	"dgit/internal/repository"
	"dgit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	byOwnerName = storage.NewIndex("reponame")
	members     = storage.NewIndex("member")
)

// BranchCreator is satisfied by the branch store and lets the default branch
// be created in the repository's own transaction.
type BranchCreator interface {
	CreateTx(txn *badger.Txn, repositoryID, name, createdBy string, headCommitID *string) (*branch.Branch, error)
}

// Store handles repositories and their memberships
type Store struct {
	store    *storage.BadgerStore
	branches BranchCreator
	purgers  []storage.Purger
	now      func() time.Time
}

// NewStore creates a repository store. Delete runs every purger, in order,
// inside the deleting transaction.
func NewStore(db *badger.DB, branches BranchCreator, purgers ...storage.Purger) *Store {
	return &Store{
		store:    storage.NewBadgerStore(db, "repo"),
		branches: branches,
		purgers:  purgers,
		now:      time.Now,
	}
}

func (s *Store) Create(name, ownerID string) (*repository.Repository, error) {
	if err := repository.ValidateName(name); err != nil {
		return nil, err
	}
	if ownerID == "" {
		return nil, storage.Invalidf("owner id is required")
	}

	repo := &repository.Repository{
		ID:            uuid.New().String(),
		Name:          name,
		OwnerID:       ownerID,
		DefaultBranch: branch.DefaultName,
		CreatedAt:     s.now(),
	}

	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		if err := byOwnerName.Claim(txn, []byte(repo.ID), ownerID, name); err != nil {
			return err
		}
		if err := s.store.CreateTx(txn, repo); err != nil {
			return err
		}
		if err := s.putMember(txn, &repository.Membership{
			RepositoryID: repo.ID,
			UserID:       ownerID,
			Role:         repository.RoleOwner,
			CreatedAt:    repo.CreatedAt,
		}); err != nil {
			return err
		}
		_, err := s.branches.CreateTx(txn, repo.ID, branch.DefaultName, ownerID, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating repository: %w", err)
	}
	return repo, nil
}

func (s *Store) FindByID(id string) (*repository.Repository, error) {
	var repo repository.Repository
	if err := s.store.Get(id, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// List returns repositories oldest first.
func (s *Store) List(page storage.Page) ([]*repository.Repository, error) {
	var repos []*repository.Repository
	if err := s.store.List(&repos); err != nil {
		return nil, err
	}
	sort.SliceStable(repos, func(i, j int) bool {
		return repos[i].CreatedAt.Before(repos[j].CreatedAt)
	})

	if page.Skip >= len(repos) {
		return []*repository.Repository{}, nil
	}
	repos = repos[page.Skip:]
	if page.Take > 0 && page.Take < len(repos) {
		repos = repos[:page.Take]
	}
	return repos, nil
}

func (s *Store) putMember(txn *badger.Txn, m *repository.Membership) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling membership: %w", err)
	}
	return members.Put(txn, data, m.RepositoryID, m.UserID)
}

// AddMember grants role to userID, replacing any role they already had.
func (s *Store) AddMember(repositoryID, userID string, role repository.Role) (*repository.Membership, error) {
	if userID == "" {
		return nil, storage.Invalidf("user id is required")
	}
	if !role.Valid() {
		return nil, storage.Invalidf("unknown role %q", role)
	}

	m := &repository.Membership{
		RepositoryID: repositoryID,
		UserID:       userID,
		Role:         role,
		CreatedAt:    s.now(),
	}
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var repo repository.Repository
		if err := s.store.GetTx(txn, repositoryID, &repo); err != nil {
			return err
		}
		if repo.OwnerID == userID && role != repository.RoleOwner {
			return fmt.Errorf("%w: cannot demote the owner", repository.ErrOwnerRequired)
		}
		return s.putMember(txn, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) RemoveMember(repositoryID, userID string) (bool, error) {
	removed := false
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		removed = false
		var repo repository.Repository
		if err := s.store.GetTx(txn, repositoryID, &repo); err != nil {
			return err
		}
		if repo.OwnerID == userID {
			return repository.ErrOwnerRequired
		}
		if _, err := members.Lookup(txn, repositoryID, userID); errors.Is(err, storage.ErrNotFound) {
			return nil
		} else if err != nil {
			return err
		}
		removed = true
		return members.Remove(txn, repositoryID, userID)
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Members lists memberships ordered by user id.
func (s *Store) Members(repositoryID string) ([]*repository.Membership, error) {
	var result []*repository.Membership
	err := s.store.DB().View(func(txn *badger.Txn) error {
		var repo repository.Repository
		if err := s.store.GetTx(txn, repositoryID, &repo); err != nil {
			return err
		}
		values, err := members.Scan(txn, false, storage.Page{}, repositoryID)
		if err != nil {
			return err
		}
		for _, v := range values {
			var m repository.Membership
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("decoding membership: %w", err)
			}
			result = append(result, &m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete cascades through every purger and then removes memberships and the
// repository itself, all in one transaction.
func (s *Store) Delete(id string) error {
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var repo repository.Repository
		if err := s.store.GetTx(txn, id, &repo); err != nil {
			return err
		}
		for _, p := range s.purgers {
			if err := p.PurgeRepository(txn, id); err != nil {
				return err
			}
		}
		if _, err := members.Purge(txn, id); err != nil {
			return fmt.Errorf("purging memberships: %w", err)
		}
		if err := byOwnerName.Remove(txn, repo.OwnerID, repo.Name); err != nil {
			return err
		}
		return s.store.DeleteTx(txn, id)
	})
	if err != nil {
		return fmt.Errorf("deleting repository %s: %w", id, err)
	}
	return nil
}
