// internal/branch/storage/store.go
package storage

import (
	"errors"
	"fmt"
	"time"

	"dgit/internal/branch"
	"dgit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// byName enforces (repository, name) uniqueness and orders listings by name.
var byName = storage.NewIndex("branchname")

// Store handles all branch storage operations
type Store struct {
	store *storage.BadgerStore
	now   func() time.Time
}

// NewStore creates a new branch store
func NewStore(db *badger.DB) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, "branch"),
		now:   time.Now,
	}
}

// Create stores a new branch, failing with storage.ErrConflict when the
// repository already has one of that name.
func (s *Store) Create(repositoryID, name, createdBy string, headCommitID *string) (*branch.Branch, error) {
	var b *branch.Branch
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var err error
		b, err = s.CreateTx(txn, repositoryID, name, createdBy, headCommitID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating branch: %w", err)
	}
	return b, nil
}

// CreateTx is Create inside a caller-owned transaction.
func (s *Store) CreateTx(txn *badger.Txn, repositoryID, name, createdBy string, headCommitID *string) (*branch.Branch, error) {
	if repositoryID == "" {
		return nil, storage.Invalidf("repository id is required")
	}
	if err := branch.ValidateName(name); err != nil {
		return nil, err
	}

	now := s.now()
	b := &branch.Branch{
		ID:           uuid.New().String(),
		RepositoryID: repositoryID,
		Name:         name,
		HeadCommitID: headCommitID,
		CreatedBy:    createdBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := byName.Claim(txn, []byte(b.ID), repositoryID, name); err != nil {
		return nil, err
	}
	if err := s.store.CreateTx(txn, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) FindByID(id string) (*branch.Branch, error) {
	var b branch.Branch
	if err := s.store.Get(id, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) FindByName(repositoryID, name string) (*branch.Branch, error) {
	var b branch.Branch
	err := s.store.DB().View(func(txn *badger.Txn) error {
		id, err := byName.Lookup(txn, repositoryID, name)
		if err != nil {
			return err
		}
		return s.store.GetTx(txn, string(id), &b)
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListByRepository returns the repository's branches ordered by name.
func (s *Store) ListByRepository(repositoryID string, page storage.Page) ([]*branch.Branch, error) {
	var branches []*branch.Branch
	err := s.store.DB().View(func(txn *badger.Txn) error {
		ids, err := byName.Scan(txn, false, page, repositoryID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var b branch.Branch
			if err := s.store.GetTx(txn, string(id), &b); err != nil {
				return err
			}
			branches = append(branches, &b)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	return branches, nil
}

// UpdateHead moves the branch pointer. There is no fast-forward check and the
// last writer wins.
func (s *Store) UpdateHead(id string, headCommitID *string) (*branch.Branch, error) {
	var b branch.Branch
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var err error
		b, err = s.updateHeadTx(txn, id, headCommitID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateHeadTx is UpdateHead inside a caller-owned transaction.
func (s *Store) UpdateHeadTx(txn *badger.Txn, id string, headCommitID *string) (*branch.Branch, error) {
	b, err := s.updateHeadTx(txn, id, headCommitID)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// CompareAndSwapHeadTx moves the branch to next only while it still points at
// expected, failing with branch.ErrHeadMoved otherwise.
func (s *Store) CompareAndSwapHeadTx(txn *badger.Txn, id string, expected, next *string) (*branch.Branch, error) {
	var current branch.Branch
	if err := s.store.GetTx(txn, id, &current); err != nil {
		return nil, err
	}
	if !branch.SameHead(current.HeadCommitID, expected) {
		return nil, fmt.Errorf("branch %q: %w", current.Name, branch.ErrHeadMoved)
	}
	return s.UpdateHeadTx(txn, id, next)
}

func (s *Store) updateHeadTx(txn *badger.Txn, id string, headCommitID *string) (branch.Branch, error) {
	var b branch.Branch
	if err := s.store.GetTx(txn, id, &b); err != nil {
		return b, err
	}
	b.HeadCommitID = headCommitID
	b.UpdatedAt = s.now()
	return b, s.store.UpdateTx(txn, &b)
}

// Delete removes the branch; its commits are left alone. It reports false
// when the branch did not exist.
func (s *Store) Delete(id string) (bool, error) {
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var b branch.Branch
		if err := s.store.GetTx(txn, id, &b); err != nil {
			return err
		}
		if err := byName.Remove(txn, b.RepositoryID, b.Name); err != nil {
			return err
		}
		return s.store.DeleteTx(txn, id)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("deleting branch: %w", err)
	}
	return true, nil
}

// PurgeRepository deletes every branch of the repository inside txn.
func (s *Store) PurgeRepository(txn *badger.Txn, repositoryID string) error {
	ids, err := byName.Purge(txn, repositoryID)
	if err != nil {
		return fmt.Errorf("purging branch index: %w", err)
	}
	for _, id := range ids {
		if err := s.store.DeleteTx(txn, string(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}
