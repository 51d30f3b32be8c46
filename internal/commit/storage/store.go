// internal/commit/storage/store.go
package storage

import (
	"errors"
	"fmt"
	"time"

	"dgit/internal/branch"
	"dgit/internal/commit"
	"dgit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var byRepo = storage.NewIndex("commitrepo")

// Store handles commit storage and history traversal
type Store struct {
	store     *storage.BadgerStore
	branchBox branch.Box
	now       func() time.Time
}

// NewStore creates a new commit store
func NewStore(db *badger.DB, branchBox branch.Box) *Store {
	return &Store{
		store:     storage.NewBadgerStore(db, "commit"),
		branchBox: branchBox,
		now:       time.Now,
	}
}

func validate(in commit.NewCommit) error {
	if in.RepositoryID == "" {
		return storage.Invalidf("repository id is required")
	}
	if in.TreeID == "" {
		return storage.Invalidf("tree id is required")
	}
	if in.AuthorID == "" {
		return storage.Invalidf("author id is required")
	}
	return nil
}

// Create records a new commit. Commits are never updated afterwards.
func (s *Store) Create(in commit.NewCommit) (*commit.Commit, error) {
	var c *commit.Commit
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var err error
		c, err = s.CreateTx(txn, in)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating commit: %w", err)
	}
	return c, nil
}

// CreateTx is Create inside a caller-owned transaction.
func (s *Store) CreateTx(txn *badger.Txn, in commit.NewCommit) (*commit.Commit, error) {
	if err := validate(in); err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}

	c := &commit.Commit{
		ID:                  uuid.New().String(),
		RepositoryID:        in.RepositoryID,
		TreeID:              in.TreeID,
		ParentCommitID:      in.ParentCommitID,
		MergeParentCommitID: in.MergeParentCommitID,
		AuthorID:            in.AuthorID,
		Message:             in.Message,
		CreatedAt:           s.now(),
	}
	if err := s.store.CreateTx(txn, c); err != nil {
		return nil, err
	}
	if err := byRepo.Put(txn, []byte(c.ID), c.RepositoryID, storage.SortKey(c.CreatedAt), c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Store) FindByID(id string) (*commit.Commit, error) {
	var c commit.Commit
	if err := s.store.Get(id, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByRepository returns every commit of the repository, newest first.
func (s *Store) ListByRepository(repositoryID string, page storage.Page) ([]*commit.Commit, error) {
	var commits []*commit.Commit
	err := s.store.DB().View(func(txn *badger.Txn) error {
		ids, err := byRepo.Scan(txn, true, page, repositoryID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var c commit.Commit
			if err := s.store.GetTx(txn, string(id), &c); err != nil {
				return err
			}
			commits = append(commits, &c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	return commits, nil
}

// ListByBranch follows ParentCommitID from the branch head. History ends at a
// commit without parent, at a missing commit, or at a commit that belongs to
// another repository.
func (s *Store) ListByBranch(repositoryID, branchName string, page storage.Page) ([]*commit.Commit, error) {
	b, err := s.branchBox.FindByName(repositoryID, branchName)
	if err != nil {
		return nil, fmt.Errorf("branch %q: %w", branchName, err)
	}
	if b.HeadCommitID == nil {
		return []*commit.Commit{}, nil
	}

	commits := make([]*commit.Commit, 0)
	skipped := 0
	current := *b.HeadCommitID
	seen := make(map[string]bool)

	for current != "" && !seen[current] {
		if page.Take > 0 && len(commits) >= page.Take {
			break
		}
		seen[current] = true

		c, err := s.FindByID(current)
		if errors.Is(err, storage.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading commit %s: %w", current, err)
		}
		if c.RepositoryID != repositoryID {
			break
		}

		if skipped < page.Skip {
			skipped++
		} else {
			commits = append(commits, c)
		}

		if c.ParentCommitID == nil {
			break
		}
		current = *c.ParentCommitID
	}

	return commits, nil
}

// IsAncestor walks both parents breadth-first from descendantID.
func (s *Store) IsAncestor(ancestorID, descendantID string) (bool, error) {
	queue := []string{descendantID}
	seen := map[string]bool{descendantID: true}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if current == ancestorID {
			return true, nil
		}

		c, err := s.FindByID(current)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("reading commit %s: %w", current, err)
		}
		for _, p := range c.Parents() {
			if !seen[p] {
				seen[p] = true
				queue = append(queue, p)
			}
		}
	}
	return false, nil
}

// PurgeRepository deletes every commit of the repository inside txn.
func (s *Store) PurgeRepository(txn *badger.Txn, repositoryID string) error {
	ids, err := byRepo.Purge(txn, repositoryID)
	if err != nil {
		return fmt.Errorf("purging commit index: %w", err)
	}
	for _, id := range ids {
		if err := s.store.DeleteTx(txn, string(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}
