// internal/tree/storage/store.go
package storage

import (
	"errors"
	"fmt"
	"time"

	"dgit/internal/storage"
	"dgit/internal/tree"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var byRepo = storage.NewIndex("treerepo")

// Store implements tree.Box. Entries are embedded in the tree record so that
// every mutation is a single-key read-modify-write.
type Store struct {
	store *storage.BadgerStore
	now   func() time.Time
}

func NewStore(db *badger.DB) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, "tree"),
		now:   time.Now,
	}
}

func prepareEntries(entries []tree.Entry) ([]tree.Entry, error) {
	out := make([]tree.Entry, 0, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return nil, err
		}
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Store) Create(repositoryID string, entries []tree.Entry) (*tree.Tree, error) {
	if repositoryID == "" {
		return nil, storage.Invalidf("repository id is required")
	}
	prepared, err := prepareEntries(entries)
	if err != nil {
		return nil, fmt.Errorf("invalid tree: %w", err)
	}

	t := &tree.Tree{
		ID:           uuid.New().String(),
		RepositoryID: repositoryID,
		Entries:      prepared,
		CreatedAt:    s.now(),
	}
	t.UpdatedAt = t.CreatedAt

	err = storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		return s.createTx(txn, t)
	})
	if err != nil {
		return nil, fmt.Errorf("creating tree: %w", err)
	}
	return t, nil
}

func (s *Store) createTx(txn *badger.Txn, t *tree.Tree) error {
	if err := s.store.CreateTx(txn, t); err != nil {
		return err
	}
	return byRepo.Put(txn, []byte(t.ID), t.RepositoryID, storage.SortKey(t.CreatedAt), t.ID)
}

func (s *Store) FindByID(id string) (*tree.Tree, error) {
	var t tree.Tree
	if err := s.store.Get(id, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListByRepository returns a repository's trees, newest first.
func (s *Store) ListByRepository(repositoryID string, page storage.Page) ([]*tree.Tree, error) {
	var trees []*tree.Tree
	err := s.store.DB().View(func(txn *badger.Txn) error {
		ids, err := byRepo.Scan(txn, true, page, repositoryID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			var t tree.Tree
			if err := s.store.GetTx(txn, string(id), &t); err != nil {
				return err
			}
			trees = append(trees, &t)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing trees: %w", err)
	}
	return trees, nil
}

// mutate applies fn to the stored tree and persists the result in one
// transaction.
func (s *Store) mutate(treeID string, fn func(t *tree.Tree) error) (*tree.Tree, error) {
	var t tree.Tree
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		t = tree.Tree{}
		if err := s.store.GetTx(txn, treeID, &t); err != nil {
			return err
		}
		if err := fn(&t); err != nil {
			return err
		}
		t.UpdatedAt = s.now()
		return s.store.UpdateTx(txn, &t)
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// AddEntry appends entry without checking for an existing entry of the same
// name.
func (s *Store) AddEntry(treeID string, entry tree.Entry) (*tree.Tree, error) {
	prepared, err := prepareEntries([]tree.Entry{entry})
	if err != nil {
		return nil, fmt.Errorf("invalid entry: %w", err)
	}
	return s.mutate(treeID, func(t *tree.Tree) error {
		t.Entries = append(t.Entries, prepared[0])
		return nil
	})
}

func (s *Store) RemoveEntry(treeID, entryID string) (*tree.Tree, error) {
	return s.mutate(treeID, func(t *tree.Tree) error {
		for i, e := range t.Entries {
			if e.ID == entryID {
				t.Entries = append(t.Entries[:i], t.Entries[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("entry %s: %w", entryID, tree.ErrNoSuchEntry)
	})
}

func (s *Store) UpdateEntry(treeID, entryID string, patch tree.EntryPatch) (*tree.Tree, error) {
	return s.mutate(treeID, func(t *tree.Tree) error {
		for i := range t.Entries {
			e := &t.Entries[i]
			if e.ID != entryID {
				continue
			}
			if patch.Name != nil {
				e.Name = *patch.Name
			}
			if patch.BlobID != nil {
				e.BlobID = *patch.BlobID
			}
			if patch.ChildTreeID != nil {
				e.ChildTreeID = *patch.ChildTreeID
			}
			return e.Validate()
		}
		return fmt.Errorf("entry %s: %w", entryID, tree.ErrNoSuchEntry)
	})
}

// Clone copies the tree rooted at treeID, allocating new ids for it and every
// nested tree. Blobs are shared.
func (s *Store) Clone(treeID string) (*tree.Tree, error) {
	var root *tree.Tree
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var err error
		root, err = s.cloneTx(txn, treeID, tree.NewWalker())
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("cloning tree %s: %w", treeID, err)
	}
	return root, nil
}

func (s *Store) cloneTx(txn *badger.Txn, treeID string, w *tree.Walker) (*tree.Tree, error) {
	leave, err := w.Enter(treeID)
	if err != nil {
		return nil, err
	}
	defer leave()

	var src tree.Tree
	if err := s.store.GetTx(txn, treeID, &src); err != nil {
		return nil, err
	}

	now := s.now()
	dst := &tree.Tree{
		ID:           uuid.New().String(),
		RepositoryID: src.RepositoryID,
		Entries:      make([]tree.Entry, 0, len(src.Entries)),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for _, e := range src.Entries {
		e.ID = uuid.New().String()
		if e.Type == tree.EntryTree {
			child, err := s.cloneTx(txn, e.ChildTreeID, w)
			if err != nil {
				return nil, err
			}
			e.ChildTreeID = child.ID
		}
		dst.Entries = append(dst.Entries, e)
	}

	if err := s.createTx(txn, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// PurgeRepository deletes every tree (and so every entry) of the repository.
func (s *Store) PurgeRepository(txn *badger.Txn, repositoryID string) error {
	ids, err := byRepo.Purge(txn, repositoryID)
	if err != nil {
		return fmt.Errorf("purging tree index: %w", err)
	}
	for _, id := range ids {
		if err := s.store.DeleteTx(txn, string(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}
