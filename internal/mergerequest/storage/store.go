// internal/mergerequest/storage/store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dgit/internal/branch"
	"dgit/internal/mergerequest"
	"dgit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	byRepo   = storage.NewIndex("mrrepo")
	comments = storage.NewIndex("mrcomment")
)

// HeadMover is the branch store as seen by merges: lookups plus a head
// compare-and-swap that joins the merge transaction.
type HeadMover interface {
	branch.Box
	CompareAndSwapHeadTx(txn *badger.Txn, id string, expected, next *string) (*branch.Branch, error)
}

// Store handles all merge request storage operations
type Store struct {
	store     *storage.BadgerStore
	branchBox HeadMover
	now       func() time.Time
}

// NewStore creates a new merge request store
func NewStore(db *badger.DB, branchBox HeadMover) *Store {
	return &Store{
		store:     storage.NewBadgerStore(db, "mr"),
		branchBox: branchBox,
		now:       time.Now,
	}
}

// Create opens a new merge request between two branches of one repository.
func (s *Store) Create(in mergerequest.NewMergeRequest) (*mergerequest.MergeRequest, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("invalid merge request: %w", err)
	}
	for _, id := range []string{in.SourceBranchID, in.TargetBranchID} {
		b, err := s.branchBox.FindByID(id)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", id, err)
		}
		if b.RepositoryID != in.RepositoryID {
			return nil, fmt.Errorf("branch %s: %w", id, storage.ErrNotFound)
		}
	}

	now := s.now()
	mr := &mergerequest.MergeRequest{
		ID:             uuid.New().String(),
		RepositoryID:   in.RepositoryID,
		SourceBranchID: in.SourceBranchID,
		TargetBranchID: in.TargetBranchID,
		Title:          in.Title,
		Description:    in.Description,
		Status:         mergerequest.StatusOpen,
		CreatedBy:      in.CreatedBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		if err := s.store.CreateTx(txn, mr); err != nil {
			return err
		}
		return byRepo.Put(txn, []byte(mr.ID), mr.RepositoryID, storage.SortKey(mr.CreatedAt), mr.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("creating merge request: %w", err)
	}
	return mr, nil
}

func (s *Store) FindByID(id string) (*mergerequest.MergeRequest, error) {
	var mr mergerequest.MergeRequest
	if err := s.store.Get(id, &mr); err != nil {
		return nil, err
	}
	return &mr, nil
}

// ListByRepository returns merge requests newest first. An empty status
// matches every state.
func (s *Store) ListByRepository(repositoryID string, status mergerequest.Status, page storage.Page) ([]*mergerequest.MergeRequest, error) {
	// Filtering happens after the scan, so page is applied here rather than
	// by the index.
	var result []*mergerequest.MergeRequest
	err := s.store.DB().View(func(txn *badger.Txn) error {
		ids, err := byRepo.Scan(txn, true, storage.Page{}, repositoryID)
		if err != nil {
			return err
		}
		skipped := 0
		for _, id := range ids {
			if page.Take > 0 && len(result) >= page.Take {
				break
			}
			var mr mergerequest.MergeRequest
			if err := s.store.GetTx(txn, string(id), &mr); err != nil {
				return err
			}
			if status != "" && mr.Status != status {
				continue
			}
			if skipped < page.Skip {
				skipped++
				continue
			}
			result = append(result, &mr)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing merge requests: %w", err)
	}
	return result, nil
}

// mutate reads, changes and writes one merge request in a single
// transaction, so checks inside fn act as compare-and-set conditions.
func (s *Store) mutate(id string, fn func(mr *mergerequest.MergeRequest) error) (*mergerequest.MergeRequest, error) {
	var mr mergerequest.MergeRequest
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		mr = mergerequest.MergeRequest{}
		if err := s.store.GetTx(txn, id, &mr); err != nil {
			return err
		}
		if err := fn(&mr); err != nil {
			return err
		}
		mr.UpdatedAt = s.now()
		return s.store.UpdateTx(txn, &mr)
	})
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

func (s *Store) Update(id string, title, description *string) (*mergerequest.MergeRequest, error) {
	if title != nil && strings.TrimSpace(*title) == "" {
		return nil, storage.Invalidf("title cannot be empty")
	}
	return s.mutate(id, func(mr *mergerequest.MergeRequest) error {
		if title != nil {
			mr.Title = *title
		}
		if description != nil {
			mr.Description = *description
		}
		return nil
	})
}

func (s *Store) UpdateStatus(id string, status mergerequest.Status) (*mergerequest.MergeRequest, error) {
	if !status.Valid() {
		return nil, storage.Invalidf("unknown status %q", status)
	}
	if status == mergerequest.StatusMerged {
		return nil, fmt.Errorf("%w: use merge to mark a request merged", mergerequest.ErrInvalidTransition)
	}
	return s.mutate(id, func(mr *mergerequest.MergeRequest) error {
		if mr.Status == status {
			return nil
		}
		if mr.Status != mergerequest.StatusOpen {
			return fmt.Errorf("%w: %s -> %s", mergerequest.ErrInvalidTransition, mr.Status, status)
		}
		mr.Status = status
		return nil
	})
}

// Merge succeeds only while the request is OPEN. The status check and the
// write share one serialisable transaction, so concurrent merges of the same
// request cannot both succeed.
func (s *Store) Merge(id, mergedBy, mergedCommitID string) (*mergerequest.MergeRequest, error) {
	if mergedBy == "" || mergedCommitID == "" {
		return nil, storage.Invalidf("merged by and merged commit are required")
	}
	return s.mutate(id, func(mr *mergerequest.MergeRequest) error {
		if mr.Status != mergerequest.StatusOpen {
			return fmt.Errorf("merge request %s is %s: %w", id, mr.Status, mergerequest.ErrNotMergeable)
		}
		mr.Status = mergerequest.StatusMerged
		mr.MergedBy = &mergedBy
		mr.MergedCommitID = &mergedCommitID
		return nil
	})
}

func (s *Store) FastForward(id, mergedBy string, expectedHead *string, head string) (*mergerequest.MergeRequest, error) {
	if mergedBy == "" || head == "" {
		return nil, storage.Invalidf("merged by and head commit are required")
	}
	var mr mergerequest.MergeRequest
	err := storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		mr = mergerequest.MergeRequest{}
		if err := s.store.GetTx(txn, id, &mr); err != nil {
			return err
		}
		if mr.Status != mergerequest.StatusOpen {
			return fmt.Errorf("merge request %s is %s: %w", id, mr.Status, mergerequest.ErrNotMergeable)
		}
		if _, err := s.branchBox.CompareAndSwapHeadTx(txn, mr.TargetBranchID, expectedHead, &head); err != nil {
			return err
		}
		mr.Status = mergerequest.StatusMerged
		mr.MergedBy = &mergedBy
		mr.MergedCommitID = &head
		mr.UpdatedAt = s.now()
		return s.store.UpdateTx(txn, &mr)
	})
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

func (s *Store) AddComment(mergeRequestID, userID, text string) (*mergerequest.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return nil, storage.Invalidf("comment cannot be empty")
	}
	if userID == "" {
		return nil, storage.Invalidf("user id is required")
	}

	c := &mergerequest.Comment{
		ID:             uuid.New().String(),
		MergeRequestID: mergeRequestID,
		UserID:         userID,
		Comment:        text,
		CreatedAt:      s.now(),
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshaling comment: %w", err)
	}

	err = storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		var mr mergerequest.MergeRequest
		if err := s.store.GetTx(txn, mergeRequestID, &mr); err != nil {
			return err
		}
		return comments.Put(txn, data, mergeRequestID, storage.SortKey(c.CreatedAt), c.ID)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListComments returns comments oldest first.
func (s *Store) ListComments(mergeRequestID string, page storage.Page) ([]*mergerequest.Comment, error) {
	var result []*mergerequest.Comment
	err := s.store.DB().View(func(txn *badger.Txn) error {
		var mr mergerequest.MergeRequest
		if err := s.store.GetTx(txn, mergeRequestID, &mr); err != nil {
			return err
		}
		values, err := comments.Scan(txn, false, page, mergeRequestID)
		if err != nil {
			return err
		}
		for _, v := range values {
			var c mergerequest.Comment
			if err := json.Unmarshal(v, &c); err != nil {
				return fmt.Errorf("decoding comment: %w", err)
			}
			result = append(result, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// GetBranchNamesForDiff resolves the branch names of a merge request so the
// diff engine can compare target (base) against source.
func (s *Store) GetBranchNamesForDiff(mergeRequestID string) (*mergerequest.DiffTarget, error) {
	mr, err := s.FindByID(mergeRequestID)
	if err != nil {
		return nil, err
	}
	source, err := s.branchBox.FindByID(mr.SourceBranchID)
	if err != nil {
		return nil, fmt.Errorf("source branch: %w", err)
	}
	target, err := s.branchBox.FindByID(mr.TargetBranchID)
	if err != nil {
		return nil, fmt.Errorf("target branch: %w", err)
	}
	return &mergerequest.DiffTarget{
		RepositoryID:     mr.RepositoryID,
		SourceBranchName: source.Name,
		TargetBranchName: target.Name,
	}, nil
}

// PurgeRepository deletes the repository's merge requests and their comments
// inside txn.
func (s *Store) PurgeRepository(txn *badger.Txn, repositoryID string) error {
	ids, err := byRepo.Purge(txn, repositoryID)
	if err != nil {
		return fmt.Errorf("purging merge request index: %w", err)
	}
	for _, id := range ids {
		if _, err := comments.Purge(txn, string(id)); err != nil {
			return fmt.Errorf("purging comments of %s: %w", id, err)
		}
		if err := s.store.DeleteTx(txn, string(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	return nil
}
