// internal/blob/storage/store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dgit/internal/blob"
	"dgit/internal/safe"
	"dgit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

var (
	byHash = storage.NewIndex("blobhash")
	byRepo = storage.NewIndex("blobrepo")
)

// Store implements blob.Box on top of badger. Payloads are sealed by the
// codec and decoded blobs are cached by id.
type Store struct {
	store *storage.BadgerStore
	codec *safe.Codec
	cache *safe.Cache[*blob.Blob]
	now   func() time.Time
}

func NewStore(db *badger.DB, codec *safe.Codec, cache *safe.Cache[*blob.Blob]) *Store {
	return &Store{
		store: storage.NewBadgerStore(db, "blob"),
		codec: codec,
		cache: cache,
		now:   time.Now,
	}
}

// blobRecord is the persisted form of a blob.
type blobRecord struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	ContentHash  string    `json:"content_hash"`
	Payload      []byte    `json:"payload"`
	CreatedAt    time.Time `json:"created_at"`
}

func (r *blobRecord) GetID() string {
	return r.ID
}

// Create stores content unless the repository already holds a blob with the
// same content hash, in which case that blob is returned unchanged. String
// content holding JSON text is stored as that JSON.
func (s *Store) Create(repositoryID string, content json.RawMessage) (*blob.Blob, error) {
	normalized, err := blob.Normalize(content)
	if err != nil {
		return nil, fmt.Errorf("normalizing content: %w", err)
	}
	return s.create(repositoryID, normalized)
}

// CreateText is Create for text that must stay a string even when it parses
// as JSON.
func (s *Store) CreateText(repositoryID string, text []byte) (*blob.Blob, error) {
	content, err := blob.StringContent(text)
	if err != nil {
		return nil, fmt.Errorf("encoding text: %w", err)
	}
	return s.create(repositoryID, content)
}

func (s *Store) create(repositoryID string, normalized json.RawMessage) (*blob.Blob, error) {
	if repositoryID == "" {
		return nil, storage.Invalidf("repository id is required")
	}
	hash, err := blob.Hash(normalized)
	if err != nil {
		return nil, fmt.Errorf("hashing content: %w", err)
	}

	var rec blobRecord
	err = storage.Update(s.store.DB(), func(txn *badger.Txn) error {
		id, err := byHash.Lookup(txn, repositoryID, hash)
		if err == nil {
			return s.store.GetTx(txn, string(id), &rec)
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		rec = blobRecord{
			ID:           uuid.New().String(),
			RepositoryID: repositoryID,
			ContentHash:  hash,
			Payload:      s.codec.Seal(normalized),
			CreatedAt:    s.now(),
		}
		if err := s.store.CreateTx(txn, &rec); err != nil {
			return err
		}
		if err := byHash.Put(txn, []byte(rec.ID), repositoryID, hash); err != nil {
			return err
		}
		return byRepo.Put(txn, []byte(rec.ID), repositoryID, storage.SortKey(rec.CreatedAt), rec.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("creating blob: %w", err)
	}

	return s.decode(&rec)
}

func (s *Store) FindByID(id string) (*blob.Blob, error) {
	if b, ok := s.cache.Get(id); ok {
		return copyBlob(b), nil
	}

	var rec blobRecord
	if err := s.store.Get(id, &rec); err != nil {
		return nil, err
	}
	return s.decode(&rec)
}

func (s *Store) FindByRepositoryAndHash(repositoryID, contentHash string) (*blob.Blob, error) {
	var id []byte
	err := s.store.DB().View(func(txn *badger.Txn) error {
		var err error
		id, err = byHash.Lookup(txn, repositoryID, contentHash)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.FindByID(string(id))
}

// ListByRepository returns a repository's blobs, newest first.
func (s *Store) ListByRepository(repositoryID string, page storage.Page) ([]*blob.Blob, error) {
	var recs []blobRecord
	err := s.store.DB().View(func(txn *badger.Txn) error {
		ids, err := byRepo.Scan(txn, true, page, repositoryID)
		if err != nil {
			return err
		}
		recs = make([]blobRecord, len(ids))
		for i, id := range ids {
			if err := s.store.GetTx(txn, string(id), &recs[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing blobs: %w", err)
	}

	blobs := make([]*blob.Blob, 0, len(recs))
	for i := range recs {
		b, err := s.decode(&recs[i])
		if err != nil {
			return nil, err
		}
		blobs = append(blobs, b)
	}
	return blobs, nil
}

// PurgeRepository deletes every blob of the repository inside txn.
func (s *Store) PurgeRepository(txn *badger.Txn, repositoryID string) error {
	ids, err := byRepo.Purge(txn, repositoryID)
	if err != nil {
		return fmt.Errorf("purging blob index: %w", err)
	}
	for _, id := range ids {
		if err := s.store.DeleteTx(txn, string(id)); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
	}
	if _, err := byHash.Purge(txn, repositoryID); err != nil {
		return fmt.Errorf("purging blob hashes: %w", err)
	}
	return nil
}

// Forget drops cached blobs of a deleted repository.
func (s *Store) Forget(repositoryID string) {
	s.cache.RemoveFunc(func(b *blob.Blob) bool {
		return b.RepositoryID == repositoryID
	})
}

func (s *Store) decode(rec *blobRecord) (*blob.Blob, error) {
	content, err := s.codec.Open(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("opening blob %s: %w", rec.ID, err)
	}
	b := &blob.Blob{
		ID:           rec.ID,
		RepositoryID: rec.RepositoryID,
		ContentHash:  rec.ContentHash,
		Content:      content,
		CreatedAt:    rec.CreatedAt,
	}
	s.cache.Add(b.ID, b)
	return copyBlob(b), nil
}

func copyBlob(b *blob.Blob) *blob.Blob {
	c := *b
	return &c
}
