// internal/storage/badger_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
	ErrInvalid  = errors.New("invalid input")
)

type invalidError struct {
	msg string
}

func (e *invalidError) Error() string {
	return e.msg
}

func (e *invalidError) Is(target error) bool {
	return target == ErrInvalid
}

// Invalidf reports input a store refuses to accept. The error matches
// ErrInvalid.
func Invalidf(format string, args ...any) error {
	return &invalidError{msg: fmt.Sprintf(format, args...)}
}

// maxTxnRetries bounds how often a read-modify-write transaction is replayed
// after badger reports a write conflict.
const maxTxnRetries = 8

// Entity represents any storable entity with an ID
type Entity interface {
	GetID() string
}

// BadgerStore provides generic storage operations for one key prefix
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

func NewBadgerStore(db *badger.DB, prefix string) *BadgerStore {
	return &BadgerStore{
		db:     db,
		prefix: prefix,
	}
}

// DB exposes the underlying database so callers can group several writes in
// one transaction.
func (s *BadgerStore) DB() *badger.DB {
	return s.db
}

func (s *BadgerStore) Key(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", s.prefix, id))
}

func (s *BadgerStore) stripPrefix(key []byte) string {
	return strings.TrimPrefix(string(key), s.prefix+":")
}

func (s *BadgerStore) Create(entity Entity) error {
	return Update(s.db, func(txn *badger.Txn) error {
		return s.CreateTx(txn, entity)
	})
}

// CreateTx writes a new entity inside txn, failing with ErrConflict when the
// id is taken.
func (s *BadgerStore) CreateTx(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.Key(entity.GetID())
	_, err = txn.Get(key)
	if err == nil {
		return fmt.Errorf("%s %s: %w", s.prefix, entity.GetID(), ErrConflict)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}

	return txn.Set(key, data)
}

func (s *BadgerStore) Get(id string, entity any) error {
	return s.db.View(func(txn *badger.Txn) error {
		return s.GetTx(txn, id, entity)
	})
}

func (s *BadgerStore) GetTx(txn *badger.Txn, id string, entity any) error {
	item, err := txn.Get(s.Key(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", s.prefix, id, ErrNotFound)
	}
	if err != nil {
		return err
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, entity)
	})
}

func (s *BadgerStore) Update(entity Entity) error {
	return Update(s.db, func(txn *badger.Txn) error {
		return s.UpdateTx(txn, entity)
	})
}

// UpdateTx overwrites an existing entity, failing with ErrNotFound when it
// does not exist.
func (s *BadgerStore) UpdateTx(txn *badger.Txn, entity Entity) error {
	if entity.GetID() == "" {
		return fmt.Errorf("entity ID cannot be empty")
	}

	data, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("marshaling entity: %w", err)
	}

	key := s.Key(entity.GetID())
	_, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", s.prefix, entity.GetID(), ErrNotFound)
	} else if err != nil {
		return err
	}

	return txn.Set(key, data)
}

func (s *BadgerStore) Delete(id string) error {
	return Update(s.db, func(txn *badger.Txn) error {
		return s.DeleteTx(txn, id)
	})
}

func (s *BadgerStore) DeleteTx(txn *badger.Txn, id string) error {
	key := s.Key(id)
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %s: %w", s.prefix, id, ErrNotFound)
	} else if err != nil {
		return err
	}

	return txn.Delete(key)
}

// List decodes every entity under the prefix into results, which must be a
// pointer to a slice.
func (s *BadgerStore) List(results any) error {
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte(s.prefix + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		var values []json.RawMessage
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			values = append(values, val)
		}

		data, err := json.Marshal(values)
		if err != nil {
			return err
		}
		return json.Unmarshal(data, results)
	})

	if err != nil {
		return fmt.Errorf("listing %s entities: %w", s.prefix, err)
	}
	return nil
}

// IDs returns every id stored under the prefix.
func (s *BadgerStore) IDs() ([]string, error) {
	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(s.prefix + ":")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, s.stripPrefix(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return ids, err
}

// Update runs fn in a read-write transaction, replaying it when badger detects
// a conflicting concurrent commit. fn must therefore be free of side effects
// outside txn.
func Update(db *badger.DB, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("transaction retries exhausted: %w", err)
}
