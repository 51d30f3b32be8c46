package storage

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Page selects a window of an ordered listing. Take <= 0 means no limit.
type Page struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// Index is a secondary key space of the form <prefix>:<part>:<part>... whose
// values are entity ids or small payloads.
type Index struct {
	prefix string
}

func NewIndex(prefix string) Index {
	return Index{prefix: prefix}
}

func (i Index) Key(parts ...string) []byte {
	return []byte(i.prefix + ":" + strings.Join(parts, ":"))
}

// scanPrefix is the key prefix shared by every entry below parts.
func (i Index) scanPrefix(parts ...string) []byte {
	if len(parts) == 0 {
		return []byte(i.prefix + ":")
	}
	return append(i.Key(parts...), ':')
}

func (i Index) Put(txn *badger.Txn, value []byte, parts ...string) error {
	return txn.Set(i.Key(parts...), value)
}

// Claim stores value under parts unless the key already exists, in which case
// it returns ErrConflict.
func (i Index) Claim(txn *badger.Txn, value []byte, parts ...string) error {
	key := i.Key(parts...)
	_, err := txn.Get(key)
	if err == nil {
		return fmt.Errorf("%s %s: %w", i.prefix, strings.Join(parts, "/"), ErrConflict)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	return txn.Set(key, value)
}

func (i Index) Lookup(txn *badger.Txn, parts ...string) ([]byte, error) {
	item, err := txn.Get(i.Key(parts...))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%s %s: %w", i.prefix, strings.Join(parts, "/"), ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (i Index) Remove(txn *badger.Txn, parts ...string) error {
	return txn.Delete(i.Key(parts...))
}

// Scan returns the values stored below parts in key order (or reverse key
// order), honouring page.
func (i Index) Scan(txn *badger.Txn, reverse bool, page Page, parts ...string) ([][]byte, error) {
	prefix := i.scanPrefix(parts...)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.Reverse = reverse
	it := txn.NewIterator(opts)
	defer it.Close()

	start := prefix
	if reverse {
		start = append(append([]byte{}, prefix...), 0xFF)
	}

	var values [][]byte
	skipped := 0
	for it.Seek(start); it.ValidForPrefix(prefix); it.Next() {
		if skipped < page.Skip {
			skipped++
			continue
		}
		if page.Take > 0 && len(values) >= page.Take {
			break
		}
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		values = append(values, val)
	}
	return values, nil
}

// Purge deletes every key below parts and returns their values.
func (i Index) Purge(txn *badger.Txn, parts ...string) ([][]byte, error) {
	prefix := i.scanPrefix(parts...)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)

	var keys, values [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		val, err := item.ValueCopy(nil)
		if err != nil {
			it.Close()
			return nil, err
		}
		keys = append(keys, item.KeyCopy(nil))
		values = append(values, val)
	}
	it.Close()

	for _, key := range keys {
		if err := txn.Delete(key); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// SortKey renders t so that lexical key order equals chronological order.
func SortKey(t time.Time) string {
	return fmt.Sprintf("%020d", t.UnixNano())
}

// Purger removes every record a store keeps for one repository. Repository
// deletion calls all purgers inside a single transaction.
type Purger interface {
	PurgeRepository(txn *badger.Txn, repositoryID string) error
}
