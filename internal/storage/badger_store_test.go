package storage

import (
	"fmt"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEntity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (e *testEntity) GetID() string { return e.ID }

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBadgerStore(t *testing.T) {
	db := setupTestDB(t)
	store := NewBadgerStore(db, "thing")

	t.Run("Create", func(t *testing.T) {
		e := &testEntity{ID: uuid.New().String(), Name: "first"}
		require.NoError(t, store.Create(e))

		err := store.Create(e)
		assert.ErrorIs(t, err, ErrConflict)

		err = store.Create(&testEntity{})
		assert.Error(t, err)
	})

	t.Run("Get", func(t *testing.T) {
		e := &testEntity{ID: uuid.New().String(), Name: "get me"}
		require.NoError(t, store.Create(e))

		var got testEntity
		require.NoError(t, store.Get(e.ID, &got))
		assert.Equal(t, "get me", got.Name)

		err := store.Get("does-not-exist", &got)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Update", func(t *testing.T) {
		e := &testEntity{ID: uuid.New().String(), Name: "before"}
		require.NoError(t, store.Create(e))

		e.Name = "after"
		require.NoError(t, store.Update(e))

		var got testEntity
		require.NoError(t, store.Get(e.ID, &got))
		assert.Equal(t, "after", got.Name)

		err := store.Update(&testEntity{ID: "missing"})
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		e := &testEntity{ID: uuid.New().String(), Name: "doomed"}
		require.NoError(t, store.Create(e))
		require.NoError(t, store.Delete(e.ID))

		var got testEntity
		assert.ErrorIs(t, store.Get(e.ID, &got), ErrNotFound)
		assert.ErrorIs(t, store.Delete(e.ID), ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		var all []testEntity
		require.NoError(t, store.List(&all))
		assert.Len(t, all, 3)

		ids, err := store.IDs()
		require.NoError(t, err)
		assert.Len(t, ids, 3)
	})
}

func TestIndex(t *testing.T) {
	db := setupTestDB(t)
	idx := NewIndex("byrepo")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	err := Update(db, func(txn *badger.Txn) error {
		for i, name := range []string{"a", "b", "c", "d"} {
			ts := SortKey(base.Add(time.Duration(i) * time.Second))
			if err := idx.Put(txn, []byte(name), "repo1", ts); err != nil {
				return err
			}
		}
		return idx.Put(txn, []byte("other"), "repo2", SortKey(base))
	})
	require.NoError(t, err)

	values := func(raw [][]byte) []string {
		out := make([]string, len(raw))
		for i, v := range raw {
			out[i] = string(v)
		}
		return out
	}

	t.Run("scan forward and reverse", func(t *testing.T) {
		err := db.View(func(txn *badger.Txn) error {
			fwd, err := idx.Scan(txn, false, Page{}, "repo1")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b", "c", "d"}, values(fwd))

			rev, err := idx.Scan(txn, true, Page{Skip: 1, Take: 2}, "repo1")
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "b"}, values(rev))
			return nil
		})
		require.NoError(t, err)
	})

	t.Run("claim is unique", func(t *testing.T) {
		unique := NewIndex("name")
		require.NoError(t, Update(db, func(txn *badger.Txn) error {
			return unique.Claim(txn, []byte("id1"), "repo1", "main")
		}))
		err := Update(db, func(txn *badger.Txn) error {
			return unique.Claim(txn, []byte("id2"), "repo1", "main")
		})
		assert.ErrorIs(t, err, ErrConflict)

		require.NoError(t, db.View(func(txn *badger.Txn) error {
			v, err := unique.Lookup(txn, "repo1", "main")
			require.NoError(t, err)
			assert.Equal(t, "id1", string(v))

			_, err = unique.Lookup(txn, "repo1", "dev")
			assert.ErrorIs(t, err, ErrNotFound)
			return nil
		}))
	})

	t.Run("purge only touches one repository", func(t *testing.T) {
		var purged [][]byte
		require.NoError(t, Update(db, func(txn *badger.Txn) error {
			var err error
			purged, err = idx.Purge(txn, "repo1")
			return err
		}))
		assert.Len(t, purged, 4)

		require.NoError(t, db.View(func(txn *badger.Txn) error {
			left, err := idx.Scan(txn, false, Page{}, "repo1")
			require.NoError(t, err)
			assert.Empty(t, left)

			other, err := idx.Scan(txn, false, Page{}, "repo2")
			require.NoError(t, err)
			assert.Equal(t, []string{"other"}, values(other))
			return nil
		}))
	})
}

func TestInvalidf(t *testing.T) {
	err := Invalidf("name %q is reserved", "HEAD")
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Equal(t, `name "HEAD" is reserved`, err.Error())

	wrapped := fmt.Errorf("creating branch: %w", err)
	assert.ErrorIs(t, wrapped, ErrInvalid)
	assert.NotErrorIs(t, wrapped, ErrNotFound)
}
