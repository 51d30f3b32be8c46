package storage

import (
	"testing"
	"time"

	branchStorage "dgit/internal/branch/storage"
	"dgit/internal/commit"
	"dgit/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStores(t *testing.T) (*Store, *branchStorage.Store) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	branches := branchStorage.NewStore(db)
	store := NewStore(db, branches)
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}
	return store, branches
}

func ptr(s string) *string { return &s }

// buildChain creates C1 <- C2 <- C3 on branch main of repo.
func buildChain(t *testing.T, store *Store, branches *branchStorage.Store, repo string) []*commit.Commit {
	var chain []*commit.Commit
	var parent *string
	for i := 0; i < 3; i++ {
		c, err := store.Create(commit.NewCommit{
			RepositoryID:   repo,
			TreeID:         "t1",
			ParentCommitID: parent,
			AuthorID:       "u1",
			Message:        "change",
		})
		require.NoError(t, err)
		chain = append(chain, c)
		parent = ptr(c.ID)
	}
	_, err := branches.Create(repo, "main", "u1", parent)
	require.NoError(t, err)
	return chain
}

func TestCommitStore_Create(t *testing.T) {
	store, _ := setupTestStores(t)

	c, err := store.Create(commit.NewCommit{RepositoryID: "R1", TreeID: "t1", AuthorID: "u1"})
	require.NoError(t, err)
	assert.Nil(t, c.ParentCommitID)
	assert.Empty(t, c.Parents())

	found, err := store.FindByID(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.TreeID, found.TreeID)

	_, err = store.Create(commit.NewCommit{RepositoryID: "R1", AuthorID: "u1"})
	assert.Error(t, err)

	_, err = store.FindByID("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitStore_ListByBranch(t *testing.T) {
	store, branches := setupTestStores(t)
	chain := buildChain(t, store, branches, "R1")
	c1, c2, c3 := chain[0], chain[1], chain[2]

	tests := []struct {
		name string
		page storage.Page
		want []string
	}{
		{name: "first page", page: storage.Page{Skip: 0, Take: 2}, want: []string{c3.ID, c2.ID}},
		{name: "skip one", page: storage.Page{Skip: 1, Take: 2}, want: []string{c2.ID, c1.ID}},
		{name: "beyond history", page: storage.Page{Skip: 5, Take: 2}, want: []string{}},
		{name: "unbounded", page: storage.Page{}, want: []string{c3.ID, c2.ID, c1.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			commits, err := store.ListByBranch("R1", "main", tt.page)
			require.NoError(t, err)
			ids := make([]string, 0, len(commits))
			for _, c := range commits {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}

	_, err := store.ListByBranch("R1", "missing", storage.Page{})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitStore_ListByBranchStopsAtForeignRepository(t *testing.T) {
	store, branches := setupTestStores(t)

	foreign, err := store.Create(commit.NewCommit{RepositoryID: "R2", TreeID: "t1", AuthorID: "u1"})
	require.NoError(t, err)
	local, err := store.Create(commit.NewCommit{RepositoryID: "R1", TreeID: "t1", AuthorID: "u1", ParentCommitID: ptr(foreign.ID)})
	require.NoError(t, err)
	_, err = branches.Create("R1", "main", "u1", ptr(local.ID))
	require.NoError(t, err)

	commits, err := store.ListByBranch("R1", "main", storage.Page{})
	require.NoError(t, err)
	require.Len(t, commits, 1)
	assert.Equal(t, local.ID, commits[0].ID)
}

func TestCommitStore_ListByBranchWithoutHead(t *testing.T) {
	store, branches := setupTestStores(t)
	_, err := branches.Create("R1", "main", "u1", nil)
	require.NoError(t, err)

	commits, err := store.ListByBranch("R1", "main", storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestCommitStore_ListByRepository(t *testing.T) {
	store, branches := setupTestStores(t)
	chain := buildChain(t, store, branches, "R1")

	commits, err := store.ListByRepository("R1", storage.Page{Take: 2})
	require.NoError(t, err)
	require.Len(t, commits, 2)
	assert.Equal(t, chain[2].ID, commits[0].ID)
	assert.Equal(t, chain[1].ID, commits[1].ID)
}

func TestCommitStore_IsAncestor(t *testing.T) {
	store, branches := setupTestStores(t)
	chain := buildChain(t, store, branches, "R1")

	side, err := store.Create(commit.NewCommit{RepositoryID: "R1", TreeID: "t2", AuthorID: "u2"})
	require.NoError(t, err)
	merge, err := store.Create(commit.NewCommit{
		RepositoryID:        "R1",
		TreeID:              "t3",
		AuthorID:            "u1",
		ParentCommitID:      ptr(chain[2].ID),
		MergeParentCommitID: ptr(side.ID),
	})
	require.NoError(t, err)

	tests := []struct {
		name                 string
		ancestor, descendant string
		want                 bool
	}{
		{"self", chain[0].ID, chain[0].ID, true},
		{"first parent chain", chain[0].ID, chain[2].ID, true},
		{"reversed", chain[2].ID, chain[0].ID, false},
		{"through merge parent", side.ID, merge.ID, true},
		{"unrelated", side.ID, chain[2].ID, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.IsAncestor(tt.ancestor, tt.descendant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
