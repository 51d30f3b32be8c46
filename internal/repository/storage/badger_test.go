package storage

import (
	"encoding/json"
	"errors"
	"testing"

	"dgit/internal/blob"
	blobStorage "dgit/internal/blob/storage"
	"dgit/internal/branch"
	branchStorage "dgit/internal/branch/storage"
	"dgit/internal/commit"
	commitStorage "dgit/internal/commit/storage"
	"dgit/internal/mergerequest"
	mrStorage "dgit/internal/mergerequest/storage"
	"dgit/internal/repository"
	"dgit/internal/safe"
	"dgit/internal/storage"
	"dgit/internal/tree"
	treeStorage "dgit/internal/tree/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stores struct {
	repos    *Store
	branches *branchStorage.Store
	blobs    *blobStorage.Store
	trees    *treeStorage.Store
	commits  *commitStorage.Store
	mrs      *mrStorage.Store
}

func setupTestDB(t *testing.T) *badger.DB {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func setupTestStores(t *testing.T, extra ...storage.Purger) *stores {
	db := setupTestDB(t)

	codec, err := safe.NewCodec(safe.DefaultCompressionOptions())
	require.NoError(t, err)
	cache, err := safe.NewCache[*blob.Blob](16)
	require.NoError(t, err)

	s := &stores{
		branches: branchStorage.NewStore(db),
		blobs:    blobStorage.NewStore(db, codec, cache),
		trees:    treeStorage.NewStore(db),
	}
	s.commits = commitStorage.NewStore(db, s.branches)
	s.mrs = mrStorage.NewStore(db, s.branches)

	purgers := []storage.Purger{s.branches, s.mrs, s.commits, s.trees, s.blobs}
	s.repos = NewStore(db, s.branches, append(purgers, extra...)...)
	return s
}

func TestRepositoryStore_Create(t *testing.T) {
	s := setupTestStores(t)

	repo, err := s.repos.Create("pricing", "alice")
	require.NoError(t, err)
	assert.Equal(t, branch.DefaultName, repo.DefaultBranch)

	main, err := s.branches.FindByName(repo.ID, branch.DefaultName)
	require.NoError(t, err)
	assert.Nil(t, main.HeadCommitID)

	members, err := s.repos.Members(repo.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice", members[0].UserID)
	assert.Equal(t, repository.RoleOwner, members[0].Role)

	_, err = s.repos.Create("pricing", "alice")
	assert.ErrorIs(t, err, storage.ErrConflict)

	_, err = s.repos.Create("pricing", "bob")
	assert.NoError(t, err)

	_, err = s.repos.Create("", "bob")
	assert.Error(t, err)
}

func TestRepositoryStore_List(t *testing.T) {
	s := setupTestStores(t)
	for _, name := range []string{"a", "b", "c"} {
		_, err := s.repos.Create(name, "alice")
		require.NoError(t, err)
	}

	all, err := s.repos.List(storage.Page{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	page, err := s.repos.List(storage.Page{Skip: 2, Take: 5})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	none, err := s.repos.List(storage.Page{Skip: 9})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRepositoryStore_Members(t *testing.T) {
	s := setupTestStores(t)
	repo, err := s.repos.Create("pricing", "alice")
	require.NoError(t, err)

	_, err = s.repos.AddMember(repo.ID, "bob", repository.RoleWriter)
	require.NoError(t, err)
	_, err = s.repos.AddMember(repo.ID, "bob", repository.RoleReader)
	require.NoError(t, err)

	members, err := s.repos.Members(repo.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, repository.RoleReader, members[1].Role)

	_, err = s.repos.AddMember(repo.ID, "alice", repository.RoleReader)
	assert.ErrorIs(t, err, repository.ErrOwnerRequired)
	_, err = s.repos.AddMember(repo.ID, "carol", "ADMIN")
	assert.Error(t, err)

	removed, err := s.repos.RemoveMember(repo.ID, "bob")
	require.NoError(t, err)
	assert.True(t, removed)
	removed, err = s.repos.RemoveMember(repo.ID, "bob")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = s.repos.RemoveMember(repo.ID, "alice")
	assert.ErrorIs(t, err, repository.ErrOwnerRequired)

	_, err = s.repos.Members("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

// populate fills a repository with one of everything.
func populate(t *testing.T, s *stores, repoID string) (string, string, string, string) {
	b, err := s.blobs.Create(repoID, json.RawMessage(`{"rule":1}`))
	require.NoError(t, err)
	tr, err := s.trees.Create(repoID, []tree.Entry{{Name: "index.json", Type: tree.EntryBlob, BlobID: b.ID}})
	require.NoError(t, err)
	c, err := s.commits.Create(commit.NewCommit{RepositoryID: repoID, TreeID: tr.ID, AuthorID: "alice"})
	require.NoError(t, err)

	main, err := s.branches.FindByName(repoID, branch.DefaultName)
	require.NoError(t, err)
	_, err = s.branches.UpdateHead(main.ID, &c.ID)
	require.NoError(t, err)
	feature, err := s.branches.Create(repoID, "feature", "alice", &c.ID)
	require.NoError(t, err)

	mr, err := s.mrs.Create(mergerequest.NewMergeRequest{
		RepositoryID:   repoID,
		SourceBranchID: feature.ID,
		TargetBranchID: main.ID,
		Title:          "t",
		CreatedBy:      "alice",
	})
	require.NoError(t, err)
	_, err = s.mrs.AddComment(mr.ID, "alice", "note")
	require.NoError(t, err)

	return b.ID, tr.ID, c.ID, mr.ID
}

func TestRepositoryStore_DeleteCascades(t *testing.T) {
	s := setupTestStores(t)
	repo, err := s.repos.Create("pricing", "alice")
	require.NoError(t, err)
	other, err := s.repos.Create("other", "alice")
	require.NoError(t, err)

	blobID, treeID, commitID, mrID := populate(t, s, repo.ID)
	keepBlob, _, _, _ := populate(t, s, other.ID)

	require.NoError(t, s.repos.Delete(repo.ID))
	s.blobs.Forget(repo.ID)

	_, err = s.repos.FindByID(repo.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.blobs.FindByID(blobID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.trees.FindByID(treeID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.commits.FindByID(commitID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.mrs.FindByID(mrID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	branches, err := s.branches.ListByRepository(repo.ID, storage.Page{})
	require.NoError(t, err)
	assert.Empty(t, branches)

	_, err = s.blobs.FindByID(keepBlob)
	assert.NoError(t, err, "other repositories are untouched")

	// the name is free again
	_, err = s.repos.Create("pricing", "alice")
	assert.NoError(t, err)

	err = s.repos.Delete(repo.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

type failingPurger struct{}

func (failingPurger) PurgeRepository(*badger.Txn, string) error {
	return errors.New("disk on fire")
}

func TestRepositoryStore_DeleteRollsBack(t *testing.T) {
	s := setupTestStores(t, failingPurger{})
	repo, err := s.repos.Create("pricing", "alice")
	require.NoError(t, err)
	blobID, _, commitID, _ := populate(t, s, repo.ID)

	err = s.repos.Delete(repo.ID)
	require.Error(t, err)

	_, err = s.repos.FindByID(repo.ID)
	assert.NoError(t, err)
	_, err = s.blobs.FindByID(blobID)
	assert.NoError(t, err)
	_, err = s.commits.FindByID(commitID)
	assert.NoError(t, err)
	_, err = s.branches.FindByName(repo.ID, branch.DefaultName)
	assert.NoError(t, err)
}
