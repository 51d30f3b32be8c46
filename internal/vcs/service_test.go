package vcs

import (
	"context"
	"sync"
	"testing"

	"dgit/internal/blob"
	blobStorage "dgit/internal/blob/storage"
	"dgit/internal/branch"
	branchStorage "dgit/internal/branch/storage"
	"dgit/internal/commit"
	commitStorage "dgit/internal/commit/storage"
	"dgit/internal/diff"
	"dgit/internal/logging"
	"dgit/internal/mergerequest"
	mrStorage "dgit/internal/mergerequest/storage"
	"dgit/internal/repository"
	repoStorage "dgit/internal/repository/storage"
	"dgit/internal/safe"
	"dgit/internal/storage"
	treeStorage "dgit/internal/tree/storage"
	"dgit/internal/workspace"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc      *Service
	repos    *repoStorage.Store
	blobs    *blobStorage.Store
	trees    *treeStorage.Store
	commits  *commitStorage.Store
	branches *branchStorage.Store
	mrs      *mrStorage.Store
	diffs    *diff.Engine
	repo     *repository.Repository
}

func setup(t *testing.T) *fixture {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil // Disable logging for tests

	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	codec, err := safe.NewCodec(safe.DefaultCompressionOptions())
	require.NoError(t, err)
	cache, err := safe.NewCache[*blob.Blob](64)
	require.NoError(t, err)

	f := &fixture{
		branches: branchStorage.NewStore(db),
		blobs:    blobStorage.NewStore(db, codec, cache),
		trees:    treeStorage.NewStore(db),
	}
	f.commits = commitStorage.NewStore(db, f.branches)
	f.mrs = mrStorage.NewStore(db, f.branches)
	f.repos = repoStorage.NewStore(db, f.branches, f.branches, f.mrs, f.commits, f.trees, f.blobs)
	f.diffs = diff.NewEngine(f.trees, f.blobs, f.commits, f.branches, diff.DefaultContextLines)
	f.svc = New(f.repos, f.blobs, f.trees, f.commits, f.branches, f.mrs, f.diffs, f.blobs, logging.Nop())

	f.repo, err = f.repos.Create("pricing", "alice")
	require.NoError(t, err)
	return f
}

func rulesDir(rate string) *workspace.Dir {
	return &workspace.Dir{
		Name: "rules",
		Files: []workspace.File{
			{Name: "index.json", Content: []byte(`{ "nodes": [] }`)},
			{Name: "notes.txt", Content: []byte(`{"looks":"like json"}`)},
		},
		Dirs: []*workspace.Dir{{
			Name:  "pricing",
			Files: []workspace.File{{Name: "rate.json", Content: []byte(`{"rate": ` + rate + `}`)}},
		}},
	}
}

func (f *fixture) commitDir(t *testing.T, branchName, rate string) string {
	root, err := f.svc.ImportDirectory(context.Background(), f.repo.ID, rulesDir(rate))
	require.NoError(t, err)
	c, err := f.svc.CommitTree(context.Background(), f.repo.ID, branchName, root.ID, "alice", "rate "+rate)
	require.NoError(t, err)
	return c.ID
}

func TestImportDirectory(t *testing.T) {
	f := setup(t)

	root, err := f.svc.ImportDirectory(context.Background(), f.repo.ID, rulesDir("1"))
	require.NoError(t, err)

	paths, err := f.diffs.Flatten(root.ID)
	require.NoError(t, err)
	require.Len(t, paths, 3)

	index, err := f.blobs.FindByID(paths["index.json"].BlobID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"nodes":[]}`, string(index.Content))

	notes, err := f.blobs.FindByID(paths["notes.txt"].BlobID)
	require.NoError(t, err)
	assert.Equal(t, `{"looks":"like json"}`, string(notes.Text()))
	assert.Equal(t, byte('"'), notes.Content[0])

	_, ok := paths["pricing/rate.json"]
	assert.True(t, ok)

	_, err = f.svc.ImportDirectory(context.Background(), "missing", rulesDir("1"))
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestCommitTree(t *testing.T) {
	f := setup(t)

	first := f.commitDir(t, branch.DefaultName, "1")
	second := f.commitDir(t, branch.DefaultName, "2")

	main, err := f.branches.FindByName(f.repo.ID, branch.DefaultName)
	require.NoError(t, err)
	require.NotNil(t, main.HeadCommitID)
	assert.Equal(t, second, *main.HeadCommitID)

	c, err := f.commits.FindByID(second)
	require.NoError(t, err)
	require.NotNil(t, c.ParentCommitID)
	assert.Equal(t, first, *c.ParentCommitID)
	assert.Equal(t, "rate 2", c.Message)

	t.Run("tree from another repository", func(t *testing.T) {
		other, err := f.repos.Create("other", "bob")
		require.NoError(t, err)
		foreign, err := f.trees.Create(other.ID, nil)
		require.NoError(t, err)

		_, err = f.svc.CommitTree(context.Background(), f.repo.ID, branch.DefaultName, foreign.ID, "alice", "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("missing branch", func(t *testing.T) {
		root, err := f.trees.Create(f.repo.ID, nil)
		require.NoError(t, err)
		_, err = f.svc.CommitTree(context.Background(), f.repo.ID, "nope", root.ID, "alice", "")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestSnapshot(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.Snapshot(ctx, f.repo.ID, branch.DefaultName, rulesDir("1"), "alice", "initial")
	require.NoError(t, err)
	assert.Nil(t, first.ParentCommitID)

	_, err = f.svc.Snapshot(ctx, f.repo.ID, branch.DefaultName, rulesDir("1"), "alice", "again")
	assert.ErrorIs(t, err, ErrNoChanges)

	second, err := f.svc.Snapshot(ctx, f.repo.ID, branch.DefaultName, rulesDir("2"), "alice", "bump")
	require.NoError(t, err)
	require.NotNil(t, second.ParentCommitID)
	assert.Equal(t, first.ID, *second.ParentCommitID)

	changes, err := f.diffs.DiffCommits(first.ID, second.ID)
	require.NoError(t, err)
	require.Len(t, changes.Modified, 1)
	assert.Equal(t, "pricing/rate.json", changes.Modified[0].Path)
}

func (f *fixture) openMR(t *testing.T, source, target string) *mergerequest.MergeRequest {
	src, err := f.branches.FindByName(f.repo.ID, source)
	require.NoError(t, err)
	dst, err := f.branches.FindByName(f.repo.ID, target)
	require.NoError(t, err)

	mr, err := f.mrs.Create(mergerequest.NewMergeRequest{
		RepositoryID:   f.repo.ID,
		SourceBranchID: src.ID,
		TargetBranchID: dst.ID,
		Title:          "merge " + source,
		CreatedBy:      "alice",
	})
	require.NoError(t, err)
	return mr
}

func TestMergeRequest_FastForward(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.commitDir(t, branch.DefaultName, "1")
	_, err := f.branches.Create(f.repo.ID, "feature", "alice", &base)
	require.NoError(t, err)
	tip := f.commitDir(t, "feature", "2")

	mr := f.openMR(t, "feature", branch.DefaultName)
	merged, err := f.svc.MergeRequest(ctx, mr.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, mergerequest.StatusMerged, merged.Status)
	require.NotNil(t, merged.MergedCommitID)
	assert.Equal(t, tip, *merged.MergedCommitID)
	require.NotNil(t, merged.MergedBy)
	assert.Equal(t, "bob", *merged.MergedBy)

	main, err := f.branches.FindByName(f.repo.ID, branch.DefaultName)
	require.NoError(t, err)
	assert.Equal(t, tip, *main.HeadCommitID)

	_, err = f.svc.MergeRequest(ctx, mr.ID, "bob")
	assert.ErrorIs(t, err, mergerequest.ErrNotMergeable)

	_, err = f.svc.MergeRequest(ctx, "missing", "bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestMergeRequest_Diverged(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.commitDir(t, branch.DefaultName, "1")
	_, err := f.branches.Create(f.repo.ID, "feature", "alice", &base)
	require.NoError(t, err)
	f.commitDir(t, "feature", "2")
	f.commitDir(t, branch.DefaultName, "3")

	mr := f.openMR(t, "feature", branch.DefaultName)
	_, err = f.svc.MergeRequest(ctx, mr.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFastForward)

	still, err := f.mrs.FindByID(mr.ID)
	require.NoError(t, err)
	assert.Equal(t, mergerequest.StatusOpen, still.Status)
}

// racingCommits lands a commit on a branch the first time ancestry is
// checked, between the merge reading the target head and moving it.
type racingCommits struct {
	commit.Box
	once sync.Once
	race func()
}

func (r *racingCommits) IsAncestor(ancestorID, descendantID string) (bool, error) {
	r.once.Do(r.race)
	return r.Box.IsAncestor(ancestorID, descendantID)
}

func TestMergeRequest_TargetMovesDuringMerge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.commitDir(t, branch.DefaultName, "1")
	_, err := f.branches.Create(f.repo.ID, "feature", "alice", &base)
	require.NoError(t, err)
	f.commitDir(t, "feature", "2")

	var concurrent string
	commits := &racingCommits{
		Box:  f.commits,
		race: func() { concurrent = f.commitDir(t, branch.DefaultName, "3") },
	}
	svc := New(f.repos, f.blobs, f.trees, commits, f.branches, f.mrs, f.diffs, f.blobs, logging.Nop())

	mr := f.openMR(t, "feature", branch.DefaultName)
	_, err = svc.MergeRequest(ctx, mr.ID, "bob")
	assert.ErrorIs(t, err, ErrNotFastForward)

	main, err := f.branches.FindByName(f.repo.ID, branch.DefaultName)
	require.NoError(t, err)
	require.NotEmpty(t, concurrent)
	assert.Equal(t, concurrent, *main.HeadCommitID)

	still, err := f.mrs.FindByID(mr.ID)
	require.NoError(t, err)
	assert.Equal(t, mergerequest.StatusOpen, still.Status)
}

func TestMergeRequest_TargetFastForwardsDuringMerge(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	base := f.commitDir(t, branch.DefaultName, "1")
	_, err := f.branches.Create(f.repo.ID, "feature", "alice", &base)
	require.NoError(t, err)
	middle := f.commitDir(t, "feature", "2")
	tip := f.commitDir(t, "feature", "3")

	// The target catches up to a commit the source already contains, so the
	// retried ancestry check still allows the fast-forward.
	commits := &racingCommits{
		Box: f.commits,
		race: func() {
			main, err := f.branches.FindByName(f.repo.ID, branch.DefaultName)
			require.NoError(t, err)
			_, err = f.branches.UpdateHead(main.ID, &middle)
			require.NoError(t, err)
		},
	}
	svc := New(f.repos, f.blobs, f.trees, commits, f.branches, f.mrs, f.diffs, f.blobs, logging.Nop())

	mr := f.openMR(t, "feature", branch.DefaultName)
	merged, err := svc.MergeRequest(ctx, mr.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, tip, *merged.MergedCommitID)

	main, err := f.branches.FindByName(f.repo.ID, branch.DefaultName)
	require.NoError(t, err)
	assert.Equal(t, tip, *main.HeadCommitID)
}

func TestMergeRequest_Heads(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.branches.Create(f.repo.ID, "empty", "alice", nil)
	require.NoError(t, err)
	mr := f.openMR(t, "empty", branch.DefaultName)
	_, err = f.svc.MergeRequest(ctx, mr.ID, "bob")
	assert.ErrorIs(t, err, branch.ErrNoCommits)

	// An empty target takes the source head as is.
	_, err = f.branches.Create(f.repo.ID, "feature", "alice", nil)
	require.NoError(t, err)
	tip := f.commitDir(t, "feature", "1")
	mr = f.openMR(t, "feature", branch.DefaultName)
	_, err = f.svc.MergeRequest(ctx, mr.ID, "bob")
	require.NoError(t, err)

	main, err := f.branches.FindByName(f.repo.ID, branch.DefaultName)
	require.NoError(t, err)
	assert.Equal(t, tip, *main.HeadCommitID)

	_, err = f.svc.MergeRequest(ctx, mr.ID, "")
	assert.ErrorIs(t, err, storage.ErrInvalid)
}

func TestDeleteRepository(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	root, err := f.svc.ImportDirectory(ctx, f.repo.ID, rulesDir("1"))
	require.NoError(t, err)
	paths, err := f.diffs.Flatten(root.ID)
	require.NoError(t, err)
	blobID := paths["index.json"].BlobID

	_, err = f.blobs.FindByID(blobID)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteRepository(ctx, f.repo.ID))

	_, err = f.blobs.FindByID(blobID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.repos.FindByID(f.repo.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = f.trees.FindByID(root.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = f.svc.DeleteRepository(ctx, f.repo.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
