// internal/vcs/service.go
package vcs

import (
	"context"
	"errors"
	"fmt"

	"dgit/internal/blob"
	"dgit/internal/branch"
	"dgit/internal/commit"
	"dgit/internal/diff"
	"dgit/internal/logging"
	"dgit/internal/mergerequest"
	"dgit/internal/repository"
	"dgit/internal/storage"
	"dgit/internal/tree"
	"dgit/internal/workspace"

	"go.uber.org/zap"
)

var (
	// ErrNotFastForward is returned when the target branch has commits the
	// source branch does not contain.
	ErrNotFastForward = errors.New("merge is not a fast-forward")

	// ErrNoChanges is returned by Snapshot when the imported tree matches the
	// branch head.
	ErrNoChanges = errors.New("nothing to commit")
)

// Forgetter drops cached state for a deleted repository.
type Forgetter interface {
	Forget(repositoryID string)
}

// Service composes the stores into the multi-step operations callers need.
type Service struct {
	repos    repository.Box
	blobs    blob.Box
	trees    tree.Box
	commits  commit.Box
	branches branch.Box
	mrs      mergerequest.Box
	diffs    *diff.Engine
	cache    Forgetter
	logger   *logging.Logger
}

func New(
	repos repository.Box,
	blobs blob.Box,
	trees tree.Box,
	commits commit.Box,
	branches branch.Box,
	mrs mergerequest.Box,
	diffs *diff.Engine,
	cache Forgetter,
	logger *logging.Logger,
) *Service {
	return &Service{
		repos:    repos,
		blobs:    blobs,
		trees:    trees,
		commits:  commits,
		branches: branches,
		mrs:      mrs,
		diffs:    diffs,
		cache:    cache,
		logger:   logger,
	}
}

// CommitTree records treeID on top of the branch head and advances the
// branch. Concurrent commits to one branch are last-writer-wins.
func (s *Service) CommitTree(ctx context.Context, repositoryID, branchName, treeID, authorID, message string) (*commit.Commit, error) {
	t, err := s.trees.FindByID(treeID)
	if err != nil {
		return nil, fmt.Errorf("finding tree: %w", err)
	}
	if t.RepositoryID != repositoryID {
		return nil, fmt.Errorf("tree %s in repository %s: %w", treeID, repositoryID, storage.ErrNotFound)
	}
	b, err := s.branches.FindByName(repositoryID, branchName)
	if err != nil {
		return nil, fmt.Errorf("finding branch %q: %w", branchName, err)
	}

	c, err := s.commits.Create(commit.NewCommit{
		RepositoryID:   repositoryID,
		TreeID:         treeID,
		ParentCommitID: b.HeadCommitID,
		AuthorID:       authorID,
		Message:        message,
	})
	if err != nil {
		return nil, err
	}
	if _, err := s.branches.UpdateHead(b.ID, &c.ID); err != nil {
		return nil, fmt.Errorf("advancing branch %q: %w", branchName, err)
	}

	s.logger.WithRequestID(ctx).Info("commit created",
		zap.String("repository_id", repositoryID),
		zap.String("branch", branchName),
		zap.String("commit_id", c.ID),
	)
	return c, nil
}

// ImportDirectory stores every file below dir as a blob and mirrors the
// directory layout as nested trees. It returns the root tree.
func (s *Service) ImportDirectory(ctx context.Context, repositoryID string, dir *workspace.Dir) (*tree.Tree, error) {
	if _, err := s.repos.FindByID(repositoryID); err != nil {
		return nil, fmt.Errorf("finding repository: %w", err)
	}
	root, err := s.importDir(ctx, repositoryID, dir, 0)
	if err != nil {
		return nil, err
	}
	s.logger.WithRequestID(ctx).Debug("directory imported",
		zap.String("repository_id", repositoryID),
		zap.String("tree_id", root.ID),
		zap.Int("files", dir.Count()),
	)
	return root, nil
}

func (s *Service) importDir(ctx context.Context, repositoryID string, dir *workspace.Dir, depth int) (*tree.Tree, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if depth >= tree.MaxDepth {
		return nil, fmt.Errorf("%w (max %d)", tree.ErrTooDeep, tree.MaxDepth)
	}

	entries := make([]tree.Entry, 0, len(dir.Files)+len(dir.Dirs))
	for _, f := range dir.Files {
		var (
			b   *blob.Blob
			err error
		)
		if f.IsJSON() {
			b, err = s.blobs.Create(repositoryID, f.Content)
		} else {
			b, err = s.blobs.CreateText(repositoryID, f.Content)
		}
		if err != nil {
			return nil, fmt.Errorf("storing %s: %w", f.Name, err)
		}
		entries = append(entries, tree.Entry{Name: f.Name, Type: tree.EntryBlob, BlobID: b.ID})
	}
	for _, sub := range dir.Dirs {
		child, err := s.importDir(ctx, repositoryID, sub, depth+1)
		if err != nil {
			return nil, err
		}
		entries = append(entries, tree.Entry{Name: sub.Name, Type: tree.EntryTree, ChildTreeID: child.ID})
	}
	return s.trees.Create(repositoryID, entries)
}

// Snapshot imports dir and commits it to the branch, unless its content is
// identical to the branch head.
func (s *Service) Snapshot(ctx context.Context, repositoryID, branchName string, dir *workspace.Dir, authorID, message string) (*commit.Commit, error) {
	b, err := s.branches.FindByName(repositoryID, branchName)
	if err != nil {
		return nil, fmt.Errorf("finding branch %q: %w", branchName, err)
	}
	root, err := s.ImportDirectory(ctx, repositoryID, dir)
	if err != nil {
		return nil, err
	}

	if head, err := b.Head(); err == nil {
		c, err := s.commits.FindByID(head)
		if err != nil {
			return nil, fmt.Errorf("finding head commit: %w", err)
		}
		changes, err := s.diffs.DiffTrees(c.TreeID, root.ID)
		if err != nil {
			return nil, err
		}
		if changes.Empty() {
			return nil, ErrNoChanges
		}
	}
	return s.CommitTree(ctx, repositoryID, branchName, root.ID, authorID, message)
}

// mergeAttempts bounds how often MergeRequest re-reads a target branch that
// moved between the ancestry check and the head update.
const mergeAttempts = 3

// MergeRequest fast-forwards the target branch to the source head. The
// request is marked MERGED and the target head moves in one transaction, and
// only if the target still points at the commit the ancestry check saw.
func (s *Service) MergeRequest(ctx context.Context, mergeRequestID, userID string) (*mergerequest.MergeRequest, error) {
	if userID == "" {
		return nil, storage.Invalidf("user id is required")
	}
	mr, err := s.mrs.FindByID(mergeRequestID)
	if err != nil {
		return nil, err
	}
	if mr.Status != mergerequest.StatusOpen {
		return nil, fmt.Errorf("%w: status %s", mergerequest.ErrNotMergeable, mr.Status)
	}

	source, err := s.branches.FindByID(mr.SourceBranchID)
	if err != nil {
		return nil, fmt.Errorf("finding source branch: %w", err)
	}
	sourceHead, err := source.Head()
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		target, err := s.branches.FindByID(mr.TargetBranchID)
		if err != nil {
			return nil, fmt.Errorf("finding target branch: %w", err)
		}
		if target.HeadCommitID != nil && *target.HeadCommitID != "" {
			ok, err := s.commits.IsAncestor(*target.HeadCommitID, sourceHead)
			if err != nil {
				return nil, fmt.Errorf("checking ancestry: %w", err)
			}
			if !ok {
				return nil, fmt.Errorf("%w: %s into %s", ErrNotFastForward, source.Name, target.Name)
			}
		}

		merged, err := s.mrs.FastForward(mergeRequestID, userID, target.HeadCommitID, sourceHead)
		if errors.Is(err, branch.ErrHeadMoved) && attempt < mergeAttempts {
			s.logger.WithRequestID(ctx).Debug("target branch moved during merge, retrying",
				zap.String("merge_request_id", mergeRequestID),
				zap.String("target_branch", target.Name),
			)
			continue
		}
		if errors.Is(err, branch.ErrHeadMoved) {
			return nil, fmt.Errorf("%w: %s kept moving", ErrNotFastForward, target.Name)
		}
		if err != nil {
			return nil, err
		}

		s.logger.WithRequestID(ctx).Info("merge request merged",
			zap.String("merge_request_id", mergeRequestID),
			zap.String("repository_id", mr.RepositoryID),
			zap.String("target_branch", target.Name),
			zap.String("commit_id", sourceHead),
		)
		return merged, nil
	}
}

// DeleteRepository removes the repository with everything stored for it.
func (s *Service) DeleteRepository(ctx context.Context, repositoryID string) error {
	if err := s.repos.Delete(repositoryID); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Forget(repositoryID)
	}
	s.logger.WithRequestID(ctx).Info("repository deleted", zap.String("repository_id", repositoryID))
	return nil
}
