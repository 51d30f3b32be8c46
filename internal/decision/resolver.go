// internal/decision/resolver.go
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"dgit/internal/blob"
	"dgit/internal/branch"
	"dgit/internal/commit"
	"dgit/internal/logging"
	"dgit/internal/storage"
	"dgit/internal/tree"

	"go.uber.org/zap"
)

// Resolver finds decision content in committed trees and feeds it to an
// evaluator.
type Resolver struct {
	blobs     blob.Box
	trees     tree.Box
	commits   commit.Box
	branches  branch.Box
	evaluator Evaluator
	logger    *logging.Logger
	trace     bool
	now       func() time.Time
}

// NewResolver creates a resolver. trace is the default for requests that do
// not say whether they want a trace.
func NewResolver(blobs blob.Box, trees tree.Box, commits commit.Box, branches branch.Box, evaluator Evaluator, logger *logging.Logger, trace bool) *Resolver {
	return &Resolver{
		blobs:     blobs,
		trees:     trees,
		commits:   commits,
		branches:  branches,
		evaluator: evaluator,
		logger:    logger,
		trace:     trace,
		now:       time.Now,
	}
}

// headTree resolves branch -> head commit -> tree id.
func (r *Resolver) headTree(repositoryID, branchName string) (string, error) {
	b, err := r.branches.FindByName(repositoryID, branchName)
	if err != nil {
		return "", fmt.Errorf("branch %q: %w", branchName, err)
	}
	head, err := b.Head()
	if err != nil {
		return "", err
	}
	c, err := r.commits.FindByID(head)
	if err != nil {
		return "", fmt.Errorf("head commit of %q: %w", branchName, err)
	}
	return c.TreeID, nil
}

// GetContentByPath walks path one segment at a time from the branch head's
// tree. At each level the first entry with a matching name is taken; the last
// segment must name a blob and every other segment a tree.
func (r *Resolver) GetContentByPath(repositoryID, branchName, path string) (*blob.Blob, error) {
	treeID, err := r.headTree(repositoryID, branchName)
	if err != nil {
		return nil, err
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		t, err := r.trees.FindByID(treeID)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", path, err)
		}
		entry, ok := t.Find(segment)
		if !ok || segment == "" {
			return nil, fmt.Errorf("path %q: %w", path, storage.ErrNotFound)
		}

		last := i == len(segments)-1
		switch {
		case last && entry.Type == tree.EntryBlob:
			b, err := r.blobs.FindByID(entry.BlobID)
			if err != nil {
				return nil, fmt.Errorf("resolving %q: %w", path, err)
			}
			return b, nil
		case !last && entry.Type == tree.EntryTree:
			treeID = entry.ChildTreeID
		default:
			return nil, fmt.Errorf("path %q: %w", path, storage.ErrNotFound)
		}
	}
	return nil, fmt.Errorf("path %q: %w", path, storage.ErrNotFound)
}

// FindIndexJSON returns the blob id of the first index.json found depth-first
// in entry order: the tree's own entries are checked before any subtree.
func (r *Resolver) FindIndexJSON(treeID string) (string, error) {
	id, err := r.findIndex(treeID, tree.NewWalker())
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%s in tree %s: %w", IndexFile, treeID, storage.ErrNotFound)
	}
	return id, nil
}

func (r *Resolver) findIndex(treeID string, w *tree.Walker) (string, error) {
	leave, err := w.Enter(treeID)
	if err != nil {
		return "", err
	}
	defer leave()

	t, err := r.trees.FindByID(treeID)
	if err != nil {
		return "", fmt.Errorf("tree %s: %w", treeID, err)
	}
	for _, e := range t.Entries {
		if e.Name == IndexFile && e.Type == tree.EntryBlob {
			return e.BlobID, nil
		}
	}
	for _, e := range t.Entries {
		if e.Type != tree.EntryTree {
			continue
		}
		id, err := r.findIndex(e.ChildTreeID, w)
		if err != nil {
			return "", err
		}
		if id != "" {
			return id, nil
		}
	}
	return "", nil
}

// ExecuteIndex evaluates the branch's index.json against input.
func (r *Resolver) ExecuteIndex(ctx context.Context, repositoryID, branchName string, input json.RawMessage) (*ExecuteResult, error) {
	treeID, err := r.headTree(repositoryID, branchName)
	if err != nil {
		return nil, err
	}
	blobID, err := r.FindIndexJSON(treeID)
	if err != nil {
		return nil, err
	}
	b, err := r.blobs.FindByID(blobID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", IndexFile, err)
	}

	noTrace := false
	res, err := r.Simulate(ctx, SimulateRequest{
		Content:      b.Text(),
		Context:      input,
		RepositoryID: repositoryID,
		Branch:       branchName,
		Trace:        &noTrace,
	})
	if err != nil {
		return nil, err
	}
	return &ExecuteResult{Result: res.Result, Performance: res.Performance}, nil
}

// Simulate evaluates req.Content. Keys requested by the evaluator resolve
// from req.Decisions first, then from the repository branch when one is
// given; anything else fails the evaluation with ErrDecisionNotFound.
func (r *Resolver) Simulate(ctx context.Context, req SimulateRequest) (*SimulateResult, error) {
	if len(bytes.TrimSpace(req.Content)) == 0 {
		return nil, storage.Invalidf("content is required")
	}
	input := req.Context
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	trace := r.trace
	if req.Trace != nil {
		trace = *req.Trace
	}

	log := r.logger.WithRequestID(ctx)
	start := r.now()
	eval, err := r.evaluator.Evaluate(ctx, graphText(req.Content), input, r.loader(req), trace)
	if err != nil {
		log.Warn("decision evaluation failed",
			zap.String("repository_id", req.RepositoryID),
			zap.String("branch", req.Branch),
			zap.Error(err),
		)
		return nil, err
	}

	performance := eval.Performance
	if performance == "" {
		elapsed := r.now().Sub(start).Round(time.Millisecond)
		performance = fmt.Sprintf("%dms", elapsed.Milliseconds())
	}
	log.Debug("decision evaluated",
		zap.String("repository_id", req.RepositoryID),
		zap.String("branch", req.Branch),
		zap.String("performance", performance),
	)

	result := &SimulateResult{Result: eval.Result, Performance: performance}
	if trace {
		result.Trace = eval.Trace
	}
	return result, nil
}

// loader is not memoised: a key referenced twice is fetched twice.
func (r *Resolver) loader(req SimulateRequest) Loader {
	return func(ctx context.Context, key string) ([]byte, error) {
		if content, ok := req.Decisions[key]; ok {
			return graphText(content), nil
		}
		if req.RepositoryID != "" && req.Branch != "" {
			b, err := r.GetContentByPath(req.RepositoryID, req.Branch, key)
			if err == nil {
				return b.Text(), nil
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return nil, err
			}
		}
		return nil, &MissingDecisionError{Key: key}
	}
}

// graphText unwraps a graph that was sent as a JSON string.
func graphText(content json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return []byte(s)
		}
	}
	return trimmed
}
