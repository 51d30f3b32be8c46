// internal/diff/diff.go
package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"dgit/internal/blob"
	"dgit/internal/branch"
	"dgit/internal/commit"
	"dgit/internal/tree"
)

// DefaultContextLines is used by Patch when the engine is built with a
// negative context.
const DefaultContextLines = 3

// Ref identifies the blob found at a path.
type Ref struct {
	BlobID      string `json:"blob_id"`
	ContentHash string `json:"content_hash"`
}

type PathRef struct {
	Path string `json:"path"`
	Ref
}

// Modification is a path present on both sides with different content.
type Modification struct {
	Path   string `json:"path"`
	Base   Ref    `json:"base"`
	Target Ref    `json:"target"`
}

// Result lists changed blob paths, each list sorted by path.
type Result struct {
	Added    []PathRef      `json:"added"`
	Removed  []PathRef      `json:"removed"`
	Modified []Modification `json:"modified"`
}

func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0 && len(r.Modified) == 0
}

// Patch is the line diff of one modification.
type Patch struct {
	Path string `json:"path"`
	*LineDiff
}

// Engine computes tree, commit and branch diffs
type Engine struct {
	trees        tree.Box
	blobs        blob.Box
	commits      commit.Box
	branches     branch.Box
	contextLines int
}

// NewEngine creates a diff engine. contextLines controls patches only.
func NewEngine(trees tree.Box, blobs blob.Box, commits commit.Box, branches branch.Box, contextLines int) *Engine {
	if contextLines < 0 {
		contextLines = DefaultContextLines
	}
	return &Engine{
		trees:        trees,
		blobs:        blobs,
		commits:      commits,
		branches:     branches,
		contextLines: contextLines,
	}
}

// Flatten maps every blob path below treeID to its blob. When a tree holds
// duplicate names the later entry wins.
func (e *Engine) Flatten(treeID string) (map[string]Ref, error) {
	paths := make(map[string]Ref)
	if err := e.flatten(treeID, "", tree.NewWalker(), paths); err != nil {
		return nil, err
	}
	return paths, nil
}

func (e *Engine) flatten(treeID, prefix string, w *tree.Walker, paths map[string]Ref) error {
	leave, err := w.Enter(treeID)
	if err != nil {
		return err
	}
	defer leave()

	t, err := e.trees.FindByID(treeID)
	if err != nil {
		return fmt.Errorf("tree %s: %w", treeID, err)
	}

	for _, entry := range t.Entries {
		path := entry.Name
		if prefix != "" {
			path = prefix + "/" + entry.Name
		}

		switch entry.Type {
		case tree.EntryBlob:
			b, err := e.blobs.FindByID(entry.BlobID)
			if err != nil {
				return fmt.Errorf("blob %s at %s: %w", entry.BlobID, path, err)
			}
			paths[path] = Ref{BlobID: b.ID, ContentHash: b.ContentHash}
		case tree.EntryTree:
			if err := e.flatten(entry.ChildTreeID, path, w, paths); err != nil {
				return err
			}
		}
	}
	return nil
}

// DiffTrees compares base against target.
func (e *Engine) DiffTrees(baseTreeID, targetTreeID string) (*Result, error) {
	base, err := e.Flatten(baseTreeID)
	if err != nil {
		return nil, fmt.Errorf("flattening base: %w", err)
	}
	target, err := e.Flatten(targetTreeID)
	if err != nil {
		return nil, fmt.Errorf("flattening target: %w", err)
	}
	return Compare(base, target), nil
}

// Compare diffs two flattened path maps. It lets callers diff a snapshot
// taken before mutating a tree against its current state.
func Compare(base, target map[string]Ref) *Result {
	result := &Result{
		Added:    []PathRef{},
		Removed:  []PathRef{},
		Modified: []Modification{},
	}

	for path, t := range target {
		b, ok := base[path]
		switch {
		case !ok:
			result.Added = append(result.Added, PathRef{Path: path, Ref: t})
		case b.ContentHash != t.ContentHash:
			result.Modified = append(result.Modified, Modification{Path: path, Base: b, Target: t})
		}
	}
	for path, b := range base {
		if _, ok := target[path]; !ok {
			result.Removed = append(result.Removed, PathRef{Path: path, Ref: b})
		}
	}

	sort.Slice(result.Added, func(i, j int) bool { return result.Added[i].Path < result.Added[j].Path })
	sort.Slice(result.Removed, func(i, j int) bool { return result.Removed[i].Path < result.Removed[j].Path })
	sort.Slice(result.Modified, func(i, j int) bool { return result.Modified[i].Path < result.Modified[j].Path })
	return result
}

// DiffCommits compares the trees of two commits. A missing commit is an
// error wrapping storage.ErrNotFound.
func (e *Engine) DiffCommits(baseCommitID, targetCommitID string) (*Result, error) {
	base, err := e.commits.FindByID(baseCommitID)
	if err != nil {
		return nil, fmt.Errorf("base commit: %w", err)
	}
	target, err := e.commits.FindByID(targetCommitID)
	if err != nil {
		return nil, fmt.Errorf("target commit: %w", err)
	}
	return e.DiffTrees(base.TreeID, target.TreeID)
}

// DiffBranches compares the head commits of two branches. A missing branch
// or a branch without commits is an error wrapping storage.ErrNotFound.
func (e *Engine) DiffBranches(repositoryID, baseBranch, targetBranch string) (*Result, error) {
	baseHead, err := e.head(repositoryID, baseBranch)
	if err != nil {
		return nil, err
	}
	targetHead, err := e.head(repositoryID, targetBranch)
	if err != nil {
		return nil, err
	}
	return e.DiffCommits(baseHead, targetHead)
}

func (e *Engine) head(repositoryID, name string) (string, error) {
	b, err := e.branches.FindByName(repositoryID, name)
	if err != nil {
		return "", fmt.Errorf("branch %q: %w", name, err)
	}
	return b.Head()
}

// Patch renders the line diff between the two blob versions of a
// modification, each pretty-printed.
func (e *Engine) Patch(mod Modification) (*Patch, error) {
	oldText, err := e.blobText(mod.Base.BlobID)
	if err != nil {
		return nil, err
	}
	newText, err := e.blobText(mod.Target.BlobID)
	if err != nil {
		return nil, err
	}
	return &Patch{Path: mod.Path, LineDiff: Lines(oldText, newText, e.contextLines)}, nil
}

// PatchPaths renders patches for several modifications.
func (e *Engine) PatchPaths(mods []Modification) ([]*Patch, error) {
	patches := make([]*Patch, 0, len(mods))
	for _, mod := range mods {
		p, err := e.Patch(mod)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, nil
}

func (e *Engine) blobText(id string) ([]byte, error) {
	b, err := e.blobs.FindByID(id)
	if err != nil {
		return nil, fmt.Errorf("blob %s: %w", id, err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(b.Content), []byte{'"'}) {
		return b.Text(), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, b.Content, "", "  "); err != nil {
		return b.Content, nil
	}
	return buf.Bytes(), nil
}
