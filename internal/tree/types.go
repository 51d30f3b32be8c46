// internal/tree/types.go
package tree

import (
	"errors"
	"fmt"
	"time"

	"dgit/internal/storage"
)

// EntryType tells whether an entry points at a blob or at a nested tree.
type EntryType string

const (
	EntryBlob EntryType = "BLOB"
	EntryTree EntryType = "TREE"
)

// MaxDepth caps how deep any recursive tree walk may go.
const MaxDepth = 64

var (
	ErrNoSuchEntry = errors.New("no such tree entry")
	ErrCycle       = errors.New("tree cycle detected")
	ErrTooDeep     = errors.New("tree nesting too deep")
)

// Entry is one named member of a tree.
type Entry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        EntryType `json:"type"`
	BlobID      string    `json:"blob_id,omitempty"`
	ChildTreeID string    `json:"child_tree_id,omitempty"`
}

// Tree is a directory-like collection of entries. Its id is stable while its
// entries change in place: a commit pointing at a tree observes later edits.
type Tree struct {
	ID           string    `json:"id"`
	RepositoryID string    `json:"repository_id"`
	Entries      []Entry   `json:"entries"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (t *Tree) GetID() string {
	return t.ID
}

// Find returns the first entry called name. Duplicate names are allowed and
// later duplicates are shadowed.
func (t *Tree) Find(name string) (Entry, bool) {
	for _, e := range t.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// EntryPatch carries the fields UpdateEntry may change.
type EntryPatch struct {
	Name        *string `json:"name,omitempty"`
	BlobID      *string `json:"blob_id,omitempty"`
	ChildTreeID *string `json:"child_tree_id,omitempty"`
}

// Box interface defines how we store/retrieve trees
type Box interface {
	Create(repositoryID string, entries []Entry) (*Tree, error)
	FindByID(id string) (*Tree, error)
	ListByRepository(repositoryID string, page storage.Page) ([]*Tree, error)

	// Mutators edit the tree in place and return it re-read.
	AddEntry(treeID string, entry Entry) (*Tree, error)
	RemoveEntry(treeID, entryID string) (*Tree, error)
	UpdateEntry(treeID, entryID string, patch EntryPatch) (*Tree, error)

	// Clone deep-copies a tree and its subtrees under fresh ids.
	Clone(treeID string) (*Tree, error)
}

// Validate checks that an entry points at the kind of object its type names.
func (e Entry) Validate() error {
	if e.Name == "" {
		return storage.Invalidf("entry name is required")
	}
	switch e.Type {
	case EntryBlob:
		if e.BlobID == "" {
			return storage.Invalidf("entry %q: blob entries need a blob id", e.Name)
		}
	case EntryTree:
		if e.ChildTreeID == "" {
			return storage.Invalidf("entry %q: tree entries need a child tree id", e.Name)
		}
	default:
		return storage.Invalidf("entry %q: unknown type %q", e.Name, e.Type)
	}
	return nil
}

// Walker guards recursive descents against cycles and runaway depth.
type Walker struct {
	visiting map[string]bool
}

func NewWalker() *Walker {
	return &Walker{visiting: make(map[string]bool)}
}

// Enter marks treeID as being on the current path. The returned func must be
// called when the descent into treeID is finished.
func (w *Walker) Enter(treeID string) (func(), error) {
	if w.visiting[treeID] {
		return nil, fmt.Errorf("%w at %s", ErrCycle, treeID)
	}
	if len(w.visiting) >= MaxDepth {
		return nil, fmt.Errorf("%w (max %d)", ErrTooDeep, MaxDepth)
	}
	w.visiting[treeID] = true
	return func() { delete(w.visiting, treeID) }, nil
}
