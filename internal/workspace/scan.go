// internal/workspace/scan.go
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// File is one regular file read from disk.
type File struct {
	Name    string
	Content []byte
}

// IsJSON reports whether the file should be stored as a JSON document.
func (f File) IsJSON() bool {
	return strings.EqualFold(filepath.Ext(f.Name), ".json")
}

// Dir mirrors a directory: its files and subdirectories, both sorted by name.
type Dir struct {
	Name  string
	Files []File
	Dirs  []*Dir
}

// Count returns the number of files below d.
func (d *Dir) Count() int {
	n := len(d.Files)
	for _, sub := range d.Dirs {
		n += sub.Count()
	}
	return n
}

var ignoredDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
}

// ShouldIgnore checks if a path relative to the scanned root should be skipped
func ShouldIgnore(path string) bool {
	if path == "" || path == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == "" {
			continue
		}
		// Hidden files and directories, including .git
		if strings.HasPrefix(part, ".") {
			return true
		}
		if ignoredDirs[part] {
			return true
		}
	}
	return false
}

// Scan reads root recursively. Symlinks and ignored paths are skipped.
func Scan(root string) (*Dir, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}
	return scan(root, "", filepath.Base(root))
}

func scan(root, rel, name string) (*Dir, error) {
	entries, err := os.ReadDir(filepath.Join(root, rel))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rel, err)
	}

	dir := &Dir{Name: name}
	for _, entry := range entries {
		childRel := filepath.Join(rel, entry.Name())
		if ShouldIgnore(childRel) {
			continue
		}

		switch {
		case entry.IsDir():
			sub, err := scan(root, childRel, entry.Name())
			if err != nil {
				return nil, err
			}
			dir.Dirs = append(dir.Dirs, sub)
		case entry.Type().IsRegular():
			content, err := os.ReadFile(filepath.Join(root, childRel))
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", childRel, err)
			}
			dir.Files = append(dir.Files, File{Name: entry.Name(), Content: content})
		}
	}
	return dir, nil
}
