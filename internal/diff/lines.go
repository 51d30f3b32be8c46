// internal/diff/lines.go
package diff

import (
	"bytes"
	"fmt"
)

// Line represents a single line in a diff with its type and content
type Line struct {
	Type    LineType `json:"type"`
	Content string   `json:"content"`
	OldNum  int      `json:"old_num,omitempty"`
	NewNum  int      `json:"new_num,omitempty"`
}

// LineType indicates whether a line was added, removed, or is context
type LineType int

const (
	Context LineType = iota
	Addition
	Deletion
)

func (t LineType) MarshalText() ([]byte, error) {
	switch t {
	case Addition:
		return []byte("add"), nil
	case Deletion:
		return []byte("delete"), nil
	default:
		return []byte("context"), nil
	}
}

// Hunk represents a continuous section of changes
type Hunk struct {
	OldStart int    `json:"old_start"`
	OldLines int    `json:"old_lines"`
	NewStart int    `json:"new_start"`
	NewLines int    `json:"new_lines"`
	Lines    []Line `json:"lines"`
}

type Stats struct {
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// LineDiff contains the complete line diff between two texts
type LineDiff struct {
	Hunks []Hunk `json:"hunks"`
	Stats Stats  `json:"stats"`
}

func splitLines(content []byte) [][]byte {
	content = bytes.TrimSuffix(content, []byte{'\n'})
	if len(content) == 0 {
		return nil
	}
	return bytes.Split(content, []byte{'\n'})
}

// Lines computes a longest-common-subsequence line diff of two texts,
// grouping changes into hunks with up to contextLines lines of context.
func Lines(oldContent, newContent []byte, contextLines int) *LineDiff {
	if contextLines < 0 {
		contextLines = 0
	}
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	script := editScript(oldLines, newLines)
	result := &LineDiff{Hunks: groupHunks(script, contextLines)}
	for _, l := range script {
		switch l.Type {
		case Addition:
			result.Stats.Additions++
		case Deletion:
			result.Stats.Deletions++
		}
	}
	return result
}

// editScript walks a suffix LCS table front to back, preferring deletions
// before additions at each change.
func editScript(oldLines, newLines [][]byte) []Line {
	n, m := len(oldLines), len(newLines)
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if bytes.Equal(oldLines[i], newLines[j]) {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	script := make([]Line, 0, n+m)
	i, j := 0, 0
	for i < n || j < m {
		switch {
		case i < n && j < m && bytes.Equal(oldLines[i], newLines[j]):
			script = append(script, Line{Type: Context, Content: string(oldLines[i]), OldNum: i + 1, NewNum: j + 1})
			i++
			j++
		case i < n && (j == m || lcs[i+1][j] >= lcs[i][j+1]):
			script = append(script, Line{Type: Deletion, Content: string(oldLines[i]), OldNum: i + 1})
			i++
		default:
			script = append(script, Line{Type: Addition, Content: string(newLines[j]), NewNum: j + 1})
			j++
		}
	}
	return script
}

// groupHunks cuts the edit script into hunks. Changes separated by at most
// 2*contextLines unchanged lines share a hunk.
func groupHunks(script []Line, contextLines int) []Hunk {
	var hunks []Hunk
	start, end := -1, -1

	flush := func() {
		if start < 0 {
			return
		}
		lo := max(0, start-contextLines)
		hi := min(len(script), end+1+contextLines)
		hunks = append(hunks, newHunk(script, lo, hi))
		start, end = -1, -1
	}

	for i, l := range script {
		if l.Type == Context {
			continue
		}
		if start >= 0 && i-end-1 > 2*contextLines {
			flush()
		}
		if start < 0 {
			start = i
		}
		end = i
	}
	flush()
	return hunks
}

func newHunk(script []Line, lo, hi int) Hunk {
	h := Hunk{Lines: append([]Line(nil), script[lo:hi]...)}

	// Positions of the line just before the hunk in each file, used when a
	// side contributes no lines.
	oldBefore, newBefore := 0, 0
	for _, l := range script[:lo] {
		if l.OldNum > 0 {
			oldBefore = l.OldNum
		}
		if l.NewNum > 0 {
			newBefore = l.NewNum
		}
	}

	for _, l := range h.Lines {
		if l.Type != Addition {
			h.OldLines++
		}
		if l.Type != Deletion {
			h.NewLines++
		}
	}
	h.OldStart = oldBefore
	if h.OldLines > 0 {
		h.OldStart++
	}
	h.NewStart = newBefore
	if h.NewLines > 0 {
		h.NewStart++
	}
	return h
}

// Format returns a unified-diff style rendering
func (r *LineDiff) Format() string {
	var buf bytes.Buffer

	for _, hunk := range r.Hunks {
		fmt.Fprintf(&buf, "@@ -%d,%d +%d,%d @@\n",
			hunk.OldStart, hunk.OldLines,
			hunk.NewStart, hunk.NewLines)

		for _, line := range hunk.Lines {
			switch line.Type {
			case Addition:
				buf.WriteString("+ ")
			case Deletion:
				buf.WriteString("- ")
			case Context:
				buf.WriteString("  ")
			}
			buf.WriteString(line.Content)
			buf.WriteString("\n")
		}
	}

	return buf.String()
}
