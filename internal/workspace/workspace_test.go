package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func TestShouldIgnore(t *testing.T) {
	tests := map[string]bool{
		"":                          false,
		"index.json":                false,
		"rules/main.json":           false,
		".git/config":               true,
		".dgit":                     true,
		"node_modules/pkg/a.json":   true,
		"rules/.hidden.json":        true,
		"rules/vendor/ignored.json": true,
	}
	for path, want := range tests {
		assert.Equal(t, want, ShouldIgnore(path), path)
	}
}

func TestScan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.json":            `{"nodes":[]}`,
		"README.md":             "# rules",
		"rules/main.json":       `{"a":1}`,
		"rules/deep/leaf.json":  `2`,
		".git/HEAD":             "ref",
		"node_modules/x/y.json": `{}`,
	})

	dir, err := Scan(root)
	require.NoError(t, err)
	assert.Equal(t, 4, dir.Count())

	require.Len(t, dir.Files, 2)
	assert.Equal(t, "README.md", dir.Files[0].Name)
	assert.False(t, dir.Files[0].IsJSON())
	assert.Equal(t, "index.json", dir.Files[1].Name)
	assert.True(t, dir.Files[1].IsJSON())

	require.Len(t, dir.Dirs, 1)
	rules := dir.Dirs[0]
	assert.Equal(t, "rules", rules.Name)
	require.Len(t, rules.Dirs, 1)
	assert.Equal(t, "leaf.json", rules.Dirs[0].Files[0].Name)

	_, err = Scan(filepath.Join(root, "index.json"))
	assert.Error(t, err)
}

func TestWatcherDebounces(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"index.json": `{}`})

	var calls atomic.Int32
	w, err := NewWatcher(root, 50*time.Millisecond, zap.NewNop(), func(context.Context) error {
		calls.Add(1)
		return nil
	})
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		writeTree(t, root, map[string]string{"index.json": `{"v":` + string(rune('0'+i)) + `}`})
	}

	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	writeTree(t, root, map[string]string{"sub/new.json": `{}`})
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
