package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"dgit/internal/app"
	"dgit/internal/config"
	"dgit/internal/logging"
	"dgit/internal/mergerequest"
	"dgit/internal/storage"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupCLI(t *testing.T) *cli {
	color.NoColor = true

	cfg := config.Default()
	cfg.Database.InMemory = true
	a, err := app.Build(cfg, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	return &cli{app: a}
}

func run(t *testing.T, c *cli, args ...string) (string, error) {
	var out bytes.Buffer
	cmd := newRootCmd(c)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--user", "alice"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func writeRules(t *testing.T, dir, rate string) {
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "pricing"), 0o755))
	index := `{"nodes":[{"id":"in","type":"inputNode"},{"id":"out","type":"outputNode"}],"edges":[{"sourceId":"in","targetId":"out"}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), []byte(index), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pricing", "rate.json"), []byte(`{"rate":`+rate+`}`), 0o644))
}

func TestCLIWorkflow(t *testing.T) {
	c := setupCLI(t)
	dir := t.TempDir()
	writeRules(t, dir, "1")

	out, err := run(t, c, "repo", "create", "pricing")
	require.NoError(t, err)
	assert.Contains(t, out, "Created repository pricing")

	repos, err := c.app.Repositories.List(storage.Page{})
	require.NoError(t, err)
	require.Len(t, repos, 1)
	repoID := repos[0].ID

	out, err = run(t, c, "import", repoID, dir, "-m", "initial")
	require.NoError(t, err)
	assert.Contains(t, out, "initial")

	out, err = run(t, c, "import", repoID, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Nothing to commit")

	_, err = run(t, c, "branch", "create", repoID, "feature")
	require.NoError(t, err)

	writeRules(t, dir, "2")
	_, err = run(t, c, "import", repoID, dir, "-b", "feature", "-m", "bump rate")
	require.NoError(t, err)

	out, err = run(t, c, "log", repoID, "-b", "feature")
	require.NoError(t, err)
	assert.Contains(t, out, "bump rate")
	assert.Contains(t, out, "initial")

	out, err = run(t, c, "diff", repoID, "main", "feature", "--patch")
	require.NoError(t, err)
	assert.Contains(t, out, "M pricing/rate.json")
	assert.Contains(t, out, "@@")

	out, err = run(t, c, "mr", "create", repoID, "feature", "main", "--title", "Raise rate")
	require.NoError(t, err)
	assert.Contains(t, out, "Raise rate")

	mrs, err := c.app.MergeRequests.ListByRepository(repoID, mergerequest.StatusOpen, storage.Page{})
	require.NoError(t, err)
	require.Len(t, mrs, 1)
	mrID := mrs[0].ID

	_, err = run(t, c, "mr", "comment", mrID, "looks good")
	require.NoError(t, err)

	out, err = run(t, c, "mr", "show", mrID)
	require.NoError(t, err)
	assert.Contains(t, out, "feature -> main")
	assert.Contains(t, out, "alice: looks good")

	out, err = run(t, c, "mr", "merge", mrID)
	require.NoError(t, err)
	assert.Contains(t, out, "Merged Raise rate")

	out, err = run(t, c, "mr", "list", repoID, "--status", "MERGED")
	require.NoError(t, err)
	assert.Contains(t, out, mrID)

	out, err = run(t, c, "diff", repoID, "main", "feature")
	require.NoError(t, err)
	assert.Contains(t, out, "No differences")

	out, err = run(t, c, "exec", repoID, "--input", `{"rate":2}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"rate": 2`)

	_, err = run(t, c, "exec", repoID, "--input", `{nope`)
	assert.Error(t, err)

	_, err = run(t, c, "repo", "delete", repoID)
	require.NoError(t, err)
	out, err = run(t, c, "repo", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "No repositories")
}

func TestCLIErrors(t *testing.T) {
	c := setupCLI(t)

	_, err := run(t, c, "log", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = run(t, c, "mr", "merge", "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = run(t, c, "import", "missing")
	assert.Error(t, err)
}
