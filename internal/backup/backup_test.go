package backup

import (
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func gitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, "git %v: %s", args, out)
	return string(out)
}

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	gitCmd(t, dir, "init")
	gitCmd(t, dir, "config", "user.email", "pipeline@example.com")
	gitCmd(t, dir, "config", "user.name", "pipeline")
	return dir
}

func TestRunCommitsChanges(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "pool.json"), []byte("{}"), 0o644))

	svc := New(dir, []string{"data"}, testLogger())
	require.NoError(t, svc.Run(context.Background()))

	log := gitCmd(t, dir, "log", "--oneline")
	assert.Contains(t, log, "auto backup pipeline data")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(log), "\n")+1)

	status := gitCmd(t, dir, "status", "--porcelain", "--", "data")
	assert.Empty(t, strings.TrimSpace(status), "data changes are fully committed")
}

func TestRunNoChangesIsNoop(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "pool.json"), []byte("{}"), 0o644))

	svc := New(dir, []string{"data"}, testLogger())
	require.NoError(t, svc.Run(context.Background()))
	require.NoError(t, svc.Run(context.Background()))

	log := gitCmd(t, dir, "log", "--oneline")
	assert.Equal(t, 1, strings.Count(strings.TrimSpace(log), "\n")+1, "second run must not add a commit")
}

func TestRunIgnoresPathsOutsideScope(t *testing.T) {
	dir := initRepo(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "data", "pool.json"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "unrelated.txt"), []byte("x"), 0o644))

	svc := New(dir, []string{"data"}, testLogger())
	require.NoError(t, svc.Run(context.Background()))

	status := gitCmd(t, dir, "status", "--porcelain")
	assert.Contains(t, status, "unrelated.txt", "files outside the backup paths stay unstaged")
}

func TestRunSkipsNonRepo(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	svc := New(t.TempDir(), []string{"data"}, testLogger())
	assert.NoError(t, svc.Run(context.Background()))
}
