// Package backup commits the pipeline's data files to the enclosing
// git repository on a schedule, so the pool snapshots and weekly
// recaps survive a host loss.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const commandTimeout = time.Minute

// Service stages, commits, and pushes a fixed set of paths.
type Service struct {
	repoDir string
	paths   []string
	logger  *slog.Logger
}

func New(repoDir string, paths []string, logger *slog.Logger) *Service {
	return &Service{
		repoDir: repoDir,
		paths:   paths,
		logger:  logger.With("component", "backup"),
	}
}

// Run commits pending changes under the configured paths. A directory
// that is not a git repository is skipped, not an error, so the
// feature stays dormant on hosts without one. The push is best effort;
// the commit alone already pins the state locally.
func (s *Service) Run(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.repoDir, ".git")); err != nil {
		s.logger.Warn("data dir is not a git repository, skipping backup", "dir", s.repoDir)
		return nil
	}

	status, err := s.git(ctx, append([]string{"status", "--porcelain", "--"}, s.paths...)...)
	if err != nil {
		return fmt.Errorf("check git status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		s.logger.Info("no data changes to back up")
		return nil
	}

	if _, err := s.git(ctx, append([]string{"add", "--"}, s.paths...)...); err != nil {
		return fmt.Errorf("stage data files: %w", err)
	}

	message := fmt.Sprintf("chore: auto backup pipeline data - %s", time.Now().Format("2006-01-02 15:04:05"))
	if _, err := s.git(ctx, "commit", "-m", message); err != nil {
		return fmt.Errorf("commit data files: %w", err)
	}
	s.logger.Info("data backup committed", "message", message)

	if out, err := s.git(ctx, "push"); err != nil {
		s.logger.Warn("failed to push backup, commit kept locally", "error", err, "output", out)
		return nil
	}
	s.logger.Info("data backup pushed")
	return nil
}

func (s *Service) git(ctx context.Context, args ...string) (string, error) {
	runCtx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "git", args...)
	cmd.Dir = s.repoDir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(out.String()))
	}
	return out.String(), nil
}
