// Package git shells out to the git binary for the clone and pull steps of
// the indexing pipelines.
package git

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Operations defines the interface for local git operations.
// This allows mocking git commands in tests.
type Operations interface {
	// Clone clones url into dest on the given branch. An empty branch clones
	// the remote default branch.
	Clone(ctx context.Context, url, branch, dest string) error

	// Pull fast-forwards the working tree at dir on the given branch.
	Pull(ctx context.Context, dir, branch string) error

	// HeadSHA returns the full 40-hex SHA of HEAD in dir.
	HeadSHA(ctx context.Context, dir string) (string, error)

	// CurrentBranch returns the checked-out branch name in dir.
	// For detached HEAD, returns "detached-{short-hash}".
	CurrentBranch(ctx context.Context, dir string) string
}

// gitOps is the real implementation using exec.Command.
type gitOps struct{}

// NewOperations returns the default git operations implementation.
func NewOperations() Operations {
	return &gitOps{}
}

func (g *gitOps) Clone(ctx context.Context, url, branch, dest string) error {
	args := []string{"clone", "--single-branch"}
	if branch != "" {
		args = append(args, "--branch", branch)
	}
	args = append(args, url, dest)

	cmd := exec.CommandContext(ctx, "git", args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git clone failed: %s: %w", firstLine(output), err)
	}
	return nil
}

func (g *gitOps) Pull(ctx context.Context, dir, branch string) error {
	cmd := exec.CommandContext(ctx, "git", "pull", "--ff-only", "origin", branch)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git pull failed: %s: %w", firstLine(output), err)
	}
	return nil
}

func (g *gitOps) HeadSHA(ctx context.Context, dir string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git rev-parse failed: %w", err)
	}
	return strings.TrimSpace(string(output)), nil
}

func (g *gitOps) CurrentBranch(ctx context.Context, dir string) string {
	cmd := exec.CommandContext(ctx, "git", "branch", "--show-current")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil || len(strings.TrimSpace(string(output))) == 0 {
		// Might be detached HEAD
		cmd = exec.CommandContext(ctx, "git", "rev-parse", "--short", "HEAD")
		cmd.Dir = dir
		output, err = cmd.Output()
		if err != nil {
			return "unknown"
		}
		return "detached-" + strings.TrimSpace(string(output))
	}
	return strings.TrimSpace(string(output))
}

// firstLine trims command output to its first line for error messages.
func firstLine(output []byte) string {
	s := strings.TrimSpace(string(output))
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return s
}
