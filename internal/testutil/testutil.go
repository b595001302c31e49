// Package testutil provides testing utilities for horizon tests.
//
// Repositories are created with go-git, so tests do not need a git binary.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Signature is the author used for every test commit.
func Signature() *object.Signature {
	return &object.Signature{
		Name:  "Horizon Test",
		Email: "test@horizon.dev",
		When:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

// SetupTestRepo creates a temporary git repository on branch main with one
// commit containing README.md. The repository is removed when the test
// completes.
func SetupTestRepo(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	_, err := git.PlainInitWithOptions(dir, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName("main")},
	})
	if err != nil {
		t.Fatalf("failed to init git repo: %v", err)
	}

	CommitFile(t, dir, "README.md", "# Test Repository\n", "Initial commit")
	return dir
}

// SetupTestRepoWithContent creates a test repository and commits files,
// a map of relative paths to contents, in one extra commit.
func SetupTestRepoWithContent(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := SetupTestRepo(t)
	wt := worktree(t, dir)
	for path, content := range files {
		writeFile(t, dir, path, content)
		if _, err := wt.Add(path); err != nil {
			t.Fatalf("failed to stage %s: %v", path, err)
		}
	}
	if _, err := wt.Commit("Add test files", &git.CommitOptions{Author: Signature()}); err != nil {
		t.Fatalf("failed to commit test files: %v", err)
	}
	return dir
}

// CommitFile creates or updates a file and commits it.
func CommitFile(t *testing.T, repoDir, path, content, message string) {
	t.Helper()

	writeFile(t, repoDir, path, content)
	wt := worktree(t, repoDir)
	if _, err := wt.Add(path); err != nil {
		t.Fatalf("failed to stage file %s: %v", path, err)
	}
	if _, err := wt.Commit(message, &git.CommitOptions{Author: Signature()}); err != nil {
		t.Fatalf("failed to commit file %s: %v", path, err)
	}
}

// AddRemote registers a remote URL without contacting it.
func AddRemote(t *testing.T, repoDir, name, url string) {
	t.Helper()

	repo := open(t, repoDir)
	if _, err := repo.CreateRemote(&gitconfig.RemoteConfig{Name: name, URLs: []string{url}}); err != nil {
		t.Fatalf("failed to add remote %s: %v", name, err)
	}
}

// GetCurrentBranch returns the short name of the checked out branch.
func GetCurrentBranch(t *testing.T, repoDir string) string {
	t.Helper()

	head, err := open(t, repoDir).Head()
	if err != nil {
		t.Fatalf("failed to read HEAD: %v", err)
	}
	return head.Name().Short()
}

// GetCommitCount returns the number of commits reachable from HEAD.
func GetCommitCount(t *testing.T, repoDir string) int {
	t.Helper()

	iter, err := open(t, repoDir).Log(&git.LogOptions{})
	if err != nil {
		t.Fatalf("failed to read log: %v", err)
	}
	count := 0
	if err := iter.ForEach(func(*object.Commit) error {
		count++
		return nil
	}); err != nil {
		t.Fatalf("failed to count commits: %v", err)
	}
	return count
}

// HeadCommit returns the commit HEAD points at.
func HeadCommit(t *testing.T, repoDir string) *object.Commit {
	t.Helper()

	repo := open(t, repoDir)
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("failed to read HEAD: %v", err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		t.Fatalf("failed to read HEAD commit: %v", err)
	}
	return commit
}

// HasUncommittedChanges reports whether the worktree differs from HEAD.
func HasUncommittedChanges(t *testing.T, repoDir string) bool {
	t.Helper()

	status, err := worktree(t, repoDir).Status()
	if err != nil {
		t.Fatalf("failed to check git status: %v", err)
	}
	return !status.IsClean()
}

// WriteFiles writes files under dir without staging them.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		writeFile(t, dir, path, content)
	}
}

func open(t *testing.T, dir string) *git.Repository {
	t.Helper()

	repo, err := git.PlainOpen(dir)
	if err != nil {
		t.Fatalf("failed to open repo %s: %v", dir, err)
	}
	return repo
}

func worktree(t *testing.T, dir string) *git.Worktree {
	t.Helper()

	wt, err := open(t, dir).Worktree()
	if err != nil {
		t.Fatalf("failed to open worktree: %v", err)
	}
	return wt
}

func writeFile(t *testing.T, dir, path, content string) {
	t.Helper()

	fullPath := filepath.Join(dir, path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		t.Fatalf("failed to create directory for %s: %v", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %s: %v", path, err)
	}
}
