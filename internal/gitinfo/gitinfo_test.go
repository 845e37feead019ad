package gitinfo

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

func initRepoWithCommit(t *testing.T) (string, string) {
	t.Helper()
	repoPath := filepath.Join(t.TempDir(), "site")

	repo, err := git.PlainInit(repoPath, false)
	if err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}

	if err := os.WriteFile(filepath.Join(repoPath, "index.md"), []byte("# Home\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}

	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}
	if _, err := w.Add("."); err != nil {
		t.Fatalf("Failed to add files: %v", err)
	}
	commit, err := w.Commit("Initial commit", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
		},
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	return repoPath, commit.String()
}

func TestHeadCommitResolvesHead(t *testing.T) {
	repoPath, want := initRepoWithCommit(t)

	if got := HeadCommit(repoPath); got != want {
		t.Errorf("HeadCommit = %q, want %q", got, want)
	}
}

func TestHeadCommitFromNestedDirectory(t *testing.T) {
	repoPath, want := initRepoWithCommit(t)

	nested := filepath.Join(repoPath, "content", "docs")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("Failed to create nested dir: %v", err)
	}

	if got := HeadCommit(nested); got != want {
		t.Errorf("HeadCommit from nested dir = %q, want %q", got, want)
	}
}

func TestHeadCommitOutsideRepository(t *testing.T) {
	if got := HeadCommit(t.TempDir()); got != "" {
		t.Errorf("HeadCommit outside a repository = %q, want empty", got)
	}
}

func TestHeadCommitEmptyRepository(t *testing.T) {
	repoPath := filepath.Join(t.TempDir(), "empty")
	if _, err := git.PlainInit(repoPath, false); err != nil {
		t.Fatalf("Failed to init repo: %v", err)
	}

	if got := HeadCommit(repoPath); got != "" {
		t.Errorf("HeadCommit in commitless repository = %q, want empty", got)
	}
}

func TestCommitFuncTracksNewCommits(t *testing.T) {
	repoPath, first := initRepoWithCommit(t)
	resolve := CommitFunc(repoPath)

	if got := resolve(); got != first {
		t.Fatalf("resolve = %q, want %q", got, first)
	}

	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		t.Fatalf("Failed to reopen repo: %v", err)
	}
	w, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to get worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoPath, "about.md"), []byte("# About\n"), 0o644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
	if _, err := w.Add("."); err != nil {
		t.Fatalf("Failed to add files: %v", err)
	}
	second, err := w.Commit("Add about page", &git.CommitOptions{
		Author: &object.Signature{
			Name:  "Test User",
			Email: "test@example.com",
		},
	})
	if err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}

	if got := resolve(); got != second.String() {
		t.Errorf("resolve after new commit = %q, want %q", got, second.String())
	}
	if first == second.String() {
		t.Fatal("test setup produced identical commits")
	}
}
