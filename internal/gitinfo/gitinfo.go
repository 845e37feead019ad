// Package gitinfo resolves source repository metadata for stamping into
// build reports and cycle records.
package gitinfo

import (
	"github.com/go-git/go-git/v5"
)

// HeadCommit returns the full hash of HEAD for the repository containing
// dir, walking up parent directories to find the repository root. It returns
// "" when dir is not inside a git repository or HEAD cannot be resolved;
// builds outside a repository are normal, not an error.
func HeadCommit(dir string) string {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return ""
	}
	ref, err := repo.Head()
	if err != nil {
		// Fresh repository with no commits yet.
		return ""
	}
	return ref.Hash().String()
}

// CommitFunc returns a resolver bound to dir, suitable for per-cycle commit
// stamping. Resolving on every cycle keeps reports accurate when the user
// commits while watch mode runs.
func CommitFunc(dir string) func() string {
	return func() string { return HeadCommit(dir) }
}
