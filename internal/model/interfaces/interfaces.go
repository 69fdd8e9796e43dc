package interfaces

import (
	"context"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
)

// CIProvider defines the interface for CI/VCS hosting APIs (GitHub, GitLab, etc.)
type CIProvider interface {
	// CheckAccess verifies the credential can read the repository
	CheckAccess(ctx context.Context, repo model.RepoRef) error

	// Run listing
	ListRuns(ctx context.Context, repo model.RepoRef, opts model.ListRunsOptions, fn func([]model.WorkflowRun) error) error
	ListRunsForCommit(ctx context.Context, repo model.RepoRef, sha string) ([]model.WorkflowRun, error)

	// Commit lookups
	GetCombinedStatus(ctx context.Context, repo model.RepoRef, sha string) (model.CommitStatus, error)
	GetCommitDetails(ctx context.Context, repo model.RepoRef, sha string) (model.CommitDetails, error)
	HasPullRequest(ctx context.Context, repo model.RepoRef, sha string) (bool, error)
}

// RunSource yields runs of a repository page by page
type RunSource interface {
	CheckAccess(ctx context.Context, repo model.RepoRef) error
	ListRuns(ctx context.Context, repo model.RepoRef, opts model.ListRunsOptions, fn func([]model.WorkflowRun) error) error
}
