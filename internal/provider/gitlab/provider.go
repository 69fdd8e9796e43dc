package gitlab

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

var _ interfaces.CIProvider = (*Provider)(nil)

const (
	defaultBaseURL = "https://gitlab.com"
	defaultPerPage = 100

	// pipelineWorkflow groups all pipelines of a commit, GitLab has one pipeline definition per project
	pipelineWorkflow = "gitlab-ci"
)

// Provider implements the CIProvider interface for GitLab
type Provider struct {
	client *gitlab.Client
	config model.ProviderConfig
	logger logze.Logger
}

// New creates a new GitLab provider
func New(config model.ProviderConfig) (*Provider, error) {
	if config.Token == "" {
		return nil, errm.New("GitLab token is required")
	}
	logger := logze.With("provider", "gitlab", "component", "provider")

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	opts := []gitlab.ClientOptionFunc{gitlab.WithBaseURL(baseURL)}
	if config.HTTPClient != nil {
		// retries are done by the shared client
		opts = append(opts, gitlab.WithHTTPClient(config.HTTPClient), gitlab.WithoutRetries())
	}

	client, err := gitlab.NewClient(config.Token, opts...)
	if err != nil {
		return nil, errm.Wrap(err, "failed to create GitLab client")
	}

	return &Provider{
		client: client,
		config: config,
		logger: logger,
	}, nil
}

// CheckAccess verifies the token can read the project
func (p *Provider) CheckAccess(ctx context.Context, repo model.RepoRef) error {
	_, resp, err := p.client.Projects.GetProject(repo.String(), nil, gitlab.WithContext(ctx))
	if err != nil {
		return classify("get project", err, resp)
	}
	return nil
}

// ListRuns pages through all pipelines of the project, newest first
func (p *Provider) ListRuns(ctx context.Context, repo model.RepoRef, opts model.ListRunsOptions, fn func([]model.WorkflowRun) error) error {
	listOpts := &gitlab.ListProjectPipelinesOptions{
		ListOptions: gitlab.ListOptions{PerPage: lang.Check(opts.PerPage, defaultPerPage)},
		OrderBy:     gitlab.Ptr("id"),
		Sort:        gitlab.Ptr("desc"),
	}

	for page := 1; ; page++ {
		pipelines, resp, err := p.client.Pipelines.ListProjectPipelines(repo.String(), listOpts, gitlab.WithContext(ctx))
		if err != nil {
			return classify("list pipelines", err, resp)
		}

		p.logger.Debug("fetched pipelines page", "repo", repo.String(), "page", page, "runs", len(pipelines))
		if err := fn(convertPipelines(pipelines)); err != nil {
			return err
		}

		if resp.NextPage == 0 || (opts.MaxPages > 0 && page >= opts.MaxPages) {
			break
		}
		listOpts.Page = resp.NextPage
	}

	return nil
}

// ListRunsForCommit returns all pipelines created for sha
func (p *Provider) ListRunsForCommit(ctx context.Context, repo model.RepoRef, sha string) ([]model.WorkflowRun, error) {
	listOpts := &gitlab.ListProjectPipelinesOptions{
		ListOptions: gitlab.ListOptions{PerPage: defaultPerPage},
		SHA:         gitlab.Ptr(sha),
	}

	var result []model.WorkflowRun
	for {
		pipelines, resp, err := p.client.Pipelines.ListProjectPipelines(repo.String(), listOpts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, classify("list pipelines for commit", err, resp)
		}

		result = append(result, convertPipelines(pipelines)...)

		if resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
	}

	return result, nil
}

// GetCombinedStatus folds external commit statuses into one state
func (p *Provider) GetCombinedStatus(ctx context.Context, repo model.RepoRef, sha string) (model.CommitStatus, error) {
	statuses, resp, err := p.client.Commits.GetCommitStatuses(repo.String(), sha, nil, gitlab.WithContext(ctx))
	if err != nil {
		return model.CommitStatus{}, classify("get commit statuses", err, resp)
	}

	out := model.CommitStatus{State: "pending"}
	success := 0
	for _, s := range statuses {
		out.Contexts = append(out.Contexts, s.Name)
		switch model.NormalizeConclusion(s.Status) {
		case model.ConclusionFailure:
			out.State = "failure"
		case model.ConclusionSuccess:
			success++
		}
	}
	if out.State != "failure" && len(statuses) > 0 && success == len(statuses) {
		out.State = "success"
	}
	return out, nil
}

// GetCommitDetails returns the remote statistics of sha
func (p *Provider) GetCommitDetails(ctx context.Context, repo model.RepoRef, sha string) (model.CommitDetails, error) {
	commit, resp, err := p.client.Commits.GetCommit(repo.String(), sha, nil, gitlab.WithContext(ctx))
	if err != nil {
		return model.CommitDetails{}, classify("get commit", err, resp)
	}

	details := model.CommitDetails{
		SHA:          lang.Check(commit.ID, sha),
		ParentsCount: len(commit.ParentIDs),
	}
	if commit.Stats != nil {
		details.Additions = commit.Stats.Additions
		details.Deletions = commit.Stats.Deletions
	}

	diffOpts := &gitlab.GetCommitDiffOptions{ListOptions: gitlab.ListOptions{PerPage: defaultPerPage}}
	for {
		diffs, resp, err := p.client.Commits.GetCommitDiff(repo.String(), sha, diffOpts, gitlab.WithContext(ctx))
		if err != nil {
			return details, classify("get commit diff", err, resp)
		}
		details.FilesChanged += len(diffs)

		if resp.NextPage == 0 {
			break
		}
		diffOpts.Page = resp.NextPage
	}

	return details, nil
}

// HasPullRequest reports whether sha belongs to at least one merge request
func (p *Provider) HasPullRequest(ctx context.Context, repo model.RepoRef, sha string) (bool, error) {
	mrs, resp, err := p.client.Commits.ListMergeRequestsByCommit(repo.String(), sha, gitlab.WithContext(ctx))
	if err != nil {
		return false, classify("list merge requests by commit", err, resp)
	}
	return len(mrs) > 0, nil
}

func classify(op string, err error, resp *gitlab.Response) error {
	if errm.Is(err, context.Canceled) || errm.Is(err, context.DeadlineExceeded) {
		return err
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}

	kind := model.ErrTransient
	switch status {
	case http.StatusUnauthorized:
		kind = model.ErrUnauthorized
	case http.StatusTooManyRequests:
		kind = model.ErrRateLimited
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity:
		kind = model.ErrNotFound
	}
	return errm.Wrap(kind, fmt.Sprintf("%s: %s", op, lang.TruncateString(err.Error(), 200)))
}

func convertPipelines(pipelines []*gitlab.PipelineInfo) []model.WorkflowRun {
	out := make([]model.WorkflowRun, 0, len(pipelines))
	for _, pl := range pipelines {
		run := model.WorkflowRun{
			ID:           int64(pl.ID),
			HeadSHA:      pl.SHA,
			Conclusion:   model.NormalizeConclusion(pl.Status),
			Event:        pl.Source,
			WorkflowName: pipelineWorkflow,
			Status:       strings.ToLower(pl.Status),
		}
		if pl.CreatedAt != nil {
			run.CreatedAt = *pl.CreatedAt
		}
		out = append(out, run)
	}
	return out
}
