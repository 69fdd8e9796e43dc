package github

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/google/go-github/v57/github"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
	"golang.org/x/oauth2"
)

var _ interfaces.CIProvider = (*Provider)(nil)

const (
	defaultBaseURL   = "https://github.com"
	defaultPerPage   = 100
	defaultAbuseWait = time.Minute
)

// Provider implements the CIProvider interface for GitHub
type Provider struct {
	client *github.Client
	config model.ProviderConfig
	logger logze.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a new GitHub provider
func New(config model.ProviderConfig) (*Provider, error) {
	if config.Token == "" {
		return nil, errm.New("GitHub token is required")
	}
	log := logze.With("provider", "github", "component", "provider")

	base := lang.If(config.HTTPClient != nil, config.HTTPClient, http.DefaultClient)
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	// Create OAuth2 token source
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: config.Token},
	)
	tc := oauth2.NewClient(ctx, ts)

	// Create GitHub client
	client := github.NewClient(tc)

	// Set base URL if provided (for GitHub Enterprise)
	if config.BaseURL != "" && config.BaseURL != defaultBaseURL {
		var err error
		client, err = github.NewClient(tc).WithEnterpriseURLs(config.BaseURL, config.BaseURL)
		if err != nil {
			return nil, errm.Wrap(err, "failed to create GitHub Enterprise client")
		}
	}

	return &Provider{
		client: client,
		config: config,
		logger: log,
		sleep:  sleepContext,
	}, nil
}

// CheckAccess verifies the token can read the repository
func (p *Provider) CheckAccess(ctx context.Context, repo model.RepoRef) error {
	return p.call(ctx, "get repository", func() (*github.Response, error) {
		_, resp, err := p.client.Repositories.Get(ctx, repo.Owner, repo.Name)
		return resp, err
	})
}

// ListRuns pages through all workflow runs of the repository, newest first
func (p *Provider) ListRuns(ctx context.Context, repo model.RepoRef, opts model.ListRunsOptions, fn func([]model.WorkflowRun) error) error {
	listOpts := &github.ListWorkflowRunsOptions{
		ListOptions: github.ListOptions{PerPage: lang.Check(opts.PerPage, defaultPerPage)},
	}

	for page := 1; ; page++ {
		var runs *github.WorkflowRuns
		var resp *github.Response
		err := p.call(ctx, "list workflow runs", func() (*github.Response, error) {
			var err error
			runs, resp, err = p.client.Actions.ListRepositoryWorkflowRuns(ctx, repo.Owner, repo.Name, listOpts)
			return resp, err
		})
		if err != nil {
			return err
		}

		p.logger.Debug("fetched workflow runs page", "repo", repo.String(), "page", page, "runs", len(runs.WorkflowRuns))
		if err := fn(convertRuns(runs.WorkflowRuns)); err != nil {
			return err
		}

		if resp.NextPage == 0 || (opts.MaxPages > 0 && page >= opts.MaxPages) {
			break
		}
		listOpts.Page = resp.NextPage
	}

	return nil
}

// ListRunsForCommit returns all workflow runs triggered for sha
func (p *Provider) ListRunsForCommit(ctx context.Context, repo model.RepoRef, sha string) ([]model.WorkflowRun, error) {
	listOpts := &github.ListWorkflowRunsOptions{
		HeadSHA:     sha,
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	}

	var result []model.WorkflowRun
	for {
		var runs *github.WorkflowRuns
		var resp *github.Response
		err := p.call(ctx, "list workflow runs for commit", func() (*github.Response, error) {
			var err error
			runs, resp, err = p.client.Actions.ListRepositoryWorkflowRuns(ctx, repo.Owner, repo.Name, listOpts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		result = append(result, convertRuns(runs.WorkflowRuns)...)

		if resp.NextPage == 0 {
			break
		}
		listOpts.Page = resp.NextPage
	}

	return result, nil
}

// GetCombinedStatus returns the legacy combined status of sha
func (p *Provider) GetCombinedStatus(ctx context.Context, repo model.RepoRef, sha string) (model.CommitStatus, error) {
	var status *github.CombinedStatus
	err := p.call(ctx, "get combined status", func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		status, resp, err = p.client.Repositories.GetCombinedStatus(ctx, repo.Owner, repo.Name, sha, nil)
		return resp, err
	})
	if err != nil {
		return model.CommitStatus{}, err
	}

	out := model.CommitStatus{State: status.GetState()}
	for _, s := range status.Statuses {
		out.Contexts = append(out.Contexts, s.GetContext())
	}
	return out, nil
}

// GetCommitDetails returns the remote statistics of sha
func (p *Provider) GetCommitDetails(ctx context.Context, repo model.RepoRef, sha string) (model.CommitDetails, error) {
	var commit *github.RepositoryCommit
	err := p.call(ctx, "get commit", func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		commit, resp, err = p.client.Repositories.GetCommit(ctx, repo.Owner, repo.Name, sha, nil)
		return resp, err
	})
	if err != nil {
		return model.CommitDetails{}, err
	}

	return model.CommitDetails{
		SHA:          lang.Check(commit.GetSHA(), sha),
		FilesChanged: len(commit.Files),
		Additions:    commit.GetStats().GetAdditions(),
		Deletions:    commit.GetStats().GetDeletions(),
		ParentsCount: len(commit.Parents),
	}, nil
}

// HasPullRequest reports whether sha belongs to at least one pull request
func (p *Provider) HasPullRequest(ctx context.Context, repo model.RepoRef, sha string) (bool, error) {
	var prs []*github.PullRequest
	err := p.call(ctx, "list pull requests with commit", func() (*github.Response, error) {
		var (
			resp *github.Response
			err  error
		)
		prs, resp, err = p.client.PullRequests.ListPullRequestsWithCommit(ctx, repo.Owner, repo.Name, sha, &github.ListOptions{PerPage: 1})
		return resp, err
	})
	if err != nil {
		return false, err
	}
	return len(prs) > 0, nil
}

// call runs fn, waiting out rate limits up to MaxRetries times, and maps
// the final error onto the model error kinds
func (p *Provider) call(ctx context.Context, op string, fn func() (*github.Response, error)) error {
	for attempt := 0; ; attempt++ {
		resp, err := fn()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		wait, limited := p.rateLimitWait(err, resp)
		if limited && wait >= 0 && attempt < p.config.MaxRetries {
			p.logger.Warn("rate limited, waiting", "op", op, "wait", wait.String(), "attempt", attempt+1)
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
			continue
		}

		return classify(op, err, resp)
	}
}

// rateLimitWait reports whether err is a rate limit and how long to wait for it.
// A negative wait means the reset is too far away.
func (p *Provider) rateLimitWait(err error, resp *github.Response) (time.Duration, bool) {
	switch e := err.(type) {
	case *github.RateLimitError:
		wait := time.Until(e.Rate.Reset.Time) + time.Second
		if wait < 0 {
			wait = time.Second
		}
		if p.config.RateLimitWait > 0 && wait > p.config.RateLimitWait {
			return -1, true
		}
		return wait, true

	case *github.AbuseRateLimitError:
		return p.capWait(lang.Deref(e.RetryAfter)), true

	case *github.ErrorResponse:
		if e.Response != nil && e.Response.StatusCode == http.StatusTooManyRequests {
			return p.capWait(retryAfter(e.Response)), true
		}
	}
	return 0, false
}

func (p *Provider) capWait(wait time.Duration) time.Duration {
	wait = lang.Check(wait, defaultAbuseWait)
	if p.config.RateLimitWait > 0 && wait > p.config.RateLimitWait {
		return p.config.RateLimitWait
	}
	return wait
}

func classify(op string, err error, resp *github.Response) error {
	switch err.(type) {
	case *github.RateLimitError, *github.AbuseRateLimitError:
		return wrapKind(model.ErrRateLimited, op, err)
	}

	status := 0
	if resp != nil && resp.Response != nil {
		status = resp.StatusCode
	}
	if e, ok := err.(*github.ErrorResponse); ok && e.Response != nil {
		status = e.Response.StatusCode
	}

	switch status {
	case http.StatusUnauthorized:
		return wrapKind(model.ErrUnauthorized, op, err)
	case http.StatusTooManyRequests:
		return wrapKind(model.ErrRateLimited, op, err)
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone, http.StatusUnprocessableEntity,
		http.StatusUnavailableForLegalReasons, http.StatusConflict:
		return wrapKind(model.ErrNotFound, op, err)
	}
	return wrapKind(model.ErrTransient, op, err)
}

func wrapKind(kind error, op string, err error) error {
	return errm.Wrap(kind, fmt.Sprintf("%s: %s", op, lang.TruncateString(err.Error(), 200)))
}

func retryAfter(resp *http.Response) time.Duration {
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func convertRuns(runs []*github.WorkflowRun) []model.WorkflowRun {
	out := make([]model.WorkflowRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, model.WorkflowRun{
			ID:           r.GetID(),
			HeadSHA:      r.GetHeadSHA(),
			Conclusion:   model.NormalizeConclusion(r.GetConclusion()),
			Event:        r.GetEvent(),
			WorkflowName: r.GetName(),
			Status:       r.GetStatus(),
			CreatedAt:    r.GetCreatedAt().Time,
		})
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
