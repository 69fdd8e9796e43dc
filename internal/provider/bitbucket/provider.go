package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/maxbolgarin/cliex"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
)

var _ interfaces.CIProvider = (*Provider)(nil)

const (
	defaultBaseURL  = "https://api.bitbucket.org/2.0"
	defaultPageLen  = 100
	defaultWorkflow = "bitbucket-pipelines"
)

// Provider implements the CIProvider interface for Bitbucket Cloud
type Provider struct {
	config model.ProviderConfig
	logger logze.Logger
	client *cliex.HTTP
}

// New creates a new Bitbucket provider
func New(config model.ProviderConfig) (*Provider, error) {
	if config.Token == "" {
		return nil, errm.New("Bitbucket token is required")
	}
	log := logze.With("provider", "bitbucket", "component", "provider")

	// Set base URL
	baseURL := defaultBaseURL
	if config.BaseURL != "" {
		baseURL = strings.TrimSuffix(config.BaseURL, "/")
	}

	cli, err := cliex.New(cliex.WithBaseURL(baseURL), cliex.WithLogger(log))
	if err != nil {
		return nil, errm.Wrap(err, "failed to create Bitbucket client")
	}
	cli.C().SetBasicAuth("x-token-auth", config.Token)
	if config.HTTPClient != nil && config.HTTPClient.Transport != nil {
		cli.C().SetTransport(config.HTTPClient.Transport)
	}

	return &Provider{
		client: cli,
		config: config,
		logger: log,
	}, nil
}

// CheckAccess verifies the token can read the repository
func (p *Provider) CheckAccess(ctx context.Context, repo model.RepoRef) error {
	var out struct {
		FullName string `json:"full_name"`
	}
	resp, err := p.client.Get(ctx, repoPath(repo, ""), &out)
	if err != nil {
		return classify("get repository", err, statusOf(resp != nil, func() int { return resp.StatusCode() }))
	}
	return nil
}

// ListRuns pages through all pipelines of the repository, newest first
func (p *Provider) ListRuns(ctx context.Context, repo model.RepoRef, opts model.ListRunsOptions, fn func([]model.WorkflowRun) error) error {
	pageLen := lang.Check(opts.PerPage, defaultPageLen)

	for page := 1; ; page++ {
		apiURL := repoPath(repo, fmt.Sprintf("/pipelines/?sort=-created_on&pagelen=%d&page=%d", pageLen, page))

		var out pipelinesPage
		resp, err := p.client.Get(ctx, apiURL, &out)
		if err != nil {
			return classify("list pipelines", err, statusOf(resp != nil, func() int { return resp.StatusCode() }))
		}

		p.logger.Debug("fetched pipelines page", "repo", repo.String(), "page", page, "runs", len(out.Values))
		runs := make([]model.WorkflowRun, 0, len(out.Values))
		for _, pl := range out.Values {
			runs = append(runs, pl.toRun())
		}
		if err := fn(runs); err != nil {
			return err
		}

		if out.Next == "" || len(out.Values) == 0 || (opts.MaxPages > 0 && page >= opts.MaxPages) {
			break
		}
	}

	return nil
}

// ListRunsForCommit returns build statuses reported for sha, one run per status key
func (p *Provider) ListRunsForCommit(ctx context.Context, repo model.RepoRef, sha string) ([]model.WorkflowRun, error) {
	statuses, err := p.statuses(ctx, repo, sha)
	if err != nil {
		return nil, err
	}

	runs := make([]model.WorkflowRun, 0, len(statuses))
	for i, s := range statuses {
		runs = append(runs, model.WorkflowRun{
			ID:           int64(i + 1),
			HeadSHA:      sha,
			Conclusion:   model.NormalizeConclusion(s.State),
			Event:        "status",
			WorkflowName: lang.Check(s.Key, s.Name),
			Status:       strings.ToLower(s.State),
			CreatedAt:    parseTime(s.CreatedOn),
		})
	}
	return runs, nil
}

// GetCombinedStatus folds build statuses of sha into one state
func (p *Provider) GetCombinedStatus(ctx context.Context, repo model.RepoRef, sha string) (model.CommitStatus, error) {
	statuses, err := p.statuses(ctx, repo, sha)
	if err != nil {
		return model.CommitStatus{}, err
	}

	out := model.CommitStatus{State: "pending"}
	success := 0
	for _, s := range statuses {
		out.Contexts = append(out.Contexts, lang.Check(s.Key, s.Name))
		switch model.NormalizeConclusion(s.State) {
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
	var commit bitbucketCommit
	resp, err := p.client.Get(ctx, repoPath(repo, "/commit/"+url.PathEscape(sha)), &commit)
	if err != nil {
		return model.CommitDetails{}, classify("get commit", err, statusOf(resp != nil, func() int { return resp.StatusCode() }))
	}

	details := model.CommitDetails{
		SHA:          lang.Check(commit.Hash, sha),
		ParentsCount: len(commit.Parents),
	}

	for page := 1; ; page++ {
		var out diffstatPage
		apiURL := repoPath(repo, fmt.Sprintf("/diffstat/%s?pagelen=%d&page=%d", url.PathEscape(sha), defaultPageLen, page))
		resp, err := p.client.Get(ctx, apiURL, &out)
		if err != nil {
			return details, classify("get diffstat", err, statusOf(resp != nil, func() int { return resp.StatusCode() }))
		}
		for _, d := range out.Values {
			details.FilesChanged++
			details.Additions += d.LinesAdded
			details.Deletions += d.LinesRemoved
		}
		if out.Next == "" || len(out.Values) == 0 {
			break
		}
	}

	return details, nil
}

// HasPullRequest reports whether sha belongs to at least one pull request
func (p *Provider) HasPullRequest(ctx context.Context, repo model.RepoRef, sha string) (bool, error) {
	var out struct {
		Values []struct {
			ID int `json:"id"`
		} `json:"values"`
	}
	resp, err := p.client.Get(ctx, repoPath(repo, "/commit/"+url.PathEscape(sha)+"/pullrequests?pagelen=1"), &out)
	if err != nil {
		return false, classify("list pull requests for commit", err, statusOf(resp != nil, func() int { return resp.StatusCode() }))
	}
	return len(out.Values) > 0, nil
}

func (p *Provider) statuses(ctx context.Context, repo model.RepoRef, sha string) ([]commitStatus, error) {
	var result []commitStatus
	for page := 1; ; page++ {
		var out statusesPage
		apiURL := repoPath(repo, fmt.Sprintf("/commit/%s/statuses?pagelen=%d&page=%d", url.PathEscape(sha), defaultPageLen, page))
		resp, err := p.client.Get(ctx, apiURL, &out)
		if err != nil {
			return nil, classify("list commit statuses", err, statusOf(resp != nil, func() int { return resp.StatusCode() }))
		}
		result = append(result, out.Values...)
		if out.Next == "" || len(out.Values) == 0 {
			break
		}
	}
	return result, nil
}

func repoPath(repo model.RepoRef, suffix string) string {
	return fmt.Sprintf("repositories/%s/%s%s", url.PathEscape(repo.Owner), url.PathEscape(repo.Name), suffix)
}

func statusOf(ok bool, code func() int) int {
	if !ok {
		return 0
	}
	return code()
}

func classify(op string, err error, status int) error {
	if errm.Is(err, context.Canceled) || errm.Is(err, context.DeadlineExceeded) {
		return err
	}

	kind := model.ErrTransient
	switch status {
	case http.StatusUnauthorized:
		kind = model.ErrUnauthorized
	case http.StatusTooManyRequests:
		kind = model.ErrRateLimited
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		kind = model.ErrNotFound
	}
	return errm.Wrap(kind, fmt.Sprintf("%s: %s", op, lang.TruncateString(err.Error(), 200)))
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

type pipelinesPage struct {
	Values []pipeline `json:"values"`
	Next   string     `json:"next"`
}

type pipeline struct {
	UUID        string `json:"uuid"`
	BuildNumber int64  `json:"build_number"`
	CreatedOn   string `json:"created_on"`
	State       struct {
		Name   string `json:"name"`
		Result struct {
			Name string `json:"name"`
		} `json:"result"`
	} `json:"state"`
	Target struct {
		RefName string `json:"ref_name"`
		Commit  struct {
			Hash string `json:"hash"`
		} `json:"commit"`
		Selector struct {
			Type    string `json:"type"`
			Pattern string `json:"pattern"`
		} `json:"selector"`
	} `json:"target"`
	Trigger struct {
		Name string `json:"name"`
	} `json:"trigger"`
}

func (pl pipeline) toRun() model.WorkflowRun {
	conclusion := model.ConclusionPending
	if strings.EqualFold(pl.State.Name, "COMPLETED") {
		conclusion = model.NormalizeConclusion(pl.State.Result.Name)
	}

	workflow := defaultWorkflow
	if pl.Target.Selector.Pattern != "" {
		workflow = pl.Target.Selector.Type + ":" + pl.Target.Selector.Pattern
	}

	return model.WorkflowRun{
		ID:           pl.BuildNumber,
		HeadSHA:      pl.Target.Commit.Hash,
		Conclusion:   conclusion,
		Event:        strings.ToLower(pl.Trigger.Name),
		WorkflowName: workflow,
		Status:       strings.ToLower(pl.State.Name),
		CreatedAt:    parseTime(pl.CreatedOn),
	}
}

type statusesPage struct {
	Values []commitStatus `json:"values"`
	Next   string         `json:"next"`
}

type commitStatus struct {
	Key       string `json:"key"`
	Name      string `json:"name"`
	State     string `json:"state"`
	CreatedOn string `json:"created_on"`
}

type bitbucketCommit struct {
	Hash    string `json:"hash"`
	Parents []struct {
		Hash string `json:"hash"`
	} `json:"parents"`
}

type diffstatPage struct {
	Values []struct {
		LinesAdded   int `json:"lines_added"`
		LinesRemoved int `json:"lines_removed"`
	} `json:"values"`
	Next string `json:"next"`
}
