package bitbucket

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/maxbolgarin/errm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var repo = model.RepoRef{Owner: "octo", Name: "demo"}

const prefix = "/repositories/octo/demo"

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(model.ProviderConfig{BaseURL: srv.URL + "/", Token: "test-token"})
	require.NoError(t, err)
	return p
}

func TestListRunsPaginates(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, prefix+"/pipelines/", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "x-token-auth", user)
		assert.Equal(t, "test-token", pass)

		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `{"next":"page-2","values":[
				{"build_number":12,"created_on":"2024-01-03T00:00:00Z",
				 "state":{"name":"COMPLETED","result":{"name":"SUCCESSFUL"}},
				 "target":{"commit":{"hash":"e45dd"},"selector":{"type":"branches","pattern":"main"}},
				 "trigger":{"name":"PUSH"}}]}`)
		case "2":
			fmt.Fprint(w, `{"values":[
				{"build_number":11,"state":{"name":"IN_PROGRESS"},"target":{"commit":{"hash":"a1"}},"trigger":{"name":"MANUAL"}}]}`)
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("page"))
		}
	})

	var pages [][]model.WorkflowRun
	err := p.ListRuns(context.Background(), repo, model.ListRunsOptions{}, func(runs []model.WorkflowRun) error {
		pages = append(pages, runs)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, pages, 2)

	assert.Equal(t, model.WorkflowRun{
		ID:           12,
		HeadSHA:      "e45dd",
		Conclusion:   model.ConclusionSuccess,
		Event:        "push",
		WorkflowName: "branches:main",
		Status:       "completed",
		CreatedAt:    time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
	}, pages[0][0])
	assert.Equal(t, model.ConclusionPending, pages[1][0].Conclusion)
	assert.Equal(t, defaultWorkflow, pages[1][0].WorkflowName)
}

func TestCommitLookups(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case prefix + "/commit/abc123/statuses":
			fmt.Fprint(w, `{"values":[
				{"key":"build","state":"FAILED","created_on":"2024-01-03T00:00:00Z"},
				{"key":"lint","state":"SUCCESSFUL"}]}`)
		case prefix + "/commit/abc123":
			fmt.Fprint(w, `{"hash":"abc123","parents":[{"hash":"p1"}]}`)
		case prefix + "/diffstat/abc123":
			fmt.Fprint(w, `{"values":[{"lines_added":5,"lines_removed":2},{"lines_added":1,"lines_removed":0}]}`)
		case prefix + "/commit/abc123/pullrequests":
			fmt.Fprint(w, `{"values":[]}`)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})
	ctx := context.Background()

	runs, err := p.ListRunsForCommit(ctx, repo, "abc123")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "build", runs[0].WorkflowName)
	assert.Equal(t, model.LabelFailed, model.LabelFromRuns(runs))

	status, err := p.GetCombinedStatus(ctx, repo, "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.CommitStatus{State: "failure", Contexts: []string{"build", "lint"}}, status)

	details, err := p.GetCommitDetails(ctx, repo, "abc123")
	require.NoError(t, err)
	assert.Equal(t, model.CommitDetails{SHA: "abc123", FilesChanged: 2, Additions: 6, Deletions: 2, ParentsCount: 1}, details)

	has, err := p.HasPullRequest(ctx, repo, "abc123")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestClassify(t *testing.T) {
	cause := errm.New("request failed")

	tests := []struct {
		status int
		kind   error
	}{
		{http.StatusUnauthorized, model.ErrUnauthorized},
		{http.StatusTooManyRequests, model.ErrRateLimited},
		{http.StatusNotFound, model.ErrNotFound},
		{http.StatusForbidden, model.ErrNotFound},
		{http.StatusBadGateway, model.ErrTransient},
		{0, model.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := classify("get commit", cause, tt.status)
			assert.True(t, errm.Is(err, tt.kind))
			assert.Contains(t, err.Error(), "get commit")
		})
	}

	assert.Equal(t, context.Canceled, classify("get commit", context.Canceled, 0))
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(model.ProviderConfig{})
	assert.Error(t, err)
}
