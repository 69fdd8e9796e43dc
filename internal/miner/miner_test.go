package miner

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/collector"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/maxbolgarin/errm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

type history struct {
	repo *git.Repository
	fs   billy.Filesystem
	step int
}

// commit records files on the current branch, explicit parents make a merge commit
func (h *history) commit(t *testing.T, msg string, files map[string]string, parents ...string) string {
	t.Helper()

	w, err := h.repo.Worktree()
	require.NoError(t, err)

	for path, content := range files {
		require.NoError(t, util.WriteFile(h.fs, path, []byte(content), 0o644))
		_, err := w.Add(path)
		require.NoError(t, err)
	}

	h.step++
	opts := &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: epoch.Add(time.Duration(h.step) * time.Hour)},
	}
	for _, p := range parents {
		opts.Parents = append(opts.Parents, plumbing.NewHash(p))
	}
	hash, err := w.Commit(msg, opts)
	require.NoError(t, err)
	return hash.String()
}

func newMemoryHistory(t *testing.T) *history {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	return &history{repo: repo, fs: fs}
}

// sampleHistory builds three commits: a root, a fix touching a test and a docs change
func sampleHistory(t *testing.T, h *history) (root, fix, docs string) {
	root = h.commit(t, "initial commit", map[string]string{
		"main.go": "package main\n\nfunc main() {}\n",
	})
	fix = h.commit(t, "Fix crash on start", map[string]string{
		"main.go":      "package main\n\nfunc main() {}\n\nfunc helper() {}\n",
		"main_test.go": "package main\n",
	})
	docs = h.commit(t, "docs", map[string]string{
		"README.md": "# demo\n",
	})
	return root, fix, docs
}

func newMiner(t *testing.T, cfg Config) *Miner {
	t.Helper()
	if cfg.LocalRepo == "" && cfg.RepoURL == "" {
		cfg.LocalRepo = "unused"
	}
	m, err := New(cfg, nil)
	require.NoError(t, err)
	return m
}

func TestMineJoinsRunsBySHA(t *testing.T) {
	h := newMemoryHistory(t)
	root, fix, docs := sampleHistory(t, h)

	runs := []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
		{ID: 4, HeadSHA: fix, Conclusion: model.ConclusionSuccess, WorkflowName: "CI", CreatedAt: epoch},
		{ID: 5, HeadSHA: fix, Conclusion: model.ConclusionFailure, WorkflowName: "CI", CreatedAt: epoch.Add(time.Minute)},
		{ID: 6, HeadSHA: docs, Conclusion: model.ConclusionCancelled, WorkflowName: "CI"},
		{ID: 7, HeadSHA: "0000000000000000000000000000000000000001", Conclusion: model.ConclusionFailure, WorkflowName: "CI"},
	}
	out := filepath.Join(t.TempDir(), "dataset.csv")

	stats, err := newMiner(t, Config{}).mine(context.Background(), h.repo, runs, out)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Walked)
	assert.Equal(t, 2, stats.Mined)
	assert.Equal(t, 1, stats.Failed)

	rows, err := dataset.ReadRows[model.DatasetRow](out)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byHash := map[string]model.DatasetRow{}
	for _, r := range rows {
		assert.Contains(t, []model.Flag{0, 1}, r.PipelineFailed)
		byHash[r.CommitHash] = r
	}
	assert.NotContains(t, byHash, docs, "commit without a decisive run is excluded")

	assert.Equal(t, model.DatasetRow{
		CommitHash:   root,
		LinesAdded:   3,
		FilesChanged: 1,
	}, byHash[root])

	assert.Equal(t, model.DatasetRow{
		CommitHash:     fix,
		LinesAdded:     3,
		FilesChanged:   2,
		HasFixKeyword:  1,
		ChangedTests:   1,
		PipelineFailed: 1,
	}, byHash[fix])
}

// interruptedContext starts reporting cancellation after a number of Err calls
type interruptedContext struct {
	context.Context
	calls atomic.Int32
	after int32
}

func (c *interruptedContext) Err() error {
	if c.calls.Add(1) > c.after {
		return context.Canceled
	}
	return nil
}

func TestMineInterruptedKeepsMinedRows(t *testing.T) {
	h := newMemoryHistory(t)
	root, fix, docs := sampleHistory(t, h)
	out := filepath.Join(t.TempDir(), "dataset.csv")

	m := newMiner(t, Config{Append: true})
	_, err := m.mine(context.Background(), h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
	}, out)
	require.NoError(t, err)

	runs := []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
		{ID: 2, HeadSHA: fix, Conclusion: model.ConclusionFailure, WorkflowName: "CI"},
		{ID: 3, HeadSHA: docs, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
	}
	// newest first: docs and fix are mined, the walk stops before root
	ctx := &interruptedContext{Context: context.Background(), after: 2}

	stats, err := m.mine(ctx, h.repo, runs, out)
	require.Error(t, err)
	assert.True(t, errm.Is(err, context.Canceled))
	assert.Equal(t, 2, stats.Mined)

	rows, err := dataset.ReadRows[model.DatasetRow](out)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, root, rows[0].CommitHash, "existing rows are kept")
	assert.Equal(t, docs, rows[1].CommitHash)
	assert.Equal(t, fix, rows[2].CommitHash)
	assert.Equal(t, model.Flag(1), rows[2].PipelineFailed)
}

func TestMineInterruptedBeforeAnyRow(t *testing.T) {
	h := newMemoryHistory(t)
	root, _, _ := sampleHistory(t, h)
	out := filepath.Join(t.TempDir(), "dataset.csv")

	ctx := &interruptedContext{Context: context.Background()}
	_, err := newMiner(t, Config{}).mine(ctx, h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
	}, out)
	assert.True(t, errm.Is(err, context.Canceled))
	assert.NoFileExists(t, out)
}

func TestMineMergeCommitDiffsFirstParent(t *testing.T) {
	h := newMemoryHistory(t)
	h.commit(t, "initial commit", map[string]string{"main.go": "package main\n"})

	w, err := h.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, w.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("side"), Create: true}))
	side := h.commit(t, "add side test", map[string]string{"b_test.go": "package main\n"})

	require.NoError(t, w.Checkout(&git.CheckoutOptions{Branch: plumbing.Master}))
	mainline := h.commit(t, "extend main", map[string]string{
		"main.go": "package main\n\nfunc a() {}\nfunc b() {}\n",
	})
	merge := h.commit(t, "Merge branch side", map[string]string{"b_test.go": "package main\n"}, mainline, side)

	out := filepath.Join(t.TempDir(), "dataset.csv")
	_, err = newMiner(t, Config{}).mine(context.Background(), h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: merge, Conclusion: model.ConclusionFailure, WorkflowName: "CI"},
	}, out)
	require.NoError(t, err)

	rows, err := dataset.ReadRows[model.DatasetRow](out)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	// against mainline only b_test.go changed, against side it would be main.go with 3 lines
	assert.Equal(t, model.DatasetRow{
		CommitHash:     merge,
		LinesAdded:     1,
		FilesChanged:   1,
		ChangedTests:   1,
		PipelineFailed: 1,
	}, rows[0])
}

func TestMineSuccessScenario(t *testing.T) {
	h := newMemoryHistory(t)
	root, _, _ := sampleHistory(t, h)

	runs := []model.WorkflowRun{{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, Event: "push", WorkflowName: "CI"}}
	out := filepath.Join(t.TempDir(), "dataset.csv")

	_, err := newMiner(t, Config{}).mine(context.Background(), h.repo, runs, out)
	require.NoError(t, err)

	rows, err := dataset.ReadRows[model.DatasetRow](out)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, root, rows[0].CommitHash)
	assert.Equal(t, model.Flag(0), rows[0].PipelineFailed)
}

func TestMineAppendSkipsKnownHashes(t *testing.T) {
	h := newMemoryHistory(t)
	root, fix, _ := sampleHistory(t, h)
	out := filepath.Join(t.TempDir(), "dataset.csv")

	m := newMiner(t, Config{Append: true})
	_, err := m.mine(context.Background(), h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
	}, out)
	require.NoError(t, err)

	stats, err := m.mine(context.Background(), h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
		{ID: 2, HeadSHA: fix, Conclusion: model.ConclusionFailure, WorkflowName: "CI"},
	}, out)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Existing)
	assert.Equal(t, 1, stats.Duplicates)

	rows, err := dataset.ReadRows[model.DatasetRow](out)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, root, rows[0].CommitHash)
	assert.Equal(t, fix, rows[1].CommitHash)

	header, err := dataset.ReadHeader(out)
	require.NoError(t, err)
	assert.Equal(t, model.DatasetColumns, header)
}

func TestMineFatalCases(t *testing.T) {
	h := newMemoryHistory(t)
	_, _, docs := sampleHistory(t, h)
	out := filepath.Join(t.TempDir(), "dataset.csv")
	m := newMiner(t, Config{})

	_, err := m.mine(context.Background(), h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: docs, Conclusion: model.ConclusionCancelled},
	}, out)
	assert.True(t, errm.Is(err, ErrNoLabels))

	_, err = m.mine(context.Background(), h.repo, []model.WorkflowRun{
		{ID: 1, HeadSHA: "0000000000000000000000000000000000000001", Conclusion: model.ConclusionSuccess},
	}, out)
	assert.True(t, errm.Is(err, ErrNoRows))
	assert.NoFileExists(t, out)
}

func TestMineLocalRepository(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	w, err := repo.Worktree()
	require.NoError(t, err)

	h := &history{repo: repo, fs: w.Filesystem}
	root, fix, _ := sampleHistory(t, h)

	runsPath := filepath.Join(t.TempDir(), "runs.json")
	require.NoError(t, collector.WriteRunList(runsPath, []model.WorkflowRun{
		{ID: 1, HeadSHA: root, Conclusion: model.ConclusionSuccess, WorkflowName: "CI"},
		{ID: 2, HeadSHA: fix, Conclusion: model.ConclusionFailure, WorkflowName: "CI"},
	}))
	out := filepath.Join(t.TempDir(), "dataset.csv")

	m := newMiner(t, Config{LocalRepo: t.TempDir()})
	_, err = m.Mine(context.Background(), runsPath, out)
	require.Error(t, err, "not a repository")

	m = newMiner(t, Config{LocalRepo: dir})
	stats, err := m.Mine(context.Background(), runsPath, out)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Mined)
}

func TestLabelMap(t *testing.T) {
	labels := LabelMap([]model.WorkflowRun{
		{ID: 1, HeadSHA: "AAA", Conclusion: model.ConclusionSuccess, WorkflowName: "build"},
		{ID: 2, HeadSHA: "aaa", Conclusion: model.ConclusionFailure, WorkflowName: "lint"},
		{ID: 3, HeadSHA: "bbb", Conclusion: model.ConclusionSuccess, WorkflowName: "build"},
		{ID: 4, HeadSHA: "ccc", Conclusion: model.ConclusionSkipped, WorkflowName: "build"},
		{ID: 5, HeadSHA: "", Conclusion: model.ConclusionFailure},
	})
	assert.Equal(t, map[string]bool{"aaa": true, "bbb": false}, labels)
}

func TestCountLines(t *testing.T) {
	assert.Equal(t, 0, countLines(""))
	assert.Equal(t, 1, countLines("a"))
	assert.Equal(t, 1, countLines("a\n"))
	assert.Equal(t, 2, countLines("a\nb"))
}

func TestConfigValidation(t *testing.T) {
	cfg := Config{}
	assert.Error(t, cfg.PrepareAndValidate())

	cfg = Config{RepoURL: "https://github.com/octo/demo.git"}
	require.NoError(t, cfg.PrepareAndValidate())
	assert.Equal(t, defaultProgressEvery, cfg.ProgressEvery)
}
