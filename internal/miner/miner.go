// Package miner walks a git history and turns commits with a known CI outcome
// into labeled dataset rows.
package miner

import (
	"context"
	"os"
	"strings"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/collector"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/features"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/logze/v2"
)

var (
	ErrNoLabels = errm.New("no labeled SHAs in run list")
	ErrNoRows   = errm.New("no rows mined")
)

// Stats describes one mining run
type Stats struct {
	Labels     int
	Walked     int
	Matched    int
	Mined      int
	Failed     int
	Errors     int
	Duplicates int
	Existing   int
}

// Miner joins git commits with CI outcomes by SHA
type Miner struct {
	matcher *features.Matcher

	cfg Config
	log logze.Logger
}

// New creates a new miner, nil matcher means default feature rules
func New(cfg Config, matcher *features.Matcher) (*Miner, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "failed to prepare and validate config")
	}
	if matcher == nil {
		matcher = features.Default()
	}
	return &Miner{
		matcher: matcher,
		cfg:     cfg,
		log:     logze.With("component", "miner"),
	}, nil
}

// Mine reads the run list at runsPath, walks the configured repository and writes
// one row per labeled commit to outPath.
func (m *Miner) Mine(ctx context.Context, runsPath, outPath string) (Stats, error) {
	runs, err := collector.ReadRunList(runsPath)
	if err != nil {
		return Stats{}, errm.Wrap(err, "failed to read run list")
	}

	repo, cleanup, err := m.openRepository(ctx)
	defer cleanup()
	if err != nil {
		return Stats{}, err
	}

	return m.mine(ctx, repo, runs, outPath)
}

func (m *Miner) mine(ctx context.Context, repo *git.Repository, runs []model.WorkflowRun, outPath string) (Stats, error) {
	var stats Stats
	timer := abstract.StartTimer()

	labels := LabelMap(runs)
	stats.Labels = len(labels)
	if len(labels) == 0 {
		return stats, ErrNoLabels
	}
	m.log.Info("built label map", "runs", len(runs), "labeled_shas", len(labels))

	// rows mined before an interrupted walk are still written
	rows, walkErr := m.walk(ctx, repo, labels, &stats)
	if len(rows) == 0 {
		if walkErr != nil {
			return stats, walkErr
		}
		return stats, ErrNoRows
	}

	if m.cfg.Append {
		existing, err := readExisting(outPath)
		if err != nil {
			return stats, errm.Wrap(err, "failed to read existing dataset")
		}
		stats.Existing = len(existing)
		rows = mergeRows(existing, rows, &stats)
	}

	if err := dataset.WriteRows(outPath, rows); err != nil {
		return stats, errm.Wrap(err, "failed to write dataset")
	}

	m.log.Info("mining finished",
		"walked", stats.Walked,
		"matched", stats.Matched,
		"mined", stats.Mined,
		"pipeline_failed", stats.Failed,
		"errors", stats.Errors,
		"duplicates", stats.Duplicates,
		"elapsed", timer.ElapsedTime().String(),
	)

	if walkErr != nil {
		m.log.Warn("mining interrupted, partial dataset written", "path", outPath, "rows", len(rows))
		return stats, walkErr
	}
	return stats, nil
}

// walk visits every commit reachable from any ref, commits without a label are skipped before diffing
func (m *Miner) walk(ctx context.Context, repo *git.Repository, labels map[string]bool, stats *Stats) ([]model.DatasetRow, error) {
	iter, err := repo.Log(&git.LogOptions{All: true, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, errm.Wrap(err, "failed to read history")
	}
	defer iter.Close()

	var rows []model.DatasetRow
	seen := make(map[string]struct{})

	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Walked++

		hash := c.Hash.String()
		failed, ok := labels[hash]
		if !ok {
			return nil
		}
		if _, dup := seen[hash]; dup {
			stats.Duplicates++
			return nil
		}
		seen[hash] = struct{}{}
		stats.Matched++

		commit, err := m.commit(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Warn("failed to diff commit", "commit", hash, "error", err)
			stats.Errors++
			return nil
		}

		rows = append(rows, m.row(commit, failed))
		stats.Mined++
		if failed {
			stats.Failed++
		}

		m.log.DebugIf(m.cfg.Verbose, "mined commit", "commit", hash, "files", commit.Stats.TotalFiles, "failed", failed)
		if stats.Mined%m.cfg.ProgressEvery == 0 {
			m.log.Info("mining progress", "mined", stats.Mined, "walked", stats.Walked)
		}
		return nil
	})
	if err != nil {
		return rows, errm.Wrap(err, "failed to walk history")
	}

	return rows, nil
}

// commit computes statistics of c against its first parent, a root commit is diffed against an empty tree
func (m *Miner) commit(ctx context.Context, c *object.Commit) (model.Commit, error) {
	out := model.Commit{
		Hash:         c.Hash.String(),
		Message:      c.Message,
		Author:       c.Author.Name,
		Timestamp:    c.Committer.When,
		ParentsCount: c.NumParents(),
	}

	tree, err := c.Tree()
	if err != nil {
		return out, errm.Wrap(err, "failed to get tree")
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return out, errm.Wrap(err, "failed to get first parent")
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return out, errm.Wrap(err, "failed to get parent tree")
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, nil)
	if err != nil {
		return out, errm.Wrap(err, "failed to diff trees")
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return out, errm.Wrap(err, "failed to build patch")
	}

	out.Stats, out.Paths = patchStats(patch)
	return out, nil
}

func (m *Miner) row(c model.Commit, failed bool) model.DatasetRow {
	return model.DatasetRow{
		CommitHash:     c.Hash,
		LinesAdded:     c.Stats.Additions,
		LinesDeleted:   c.Stats.Deletions,
		FilesChanged:   c.Stats.TotalFiles,
		HasFixKeyword:  model.FlagOf(m.matcher.HasFixKeyword(c.Message)),
		ChangedTests:   model.FlagOf(m.matcher.AnyTestPath(c.Paths...)),
		PipelineFailed: model.FlagOf(failed),
	}
}

// LabelMap maps head SHAs to whether their pipeline failed.
// SHAs without a decisive run are left out.
func LabelMap(runs []model.WorkflowRun) map[string]bool {
	bySHA := make(map[string][]model.WorkflowRun)
	for _, r := range runs {
		sha := strings.ToLower(strings.TrimSpace(r.HeadSHA))
		if sha == "" {
			continue
		}
		bySHA[sha] = append(bySHA[sha], r)
	}

	out := make(map[string]bool, len(bySHA))
	for sha, group := range bySHA {
		if c, ok := model.SelectOutcome(group); ok {
			out[sha] = c.IsFailure()
		}
	}
	return out
}

func readExisting(path string) ([]model.DatasetRow, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	return dataset.ReadRows[model.DatasetRow](path)
}

// mergeRows appends mined rows whose hash is not already present
func mergeRows(existing, mined []model.DatasetRow, stats *Stats) []model.DatasetRow {
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.CommitHash] = struct{}{}
	}
	out := existing
	for _, r := range mined {
		if _, ok := seen[r.CommitHash]; ok {
			stats.Duplicates++
			continue
		}
		seen[r.CommitHash] = struct{}{}
		out = append(out, r)
	}
	return out
}
