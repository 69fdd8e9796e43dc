// Package labeler attaches a best-effort CI build outcome to every distinct
// commit of an enhanced historical dataset.
package labeler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/features"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/logze/v2"
	"github.com/panjf2000/ants/v2"
)

// Stats describes one labeling run
type Stats struct {
	Rows      int
	Commits   int
	Resumed   int
	Labeled   int
	Transient int
	WithCI    int
	Labels    map[model.BuildLabel]int
}

// Coverage is the share of labeled commits that had any CI signal
func (s Stats) Coverage() float64 {
	if s.Labeled == 0 {
		return 0
	}
	return float64(s.WithCI) / float64(s.Labeled)
}

// Labeler queries a CI provider for the outcome of historical commits
type Labeler struct {
	provider interfaces.CIProvider
	matcher  *features.Matcher

	cfg Config
	log logze.Logger
}

// New creates a new labeler, nil matcher means default feature rules
func New(cfg Config, provider interfaces.CIProvider, matcher *features.Matcher) (*Labeler, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "failed to prepare and validate config")
	}
	if provider == nil {
		return nil, erro.New("provider is required")
	}
	if matcher == nil {
		matcher = features.Default()
	}

	return &Labeler{
		provider: provider,
		matcher:  matcher,
		cfg:      cfg,
		log:      logze.With("component", "labeler"),
	}, nil
}

// Label reads the enhanced table at inPath and writes one labeled row per commit to outPath.
// The output is written even when the run is aborted, it holds every commit with a result.
func (l *Labeler) Label(ctx context.Context, inPath, outPath string) (stats Stats, err error) {
	timer := abstract.StartTimer()
	stats.Labels = make(map[model.BuildLabel]int)

	groups, rows, err := collapse(inPath, l.cfg.Limit)
	if err != nil {
		return stats, err
	}
	stats.Rows, stats.Commits = rows, len(groups)
	l.log.Info("collapsed enhanced rows", "rows", rows, "commits", len(groups), "limit", l.cfg.Limit)

	results := make([]*model.LabelResult, len(groups))

	var cp *Checkpoint
	if path := l.cfg.checkpointPath(outPath); path != "" {
		cp, err = OpenCheckpoint(ctx, path)
		if err != nil {
			return stats, errm.Wrap(err, "failed to open checkpoint")
		}
		defer cp.Close()

		done, err := cp.Load(ctx)
		if err != nil {
			return stats, errm.Wrap(err, "failed to load checkpoint")
		}
		for i, g := range groups {
			if res, ok := done[g.hash()]; ok {
				results[i] = &res
				stats.Resumed++
			}
		}
		l.log.InfoIf(stats.Resumed > 0, "resuming from checkpoint", "path", path, "done", stats.Resumed)
	}

	runErr := l.labelAll(ctx, groups, results, cp)

	out := make([]model.LabeledRow, 0, len(groups))
	for i, g := range groups {
		res := results[i]
		if res == nil {
			continue
		}
		out = append(out, g.row(l.matcher, *res))

		stats.Labeled++
		stats.Labels[res.Label]++
		if res.HasCI {
			stats.WithCI++
		}
		if res.Transient {
			stats.Transient++
		}
	}

	if err := dataset.WriteRows(outPath, out); err != nil {
		return stats, errm.Wrap(err, "failed to write labeled rows")
	}

	l.log.Info("labeling finished",
		"commits", stats.Commits,
		"labeled", stats.Labeled,
		"resumed", stats.Resumed,
		"transient", stats.Transient,
		"passed", stats.Labels[model.LabelPassed],
		"failed", stats.Labels[model.LabelFailed],
		"no_ci", stats.Labels[model.LabelNoCI],
		"unknown", stats.Labels[model.LabelUnknown],
		"ci_coverage", fmt.Sprintf("%.1f%%", stats.Coverage()*100),
		"elapsed", timer.ElapsedTime().String(),
	)

	if runErr != nil {
		return stats, runErr
	}
	return stats, nil
}

func (l *Labeler) labelAll(ctx context.Context, groups []*commitGroup, results []*model.LabelResult, cp *Checkpoint) error {
	pool, err := ants.NewPool(l.cfg.Concurrency)
	if err != nil {
		return errm.Wrap(err, "failed to create ants pool")
	}
	defer pool.Release()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		done  atomic.Int64
		total = len(groups)
		timer = abstract.StartTimer()
	)

	for i, g := range groups {
		if results[i] != nil {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			res, err := l.labelCommit(ctx, g)
			if err != nil {
				if model.IsFatal(err) {
					cancel(err)
				}
				return
			}

			mu.Lock()
			results[i] = &res
			mu.Unlock()

			// a finished result is stored even when the run is being aborted
			if cp != nil && !res.Transient {
				if err := cp.Save(context.WithoutCancel(ctx), res); err != nil {
					l.log.Warn("failed to save checkpoint", "commit", res.CommitHash, "error", err)
				}
			}

			if n := done.Add(1); n%int64(l.cfg.ProgressEvery) == 0 {
				l.log.Info("labeling progress", "done", n, "total", total, "elapsed", timer.ElapsedTime().String())
			}
		})
		if err != nil {
			wg.Done()
			cancel(errm.Wrap(err, "failed to submit commit"))
			break
		}
	}
	wg.Wait()

	if cause := context.Cause(ctx); cause != nil && !errm.Is(cause, context.Canceled) {
		return errm.Wrap(cause, "labeling aborted")
	}
	return ctx.Err()
}

// labelCommit resolves the outcome of one commit. It returns an error only when
// the whole run must stop, every other failure degrades the label.
func (l *Labeler) labelCommit(ctx context.Context, g *commitGroup) (res model.LabelResult, err error) {
	res = model.LabelResult{
		CommitHash: g.hash(),
		ProjectID:  g.first.ProjectID,
		Label:      model.LabelUnknown,
	}
	log := l.log.WithFields("commit", res.CommitHash, "project_id", res.ProjectID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("panic while labeling commit", "panic", r)
			res = model.LabelResult{CommitHash: g.hash(), ProjectID: g.first.ProjectID, Label: model.LabelUnknown, Transient: true}
			err = nil
		}
	}()

	repo, ok := model.ParseProjectID(res.ProjectID)
	if !ok {
		log.DebugIf(l.cfg.Verbose, "cannot resolve repository")
		return res, nil
	}

	if !l.cfg.SkipDetails {
		details, err := l.provider.GetCommitDetails(ctx, repo, res.CommitHash)
		switch {
		case err == nil:
			res.Details = details
		case stop(ctx, err):
			return res, err
		case errm.Is(err, model.ErrNotFound):
			log.DebugIf(l.cfg.Verbose, "commit is unknown to remote", "error", err)
			return res, nil
		default:
			log.Warn("failed to get commit details", "error", err)
			res.Transient = true
		}
	}

	runs, err := l.provider.ListRunsForCommit(ctx, repo, res.CommitHash)
	switch {
	case err == nil:
	case stop(ctx, err):
		return res, err
	case errm.Is(err, model.ErrNotFound), errm.Is(err, model.ErrNotSupported):
		log.DebugIf(l.cfg.Verbose, "no runs lookup for commit", "error", err)
	default:
		log.Warn("failed to list runs", "error", err)
		res.Transient = true
		return res, nil
	}

	if len(runs) > 0 {
		res.HasCI = true
		res.RunsTotal = len(runs)
		res.WorkflowNames = model.WorkflowNames(runs)
		res.Label = model.LabelFromRuns(runs)
	} else {
		status, err := l.provider.GetCombinedStatus(ctx, repo, res.CommitHash)
		switch {
		case err == nil:
			res.HasCI = len(status.Contexts) > 0
			res.Label = model.LabelFromStatus(status)
		case stop(ctx, err):
			return res, err
		case errm.Is(err, model.ErrNotFound):
			log.DebugIf(l.cfg.Verbose, "commit status is unknown to remote", "error", err)
			return res, nil
		default:
			log.Warn("failed to get combined status", "error", err)
			res.Transient = true
			return res, nil
		}
	}

	hasPR, err := l.provider.HasPullRequest(ctx, repo, res.CommitHash)
	switch {
	case err == nil:
		res.HasPR = hasPR
	case stop(ctx, err):
		return res, err
	case errm.Is(err, model.ErrNotFound), errm.Is(err, model.ErrNotSupported):
	default:
		log.Warn("failed to check pull requests", "error", err)
		res.Transient = true
	}

	log.DebugIf(l.cfg.Verbose, "labeled commit", "label", res.Label, "runs", res.RunsTotal)
	return res, nil
}

func stop(ctx context.Context, err error) bool {
	return model.IsFatal(err) || ctx.Err() != nil
}
