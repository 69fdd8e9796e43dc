// Package collector downloads the CI run history of a repository into a run-list file.
package collector

import (
	"context"
	"strconv"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
)

const defaultPerPage = 100

type Config struct {
	PerPage int `yaml:"per_page" env:"COLLECTOR_PER_PAGE"`
	// MaxPages stops pagination early, 0 means until exhaustion
	MaxPages int  `yaml:"max_pages" env:"COLLECTOR_MAX_PAGES"`
	Verbose  bool `yaml:"verbose" env:"COLLECTOR_VERBOSE"`
}

func (c *Config) PrepareAndValidate() error {
	if c.PerPage < 0 || c.PerPage > 100 {
		return errm.New("per_page must be between 1 and 100")
	}
	if c.MaxPages < 0 {
		return errm.New("max_pages must not be negative")
	}
	c.PerPage = lang.Check(c.PerPage, defaultPerPage)
	return nil
}

// Stats describes one collection run
type Stats struct {
	Existing int
	Pages    int
	Fetched  int
	Added    int
	Updated  int
	Total    int
}

// Collector pages through CI runs and merges them into a run-list file
type Collector struct {
	source interfaces.RunSource

	cfg Config
	log logze.Logger
}

func New(cfg Config, source interfaces.RunSource) (*Collector, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "failed to prepare and validate config")
	}
	if source == nil {
		return nil, erro.New("run source is required")
	}
	return &Collector{
		source: source,
		cfg:    cfg,
		log:    logze.With("component", "collector"),
	}, nil
}

// Collect fetches all runs of repo and merges them into outPath by run id.
// The file is rewritten after every page, so it stays valid on interruption.
func (c *Collector) Collect(ctx context.Context, repo model.RepoRef, outPath string) (Stats, error) {
	var stats Stats
	timer := abstract.StartTimer()
	log := c.log.WithFields("repo", repo.String(), "out", outPath)

	if err := c.source.CheckAccess(ctx, repo); err != nil {
		switch {
		case errm.Is(err, model.ErrUnauthorized):
			return stats, errm.Wrap(err, "token was rejected for "+repo.String())
		case errm.Is(err, model.ErrNotFound):
			return stats, errm.Wrap(err, "repository "+repo.String()+" does not exist or is not accessible")
		}
		return stats, errm.Wrap(err, "failed to check access to "+repo.String())
	}

	existing, err := ReadRunList(outPath)
	if err != nil {
		return stats, errm.Wrap(err, "failed to load existing runs")
	}
	stats.Existing = len(existing)
	log.InfoIf(len(existing) > 0, "merging into existing run list", "runs", len(existing))

	set := newRunSet(existing)
	opts := model.ListRunsOptions{PerPage: c.cfg.PerPage, MaxPages: c.cfg.MaxPages}

	err = c.source.ListRuns(ctx, repo, opts, func(runs []model.WorkflowRun) error {
		stats.Pages++
		stats.Fetched += len(runs)
		added, updated := set.add(runs)
		stats.Added += added
		stats.Updated += updated

		log.DebugIf(c.cfg.Verbose, "fetched runs page", "page", stats.Pages, "runs", len(runs), "total", len(set.runs))
		return WriteRunList(outPath, set.runs)
	})
	if err != nil {
		if errm.Is(err, model.ErrRateLimited) {
			return stats, errm.Wrap(err, "rate limit exhausted after "+strconv.Itoa(stats.Pages)+" pages")
		}
		return stats, errm.Wrap(err, "failed to list runs")
	}

	if stats.Pages == 0 {
		if err := WriteRunList(outPath, set.runs); err != nil {
			return stats, errm.Wrap(err, "failed to write run list")
		}
	}
	stats.Total = len(set.runs)

	log.Info("collected runs",
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"added", stats.Added,
		"updated", stats.Updated,
		"total", stats.Total,
		"elapsed", timer.ElapsedTime().String(),
	)

	return stats, nil
}
