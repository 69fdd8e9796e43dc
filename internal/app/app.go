package app

import (
	"context"
	"io"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/collector"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/config"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/features"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/labeler"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/miner"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/provider"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
)

// Buildset runs the dataset stages, one method per command
type Buildset struct {
	matcher     *features.Matcher
	newProvider func(provider.Config) (interfaces.CIProvider, error)

	cfg config.Config
	log logze.Logger
}

// New creates the application from a loaded configuration
func New(cfg config.Config) *Buildset {
	return &Buildset{
		matcher:     features.NewMatcher(cfg.Features),
		newProvider: provider.NewProvider,
		cfg:         cfg,
		log:         logze.With("component", "app"),
	}
}

// Repair repairs a raw historical CSV and writes it with derived features
func (s *Buildset) Repair(ctx context.Context, inPath, outPath string) error {
	enhancer, err := dataset.NewEnhancer(s.cfg.Enhance, s.matcher)
	if err != nil {
		return errm.Wrap(err, "failed to create enhancer")
	}
	if _, err := enhancer.Enhance(ctx, inPath, outPath); err != nil {
		return errm.Wrap(err, "failed to enhance dataset")
	}
	return nil
}

// Label attaches build outcomes to every commit of an enhanced CSV
func (s *Buildset) Label(ctx context.Context, inPath, outPath string) error {
	ci, err := s.provider()
	if err != nil {
		return err
	}
	l, err := labeler.New(s.cfg.Labeler, ci, s.matcher)
	if err != nil {
		return errm.Wrap(err, "failed to create labeler")
	}
	if _, err := l.Label(ctx, inPath, outPath); err != nil {
		return errm.Wrap(err, "failed to label dataset")
	}
	return nil
}

// Inspect prints a quality report of any CSV with a header
func (s *Buildset) Inspect(ctx context.Context, inPath string, w io.Writer) error {
	report, err := dataset.NewInspector(s.cfg.Inspect).InspectFile(ctx, inPath)
	if err != nil {
		return errm.Wrap(err, "failed to inspect dataset")
	}
	report.Render(w)
	return nil
}

// Collect downloads the CI run history of repo into a run-list file
func (s *Buildset) Collect(ctx context.Context, repo model.RepoRef, outPath string) error {
	if repo.IsZero() {
		return config.ErrMissingRepository
	}
	ci, err := s.provider()
	if err != nil {
		return err
	}
	c, err := collector.New(s.cfg.Collector, ci)
	if err != nil {
		return errm.Wrap(err, "failed to create collector")
	}
	if _, err := c.Collect(ctx, repo, outPath); err != nil {
		return errm.Wrap(err, "failed to collect runs")
	}
	return nil
}

// Mine joins a repository history with a run-list file into the final dataset
func (s *Buildset) Mine(ctx context.Context, runsPath, outPath string) error {
	cfg := s.cfg.Miner
	if cfg.LocalRepo == "" && cfg.RepoURL == "" {
		return config.ErrMissingSource
	}
	cfg.Token = lang.Check(cfg.Token, s.cfg.Provider.Token)

	m, err := miner.New(cfg, s.matcher)
	if err != nil {
		return errm.Wrap(err, "failed to create miner")
	}
	if _, err := m.Mine(ctx, runsPath, outPath); err != nil {
		return errm.Wrap(err, "failed to mine repository")
	}
	return nil
}

func (s *Buildset) provider() (interfaces.CIProvider, error) {
	if err := s.cfg.ValidateRemote(); err != nil {
		return nil, err
	}
	ci, err := s.newProvider(s.cfg.Provider)
	if err != nil {
		return nil, errm.Wrap(err, "failed to create CI provider")
	}
	s.log.Debug("created CI provider", "type", s.cfg.Provider.Type)
	return ci, nil
}
