package dataset

import (
	"context"
	"os"
	"strconv"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/features"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/maxbolgarin/abstract"
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
)

// EnhanceConfig configures the repair and feature extraction stage
type EnhanceConfig struct {
	Repair    RepairConfig `yaml:"repair"`
	ChunkSize int          `yaml:"chunk_size" env:"ENHANCE_CHUNK_SIZE"`

	// FixedOut is an optional path for the repaired rows without derived columns
	FixedOut string `yaml:"fixed_out" env:"ENHANCE_FIXED_OUT"`
}

// PrepareAndValidate fills defaults
func (c *EnhanceConfig) PrepareAndValidate() error {
	if c.ChunkSize < 0 {
		return errm.New("chunk size must not be negative")
	}
	c.ChunkSize = lang.Check(c.ChunkSize, defaultChunkSize)
	return c.Repair.PrepareAndValidate()
}

// EnhanceStats is the outcome of an enhancement run
type EnhanceStats struct {
	Repair    RepairStats
	Problems  []ProblemLine
	Rows      int
	Commits   int
	WithFix   int
	WithTests int
}

// Enhancer repairs a raw historical file and adds per-commit features
type Enhancer struct {
	cfg      EnhanceConfig
	repairer *Repairer
	matcher  *features.Matcher
	log      logze.Logger
}

// NewEnhancer creates an Enhancer
func NewEnhancer(cfg EnhanceConfig, matcher *features.Matcher) (*Enhancer, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, errm.Wrap(err, "failed to prepare and validate config")
	}
	repairer, err := NewRepairer(cfg.Repair)
	if err != nil {
		return nil, err
	}
	return &Enhancer{
		cfg:      cfg,
		repairer: repairer,
		matcher:  lang.If(matcher != nil, matcher, features.Default()),
		log:      logze.With("component", "enhancer"),
	}, nil
}

// Enhance reads inPath twice: the first pass groups files per commit,
// the second writes every row with its derived columns to outPath.
// outPath is replaced only when the whole file was written.
func (e *Enhancer) Enhance(ctx context.Context, inPath, outPath string) (EnhanceStats, error) {
	var stats EnhanceStats
	timer := abstract.StartTimer()

	agg, err := e.aggregate(ctx, inPath, &stats)
	if err != nil {
		return stats, err
	}
	stats.Commits = agg.Commits()
	e.repairer.LogStats(stats.Repair, stats.Problems)
	e.log.Info("grouped commits", "commits", stats.Commits, "elapsed", timer.ElapsedTime().String())

	in, err := os.Open(inPath)
	if err != nil {
		return stats, errm.Wrap(err, "failed to open input")
	}
	defer in.Close()

	out, err := CreateAtomic(outPath)
	if err != nil {
		return stats, err
	}
	defer out.Abort()

	w := NewRowWriter[model.EnhancedRow](out, true, e.cfg.ChunkSize)
	seenFix := make(map[string]struct{})
	seenTests := make(map[string]struct{})

	_, _, err = e.repairer.Repair(ctx, in, func(row model.ChangeRow) error {
		summary := agg.Summary(row.CommitHash)
		row.LinesAdded, row.LinesRemoved = strconv.Itoa(row.Added()), strconv.Itoa(row.Removed())
		enhanced := model.EnhancedRow{
			ChangeRow:     row,
			HasFixKeyword: model.FlagOf(e.matcher.HasFixKeyword(row.Note)),
			FilesChanged:  summary.Files,
			ChangedTests:  model.FlagOf(summary.ChangedTests),
		}
		if enhanced.HasFixKeyword.Bool() {
			seenFix[row.CommitHash] = struct{}{}
		}
		if summary.ChangedTests {
			seenTests[row.CommitHash] = struct{}{}
		}
		stats.Rows++
		return w.Write(enhanced)
	})
	if err != nil {
		return stats, errm.Wrap(err, "failed to write enhanced rows")
	}
	if err := w.Flush(); err != nil {
		return stats, err
	}
	if err := out.Commit(); err != nil {
		return stats, errm.Wrap(err, "failed to commit output")
	}

	stats.WithFix = len(seenFix)
	stats.WithTests = len(seenTests)

	e.log.Info("enhanced dataset written",
		"path", outPath,
		"rows", stats.Rows,
		"commits", stats.Commits,
		"with_fix_keyword", stats.WithFix,
		"with_test_changes", stats.WithTests,
		"elapsed", timer.ElapsedTime().String(),
	)
	return stats, nil
}

func (e *Enhancer) aggregate(ctx context.Context, inPath string, stats *EnhanceStats) (*features.Aggregator, error) {
	in, err := os.Open(inPath)
	if err != nil {
		return nil, errm.Wrap(err, "failed to open input")
	}
	defer in.Close()

	var (
		fixed *AtomicFile
		fw    *RowWriter[model.ChangeRow]
	)
	if e.cfg.FixedOut != "" {
		fixed, err = CreateAtomic(e.cfg.FixedOut)
		if err != nil {
			return nil, err
		}
		defer fixed.Abort()
		fw = NewRowWriter[model.ChangeRow](fixed, true, e.cfg.ChunkSize)
	}

	agg := features.NewAggregator(e.matcher)
	stats.Repair, stats.Problems, err = e.repairer.Repair(ctx, in, func(row model.ChangeRow) error {
		agg.Add(row.CommitHash, row.File)
		if fw != nil {
			return fw.Write(row)
		}
		return nil
	})
	if err != nil {
		return nil, errm.Wrap(err, "failed to repair input")
	}

	if fw != nil {
		if err := fw.Flush(); err != nil {
			return nil, err
		}
		if err := fixed.Commit(); err != nil {
			return nil, errm.Wrap(err, "failed to commit repaired file")
		}
		e.log.Info("repaired file written", "path", e.cfg.FixedOut, "rows", fw.Written())
	}
	return agg, nil
}
