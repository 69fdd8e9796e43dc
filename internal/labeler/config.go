package labeler

import (
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

const (
	defaultConcurrency   = 4
	defaultProgressEvery = 50
	maxConcurrency       = 64

	checkpointSuffix = ".checkpoint.db"
)

type Config struct {
	// Concurrency is the number of commits looked up at the same time
	Concurrency int `yaml:"concurrency" env:"LABELER_CONCURRENCY"`
	// Limit caps the number of distinct commits, 0 means all of them
	Limit int `yaml:"limit" env:"LABELER_LIMIT"`

	// Checkpoint is the SQLite file with finished commits, defaults to <out>.checkpoint.db
	Checkpoint        string `yaml:"checkpoint" env:"LABELER_CHECKPOINT"`
	DisableCheckpoint bool   `yaml:"disable_checkpoint" env:"LABELER_DISABLE_CHECKPOINT"`

	ProgressEvery int  `yaml:"progress_every" env:"LABELER_PROGRESS_EVERY"`
	SkipDetails   bool `yaml:"skip_details" env:"LABELER_SKIP_DETAILS"`
	Verbose       bool `yaml:"verbose" env:"LABELER_VERBOSE"`
}

func (c *Config) PrepareAndValidate() error {
	if c.Concurrency < 0 || c.Concurrency > maxConcurrency {
		return errm.New("concurrency must be between 1 and %d", maxConcurrency)
	}
	if c.Limit < 0 {
		return errm.New("limit must not be negative")
	}
	if c.ProgressEvery < 0 {
		return errm.New("progress_every must not be negative")
	}

	c.Concurrency = lang.Check(c.Concurrency, defaultConcurrency)
	c.ProgressEvery = lang.Check(c.ProgressEvery, defaultProgressEvery)

	return nil
}

func (c Config) checkpointPath(outPath string) string {
	if c.DisableCheckpoint {
		return ""
	}
	return lang.Check(c.Checkpoint, outPath+checkpointSuffix)
}
