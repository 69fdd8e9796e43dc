package miner

import (
	"github.com/maxbolgarin/errm"
	"github.com/maxbolgarin/lang"
)

const defaultProgressEvery = 500

type Config struct {
	// LocalRepo is a path to an existing clone, it wins over RepoURL
	LocalRepo string `yaml:"local_repo" env:"MINER_LOCAL_REPO"`
	RepoURL   string `yaml:"repo_url" env:"MINER_REPO_URL"`
	// CacheDir keeps the clone of RepoURL between runs, empty means a temp dir removed at the end
	CacheDir string `yaml:"cache_dir" env:"MINER_CACHE_DIR"`
	// Token is used as HTTP basic auth password for RepoURL
	Token string `yaml:"token" env:"MINER_TOKEN"`

	Append        bool `yaml:"append" env:"MINER_APPEND"`
	ProgressEvery int  `yaml:"progress_every" env:"MINER_PROGRESS_EVERY"`
	Verbose       bool `yaml:"verbose" env:"MINER_VERBOSE"`
}

func (c *Config) PrepareAndValidate() error {
	if c.LocalRepo == "" && c.RepoURL == "" {
		return errm.New("local_repo or repo_url is required")
	}
	if c.ProgressEvery < 0 {
		return errm.New("progress_every must not be negative")
	}
	c.ProgressEvery = lang.Check(c.ProgressEvery, defaultProgressEvery)
	return nil
}
