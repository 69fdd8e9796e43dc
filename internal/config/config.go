package config

import (
	"os"

	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/collector"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/dataset"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/features"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/labeler"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/miner"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/provider"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/maxbolgarin/errm"
)

// Config represents the main application configuration
type Config struct {
	Provider  provider.Config       `yaml:"provider"`
	Features  features.Config       `yaml:"features"`
	Enhance   dataset.EnhanceConfig `yaml:"enhance"`
	Inspect   dataset.InspectConfig `yaml:"inspect"`
	Labeler   labeler.Config        `yaml:"labeler"`
	Collector collector.Config      `yaml:"collector"`
	Miner     miner.Config          `yaml:"miner"`
	Log       LogConfig             `yaml:"log"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Debug bool `yaml:"debug" env:"LOG_DEBUG"`
}

// Load reads the config file at path and overrides it from the environment,
// an empty path means environment only.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return cfg, errm.Wrap(err, "failed to read env")
		}
		return cfg, nil
	}

	if _, err := os.Stat(path); err != nil {
		return cfg, errm.Wrap(ErrConfigNotFound, path)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return cfg, errm.Wrap(err, "failed to read config "+path)
	}
	return cfg, nil
}

// ValidateRemote checks the settings every remote stage needs
func (c *Config) ValidateRemote() error {
	if c.Provider.Token == "" {
		return ErrMissingProviderToken
	}
	return nil
}
