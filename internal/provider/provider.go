package provider

import (
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model/interfaces"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/provider/bitbucket"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/provider/github"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/provider/gitlab"
	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/logze/v2"
)

// NewProvider creates a new CI provider based on the configuration
func NewProvider(cfg Config) (interfaces.CIProvider, error) {
	if err := cfg.PrepareAndValidate(); err != nil {
		return nil, erro.Wrap(err, "validate config")
	}

	log := logze.With("component", "http", "provider", string(cfg.Type))

	cfgForProvider := model.ProviderConfig{
		BaseURL:       cfg.BaseURL,
		Token:         cfg.Token,
		RateLimitWait: cfg.RateLimitWait,
		MaxRetries:    cfg.MaxRetries,
		HTTPClient:    NewHTTPClient(cfg, log),
	}

	var provider interfaces.CIProvider
	var err error

	switch cfg.Type {
	case GitLab:
		provider, err = gitlab.New(cfgForProvider)
	case GitHub:
		provider, err = github.New(cfgForProvider)
	case Bitbucket:
		provider, err = bitbucket.New(cfgForProvider)
	default:
		return nil, erro.New("unsupported provider type: %s", cfg.Type)
	}
	if err != nil {
		return nil, erro.Wrap(err, "failed to create provider")
	}

	return provider, nil
}
