package config

import "github.com/maxbolgarin/errm"

var (
	ErrConfigNotFound       = errm.New("config file not found")
	ErrMissingProviderToken = errm.New("provider token is required, set PROVIDER_TOKEN or --token")
	ErrMissingRepository    = errm.New("repository is required, set --owner and --repo")
	ErrMissingSource        = errm.New("repository source is required, set --local-repo or --repo-url")
)
