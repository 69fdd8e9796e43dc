package miner

import (
	"context"
	"os"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/maxbolgarin/errm"
)

const tokenUser = "x-access-token"

// openRepository returns the repository to mine and a cleanup func that must always be called
func (m *Miner) openRepository(ctx context.Context) (*git.Repository, func(), error) {
	noop := func() {}

	if m.cfg.LocalRepo != "" {
		repo, err := git.PlainOpenWithOptions(m.cfg.LocalRepo, &git.PlainOpenOptions{DetectDotGit: true})
		if err != nil {
			return nil, noop, errm.Wrap(err, "failed to open local repository "+m.cfg.LocalRepo)
		}
		return repo, noop, nil
	}

	dir, cleanup := m.cfg.CacheDir, noop
	if dir == "" {
		tmp, err := os.MkdirTemp("", "buildset-clone-*")
		if err != nil {
			return nil, noop, errm.Wrap(err, "failed to create temp dir")
		}
		dir, cleanup = tmp, func() { os.RemoveAll(tmp) }
	}

	if repo, err := git.PlainOpen(dir); err == nil {
		m.log.Info("fetching cached clone", "dir", dir)
		err = repo.FetchContext(ctx, &git.FetchOptions{Auth: m.auth(), Tags: git.AllTags, Force: true})
		if err != nil && !errm.Is(err, git.NoErrAlreadyUpToDate) {
			return nil, cleanup, errm.Wrap(err, "failed to fetch "+m.cfg.RepoURL)
		}
		return repo, cleanup, nil
	}

	m.log.Info("cloning repository", "url", m.cfg.RepoURL, "dir", dir)
	repo, err := git.PlainCloneContext(ctx, dir, true, &git.CloneOptions{
		URL:  m.cfg.RepoURL,
		Auth: m.auth(),
		Tags: git.AllTags,
	})
	if err != nil {
		return nil, cleanup, errm.Wrap(err, "failed to clone "+m.cfg.RepoURL)
	}
	return repo, cleanup, nil
}

func (m *Miner) auth() transport.AuthMethod {
	if m.cfg.Token == "" || !strings.HasPrefix(m.cfg.RepoURL, "http") {
		return nil
	}
	return &githttp.BasicAuth{Username: tokenUser, Password: m.cfg.Token}
}
