package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kingpin/v2"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/app"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/config"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/model"
	"github.com/dhung0811/CI-CD-Pipeline-Failure-Prediction/internal/provider"
	"github.com/maxbolgarin/contem"
	"github.com/maxbolgarin/erro"
	"github.com/maxbolgarin/lang"
	"github.com/maxbolgarin/logze/v2"
)

var (
	Version, Branch, Commit, BuildDate string
)

var (
	configPath   = kingpin.Flag("config", "path to config file").Short('c').String()
	debug        = kingpin.Flag("debug", "enable debug logs").Bool()
	token        = kingpin.Flag("token", "CI provider token, overrides PROVIDER_TOKEN").String()
	providerType = kingpin.Flag("provider", "CI provider: github, gitlab or bitbucket").Enum(string(provider.GitHub), string(provider.GitLab), string(provider.Bitbucket))
	baseURL      = kingpin.Flag("base-url", "CI provider API base URL").String()

	repairCmd      = kingpin.Command("repair", "repair a raw commit history CSV and derive change features")
	repairIn       = repairCmd.Flag("in", "raw CSV").Required().String()
	repairOut      = repairCmd.Flag("out", "enhanced CSV").Required().String()
	repairFixedOut = repairCmd.Flag("fixed-out", "also write repaired rows without features").String()

	labelCmd          = kingpin.Command("label", "label every commit of an enhanced CSV with its CI build outcome")
	labelIn           = labelCmd.Flag("in", "enhanced CSV").Required().String()
	labelOut          = labelCmd.Flag("out", "labeled CSV").Required().String()
	labelLimit        = labelCmd.Flag("limit", "max distinct commits, 0 for all").Int()
	labelConcurrency  = labelCmd.Flag("concurrency", "parallel lookups").Int()
	labelCheckpoint   = labelCmd.Flag("checkpoint", "checkpoint database, defaults to <out>.checkpoint.db").String()
	labelNoCheckpoint = labelCmd.Flag("no-checkpoint", "do not resume or record progress").Bool()
	labelSkipDetails  = labelCmd.Flag("skip-details", "do not fetch remote commit statistics").Bool()

	inspectCmd   = kingpin.Command("inspect", "print a quality report of a CSV dataset")
	inspectIn    = inspectCmd.Flag("in", "CSV with header").Required().String()
	inspectLabel = inspectCmd.Flag("label-column", "label column, detected when empty").String()

	collectCmd      = kingpin.Command("collect", "download CI runs of a repository into a run-list JSON")
	collectOwner    = collectCmd.Flag("owner", "repository owner").Required().String()
	collectRepo     = collectCmd.Flag("repo", "repository name").Required().String()
	collectOut      = collectCmd.Flag("out", "run-list JSON, merged when it exists").Required().String()
	collectMaxPages = collectCmd.Flag("max-pages", "stop after this many pages, 0 for all").Int()

	mineCmd       = kingpin.Command("mine", "join a git history with a run list into the final dataset")
	mineRuns      = mineCmd.Flag("runs", "run-list JSON").Required().String()
	mineOut       = mineCmd.Flag("out", "dataset CSV").Required().String()
	mineLocalRepo = mineCmd.Flag("local-repo", "path to a local clone").String()
	mineRepoURL   = mineCmd.Flag("repo-url", "repository URL to clone").String()
	mineCacheDir  = mineCmd.Flag("cache-dir", "keep the clone here between runs").String()
	mineAppend    = mineCmd.Flag("append", "append to an existing dataset, skipping known hashes").Bool()

	versionCmd = kingpin.Command("version", "print version")
)

func main() {
	command := kingpin.Parse()
	if command == versionCmd.FullCommand() {
		fmt.Fprintf(os.Stdout, "buildset %s (branch %s, commit %s, built %s)\n",
			lang.Check(Version, "dev"), Branch, Commit, BuildDate)
		return
	}

	var err error
	ctx := contem.New(contem.WithLogger(logze.DefaultPtr()), contem.Exit(&err))
	defer ctx.Shutdown()
	err = run(ctx, command)
	if err != nil {
		logze.DefaultPtr().Error("cannot run", "command", command, "error", err)
	}
}

func run(ctx contem.Context, command string) error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return erro.Wrap(err, "load config")
	}
	logze.Init(logze.C().WithConsole().WithLevel(lang.If(*debug || cfg.Log.Debug, logze.LevelDebug, logze.LevelInfo)))

	applyFlags(&cfg)
	buildset := app.New(cfg)

	switch command {
	case repairCmd.FullCommand():
		err = buildset.Repair(ctx, *repairIn, *repairOut)

	case labelCmd.FullCommand():
		err = buildset.Label(ctx, *labelIn, *labelOut)

	case inspectCmd.FullCommand():
		err = buildset.Inspect(ctx, *inspectIn, os.Stdout)

	case collectCmd.FullCommand():
		repo := model.RepoRef{Owner: *collectOwner, Name: *collectRepo}
		err = buildset.Collect(ctx, repo, *collectOut)

	case mineCmd.FullCommand():
		err = buildset.Mine(ctx, *mineRuns, *mineOut)

	default:
		return erro.New("unknown command: %s", command)
	}
	if err != nil {
		return erro.Wrap(err, command)
	}

	return nil
}

// applyFlags overrides file and env settings with explicitly given flags
func applyFlags(cfg *config.Config) {
	cfg.Provider.Token = lang.Check(*token, cfg.Provider.Token)
	cfg.Provider.Type = lang.Check(provider.ProviderType(*providerType), cfg.Provider.Type)
	cfg.Provider.BaseURL = lang.Check(*baseURL, cfg.Provider.BaseURL)

	cfg.Enhance.FixedOut = lang.Check(*repairFixedOut, cfg.Enhance.FixedOut)
	cfg.Enhance.Repair.Verbose = cfg.Enhance.Repair.Verbose || *debug

	cfg.Labeler.Limit = lang.Check(*labelLimit, cfg.Labeler.Limit)
	cfg.Labeler.Concurrency = lang.Check(*labelConcurrency, cfg.Labeler.Concurrency)
	cfg.Labeler.Checkpoint = lang.Check(*labelCheckpoint, cfg.Labeler.Checkpoint)
	cfg.Labeler.DisableCheckpoint = cfg.Labeler.DisableCheckpoint || *labelNoCheckpoint
	cfg.Labeler.SkipDetails = cfg.Labeler.SkipDetails || *labelSkipDetails
	cfg.Labeler.Verbose = cfg.Labeler.Verbose || *debug

	cfg.Inspect.LabelColumn = lang.Check(*inspectLabel, cfg.Inspect.LabelColumn)

	cfg.Collector.MaxPages = lang.Check(*collectMaxPages, cfg.Collector.MaxPages)
	cfg.Collector.Verbose = cfg.Collector.Verbose || *debug

	cfg.Miner.LocalRepo = lang.Check(*mineLocalRepo, cfg.Miner.LocalRepo)
	cfg.Miner.RepoURL = lang.Check(*mineRepoURL, cfg.Miner.RepoURL)
	cfg.Miner.CacheDir = lang.Check(*mineCacheDir, cfg.Miner.CacheDir)
	cfg.Miner.Append = cfg.Miner.Append || *mineAppend
	cfg.Miner.Verbose = cfg.Miner.Verbose || *debug
}
