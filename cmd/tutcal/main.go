package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"tutcal/internal/config"
	"tutcal/internal/ics"
	appLog "tutcal/internal/log"
	"tutcal/internal/pipeline"
	"tutcal/internal/tutorial"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	envPath    string
	watch      bool
}

func main() {
	flags := parseFlags()

	if err := config.LoadEnvFile(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "env_path", flags.envPath)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if errors.Is(err, config.ErrCreated) {
		appLog.Info("wrote default config; add your sources and run again", "config_path", flags.configPath)
		os.Exit(1)
	}
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv(os.Getenv)

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	level, _ := appLog.ParseLevel(conf.LogLevel)
	appLog.SetLevel(level)

	entries, _ := conf.Registry()
	loc, _ := conf.Location()
	writer := ics.Writer{Dir: conf.Output.Dir, Name: conf.Output.File}

	appLog.Info("tutcal starting",
		"version", version,
		"timezone", conf.Timezone,
		"sources", len(entries),
		"extra_files", len(conf.ExtraFiles),
		"output", writer.Path(),
		"watch", flags.watch,
	)

	if len(entries) == 0 && len(conf.ExtraFiles) == 0 {
		appLog.Error("nothing to do", errors.New("no sources configured"), "config_path", flags.configPath)
		os.Exit(1)
	}

	fetcher := ics.NewFetcher(conf.FetchTimeout(), "tutcal/"+version)
	fetcher.Retries = conf.FetchRetries()

	extras := make([]pipeline.EntrySource, 0, len(conf.ExtraFiles))
	for _, p := range conf.ExtraFiles {
		extras = append(extras, ics.FileSource{Path: p})
	}

	runner := &pipeline.Runner{
		Fetcher:     fetcher,
		Filter:      tutorial.Filter{Location: loc, Keyword: conf.TutorialKeyword},
		Writer:      writer,
		Concurrency: conf.Fetch.Concurrency,
		ProdID:      ics.DefaultProductID,
		Extras:      extras,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if !flags.watch {
		if err := runOnce(ctx, runner, conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if conf.Schedule == "" {
		appLog.Error("watch mode needs a schedule", errors.New("schedule is empty"), "config_path", flags.configPath)
		os.Exit(1)
	}
	watch(ctx, runner, conf, loc)
	appLog.Info("tutcal exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "tutcal.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Optional .env file with TUTCAL_* overrides")
	flag.BoolVar(&cfg.watch, "watch", false, "Keep running and refresh on the configured cron schedule")

	flag.Parse()

	return cfg
}

// runOnce performs one full refresh and logs its outcome.
func runOnce(ctx context.Context, runner *pipeline.Runner, conf *config.Config) error {
	entries, err := conf.Registry()
	if err != nil {
		appLog.Error("invalid registry", err)
		return err
	}

	rep, err := runner.Run(ctx, entries)
	if err != nil {
		appLog.Error("refresh failed", err,
			"sources", rep.Sources,
			"failed", len(rep.Failed),
		)
		return err
	}

	appLog.Info("refresh completed",
		"sources", rep.Sources,
		"succeeded", rep.Succeeded,
		"failed", len(rep.Failed),
		"extras", rep.Extras,
		"discarded", rep.Discarded,
		"unreadable", rep.ExtractionFailures,
		"events", rep.Events,
		"duration", rep.Duration.Round(time.Millisecond),
	)
	return nil
}

// watch refreshes immediately and then on every tick of conf.Schedule until
// ctx is canceled. Each tick recomputes the calendar from scratch.
func watch(ctx context.Context, runner *pipeline.Runner, conf *config.Config, loc *time.Location) {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(conf.Schedule, func() { _ = runOnce(ctx, runner, conf) }); err != nil {
		appLog.Error("invalid schedule", err, "schedule", conf.Schedule)
		return
	}

	_ = runOnce(ctx, runner, conf)

	c.Start()
	appLog.Info("watching", "schedule", conf.Schedule)

	<-ctx.Done()
	appLog.Info("signal received, shutting down")
	<-c.Stop().Done()
}
