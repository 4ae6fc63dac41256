package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/ObjectivityLtd/PSCI/internal/config"
	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"psci.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Deploy struct {
		Environment string `short:"e" help:"Environment to deploy" default:"default"`
		DryRun      bool   `help:"Plan the deployment without touching the server"`
		Summary     string `short:"s" help:"Write a Markdown deployment summary to this file"`
	} `cmd:"" help:"Deploy the project to the reporting server"`

	Resolve struct {
		Environment string `short:"e" help:"Environment to resolve" default:"default"`
	} `cmd:"" help:"Resolve and print the token table for an environment"`

	Validate struct {
		Environment string `short:"e" help:"Environment to validate against" default:"default"`
	} `cmd:"" help:"Validate configuration, tokens and project file"`

	Init struct {
		Force bool `help:"Overwrite existing configuration file"`
	} `cmd:"" help:"Initialize a new configuration file"`

	History struct {
		ID    string `help:"Show one deployment by ID"`
		Since int    `help:"Show deployments from the last N hours" default:"24"`
	} `cmd:"" help:"Show deployment history"`

	Daemon struct {
		WatchEnvironment string `help:"Environment deployed when watched files change" default:"default"`
	} `cmd:"" help:"Run continuously: schedules, file watching and status endpoint"`
}

func main() {
	kctx := kong.Parse(&CLI)

	level := slog.LevelInfo
	if CLI.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if kctx.Command() == "init" {
		exitOnError(runInit(CLI.Config, CLI.Init.Force))
		return
	}

	cfg, err := config.Load(CLI.Config)
	exitOnError(err)
	if !CLI.Verbose {
		config.SetupLogging(cfg.Logging)
	}

	app, err := newApp(CLI.Config, cfg)
	exitOnError(err)
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch kctx.Command() {
	case "deploy":
		err = runDeploy(ctx, app, CLI.Deploy.Environment, CLI.Deploy.DryRun, CLI.Deploy.Summary)
	case "resolve":
		err = runResolve(app, CLI.Resolve.Environment)
	case "validate":
		err = runValidate(app, CLI.Validate.Environment)
	case "history":
		err = runHistory(ctx, app, CLI.History.ID, CLI.History.Since)
	case "daemon":
		err = runDaemon(ctx, app, CLI.Daemon.WatchEnvironment)
	default:
		err = fmt.Errorf("unknown command: %s", kctx.Command())
	}
	exitOnError(err)
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	adapter := errors.NewCLIErrorAdapter(CLI.Verbose, slog.Default())
	adapter.HandleError(err)
	os.Exit(adapter.ExitCodeFor(err))
}

func runInit(configPath string, force bool) error {
	slog.Info("Initializing configuration", "path", configPath, "force", force)
	return config.Init(configPath, force)
}
