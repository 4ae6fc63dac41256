package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ObjectivityLtd/PSCI/internal/config"
	"github.com/ObjectivityLtd/PSCI/internal/daemon"
	"github.com/ObjectivityLtd/PSCI/internal/deploy"
	"github.com/ObjectivityLtd/PSCI/internal/eventstore"
	"github.com/ObjectivityLtd/PSCI/internal/gitsource"
	"github.com/ObjectivityLtd/PSCI/internal/logfields"
	"github.com/ObjectivityLtd/PSCI/internal/metrics"
	"github.com/ObjectivityLtd/PSCI/internal/project"
	"github.com/ObjectivityLtd/PSCI/internal/reporting"
	"github.com/ObjectivityLtd/PSCI/internal/summary"
	"github.com/ObjectivityLtd/PSCI/internal/tokens"
)

// app wires the configuration into ready-to-use components and implements
// daemon.Runner.
type app struct {
	cfgPath  string
	cfg      *config.Config
	store    *eventstore.SQLiteStore
	registry *prom.Registry
	recorder *metrics.PrometheusRecorder
}

func newApp(cfgPath string, cfg *config.Config) (*app, error) {
	store, err := eventstore.NewSQLiteStore(cfg.History.Path)
	if err != nil {
		return nil, err
	}

	registry := prom.NewRegistry()
	return &app{
		cfgPath:  cfgPath,
		cfg:      cfg,
		store:    store,
		registry: registry,
		recorder: metrics.NewPrometheusRecorder(registry),
	}, nil
}

func (a *app) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// projectPath locates the project file, syncing the git source first when one
// is configured.
func (a *app) projectPath() (string, error) {
	base := filepath.Dir(a.cfgPath)
	if a.cfg.Source != nil {
		client := gitsource.NewClient(filepath.Join(base, ".psci-src"))
		checkout, err := client.Sync(*a.cfg.Source)
		if err != nil {
			return "", err
		}
		base = checkout
	}
	if filepath.IsAbs(a.cfg.Reporting.ProjectFile) {
		return a.cfg.Reporting.ProjectFile, nil
	}
	return filepath.Join(base, a.cfg.Reporting.ProjectFile), nil
}

// resolveTokens resolves the token table for an environment.
func (a *app) resolveTokens(environment string) (tokens.Resolved, error) {
	return a.cfg.TokenTable().Resolve(environment)
}

// loadProject loads the project file and applies resolved tokens to it.
func (a *app) loadProject(resolved tokens.Resolved) (string, *project.Project, error) {
	path, err := a.projectPath()
	if err != nil {
		return "", nil, err
	}
	proj, err := project.Load(path)
	if err != nil {
		return "", nil, err
	}
	proj, err = proj.ApplyTokens(resolved)
	if err != nil {
		return "", nil, err
	}
	if err := proj.Validate(); err != nil {
		return "", nil, err
	}
	return path, proj, nil
}

// managementClient builds the reporting server client, expanding tokens in
// the URL and auth token.
func (a *app) managementClient(resolved tokens.Resolved) (*reporting.Client, error) {
	apiURL, err := tokens.ResolveString(a.cfg.Reporting.URL, resolved)
	if err != nil {
		return nil, err
	}
	authToken, err := tokens.ResolveString(a.cfg.Reporting.Token, resolved)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{Timeout: time.Duration(a.cfg.Reporting.TimeoutSeconds) * time.Second}
	client := reporting.NewClient(httpClient, apiURL, authToken)
	client.SetAuthHeaderPrefix(a.cfg.Reporting.AuthHeaderPrefix)
	return client, nil
}

// Deploy implements daemon.Runner.
func (a *app) Deploy(ctx context.Context, environment string, dryRun bool) (*deploy.Result, error) {
	resolved, err := a.resolveTokens(environment)
	if err != nil {
		return nil, err
	}
	_, proj, err := a.loadProject(resolved)
	if err != nil {
		return nil, err
	}
	client, err := a.managementClient(resolved)
	if err != nil {
		return nil, err
	}

	plan := deploy.BuildPlan(deploy.PlanInput{
		Environment:      environment,
		Project:          proj,
		Catalog:          client,
		Namespaces:       a.cfg.Namespaces(),
		NamespaceAPI:     client,
		DefaultOverwrite: a.cfg.Reporting.Overwrite,
		Recorder:         a.recorder,
	})

	deployer := deploy.NewDeployer(a.store, a.recorder)
	deployer.DryRun = dryRun
	deployer.Retry = deploy.RetryPolicy{
		MaxAttempts: a.cfg.Retry.MaxAttempts,
		Backoff:     time.Duration(a.cfg.Retry.BackoffSeconds) * time.Second,
		IsRetryable: deploy.DefaultRetryPolicy().IsRetryable,
	}
	return deployer.Run(ctx, plan)
}

func runDeploy(ctx context.Context, a *app, environment string, dryRun bool, summaryPath string) error {
	result, runErr := a.Deploy(ctx, environment, dryRun)

	if result != nil && summaryPath != "" {
		var manifest *deploy.Manifest
		if resolved, err := a.resolveTokens(environment); err == nil {
			if path, proj, err := a.loadProject(resolved); err == nil {
				if m, err := deploy.BuildManifest(path, proj, resolved); err == nil {
					m.ID = result.DeploymentID
					m.Environment = result.Environment
					m.Status = result.Status
					m.Duration = result.FinishedAt.Sub(result.StartedAt).Milliseconds()
					manifest = m
				}
			}
		}
		md := summary.Markdown(result, manifest)
		if err := os.WriteFile(summaryPath, []byte(md), 0o644); err != nil {
			slog.Warn("Failed to write summary", logfields.Path(summaryPath), logfields.Error(err))
		} else {
			slog.Info("Summary written", logfields.Path(summaryPath))
		}
	}

	return runErr
}

func runResolve(a *app, environment string) error {
	resolved, err := a.resolveTokens(environment)
	if err != nil {
		return err
	}
	flat := resolved.Flat()
	for _, name := range resolved.QualifiedNames() {
		fmt.Printf("%s=%s\n", name, flat[name])
	}
	return nil
}

func runValidate(a *app, environment string) error {
	resolved, err := a.resolveTokens(environment)
	if err != nil {
		return err
	}
	path, _, err := a.loadProject(resolved)
	if err != nil {
		return err
	}
	slog.Info("Configuration and project are valid",
		logfields.Environment(environment),
		logfields.Path(path))
	return nil
}

func runHistory(ctx context.Context, a *app, id string, sinceHours int) error {
	if id != "" {
		rec, err := eventstore.ProjectDeployment(ctx, a.store, id)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("no deployment with ID %s", id)
		}
		printRecord(*rec)
		return nil
	}

	end := time.Now()
	start := end.Add(-time.Duration(sinceHours) * time.Hour)
	records, err := eventstore.ProjectRange(ctx, a.store, start, end)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Printf("no deployments in the last %dh\n", sinceHours)
		return nil
	}
	for _, rec := range records {
		printRecord(rec)
	}
	return nil
}

func printRecord(rec eventstore.DeploymentRecord) {
	fmt.Printf("%s  %-10s  %-9s  %s\n",
		rec.StartedAt.Format(time.RFC3339), rec.Environment, rec.Status, rec.ID)
	for _, step := range rec.Steps {
		line := fmt.Sprintf("  %-12s %s", step.Name, step.Status)
		if step.Error != "" {
			line += "  " + step.Error
		}
		fmt.Println(line)
	}
}

func runDaemon(ctx context.Context, a *app, watchEnvironment string) error {
	var watchPaths []string
	if a.cfg.Daemon.Watch {
		watchPaths = append(watchPaths, a.cfgPath)
		if a.cfg.Source == nil && a.cfg.Reporting.ProjectFile != "" {
			if path, err := a.projectPath(); err == nil {
				watchPaths = append(watchPaths, path)
			}
		}
	}

	d, err := daemon.New(daemon.Options{
		Config:     a.cfg,
		Runner:     a,
		Registry:   a.registry,
		WatchPaths: watchPaths,
		WatchEnv:   watchEnvironment,
	})
	if err != nil {
		return err
	}
	return d.Run(ctx)
}
