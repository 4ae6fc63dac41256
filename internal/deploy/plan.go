// Package deploy plans and executes deployments: catalog folders, shared data
// sources, shared datasets, reports, and mail namespace configuration, in that
// order.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ObjectivityLtd/PSCI/internal/logfields"
	"github.com/ObjectivityLtd/PSCI/internal/mailns"
	"github.com/ObjectivityLtd/PSCI/internal/metrics"
	"github.com/ObjectivityLtd/PSCI/internal/project"
	"github.com/ObjectivityLtd/PSCI/internal/reporting"
)

// Catalog is the slice of the management client the planner publishes through.
// *reporting.Client satisfies it.
type Catalog interface {
	EnsureFolder(ctx context.Context, folder string) error
	ItemExists(ctx context.Context, itemPath string) (bool, error)
	CreateDataSource(ctx context.Context, def reporting.DataSourceDefinition) error
	CreateDataSet(ctx context.Context, def reporting.DataSetDefinition) error
	PublishReport(ctx context.Context, def reporting.ReportDefinition) ([]reporting.Warning, error)
	SetItemReferences(ctx context.Context, itemPath string, refs []reporting.ItemReference) error
}

// Step is one unit of deployment work. Run returns non-fatal warnings plus an
// error that aborts the deployment.
type Step struct {
	Name string
	Run  func(ctx context.Context) (warnings []string, err error)
}

// Plan is an ordered list of steps for one environment.
type Plan struct {
	Environment string
	Steps       []Step
}

// PlanInput carries everything the planner needs.
type PlanInput struct {
	Environment      string
	Project          *project.Project
	Catalog          Catalog
	Namespaces       []mailns.Namespace
	NamespaceAPI     mailns.ManagementAPI
	DefaultOverwrite bool
	Recorder         metrics.Recorder
}

// BuildPlan turns a project into an ordered deployment plan. Items that exist
// on the server and have overwrite disabled are skipped with a warning rather
// than failing the run.
func BuildPlan(in PlanInput) *Plan {
	if in.Recorder == nil {
		in.Recorder = metrics.NoopRecorder{}
	}

	plan := &Plan{Environment: in.Environment}
	proj := in.Project

	plan.Steps = append(plan.Steps, Step{
		Name: "folders",
		Run: func(ctx context.Context) ([]string, error) {
			for _, folder := range proj.Folders() {
				if err := in.Catalog.EnsureFolder(ctx, folder); err != nil {
					return nil, err
				}
			}
			return nil, nil
		},
	})

	plan.Steps = append(plan.Steps, Step{
		Name: "datasources",
		Run: func(ctx context.Context) ([]string, error) {
			var warnings []string
			for _, ds := range proj.DataSources {
				overwrite := project.Overwrite(ds.Overwrite, in.DefaultOverwrite)
				skip, warning, err := skipExisting(ctx, in.Catalog, reporting.ItemPath(ds.TargetFolder, ds.Name), "datasource", overwrite)
				if err != nil {
					return warnings, err
				}
				if skip {
					warnings = append(warnings, warning)
					continue
				}

				err = in.Catalog.CreateDataSource(ctx, reporting.DataSourceDefinition{
					Name:             ds.Name,
					Folder:           ds.TargetFolder,
					Extension:        ds.Extension,
					ConnectionString: ds.ConnectionString,
					WindowsAuth:      ds.WindowsAuth,
					Overwrite:        overwrite,
				})
				in.Recorder.IncPublishResult("datasource", err == nil)
				if err != nil {
					return warnings, err
				}
				slog.Info("Published data source",
					logfields.Item(ds.Name),
					logfields.Folder(ds.TargetFolder))
			}
			return warnings, nil
		},
	})

	plan.Steps = append(plan.Steps, Step{
		Name: "datasets",
		Run: func(ctx context.Context) ([]string, error) {
			var warnings []string
			for _, dset := range proj.DataSets {
				overwrite := project.Overwrite(dset.Overwrite, in.DefaultOverwrite)
				skip, warning, err := skipExisting(ctx, in.Catalog, reporting.ItemPath(dset.TargetFolder, dset.Name), "dataset", overwrite)
				if err != nil {
					return warnings, err
				}
				if skip {
					warnings = append(warnings, warning)
					continue
				}

				definition, err := os.ReadFile(proj.FilePath(dset.File))
				if err != nil {
					return warnings, fileError("dataset", dset.Name, dset.File, err)
				}

				err = in.Catalog.CreateDataSet(ctx, reporting.DataSetDefinition{
					Name:       dset.Name,
					Folder:     dset.TargetFolder,
					Definition: definition,
					DataSource: dset.DataSource,
					Overwrite:  overwrite,
				})
				in.Recorder.IncPublishResult("dataset", err == nil)
				if err != nil {
					return warnings, err
				}
				slog.Info("Published dataset",
					logfields.Item(dset.Name),
					logfields.Folder(dset.TargetFolder))
			}
			return warnings, nil
		},
	})

	plan.Steps = append(plan.Steps, Step{
		Name: "reports",
		Run: func(ctx context.Context) ([]string, error) {
			return publishReports(ctx, in)
		},
	})

	if len(in.Namespaces) > 0 {
		plan.Steps = append(plan.Steps, Step{
			Name: "namespaces",
			Run: func(ctx context.Context) ([]string, error) {
				for _, ns := range in.Namespaces {
					settings, err := mailns.Plan(ns)
					if err != nil {
						return nil, err
					}
					if err := mailns.Apply(ctx, in.NamespaceAPI, ns, settings); err != nil {
						return nil, err
					}
				}
				return nil, nil
			},
		})
	}

	return plan
}

func publishReports(ctx context.Context, in PlanInput) ([]string, error) {
	proj := in.Project

	datasetFolders := make(map[string]string, len(proj.DataSets))
	for _, dset := range proj.DataSets {
		datasetFolders[dset.Name] = dset.TargetFolder
	}
	datasourceFolders := make(map[string]string, len(proj.DataSources))
	for _, ds := range proj.DataSources {
		datasourceFolders[ds.Name] = ds.TargetFolder
	}

	var warnings []string
	for _, rpt := range proj.Reports {
		overwrite := project.Overwrite(rpt.Overwrite, in.DefaultOverwrite)
		reportPath := reporting.ItemPath(rpt.TargetFolder, rpt.Name)
		skip, warning, err := skipExisting(ctx, in.Catalog, reportPath, "report", overwrite)
		if err != nil {
			return warnings, err
		}
		if skip {
			warnings = append(warnings, warning)
			continue
		}

		definition, err := os.ReadFile(proj.FilePath(rpt.File))
		if err != nil {
			return warnings, fileError("report", rpt.Name, rpt.File, err)
		}

		serverWarnings, err := in.Catalog.PublishReport(ctx, reporting.ReportDefinition{
			Name:       rpt.Name,
			Folder:     rpt.TargetFolder,
			Definition: definition,
			Hidden:     rpt.Hidden,
			Overwrite:  overwrite,
		})
		in.Recorder.IncPublishResult("report", err == nil)
		if err != nil {
			return warnings, err
		}
		for _, w := range serverWarnings {
			slog.Warn("Report published with warning",
				logfields.Item(rpt.Name),
				slog.String("warning", w.String()))
			warnings = append(warnings, fmt.Sprintf("%s: %s", rpt.Name, w))
		}

		var refs []reporting.ItemReference
		for _, ref := range rpt.DataSets {
			refs = append(refs, reporting.ItemReference{
				Name: ref.Name,
				Path: reporting.ItemPath(datasetFolders[ref.Name], ref.Name),
			})
		}
		for _, ref := range rpt.DataSources {
			refs = append(refs, reporting.ItemReference{
				Name: ref.Name,
				Path: reporting.ItemPath(datasourceFolders[ref.Name], ref.Name),
			})
		}
		if err := in.Catalog.SetItemReferences(ctx, reportPath, refs); err != nil {
			return warnings, err
		}

		slog.Info("Published report",
			logfields.Item(rpt.Name),
			logfields.Folder(rpt.TargetFolder),
			slog.Int("references", len(refs)))
	}
	return warnings, nil
}

// skipExisting implements the overwrite-disabled branch: existing items are
// left untouched and reported as a warning.
func skipExisting(ctx context.Context, catalog Catalog, itemPath, itemType string, overwrite bool) (bool, string, error) {
	if overwrite {
		return false, "", nil
	}
	exists, err := catalog.ItemExists(ctx, itemPath)
	if err != nil {
		return false, "", err
	}
	if !exists {
		return false, "", nil
	}
	slog.Warn("Item exists and overwrite is disabled, skipping",
		logfields.Path(itemPath),
		logfields.ItemType(itemType))
	return true, fmt.Sprintf("%s %s exists, skipped (overwrite disabled)", itemType, itemPath), nil
}

func fileError(itemType, name, file string, err error) error {
	return fmt.Errorf("read %s %s definition %s: %w", itemType, name, file, err)
}
