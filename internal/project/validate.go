package project

import (
	"fmt"
	"os"
	"strings"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// Validate checks internal consistency of the project: unique item names,
// existing item files, and references pointing at declared items.
func (p *Project) Validate() error {
	var problems []string

	dataSources := make(map[string]bool, len(p.DataSources))
	for i := range p.DataSources {
		ds := &p.DataSources[i]
		if ds.Name == "" {
			problems = append(problems, "data source with empty name")
			continue
		}
		if dataSources[ds.Name] {
			problems = append(problems, fmt.Sprintf("duplicate data source %q", ds.Name))
		}
		dataSources[ds.Name] = true
		if ds.ConnectionString == "" {
			problems = append(problems, fmt.Sprintf("data source %q has no connection string", ds.Name))
		}
	}

	dataSets := make(map[string]bool, len(p.DataSets))
	for i := range p.DataSets {
		d := &p.DataSets[i]
		if d.Name == "" {
			problems = append(problems, "dataset with empty name")
			continue
		}
		if dataSets[d.Name] {
			problems = append(problems, fmt.Sprintf("duplicate dataset %q", d.Name))
		}
		dataSets[d.Name] = true
		if d.File == "" {
			problems = append(problems, fmt.Sprintf("dataset %q has no file", d.Name))
		} else if _, err := os.Stat(p.FilePath(d.File)); err != nil {
			problems = append(problems, fmt.Sprintf("dataset %q file not found: %s", d.Name, d.File))
		}
		if d.DataSource != "" && !dataSources[d.DataSource] {
			problems = append(problems, fmt.Sprintf("dataset %q references unknown data source %q", d.Name, d.DataSource))
		}
	}

	reports := make(map[string]bool, len(p.Reports))
	for i := range p.Reports {
		r := &p.Reports[i]
		if r.Name == "" {
			problems = append(problems, "report with empty name")
			continue
		}
		if reports[r.Name] {
			problems = append(problems, fmt.Sprintf("duplicate report %q", r.Name))
		}
		reports[r.Name] = true
		if r.File == "" {
			problems = append(problems, fmt.Sprintf("report %q has no file", r.Name))
		} else if _, err := os.Stat(p.FilePath(r.File)); err != nil {
			problems = append(problems, fmt.Sprintf("report %q file not found: %s", r.Name, r.File))
		}
		for _, ref := range r.DataSets {
			if !dataSets[ref.Name] {
				problems = append(problems, fmt.Sprintf("report %q references unknown dataset %q", r.Name, ref.Name))
			}
		}
		for _, ref := range r.DataSources {
			if !dataSources[ref.Name] {
				problems = append(problems, fmt.Sprintf("report %q references unknown data source %q", r.Name, ref.Name))
			}
		}
	}

	if len(problems) > 0 {
		return errors.ProjectError("project validation failed").
			WithContext("problems", strings.Join(problems, "; ")).
			WithContext("count", len(problems)).
			Build()
	}
	return nil
}
