package config

import (
	"fmt"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
	"github.com/ObjectivityLtd/PSCI/internal/mailns"
)

// Validate checks the configuration for structural problems. All problems are
// collected so one run reports everything at once.
func (c *Config) Validate() error {
	var problems []string

	for name, env := range c.Environments {
		if name == "" {
			problems = append(problems, "environment with empty name")
			continue
		}
		if env.Inherits != "" {
			if _, ok := c.Environments[env.Inherits]; !ok {
				problems = append(problems, fmt.Sprintf("environment %q inherits unknown environment %q", name, env.Inherits))
			}
		}
	}

	if c.Reporting.ProjectFile != "" && c.Reporting.URL == "" {
		problems = append(problems, "reporting.project is set but reporting.url is empty")
	}

	validProtocols := make(map[string]bool)
	for _, p := range mailns.AllProtocols() {
		validProtocols[string(p)] = true
	}
	seenNamespaces := make(map[string]bool)
	for _, ns := range c.MailNamespaces {
		if ns.Name == "" {
			problems = append(problems, "mail namespace with empty name")
			continue
		}
		if seenNamespaces[ns.Name] {
			problems = append(problems, fmt.Sprintf("duplicate mail namespace %q", ns.Name))
		}
		seenNamespaces[ns.Name] = true
		if ns.InternalHost == "" {
			problems = append(problems, fmt.Sprintf("mail namespace %q has no internal_host", ns.Name))
		}
		for _, p := range ns.Exclude {
			if !validProtocols[p] {
				problems = append(problems, fmt.Sprintf("mail namespace %q excludes unknown protocol %q", ns.Name, p))
			}
		}
		for p := range ns.Overrides {
			if !validProtocols[p] {
				problems = append(problems, fmt.Sprintf("mail namespace %q overrides unknown protocol %q", ns.Name, p))
			}
		}
	}

	seenSchedules := make(map[string]bool)
	for i, sched := range c.Daemon.Schedules {
		if sched.Name == "" {
			problems = append(problems, fmt.Sprintf("daemon schedule %d has no name", i))
		} else if seenSchedules[sched.Name] {
			problems = append(problems, fmt.Sprintf("duplicate daemon schedule %q", sched.Name))
		}
		seenSchedules[sched.Name] = true
		if sched.Cron == "" {
			problems = append(problems, fmt.Sprintf("daemon schedule %q has no cron expression", sched.Name))
		}
		if sched.Environment == "" {
			problems = append(problems, fmt.Sprintf("daemon schedule %q has no environment", sched.Name))
		} else if _, ok := c.Environments[sched.Environment]; !ok {
			problems = append(problems, fmt.Sprintf("daemon schedule %q targets unknown environment %q", sched.Name, sched.Environment))
		}
	}

	if c.Source != nil && c.Source.URL == "" {
		problems = append(problems, "source is configured but source.url is empty")
	}

	if len(problems) > 0 {
		return errors.ConfigError("invalid configuration").
			WithContext("problems", problems).
			Build()
	}
	return nil
}
