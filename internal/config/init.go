package config

import (
	"fmt"
	"os"
)

const exampleConfig = `# PSCI deployment configuration
environments:
  default:
    tokens:
      database:
        Server: sql01.corp.local
        ConnectionString: Server=${database.Server};Database=Reporting
      general:
        TargetFolder: /Finance

  uat:
    inherits: default
    tokens:
      database:
        Server: sql-uat.corp.local

  production:
    inherits: default
    tokens:
      database:
        Server: sql-prod.corp.local

reporting:
  url: https://reports.corp.local/api
  token: ${PSCI_REPORTING_TOKEN}
  project: finance.project.xml
  overwrite: true

# mail_namespaces:
#   - name: primary
#     internal_host: mail.corp.local
#     external_host: mail.example.com

history:
  path: psci-history.db

logging:
  level: info
  format: text
`

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", configPath)
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
