// Package summary renders human-readable deployment summaries. Markdown is
// the source format; HTML is rendered from it for the daemon status page.
package summary

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ObjectivityLtd/PSCI/internal/deploy"
)

// Markdown renders a deployment result as a Markdown document. The manifest
// is optional.
func Markdown(result *deploy.Result, manifest *deploy.Manifest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Deployment %s\n\n", result.DeploymentID)
	fmt.Fprintf(&b, "- Environment: %s\n", result.Environment)
	fmt.Fprintf(&b, "- Status: **%s**\n", result.Status)
	fmt.Fprintf(&b, "- Started: %s\n", result.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond))
	if result.DryRun {
		b.WriteString("- Mode: dry run\n")
	}
	b.WriteString("\n## Steps\n\n")
	b.WriteString("| Step | Status | Duration | Warnings |\n")
	b.WriteString("| --- | --- | --- | --- |\n")
	for _, step := range result.Steps {
		fmt.Fprintf(&b, "| %s | %s | %s | %d |\n",
			step.Name, step.Status, step.Duration.Round(time.Millisecond), len(step.Warnings))
	}

	if warnings := result.Warnings(); len(warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
	}

	for _, step := range result.Steps {
		if step.Err != nil {
			fmt.Fprintf(&b, "\n## Failure\n\nStep `%s` failed: %s\n", step.Name, step.Err)
			break
		}
	}

	if manifest != nil {
		b.WriteString("\n## Items\n\n")
		for _, item := range manifest.Items {
			fmt.Fprintf(&b, "- %s `%s`\n", item.Type, item.Path)
		}
		fmt.Fprintf(&b, "\nInput hash: `%s`\n", manifest.InputHash())
	}

	return b.String()
}

// HTML renders the Markdown summary to HTML. GFM tables are enabled so the
// step table survives the conversion.
func HTML(result *deploy.Result, manifest *deploy.Manifest) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var out bytes.Buffer
	if err := md.Convert([]byte(Markdown(result, manifest)), &out); err != nil {
		return "", fmt.Errorf("render summary: %w", err)
	}
	return out.String(), nil
}
