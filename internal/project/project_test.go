package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ObjectivityLtd/PSCI/internal/tokens"
)

const sampleProject = `<?xml version="1.0" encoding="utf-8"?>
<Project Name="Finance">
  <DataSources>
    <DataSource Name="WarehouseDS" ConnectionString="Server=sql01;Database=warehouse" WindowsAuth="true"/>
  </DataSources>
  <DataSets>
    <DataSet Name="SalesDS" File="datasets/sales.rsd" DataSource="WarehouseDS"/>
  </DataSets>
  <Reports>
    <Report Name="SalesSummary" File="reports/sales.rdl" Overwrite="false">
      <DataSetRef Name="SalesDS"/>
      <DataSourceRef Name="WarehouseDS"/>
    </Report>
  </Reports>
</Project>
`

func writeSampleProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{"datasets/sales.rsd", "reports/sales.rdl"} {
		full := filepath.Join(dir, f)
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte("<definition/>"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	projectPath := filepath.Join(dir, "finance.project.xml")
	if err := os.WriteFile(projectPath, []byte(sampleProject), 0o644); err != nil {
		t.Fatalf("write project: %v", err)
	}
	return projectPath
}

func TestLoadAppliesDefaults(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if p.TargetFolder != "/Finance" {
		t.Errorf("expected target folder /Finance, got %q", p.TargetFolder)
	}
	if got := p.DataSources[0].TargetFolder; got != "/Finance/Data Sources" {
		t.Errorf("data source folder default wrong: %q", got)
	}
	if got := p.DataSources[0].Extension; got != "SQL" {
		t.Errorf("extension default wrong: %q", got)
	}
	if got := p.DataSets[0].TargetFolder; got != "/Finance/Datasets" {
		t.Errorf("dataset folder default wrong: %q", got)
	}
	if got := p.Reports[0].TargetFolder; got != "/Finance" {
		t.Errorf("report folder default wrong: %q", got)
	}
	if Overwrite(p.Reports[0].Overwrite, true) {
		t.Error("explicit Overwrite=false lost")
	}
	if !Overwrite(p.DataSets[0].Overwrite, true) {
		t.Error("unset overwrite should fall back to default")
	}
}

func TestValidateCleanProject(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid project, got %v", err)
	}
}

func TestValidateCatchesBrokenReferences(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	p.Reports[0].DataSets = append(p.Reports[0].DataSets, Ref{Name: "NoSuchDataset"})
	p.DataSets[0].DataSource = "NoSuchSource"

	if err := p.Validate(); err == nil {
		t.Fatal("expected validation failure for broken references")
	}
}

func TestValidateCatchesMissingFiles(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	p.Reports[0].File = "reports/missing.rdl"

	if err := p.Validate(); err == nil {
		t.Fatal("expected validation failure for missing file")
	}
}

func TestFolders(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	folders := p.Folders()
	if len(folders) != 3 || folders[0] != "/Finance" {
		t.Errorf("unexpected folders: %v", folders)
	}
}

func TestApplyTokens(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	p.DataSources[0].ConnectionString = "Server=${Database.Server};Database=warehouse"

	tbl := tokens.NewTable()
	tbl.Set("Default", "Database", "Server", tokens.Lit("sql-uat"))
	resolved, err := tbl.Resolve("Default")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}

	expanded, err := p.ApplyTokens(resolved)
	if err != nil {
		t.Fatalf("ApplyTokens failed: %v", err)
	}
	if got := expanded.DataSources[0].ConnectionString; got != "Server=sql-uat;Database=warehouse" {
		t.Errorf("token not applied: %q", got)
	}
	// Original untouched.
	if got := p.DataSources[0].ConnectionString; got != "Server=${Database.Server};Database=warehouse" {
		t.Errorf("original mutated: %q", got)
	}
}

func TestApplyTokensUnknownReference(t *testing.T) {
	p, err := Load(writeSampleProject(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	p.TargetFolder = "/${Nope.Missing}"

	if _, err := p.ApplyTokens(tokens.Resolved{}); err == nil {
		t.Fatal("expected error for unknown token reference")
	}
}
