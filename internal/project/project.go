// Package project loads and validates the XML project file that enumerates
// reporting artifacts: shared data sources, shared datasets, and report
// definitions, with their target catalog folders.
package project

import (
	"encoding/xml"
	"os"
	"path"
	"path/filepath"

	"github.com/ObjectivityLtd/PSCI/internal/foundation/errors"
)

// Project is the root of a reporting project file.
type Project struct {
	XMLName      xml.Name     `xml:"Project"`
	Name         string       `xml:"Name,attr"`
	TargetFolder string       `xml:"TargetFolder,attr"`
	DataSources  []DataSource `xml:"DataSources>DataSource"`
	DataSets     []DataSet    `xml:"DataSets>DataSet"`
	Reports      []Report     `xml:"Reports>Report"`

	// BaseDir is the directory of the project file; item file paths are
	// relative to it. Not part of the XML document.
	BaseDir string `xml:"-"`
}

// DataSource is a shared data source definition.
type DataSource struct {
	Name             string `xml:"Name,attr"`
	Extension        string `xml:"Extension,attr"`
	ConnectionString string `xml:"ConnectionString,attr"`
	TargetFolder     string `xml:"TargetFolder,attr"`
	Overwrite        *bool  `xml:"Overwrite,attr"`
	WindowsAuth      bool   `xml:"WindowsAuth,attr"`
}

// DataSet is a shared dataset definition backed by a query file.
type DataSet struct {
	Name         string `xml:"Name,attr"`
	File         string `xml:"File,attr"`
	DataSource   string `xml:"DataSource,attr"`
	TargetFolder string `xml:"TargetFolder,attr"`
	Overwrite    *bool  `xml:"Overwrite,attr"`
}

// Report is a report definition with references to shared items.
type Report struct {
	Name         string   `xml:"Name,attr"`
	File         string   `xml:"File,attr"`
	TargetFolder string   `xml:"TargetFolder,attr"`
	Overwrite    *bool    `xml:"Overwrite,attr"`
	Hidden       bool     `xml:"Hidden,attr"`
	DataSets     []Ref    `xml:"DataSetRef"`
	DataSources  []Ref    `xml:"DataSourceRef"`
}

// Ref names a shared item the report binds to.
type Ref struct {
	Name string `xml:"Name,attr"`
}

// Default subfolders mirror the usual catalog layout.
const (
	defaultDataSourceFolder = "Data Sources"
	defaultDataSetFolder    = "Datasets"
)

// Load reads a project file, parses it, and applies defaults.
func Load(projectPath string) (*Project, error) {
	data, err := os.ReadFile(projectPath)
	if err != nil {
		return nil, errors.ProjectError("failed to read project file").
			WithCause(err).
			WithContext("path", projectPath).
			Build()
	}

	var p Project
	if err := xml.Unmarshal(data, &p); err != nil {
		return nil, errors.ProjectError("failed to parse project file").
			WithCause(err).
			WithContext("path", projectPath).
			Build()
	}

	p.BaseDir = filepath.Dir(projectPath)
	p.applyDefaults()
	return &p, nil
}

// applyDefaults fills folder and extension defaults so downstream code never
// deals with empty fields.
func (p *Project) applyDefaults() {
	if p.TargetFolder == "" {
		p.TargetFolder = "/" + p.Name
	}

	for i := range p.DataSources {
		ds := &p.DataSources[i]
		if ds.Extension == "" {
			ds.Extension = "SQL"
		}
		if ds.TargetFolder == "" {
			ds.TargetFolder = path.Join(p.TargetFolder, defaultDataSourceFolder)
		}
	}
	for i := range p.DataSets {
		d := &p.DataSets[i]
		if d.TargetFolder == "" {
			d.TargetFolder = path.Join(p.TargetFolder, defaultDataSetFolder)
		}
	}
	for i := range p.Reports {
		r := &p.Reports[i]
		if r.TargetFolder == "" {
			r.TargetFolder = p.TargetFolder
		}
	}
}

// Overwrite resolves the per-item overwrite flag against the toolkit default.
func Overwrite(flag *bool, def bool) bool {
	if flag == nil {
		return def
	}
	return *flag
}

// FilePath returns the absolute path of an item file.
func (p *Project) FilePath(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(p.BaseDir, rel)
}

// Folders returns the distinct target folders in deployment order: project
// root first, then item folders sorted for determinism.
func (p *Project) Folders() []string {
	seen := map[string]bool{p.TargetFolder: true}
	out := []string{p.TargetFolder}

	add := func(folder string) {
		if folder != "" && !seen[folder] {
			seen[folder] = true
			out = append(out, folder)
		}
	}
	for i := range p.DataSources {
		add(p.DataSources[i].TargetFolder)
	}
	for i := range p.DataSets {
		add(p.DataSets[i].TargetFolder)
	}
	for i := range p.Reports {
		add(p.Reports[i].TargetFolder)
	}
	return out
}
