package project

import (
	"github.com/ObjectivityLtd/PSCI/internal/tokens"
)

// ApplyTokens returns a copy of the project with ${ref} placeholders in every
// string field expanded against the resolved token set. The receiver is not
// modified.
func (p *Project) ApplyTokens(resolved tokens.Resolved) (*Project, error) {
	out := *p
	out.DataSources = append([]DataSource(nil), p.DataSources...)
	out.DataSets = append([]DataSet(nil), p.DataSets...)
	out.Reports = append([]Report(nil), p.Reports...)

	var err error
	expand := func(s string) string {
		if err != nil {
			return s
		}
		var v string
		v, err = tokens.ResolveString(s, resolved)
		if err != nil {
			return s
		}
		return v
	}

	out.Name = expand(out.Name)
	out.TargetFolder = expand(out.TargetFolder)

	for i := range out.DataSources {
		ds := &out.DataSources[i]
		ds.ConnectionString = expand(ds.ConnectionString)
		ds.TargetFolder = expand(ds.TargetFolder)
	}
	for i := range out.DataSets {
		d := &out.DataSets[i]
		d.File = expand(d.File)
		d.TargetFolder = expand(d.TargetFolder)
	}
	for i := range out.Reports {
		r := &out.Reports[i]
		r.File = expand(r.File)
		r.TargetFolder = expand(r.TargetFolder)
	}

	if err != nil {
		return nil, err
	}
	return &out, nil
}
