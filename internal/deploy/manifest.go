package deploy

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ObjectivityLtd/PSCI/internal/project"
	"github.com/ObjectivityLtd/PSCI/internal/tokens"
)

// Manifest is a complete record of a deployment's inputs and outputs. Its
// input hash identifies runs with identical content so unchanged redeploys
// can be detected.
type Manifest struct {
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
	Inputs      Inputs    `json:"inputs"`
	Items       []Item    `json:"items"`
	Status      string    `json:"status"`
	Duration    int64     `json:"duration_ms"`
}

// Inputs captures everything that influenced the deployment.
type Inputs struct {
	ProjectFile string `json:"project_file"`
	ProjectHash string `json:"project_hash"`
	TokensHash  string `json:"tokens_hash"`
	ServerURL   string `json:"server_url"`
}

// Item is one catalog item the deployment touched.
type Item struct {
	Name string `json:"name"`
	Type string `json:"type"` // datasource, dataset, report, namespace
	Path string `json:"path"`
}

// BuildManifest assembles a manifest from the project and resolved tokens.
// Definition files are hashed so content changes show up in the input hash.
func BuildManifest(projectFile string, proj *project.Project, resolved tokens.Resolved) (*Manifest, error) {
	projectHash, err := hashProject(proj)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Timestamp: time.Now(),
		Inputs: Inputs{
			ProjectFile: projectFile,
			ProjectHash: projectHash,
			TokensHash:  HashTokens(resolved),
		},
	}

	for _, ds := range proj.DataSources {
		m.Items = append(m.Items, Item{Name: ds.Name, Type: "datasource", Path: ds.TargetFolder + "/" + ds.Name})
	}
	for _, dset := range proj.DataSets {
		m.Items = append(m.Items, Item{Name: dset.Name, Type: "dataset", Path: dset.TargetFolder + "/" + dset.Name})
	}
	for _, rpt := range proj.Reports {
		m.Items = append(m.Items, Item{Name: rpt.Name, Type: "report", Path: rpt.TargetFolder + "/" + rpt.Name})
	}
	return m, nil
}

// hashProject hashes the project structure plus the content of every
// referenced definition file.
func hashProject(proj *project.Project) (string, error) {
	h := sha256.New()

	structural, err := json.Marshal(proj)
	if err != nil {
		return "", fmt.Errorf("marshal project for hash: %w", err)
	}
	h.Write(structural)

	var files []string
	for _, dset := range proj.DataSets {
		files = append(files, dset.File)
	}
	for _, rpt := range proj.Reports {
		files = append(files, rpt.File)
	}
	for _, file := range files {
		data, err := os.ReadFile(proj.FilePath(file))
		if err != nil {
			return "", fmt.Errorf("read %s for hash: %w", file, err)
		}
		h.Write([]byte(file))
		h.Write(data)
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashTokens computes a deterministic hash of a resolved token table.
// json.Marshal sorts map keys, which keeps the hash stable.
func HashTokens(resolved tokens.Resolved) string {
	data, _ := json.Marshal(resolved)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// InputHash identifies the deployment's content: same hash, same inputs.
func (m *Manifest) InputHash() string {
	data, _ := json.Marshal(m.Inputs)
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)
}

// ToJSON serializes the manifest.
func (m *Manifest) ToJSON() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	return data, nil
}

// FromJSON deserializes a manifest.
func FromJSON(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return &m, nil
}
