package agent

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orchv2/dashboard/pkg/cerr"
)

//go:embed agents.yaml
var defaultCatalogYAML []byte

// Agent is one launchable agent kind with its selectable models.
type Agent struct {
	ID      string   `yaml:"id" json:"id"`
	Name    string   `yaml:"name" json:"name"`
	Models  []string `yaml:"models" json:"models"`
	Default string   `yaml:"default" json:"default"`
}

type catalogFile struct {
	Agents []Agent `yaml:"agents"`
}

// Catalog is the set of agents a task may be assigned to. The built-in
// set can be replaced by an operator-provided YAML file.
type Catalog struct {
	agents []Agent
	byID   map[string]Agent
}

// LoadCatalog reads agents from path, or the embedded defaults when
// path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalogYAML
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, cerr.NewError(cerr.Internal, fmt.Sprintf("failed to read agent catalog %q", path), err)
		}
		data = b
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, cerr.NewError(cerr.Internal, "failed to parse agent catalog", err)
	}
	if len(file.Agents) == 0 {
		return nil, cerr.NewError(cerr.Internal, "agent catalog is empty", nil)
	}
	c := &Catalog{agents: file.Agents, byID: map[string]Agent{}}
	for _, a := range file.Agents {
		c.byID[a.ID] = a
	}
	return c, nil
}

func (c *Catalog) Agents() []Agent {
	return c.agents
}

func (c *Catalog) Get(id string) (Agent, bool) {
	a, ok := c.byID[id]
	return a, ok
}

// DefaultModel returns the default model for an agent, or "" when the
// agent is unknown or has no default.
func (c *Catalog) DefaultModel(id string) string {
	if a, ok := c.byID[id]; ok {
		return a.Default
	}
	return ""
}
