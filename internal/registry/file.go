package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"llmedged/internal/common/fsutil"
	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// registryFile is the on-disk shape of an explicit registry. Explicit files
// are the only way to attach auxiliary components (VAE, decoder) to a model.
type registryFile struct {
	Models []types.Model `json:"models" yaml:"models" toml:"models"`
}

// LoadFile reads an explicit model registry from a YAML, JSON, or TOML file.
// Relative weight paths resolve against the registry file's directory. Models
// missing a family or an estimated size get them filled in the same way the
// directory scanner would.
func LoadFile(path string) ([]types.Model, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	var rf registryFile
	switch ext := strings.ToLower(filepath.Ext(p)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &rf); err != nil {
			return nil, err
		}
	case ".json":
		if err := json.Unmarshal(b, &rf); err != nil {
			return nil, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &rf); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported registry extension: %s", ext)
	}

	base := filepath.Dir(p)
	for i := range rf.Models {
		m := &rf.Models[i]
		if m.ID == "" {
			return nil, fmt.Errorf("registry entry %d: missing id", i)
		}
		if m.Path == "" {
			return nil, fmt.Errorf("registry entry %q: missing path", m.ID)
		}
		m.Path = resolve(base, m.Path)
		if m.AuxPath != "" {
			m.AuxPath = resolve(base, m.AuxPath)
		}
		if m.DecoderPath != "" {
			m.DecoderPath = resolve(base, m.DecoderPath)
		}
		if m.Family == "" {
			m.Family = inferFamily(filepath.Base(m.Path))
		}
		if !m.Family.Valid() {
			return nil, fmt.Errorf("registry entry %q: unknown family %q", m.ID, m.Family)
		}
		if m.Quant == "" {
			m.Quant = engine.QuantTag(filepath.Base(m.Path))
		}
		if m.EstBytes == 0 {
			if est, err := engine.EstimateWeightBytes(m.Path); err == nil {
				m.EstBytes = est
			}
		}
	}
	return rf.Models, nil
}

func resolve(base, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
