package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"llmedged/internal/common/fsutil"
	"llmedged/internal/engine"
	"llmedged/pkg/types"
)

// weightExtensions are the file suffixes treated as model weights.
var weightExtensions = []string{".gguf", ".safetensors", ".bin"}

// Scanner builds a model registry from a directory of weight files. The
// family is inferred from the filename; unknown files default to the text
// family since that is what most local model collections hold.
type Scanner struct{}

// NewScanner returns a directory scanner.
func NewScanner() Scanner { return Scanner{} }

// Scan walks dir (a leading ~ expands to the home directory) and builds one
// registry entry per weight file. The ID is the filename without extension;
// the estimated size comes from the file size and quantization tag.
func (Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}

	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !isWeightFile(name) {
			continue
		}
		p := filepath.Join(abs, name)
		m := types.Model{
			ID:     strings.TrimSuffix(name, filepath.Ext(name)),
			Name:   name,
			Path:   p,
			Quant:  engine.QuantTag(name),
			Family: inferFamily(name),
		}
		if est, err := engine.EstimateWeightBytes(p); err == nil {
			m.EstBytes = est
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir is a convenience wrapper around the default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}

func isWeightFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range weightExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// inferFamily guesses the model family from well-known filename markers.
// Collections are free to override with an explicit registry file.
func inferFamily(name string) types.Family {
	lower := strings.ToLower(name)
	switch {
	case containsAny(lower, "whisper"):
		return types.FamilyTranscribe
	case containsAny(lower, "embed", "bge-", "minilm", "e5-"):
		return types.FamilyEmbedding
	case containsAny(lower, "wan2", "animatediff", "video", "svd"):
		return types.FamilyVideo
	case containsAny(lower, "sd15", "sd21", "sdxl", "stable-diffusion", "flux", "dreamshaper"):
		return types.FamilyImage
	default:
		return types.FamilyText
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
