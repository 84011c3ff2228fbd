// Package registry discovers GGUF model files.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"structd/internal/common/fsutil"
	"structd/pkg/types"
)

var quantRe = regexp.MustCompile(`(?i)[._-](q[0-9]_[0-9a-z_]+|q[0-9]+_[0-9]|f16|f32|bf16)$`)

var families = []string{"llama", "mistral", "qwen", "phi", "gemma", "tinyllama", "smollm"}

// LoadDir scans a directory for *.gguf files. The ID is the file name
// without extension; quant and family are guessed from it.
func LoadDir(dir string) ([]types.Model, error) {
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
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".gguf") {
			continue
		}
		models = append(models, describe(filepath.Join(abs, e.Name())))
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func describe(path string) types.Model {
	id := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := types.Model{ID: id, Name: id, Path: path}
	if q := quantRe.FindStringSubmatch(id); q != nil {
		m.Quant = strings.ToUpper(q[1])
	}
	lower := strings.ToLower(id)
	for _, f := range families {
		if strings.HasPrefix(lower, f) {
			m.Family = f
		}
	}
	return m
}

// Resolve finds ref among models by ID or file name, or treats it as a path
// to a GGUF file when it exists on disk.
func Resolve(models []types.Model, ref string) (types.Model, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		if len(models) == 1 {
			return models[0], nil
		}
		return types.Model{}, fmt.Errorf("no model selected and %d available", len(models))
	}
	for _, m := range models {
		if m.ID == ref || filepath.Base(m.Path) == ref {
			return m, nil
		}
	}
	p, err := fsutil.ExpandHome(ref)
	if err != nil {
		return types.Model{}, err
	}
	if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
		return describe(p), nil
	}
	return types.Model{}, fmt.Errorf("model not found: %s", ref)
}
