package strategy

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"scoutline.dev/orchestrator/internal/model"
)

// LoadBootstrapDir parses every *.yaml/*.yml file in dir as a Strategy. It is
// used once, when the store holds no strategies at all, to seed the initial
// set from version-controlled files rather than requiring a manual import
// step before the orchestrator can serve its first request.
func LoadBootstrapDir(dir string) ([]model.Strategy, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read strategy bootstrap dir %q: %w", dir, err)
	}

	var out []model.Strategy
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read strategy file %q: %w", path, err)
		}

		var st model.Strategy
		if err := yaml.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("parse strategy file %q: %w", path, err)
		}
		if st.Meta.Slug == "" {
			return nil, fmt.Errorf("strategy file %q missing meta.slug", path)
		}
		st.IsActive = true

		out = append(out, st)
	}

	return out, nil
}
