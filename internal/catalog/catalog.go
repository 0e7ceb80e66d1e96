// Package catalog loads the on-disk item library: a directory of YAML
// files, one models.Item per document. Grounded on the pack's
// workspace.LoadFromPath (extension-driven yaml.Unmarshal directly into a
// domain type, wrapped errors naming the offending path) generalized to
// walk a directory instead of reading a single file.
package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aptcat/engine/pkg/models"
	"gopkg.in/yaml.v3"
)

// Load reads every .yaml/.yml file under dir, non-recursively, parses each
// as a single models.Item, and validates it against the closed
// dimension/category/evaluator-kind enums. Items are returned sorted by ID
// for deterministic pool ordering.
func Load(dir string) ([]models.Item, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("catalog: read dir %q: %w", dir, err)
	}

	var items []models.Item
	seen := make(map[string]string) // item ID -> source file, for duplicate detection
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		item, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if existing, ok := seen[item.ID]; ok {
			return nil, fmt.Errorf("catalog: duplicate item id %q in %q and %q", item.ID, existing, path)
		}
		seen[item.ID] = path
		items = append(items, item)
	}

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func loadFile(path string) (models.Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Item{}, fmt.Errorf("catalog: read %q: %w", path, err)
	}

	var item models.Item
	if err := yaml.Unmarshal(data, &item); err != nil {
		return models.Item{}, fmt.Errorf("catalog: parse %q: %w", path, err)
	}

	if err := validate(item); err != nil {
		return models.Item{}, fmt.Errorf("catalog: %q: %w", path, err)
	}
	return item, nil
}

func validate(item models.Item) error {
	if item.ID == "" {
		return fmt.Errorf("item has no id")
	}
	if !item.Dimension.IsValid() {
		return fmt.Errorf("item %q: invalid dimension %q", item.ID, item.Dimension)
	}
	if !item.Category.IsValid() {
		return fmt.Errorf("item %q: invalid category %q", item.ID, item.Category)
	}
	if item.Alpha <= 0 {
		return fmt.Errorf("item %q: alpha must be > 0, got %v", item.ID, item.Alpha)
	}
	if item.Gamma < 0 || item.Gamma >= 1 {
		return fmt.Errorf("item %q: gamma must be in [0, 1), got %v", item.ID, item.Gamma)
	}
	if len(item.Evaluators) == 0 {
		return fmt.Errorf("item %q: has no evaluators", item.ID)
	}
	for _, ev := range item.Evaluators {
		if !ev.Kind.IsValid() {
			return fmt.Errorf("item %q: invalid evaluator kind %q", item.ID, ev.Kind)
		}
	}
	return nil
}
