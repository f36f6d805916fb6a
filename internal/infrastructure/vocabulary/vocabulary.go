package vocabulary

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed labels.yaml
var defaultLabels []byte

type file struct {
	Labels map[string]string `yaml:"labels"`
}

// Table translates detector class labels into display names. Lookups ignore
// case and surrounding whitespace.
type Table struct {
	names map[string]string
}

// Default returns the built-in label table.
func Default() (*Table, error) {
	return Parse(defaultLabels)
}

// Load returns the built-in table overlaid with the entries from path. An
// empty path returns the built-in table.
func Load(path string) (*Table, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary %s: %w", path, err)
	}
	override, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	for k, v := range override.names {
		base.names[k] = v
	}
	return base, nil
}

func Parse(data []byte) (*Table, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	t := &Table{names: make(map[string]string, len(f.Labels))}
	for label, name := range f.Labels {
		key := normalizeLabel(label)
		if key == "" {
			continue
		}
		t.names[key] = strings.TrimSpace(name)
	}
	return t, nil
}

// Translate returns the display name for label. Unknown labels and labels
// mapped to an empty name report false.
func (t *Table) Translate(label string) (string, bool) {
	name, ok := t.names[normalizeLabel(label)]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func (t *Table) Len() int {
	return len(t.names)
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}
