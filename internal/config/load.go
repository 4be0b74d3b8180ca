package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

var (
	ErrNoNodes           = errors.New("config: no nodes declared")
	ErrUnsupportedFormat = errors.New("config: unsupported file format")
)

// File is one cluster file: shared configuration plus the ordered node list.
type File struct {
	Common Section
	Nodes  []NodeSpec
}

// LoadFile reads a cluster file. Everything except the nodes list is shared
// configuration.
func LoadFile(path string) (File, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return loadTOMLFile(path)
	case ".yaml", ".yml":
		return loadYAMLFile(path)
	default:
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// LoadCommon reads a TOML file holding shared configuration only.
func LoadCommon(path string) (Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	out := Section{}
	if err := gotoml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return out, nil
}

func loadTOMLFile(path string) (File, error) {
	raw := map[string]any{}
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if !meta.IsDefined("nodes") {
		return File{}, fmt.Errorf("%w (%s)", ErrNoNodes, path)
	}
	return fileFromTable(path, raw)
}

func loadYAMLFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return File{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if _, ok := raw["nodes"]; !ok {
		return File{}, fmt.Errorf("%w (%s)", ErrNoNodes, path)
	}
	return fileFromTable(path, raw)
}

func fileFromTable(path string, raw map[string]any) (File, error) {
	tables, err := nodeTables(raw["nodes"])
	if err != nil {
		return File{}, fmt.Errorf("config %s: %w", path, err)
	}
	if len(tables) == 0 {
		return File{}, fmt.Errorf("%w (%s)", ErrNoNodes, path)
	}
	delete(raw, "nodes")

	out := File{Common: Section(cloneTable(raw))}
	for i, table := range tables {
		spec, err := nodeSpecFromTable(table)
		if err != nil {
			return File{}, fmt.Errorf("config %s nodes[%d]: %w", path, i, err)
		}
		out.Nodes = append(out.Nodes, spec)
	}
	return out, nil
}

func nodeTables(raw any) ([]map[string]any, error) {
	switch v := raw.(type) {
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, 0, len(v))
		for i, item := range v {
			table, ok := asTable(item)
			if !ok {
				return nil, fmt.Errorf("%w: nodes[%d] is %T", ErrInvalidNodeSpec, i, item)
			}
			out = append(out, table)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: nodes is %T", ErrInvalidNodeSpec, raw)
	}
}
