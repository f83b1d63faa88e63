package planfile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format names a plan file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// Extensions lists the file extensions tried when resolving a bare plan name.
var Extensions = []string{".yaml", ".yml", ".json", ".toml"}

// FormatForPath infers the encoding from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("planfile: unsupported extension for %s", path)
}

// Parse decodes and normalizes a definition. JSON goes through the YAML
// decoder, which accepts it as a subset.
func Parse(data []byte, format Format) (Definition, error) {
	def, err := decode(data, format)
	if err != nil {
		return Definition{}, err
	}
	return def.Normalized()
}

func decode(data []byte, format Format) (Definition, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Definition{}, fmt.Errorf("planfile: definition payload is empty")
	}
	var def Definition
	switch format {
	case FormatYAML, FormatJSON, "":
		if err := yaml.Unmarshal(data, &def); err != nil {
			return Definition{}, fmt.Errorf("planfile: decode definition: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &def); err != nil {
			return Definition{}, fmt.Errorf("planfile: decode definition: %w", err)
		}
	default:
		return Definition{}, fmt.Errorf("planfile: unsupported format %q", format)
	}
	return def, nil
}

// LoadFile loads a definition from an explicit path. A missing id defaults to
// the file name without its extension.
func LoadFile(path string) (Definition, error) {
	format, err := FormatForPath(path)
	if err != nil {
		return Definition{}, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("planfile: read %s: %w", path, err)
	}
	raw, err := decode(content, format)
	if err != nil {
		return Definition{}, fmt.Errorf("planfile: %s: %w", path, err)
	}
	if strings.TrimSpace(raw.ID) == "" {
		raw.ID = baseName(path)
	}
	def, err := raw.Normalized()
	if err != nil {
		return Definition{}, fmt.Errorf("planfile: %s: %w", path, err)
	}
	return def, nil
}

// Resolve locates a plan by explicit path or, failing that, by bare name
// inside dir with any supported extension.
func Resolve(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("planfile: plan name is required")
	}
	if _, err := os.Stat(name); err == nil {
		return name, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("planfile: stat %s: %w", name, err)
	}
	if dir == "" || strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("planfile: %s not found", name)
	}
	candidates := []string{filepath.Join(dir, name)}
	if filepath.Ext(name) == "" {
		candidates = candidates[:0]
		for _, ext := range Extensions {
			candidates = append(candidates, filepath.Join(dir, name+ext))
		}
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("planfile: %s not found in %s", name, dir)
}

func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
