package genkit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ToolConfig describes the annotations a tool understands.
// It is printed by the "config" command for editor integration.
type ToolConfig struct {
	// OutputSuffix is the suffix for generated files (e.g., "_defer.go").
	OutputSuffix string `toml:"output_suffix"`

	// Annotations defines the annotations supported by this tool.
	Annotations []AnnotationConfig `toml:"annotations"`
}

// AnnotationConfig defines a single annotation's metadata.
type AnnotationConfig struct {
	// Name is the annotation name (e.g., "callable").
	Name string `toml:"name"`

	// Type is where the annotation can be applied: "type" or "method".
	Type string `toml:"type"`

	// Doc is the documentation for this annotation.
	Doc string `toml:"doc"`

	// Params describes the key=value parameters of the annotation.
	Params []AnnotationParam `toml:"params"`
}

// AnnotationParam describes one annotation parameter.
type AnnotationParam struct {
	Name    string   `toml:"name"`
	Type    string   `toml:"type"` // "string", "bool" or "enum"
	Values  []string `toml:"values,omitempty"`
	Default string   `toml:"default"`
	Doc     string   `toml:"doc"`
}

// ToJSON converts the tool configuration into the map layout used by IDE integrations.
func (tc *ToolConfig) ToJSON() map[string]any {
	typeAnnotations := []string{}
	methodAnnotations := []string{}
	annotations := make(map[string]any)

	for _, ann := range tc.Annotations {
		params := make(map[string]any, len(ann.Params))
		for _, p := range ann.Params {
			param := map[string]any{
				"type":    p.Type,
				"default": p.Default,
				"doc":     p.Doc,
			}
			if len(p.Values) > 0 {
				param["values"] = p.Values
			}
			params[p.Name] = param
		}
		annotations[ann.Name] = map[string]any{
			"doc":    ann.Doc,
			"params": params,
		}

		switch ann.Type {
		case "type":
			typeAnnotations = append(typeAnnotations, ann.Name)
		case "method":
			methodAnnotations = append(methodAnnotations, ann.Name)
		}
	}

	return map[string]any{
		"typeAnnotations":   typeAnnotations,
		"methodAnnotations": methodAnnotations,
		"outputSuffix":      tc.OutputSuffix,
		"annotations":       annotations,
	}
}

// FindConfig searches for a file called name starting from dir and going up to root.
// It returns the empty string if no such file exists.
func FindConfig(dir, name string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return configPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadConfig finds name from dir upwards and decodes it into v.
// It returns the path of the decoded file, or "" if none was found;
// v is left untouched in that case.
func LoadConfig(dir, name string, v any) (string, error) {
	configPath, err := FindConfig(dir, name)
	if err != nil {
		return "", err
	}
	if configPath == "" {
		return "", nil
	}
	return configPath, LoadConfigFile(configPath, v)
}

// LoadConfigFile decodes the TOML file at path into v.
// Unknown keys are reported as errors.
func LoadConfigFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	md, err := toml.Decode(string(data), v)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("parse config %s: unknown keys %v", path, undecoded)
	}
	return nil
}
