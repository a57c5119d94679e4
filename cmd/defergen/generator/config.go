package generator

import (
	"fmt"

	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/cmd/defergen/pattern"
	"github.com/tlipoca9/defergen/genkit"
)

// Config is the content of defergen.toml.
//
//	output_suffix = "_defer.go"
//	parallelism = 4
//
//	[callable]
//	name = "{0}"
//	accessible = "derived"
//	serializable = true
//
//	[container]
//	name = "{0}Defer"
//	accessible = "derived"
//
// Annotation arguments take precedence over the file, which takes
// precedence over the built-in defaults.
type Config struct {
	OutputSuffix string `toml:"output_suffix" json:"output_suffix"`
	// Parallelism limits how many types are planned at once; 0 means no limit.
	Parallelism int                    `toml:"parallelism" json:"parallelism"`
	Callable    model.GenerationConfig `toml:"callable" json:"callable"`
	Container   model.ContainerConfig  `toml:"container" json:"container"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	d := model.BuiltinDefaults()
	return Config{
		OutputSuffix: DefaultOutputSuffix,
		Callable:     d.Callable,
		Container:    d.Container,
	}
}

// Defaults returns the project defaults applied before annotations.
func (c Config) Defaults() model.Defaults {
	return model.Defaults{Callable: c.Callable, Container: c.Container}
}

// Validate checks the patterns and values of the configuration.
func (c Config) Validate() error {
	if c.OutputSuffix == "" {
		return fmt.Errorf("output_suffix must not be empty")
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must not be negative, got %d", c.Parallelism)
	}
	if err := pattern.Validate(c.Callable.Name); err != nil {
		return fmt.Errorf("callable.name: %w", err)
	}
	if err := pattern.Validate(c.Container.Name); err != nil {
		return fmt.Errorf("container.name: %w", err)
	}
	return nil
}

// LoadConfig searches defergen.toml from dir upwards and merges it over the
// defaults. The returned path is empty when no file exists.
func LoadConfig(dir string) (Config, string, error) {
	cfg := DefaultConfig()
	path, err := genkit.LoadConfig(dir, ConfigFileName, &cfg)
	if err != nil {
		return DefaultConfig(), path, err
	}
	if err := cfg.Validate(); err != nil {
		return DefaultConfig(), path, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, path, nil
}
