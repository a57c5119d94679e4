package model

import "fmt"

// Built-in name patterns.
const (
	DefaultCallableName  = "{0}"
	DefaultContainerName = "{0}Defer"
)

// GenerationConfig configures the callable generated for one method.
type GenerationConfig struct {
	Name         string       `toml:"name" yaml:"name" json:"name"`
	Accessible   AccessPolicy `toml:"accessible" yaml:"accessible" json:"accessible"`
	Serializable bool         `toml:"serializable" yaml:"serializable" json:"serializable"`
}

// DefaultGenerationConfig returns the marker defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		Name:         DefaultCallableName,
		Accessible:   PolicyDerived,
		Serializable: true,
	}
}

// ContainerConfig configures the container generated for one type.
type ContainerConfig struct {
	Name       string       `toml:"name" yaml:"name" json:"name"`
	Accessible AccessPolicy `toml:"accessible" yaml:"accessible" json:"accessible"`
}

// DefaultContainerConfig returns the container defaults.
func DefaultContainerConfig() ContainerConfig {
	return ContainerConfig{
		Name:       DefaultContainerName,
		Accessible: PolicyDerived,
	}
}

// Defaults are the project-wide defaults applied before annotations.
type Defaults struct {
	Callable  GenerationConfig `toml:"callable" yaml:"callable" json:"callable"`
	Container ContainerConfig  `toml:"container" yaml:"container" json:"container"`
}

// BuiltinDefaults returns the defaults used when no project file exists.
func BuiltinDefaults() Defaults {
	return Defaults{
		Callable:  DefaultGenerationConfig(),
		Container: DefaultContainerConfig(),
	}
}

// Set assigns one annotation argument to the config.
func (c *GenerationConfig) Set(key, value string) error {
	switch key {
	case "name":
		c.Name = value
	case "accessible":
		return c.Accessible.UnmarshalText([]byte(value))
	case "serializable":
		b, err := parseBool(value)
		if err != nil {
			return err
		}
		c.Serializable = b
	default:
		return fmt.Errorf("unknown argument %q, must be one of: name, accessible, serializable", key)
	}
	return nil
}

// Set assigns one annotation argument to the config.
func (c *ContainerConfig) Set(key, value string) error {
	switch key {
	case "name":
		c.Name = value
	case "accessible":
		return c.Accessible.UnmarshalText([]byte(value))
	default:
		return fmt.Errorf("unknown argument %q, must be one of: name, accessible", key)
	}
	return nil
}

func parseBool(s string) (bool, error) {
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q, must be true or false", s)
}
