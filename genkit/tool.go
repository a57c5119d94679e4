package genkit

import "context"

// Tool is the interface that code generation tools must implement.
// It provides a unified way to run code generators.
type Tool interface {
	// Name returns the tool name (e.g., "defergen").
	Name() string

	// Run processes all packages and generates code.
	// It should handle logging internally.
	Run(ctx context.Context, gen *Generator, log *Logger) error
}

// ValidatableTool is implemented by tools that can report problems
// without generating files.
type ValidatableTool interface {
	Tool

	// Validate checks all packages and returns diagnostics.
	Validate(ctx context.Context, gen *Generator, log *Logger) []Diagnostic
}

// ConfigurableTool is implemented by tools that describe their annotations.
type ConfigurableTool interface {
	Tool

	// Config returns the tool's annotation schema.
	Config() ToolConfig
}
