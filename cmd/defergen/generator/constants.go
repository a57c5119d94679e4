// Package generator provides deferred-call code generation functionality.
package generator

// ToolName is the name of this tool, used in annotations.
const ToolName = "defergen"

// ConfigFileName is the project configuration file searched upwards from
// the target directory.
const ConfigFileName = "defergen.toml"

// DefaultOutputSuffix is appended to the package name to form the output file.
const DefaultOutputSuffix = "_defer.go"

// WarnCodeEmptyContainer marks a @container type without @callable methods.
// Error codes are the model.Code* constants.
const WarnCodeEmptyContainer = "W001"

// callableImportPath is the runtime package the generated code asserts against.
const callableImportPath = "github.com/tlipoca9/defergen/callable"
