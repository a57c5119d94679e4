package genkit

import (
	"fmt"
	"go/token"
	"regexp"
	"strconv"
	"strings"
)

// DiagnosticSeverity represents the severity of a diagnostic.
type DiagnosticSeverity string

const (
	DiagnosticError   DiagnosticSeverity = "error"
	DiagnosticWarning DiagnosticSeverity = "warning"
	DiagnosticInfo    DiagnosticSeverity = "info"
)

// Diagnostic represents a single error or warning with source location.
// Used for reporting validation errors that can be displayed in IDEs.
type Diagnostic struct {
	Severity DiagnosticSeverity `json:"severity"`
	Message  string             `json:"message"`
	File     string             `json:"file"`
	Line     int                `json:"line"`
	Column   int                `json:"column"`
	Tool     string             `json:"tool"`
	Code     string             `json:"code,omitempty"` // e.g., "E001"
}

// NewDiagnostic creates a new diagnostic from a token.Position.
func NewDiagnostic(severity DiagnosticSeverity, tool, code, message string, pos token.Position) Diagnostic {
	return Diagnostic{
		Severity: severity,
		Message:  message,
		File:     pos.Filename,
		Line:     pos.Line,
		Column:   pos.Column,
		Tool:     tool,
		Code:     code,
	}
}

// Location returns "file:line:col: " or the empty string when the file is unknown.
func (d Diagnostic) Location() string {
	if d.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d:%d: ", d.File, d.Line, d.Column)
}

// DryRunResult contains the result of a dry-run execution.
type DryRunResult struct {
	Success     bool              `json:"success"`
	Files       map[string]string `json:"files,omitempty"` // filename -> content preview
	Diagnostics []Diagnostic      `json:"diagnostics,omitempty"`
	Stats       DryRunStats       `json:"stats"`
}

// DryRunStats contains statistics from a dry-run execution.
type DryRunStats struct {
	PackagesLoaded int `json:"packagesLoaded"`
	FilesGenerated int `json:"filesGenerated"`
	ErrorCount     int `json:"errorCount"`
	WarningCount   int `json:"warningCount"`
}

// AddDiagnostic adds a diagnostic to the result and updates stats.
func (r *DryRunResult) AddDiagnostic(d Diagnostic) {
	r.Diagnostics = append(r.Diagnostics, d)
	switch d.Severity {
	case DiagnosticError:
		r.Stats.ErrorCount++
		r.Success = false
	case DiagnosticWarning:
		r.Stats.WarningCount++
	}
}

// DiagnosticCollector provides a fluent API for collecting diagnostics.
type DiagnosticCollector struct {
	tool        string
	diagnostics []Diagnostic
}

// NewDiagnosticCollector creates a new collector for the given tool.
func NewDiagnosticCollector(tool string) *DiagnosticCollector {
	return &DiagnosticCollector{tool: tool}
}

// Error adds an error diagnostic.
func (c *DiagnosticCollector) Error(code, message string, pos token.Position) *DiagnosticCollector {
	c.diagnostics = append(c.diagnostics, NewDiagnostic(DiagnosticError, c.tool, code, message, pos))
	return c
}

// Errorf adds an error diagnostic with formatted message.
func (c *DiagnosticCollector) Errorf(code string, pos token.Position, format string, args ...any) *DiagnosticCollector {
	return c.Error(code, fmt.Sprintf(format, args...), pos)
}

// Warning adds a warning diagnostic.
func (c *DiagnosticCollector) Warning(code, message string, pos token.Position) *DiagnosticCollector {
	c.diagnostics = append(c.diagnostics, NewDiagnostic(DiagnosticWarning, c.tool, code, message, pos))
	return c
}

// Warningf adds a warning diagnostic with formatted message.
func (c *DiagnosticCollector) Warningf(code string, pos token.Position, format string, args ...any) *DiagnosticCollector {
	return c.Warning(code, fmt.Sprintf(format, args...), pos)
}

// Collect returns all collected diagnostics.
func (c *DiagnosticCollector) Collect() []Diagnostic {
	return c.diagnostics
}

// Annotation represents a parsed annotation from comments.
// Annotations follow the format: tool:@name or tool:@name(arg1, arg2, key=value)
// Example: defergen:@callable(name="{0}Task", serializable=false)
type Annotation struct {
	Tool  string            // tool name (e.g., "defergen")
	Name  string            // annotation name (e.g., "callable")
	Args  map[string]string // key=value args
	Keys  []string          // keys of Args in source order
	Flags []string          // positional args without =
	Raw   string
}

// Has checks if the annotation has a flag or arg (case-sensitive).
func (a *Annotation) Has(name string) bool {
	if _, ok := a.Args[name]; ok {
		return true
	}
	for _, f := range a.Flags {
		if f == name {
			return true
		}
	}
	return false
}

// Get returns an arg value or empty string.
func (a *Annotation) Get(name string) string {
	return a.Args[name]
}

// GetOr returns an arg value or the default.
func (a *Annotation) GetOr(name, def string) string {
	if v, ok := a.Args[name]; ok {
		return v
	}
	return def
}

var annotationHead = regexp.MustCompile(`(\w+):@([\w.]+)`)

// ParseAnnotations extracts annotations from a doc comment.
// Supports format: tool:@name or tool:@name(args) or tool:@name.subname(args).
//
// Argument values are either bare words or double-quoted Go string literals;
// quoted values may contain commas and parentheses. Single quotes are kept
// as-is.
func ParseAnnotations(doc string) []*Annotation {
	var annotations []*Annotation
	for _, loc := range annotationHead.FindAllStringSubmatchIndex(doc, -1) {
		ann := &Annotation{
			Tool: doc[loc[2]:loc[3]],
			Name: doc[loc[4]:loc[5]],
			Args: make(map[string]string),
		}
		end := loc[1]
		if end < len(doc) && doc[end] == '(' {
			if argsEnd, ok := scanArgs(doc, end+1); ok {
				ann.parseArgs(doc[end+1 : argsEnd])
				end = argsEnd + 1
			}
		}
		ann.Raw = doc[loc[0]:end]
		annotations = append(annotations, ann)
	}
	return annotations
}

// scanArgs returns the index of the ')' closing an argument list starting at
// start, skipping over double-quoted strings.
func scanArgs(s string, start int) (int, bool) {
	inQuote := false
	for i := start; i < len(s); i++ {
		switch c := s[i]; {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == ')':
			return i, true
		case !inQuote && c == '\n':
			return 0, false
		}
	}
	return 0, false
}

func (a *Annotation) parseArgs(s string) {
	for _, arg := range splitArgs(s) {
		arg = strings.TrimSpace(arg)
		if arg == "" {
			continue
		}
		key, val, ok := strings.Cut(arg, "=")
		if !ok || strings.HasPrefix(strings.TrimSpace(arg), `"`) {
			a.Flags = append(a.Flags, unquote(arg))
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := a.Args[key]; !seen {
			a.Keys = append(a.Keys, key)
		}
		a.Args[key] = unquote(strings.TrimSpace(val))
	}
}

// splitArgs splits on commas outside double quotes.
func splitArgs(s string) []string {
	var parts []string
	inQuote := false
	last := 0
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case inQuote && c == '\\':
			i++
		case c == '"':
			inQuote = !inQuote
		case !inQuote && c == ',':
			parts = append(parts, s[last:i])
			last = i + 1
		}
	}
	return append(parts, s[last:])
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		if v, err := strconv.Unquote(s); err == nil {
			return v
		}
		return s[1 : len(s)-1]
	}
	return s
}

// HasAnnotation checks if doc contains a specific annotation.
// Format: tool:@name (e.g., HasAnnotation(doc, "defergen", "callable"))
func HasAnnotation(doc, tool, name string) bool {
	return GetAnnotation(doc, tool, name) != nil
}

// GetAnnotation returns the first annotation with the given tool and name.
func GetAnnotation(doc, tool, name string) *Annotation {
	for _, ann := range ParseAnnotations(doc) {
		if ann.Tool == tool && ann.Name == name {
			return ann
		}
	}
	return nil
}

// Annotations is a slice of annotations with helper methods.
type Annotations []*Annotation

// ParseDoc parses all annotations from a doc comment.
func ParseDoc(doc string) Annotations {
	return ParseAnnotations(doc)
}

// Has checks if any annotation with the tool and name exists.
func (a Annotations) Has(tool, name string) bool {
	return a.Get(tool, name) != nil
}

// Get returns the first annotation with the tool and name.
func (a Annotations) Get(tool, name string) *Annotation {
	for _, ann := range a {
		if ann.Tool == tool && ann.Name == name {
			return ann
		}
	}
	return nil
}

// Count returns how many annotations with the tool and name exist.
func (a Annotations) Count(tool, name string) int {
	n := 0
	for _, ann := range a {
		if ann.Tool == tool && ann.Name == name {
			n++
		}
	}
	return n
}
