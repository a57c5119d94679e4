package model

import (
	"errors"
	"fmt"
	"go/token"

	"github.com/tlipoca9/defergen/cmd/defergen/pattern"
)

var (
	// ErrConfiguration is matched by every error caused by an invalid
	// combination of directives and source declarations.
	ErrConfiguration = errors.New("configuration error")

	// ErrFormat is matched by every error caused by a malformed name pattern.
	ErrFormat = pattern.ErrFormat
)

// Error codes attached to diagnostics.
const (
	CodePrivateMethod     = "E001" // annotated method is private
	CodeTypeParamThrows   = "E002" // error result is a type parameter
	CodeInvalidIdent      = "E003" // generated name is not a valid identifier
	CodeNameCollision     = "E004" // generated name already taken
	CodeMalformedPattern  = "E005" // name pattern does not parse
	CodeInvalidArgument   = "E006" // annotation argument is unknown or ill-typed
	CodeNotMethod         = "E007" // marker on a function without receiver
	CodeDuplicateMarker   = "E008" // marker given more than once
	CodeImportConflict    = "E009" // two packages with the same name
	CodeManifestStructure = "E010" // manifest declaration is incomplete
)

// Error is a generation error tied to a source element.
type Error struct {
	Kind    error // ErrConfiguration or ErrFormat
	Code    string
	Element string // e.g. "Hoge.Foo"
	Pos     token.Position
	Msg     string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Element != "" {
		msg = e.Element + ": " + msg
	}
	if e.Pos.IsValid() {
		msg = e.Pos.String() + ": " + msg
	}
	return msg
}

// Unwrap returns the error kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ConfigError returns a configuration error for element.
func ConfigError(code, element string, pos token.Position, format string, args ...any) *Error {
	return &Error{
		Kind:    ErrConfiguration,
		Code:    code,
		Element: element,
		Pos:     pos,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// FormatError wraps a pattern error for element.
func FormatError(element string, pos token.Position, err error) *Error {
	return &Error{
		Kind:    ErrFormat,
		Code:    CodeMalformedPattern,
		Element: element,
		Pos:     pos,
		Msg:     err.Error(),
		Err:     err,
	}
}
