package model

import (
	"go/token"
	"maps"
	"slices"
)

// TypeRef is a Go type expression as it must be written in the generated
// file. Package qualifiers in Expr are the names in Imports.
type TypeRef struct {
	Expr string
	// Imports maps import path to package name for every package Expr uses.
	Imports map[string]string
	// Error reports whether the type implements the error interface.
	Error bool
	// TypeParam reports whether the type is a type parameter.
	TypeParam bool
}

// IsBuiltinError reports whether the type is exactly the predeclared error.
func (r TypeRef) IsBuiltinError() bool {
	return r.Expr == "error" && len(r.Imports) == 0
}

// Param is a method parameter.
type Param struct {
	Name string // may be empty or "_"
	Type TypeRef
}

// Result is a method result.
type Result struct {
	Name string
	Type TypeRef
}

// Throws reports whether the result belongs to the throws list.
func (r Result) Throws() bool { return r.Type.Error }

// TypeParam is a type parameter with its constraint.
type TypeParam struct {
	Name       string
	Constraint TypeRef
}

// MethodDescriptor describes an annotated method. It is not modified after
// the frontend builds it.
type MethodDescriptor struct {
	Name   string
	Doc    string
	Access Access
	Params []Param
	// Variadic reports whether the last parameter is variadic. Its Type is
	// then the element type.
	Variadic bool
	Results  []Result
	// PointerRecv reports whether the method has a pointer receiver.
	PointerRecv bool
	// RecvTypeParams are the receiver type parameters under the names this
	// method uses for them.
	RecvTypeParams []TypeParam
	Pos            token.Position
	Config         GenerationConfig
}

// Throws returns the results that implement error, in declaration order.
func (m *MethodDescriptor) Throws() []Result {
	var out []Result
	for _, r := range m.Results {
		if r.Throws() {
			out = append(out, r)
		}
	}
	return out
}

// Returns returns the results that are not part of the throws list.
func (m *MethodDescriptor) Returns() []Result {
	var out []Result
	for _, r := range m.Results {
		if !r.Throws() {
			out = append(out, r)
		}
	}
	return out
}

// Imports returns every import the method signature needs.
func (m *MethodDescriptor) Imports() map[string]string {
	out := make(map[string]string)
	for _, p := range m.Params {
		maps.Copy(out, p.Type.Imports)
	}
	for _, r := range m.Results {
		maps.Copy(out, r.Type.Imports)
	}
	for _, tp := range m.RecvTypeParams {
		maps.Copy(out, tp.Constraint.Imports)
	}
	return out
}

// TypeDescriptor describes a type with annotated methods.
type TypeDescriptor struct {
	Name       string
	Doc        string
	Access     Access
	TypeParams []TypeParam
	Pos        token.Position
	Container  ContainerConfig
	Methods    []*MethodDescriptor
}

// Generic reports whether the type declares type parameters.
func (t *TypeDescriptor) Generic() bool { return len(t.TypeParams) > 0 }

// PointerDelegate reports whether the container must hold a pointer to the
// type, which is the case as soon as one method has a pointer receiver.
func (t *TypeDescriptor) PointerDelegate() bool {
	return slices.ContainsFunc(t.Methods, func(m *MethodDescriptor) bool { return m.PointerRecv })
}

// PackageDescriptor groups the type descriptors of one package.
type PackageDescriptor struct {
	Name       string
	ImportPath string
	Dir        string
	Types      []*TypeDescriptor
	// Reserved are the identifiers already declared in the package scope,
	// excluding previously generated files.
	Reserved []string
}
