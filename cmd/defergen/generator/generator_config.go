package generator

import (
	"github.com/tlipoca9/defergen/cmd/defergen/loader"
	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/genkit"
)

var policyValues = []string{
	model.PolicyDerived.String(),
	model.PolicyPublic.String(),
	model.PolicyPackage.String(),
}

// config returns the tool configuration.
func (g *Generator) config() genkit.ToolConfig {
	return genkit.ToolConfig{
		OutputSuffix: g.cfg.OutputSuffix,
		Annotations: []genkit.AnnotationConfig{
			{
				Name: loader.MarkerAnnotation,
				Type: "method",
				Doc: `Generate a deferred call for a method.

USAGE:
  // defergen:@callable
  func (h *Hoge) Foo(bar int) (string, error)

GENERATED CODE:
  - HogeDefer.Foo(bar) returns a *Foo capturing the receiver and bar
  - (*Foo).Call() (string, error) calls h.Foo(bar) when invoked
  - MarshalJSON/UnmarshalJSON unless serializable=false

EXAMPLE:
  // defergen:@callable(name="{0}Task", accessible=public, serializable=false)
  func (w Worker) compute(n int) int

  task := NewWorkerDefer(w).Compute(3) // nothing runs yet
  n := task.Call()                     // same as w.compute(3)

NOTE:
  - The name is a pattern where {0} is the method name
  - Quote with ' to keep braces literal: "'{'{0}'}'"
  - Results implementing error are returned unchanged by Call`,
				Params: []genkit.AnnotationParam{
					{
						Name:    "name",
						Type:    "string",
						Default: model.DefaultCallableName,
						Doc:     "Name pattern of the callable type; {0} is the method name",
					},
					{
						Name:    "accessible",
						Type:    "enum",
						Values:  policyValues,
						Default: model.PolicyDerived.String(),
						Doc:     "Visibility of the callable type: derived copies the method",
					},
					{
						Name:    "serializable",
						Type:    "bool",
						Default: "true",
						Doc:     "Generate MarshalJSON and UnmarshalJSON",
					},
				},
			},
			{
				Name: loader.ContainerAnnotation,
				Type: "type",
				Doc: `Configure the container generated for a type with @callable methods.

USAGE:
  // defergen:@container(name="{0}Tasks", accessible=package)
  type Hoge struct{}

DEFAULT BEHAVIOR:
  Without @container the container is named {0}Defer and has the
  visibility of the type, e.g. HogeDefer and NewHogeDefer.`,
				Params: []genkit.AnnotationParam{
					{
						Name:    "name",
						Type:    "string",
						Default: model.DefaultContainerName,
						Doc:     "Name pattern of the container type; {0} is the type name",
					},
					{
						Name:    "accessible",
						Type:    "enum",
						Values:  policyValues,
						Default: model.PolicyDerived.String(),
						Doc:     "Visibility of the container and its constructor",
					},
				},
			},
		},
	}
}
