package generator

import (
	"context"
	"maps"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/genkit"
)

// Header is the first line of every generated file.
const Header = "// Code generated by " + ToolName + ". DO NOT EDIT."

// Emit adds the file of pd to gen and writes containers into it.
func (g *Generator) Emit(ctx context.Context, gen *genkit.Generator, pd *model.PackageDescriptor, containers []*model.Container) *genkit.GeneratedFile {
	_, span := g.tracer.Start(ctx, "defergen.emit", trace.WithAttributes(
		attribute.String("defergen.package", pd.ImportPath),
		attribute.Int("defergen.containers", len(containers)),
	))
	defer span.End()

	outPath := g.OutputPath(pd)
	span.SetAttributes(attribute.String("defergen.output", outPath))

	gf := gen.NewGeneratedFile(outPath, genkit.GoImportPath(pd.ImportPath))
	WriteHeader(gf, pd.Name)
	declareImports(gf, pd, containers)

	for _, c := range containers {
		generateContainer(gf, c)
		for _, cb := range c.Callables {
			generateFactory(gf, c, cb)
		}
		for _, cb := range c.Callables {
			generateCallable(gf, c, cb)
			if cb.Serializable {
				generateMarshal(gf, c, cb)
				generateUnmarshal(gf, c, cb)
			}
		}
	}
	generateAssertions(gf, containers)
	return gf
}

// WriteHeader writes the generated-code header and package clause.
func WriteHeader(g *genkit.GeneratedFile, pkgName string) {
	g.P(Header)
	g.P()
	g.P("package ", pkgName)
}

// declareImports registers the packages used by method signatures under the
// names they have in the source, then reserves the package scope so that the
// packages the generated code needs itself are renamed on conflict.
func declareImports(gf *genkit.GeneratedFile, pd *model.PackageDescriptor, containers []*model.Container) {
	imports := make(map[string]string)
	for _, c := range containers {
		maps.Copy(imports, c.Imports())
	}
	for _, path := range slices.Sorted(maps.Keys(imports)) {
		gf.ImportAs(genkit.GoImportPath(path), genkit.GoPackageName(imports[path]))
	}

	gf.Reserve(pd.Reserved...)
	for _, c := range containers {
		gf.Reserve(c.Ident, c.Constructor)
		for _, cb := range c.Callables {
			gf.Reserve(cb.Ident)
		}
	}
}

func typeParams(tps []model.TypeParam) genkit.GoTypeParams {
	out := make(genkit.GoTypeParams, len(tps))
	for i, tp := range tps {
		out[i] = genkit.GoTypeParam{Name: tp.Name, Constraint: tp.Constraint.Expr}
	}
	return out
}

func typeParamNames(tps []model.TypeParam) []string {
	out := make([]string, len(tps))
	for i, tp := range tps {
		out[i] = tp.Name
	}
	return out
}

func generateContainer(g *genkit.GeneratedFile, c *model.Container) {
	t := c.Type
	tps := typeParams(c.TypeParams)
	delegateType := c.DelegateType(tps.Args())

	g.P()
	g.P("// ", c.Ident, " creates deferred calls of ", t.Name, " methods.")
	g.P("// Creating a call does not invoke the method.")
	g.P("type ", c.Ident, tps, " struct {")
	g.P(c.Delegate, " ", delegateType)
	g.P("}")

	g.P()
	g.P(genkit.GoFunc{
		Doc:        genkit.GoDoc(c.Constructor + " returns a new " + c.Ident + " wrapping delegate."),
		Name:       c.Constructor,
		TypeParams: tps,
		Params:     genkit.GoParams{List: []genkit.GoParam{{Name: "delegate", Type: delegateType}}},
		Results:    genkit.GoResults{{Type: "*" + c.Ident + tps.Args()}},
	}, " {")
	if c.PointerDelegate {
		g.P("if delegate == nil {")
		g.P(`panic("`, ToolName, ": ", c.Constructor, ` called with a nil delegate")`)
		g.P("}")
	}
	g.P("return &", c.Ident, tps.Args(), "{", c.Delegate, ": delegate}")
	g.P("}")
}

func generateFactory(g *genkit.GeneratedFile, c *model.Container, cb *model.Callable) {
	m := cb.Method
	args := typeParams(cb.TypeParams).Args()

	params := genkit.GoParams{Variadic: m.Variadic}
	for _, f := range cb.Fields {
		params.List = append(params.List, genkit.GoParam{Name: f.Arg, Type: f.Type.Expr})
	}

	g.P()
	g.P(genkit.GoMethod{
		Doc: genkit.GoDoc(cb.Factory + " returns a deferred call of " + c.Type.Name + "." + m.Name +
			" with the given arguments.\nThe method is called by Call, not by " + cb.Factory + "."),
		Recv: genkit.GoReceiver{
			Name:     cb.FactoryRecv,
			Type:     c.Ident,
			TypeArgs: typeParamNames(cb.TypeParams),
			Pointer:  true,
		},
		Name:    cb.Factory,
		Params:  params,
		Results: genkit.GoResults{{Type: "*" + cb.Ident + args}},
	}, " {")
	if c.PointerDelegate {
		g.P("if ", cb.FactoryRecv, ".", c.Delegate, " == nil {")
		g.P(`panic("`, ToolName, ": ", c.Ident, ` has no delegate")`)
		g.P("}")
	}
	g.P("return &", cb.Ident, args, "{")
	g.P(cb.Delegate, ": ", cb.FactoryRecv, ".", c.Delegate, ",")
	for _, f := range cb.Fields {
		if f.Variadic {
			// The caller may reuse its slice after the factory returns.
			g.P(f.Name, ": append(", f.FieldType(), "(nil), ", f.Arg, "...),")
			continue
		}
		g.P(f.Name, ": ", f.Arg, ",")
	}
	g.P("}")
	g.P("}")
}

func callResults(m *model.MethodDescriptor) genkit.GoResults {
	out := make(genkit.GoResults, len(m.Results))
	for i, r := range m.Results {
		out[i] = genkit.GoParam{Type: r.Type.Expr}
	}
	return out
}

func generateCallable(g *genkit.GeneratedFile, c *model.Container, cb *model.Callable) {
	m := cb.Method
	tps := typeParams(cb.TypeParams)

	g.P()
	g.P("// ", cb.Ident, " is a deferred call of ", c.Type.Name, ".", m.Name, ".")
	g.P("type ", cb.Ident, tps, " struct {")
	g.P(cb.Delegate, " ", c.DelegateType(tps.Args()))
	for _, f := range cb.Fields {
		g.P(f.Name, " ", f.FieldType())
	}
	g.P("}")

	args := make([]string, len(cb.Fields))
	for i, f := range cb.Fields {
		args[i] = cb.Recv + "." + f.Name
		if f.Variadic {
			args[i] += "..."
		}
	}
	call := cb.Recv + "." + cb.Delegate + "." + m.Name + "(" + strings.Join(args, ", ") + ")"

	g.P()
	g.P(genkit.GoMethod{
		Doc:     genkit.GoDoc("Call calls " + c.Type.Name + "." + m.Name + " with the captured arguments and returns its results."),
		Recv:    genkit.GoReceiver{Name: cb.Recv, Type: cb.Ident, TypeArgs: typeParamNames(cb.TypeParams), Pointer: true},
		Name:    "Call",
		Results: callResults(m),
	}, " {")
	if len(m.Results) > 0 {
		g.P("return ", call)
	} else {
		g.P(call)
	}
	g.P("}")
}

// generateWire declares the local "wire" variable holding the JSON form of cb.
// The struct type is anonymous because generic methods cannot declare types.
func generateWire(g *genkit.GeneratedFile, c *model.Container, cb *model.Callable) {
	g.P("var wire struct {")
	g.P("Delegate ", c.DelegateType(typeParams(cb.TypeParams).Args()), " ", jsonTag("delegate"))
	g.P("Args struct {")
	for _, f := range cb.Fields {
		g.P(f.Shadow, " ", f.FieldType(), " ", jsonTag(f.Key))
	}
	g.P("} ", jsonTag("args"))
	g.P("}")
}

func jsonTag(key string) genkit.RawString {
	return genkit.RawString(`json:"` + key + `"`)
}

func generateMarshal(g *genkit.GeneratedFile, c *model.Container, cb *model.Callable) {
	recv := cb.Recv

	g.P()
	g.P(genkit.GoMethod{
		Doc:     "MarshalJSON encodes the delegate and the captured arguments.",
		Recv:    genkit.GoReceiver{Name: recv, Type: cb.Ident, TypeArgs: typeParamNames(cb.TypeParams), Pointer: true},
		Name:    "MarshalJSON",
		Results: genkit.GoResults{{Type: "[]byte"}, {Type: "error"}},
	}, " {")
	generateWire(g, c, cb)
	g.P("wire.Delegate = ", recv, ".", cb.Delegate)
	for _, f := range cb.Fields {
		g.P("wire.Args.", f.Shadow, " = ", recv, ".", f.Name)
	}
	g.P("return ", jsonPkg.Ident("Marshal"), "(&wire)")
	g.P("}")
}

func generateUnmarshal(g *genkit.GeneratedFile, c *model.Container, cb *model.Callable) {
	recv := cb.Recv

	g.P()
	g.P(genkit.GoMethod{
		Doc:     "UnmarshalJSON restores a deferred call encoded by MarshalJSON.",
		Recv:    genkit.GoReceiver{Name: recv, Type: cb.Ident, TypeArgs: typeParamNames(cb.TypeParams), Pointer: true},
		Name:    "UnmarshalJSON",
		Params:  genkit.GoParams{List: []genkit.GoParam{{Name: "data", Type: "[]byte"}}},
		Results: genkit.GoResults{{Type: "error"}},
	}, " {")
	generateWire(g, c, cb)
	g.P("if err := ", jsonPkg.Ident("Unmarshal"), "(data, &wire); err != nil {")
	g.P("return err")
	g.P("}")
	if c.PointerDelegate {
		g.P("if wire.Delegate == nil {")
		g.P("return ", errorsPkg.Ident("New"), `("`, ToolName, ": ", cb.Ident, ` has no delegate")`)
		g.P("}")
	}
	g.P(recv, ".", cb.Delegate, " = wire.Delegate")
	for _, f := range cb.Fields {
		g.P(recv, ".", f.Name, " = wire.Args.", f.Shadow)
	}
	g.P("return nil")
	g.P("}")
}

// generateAssertions checks at compile time that non-generic callables
// implement the runtime interfaces.
func generateAssertions(g *genkit.GeneratedFile, containers []*model.Container) {
	var lines [][]any
	for _, c := range containers {
		for _, cb := range c.Callables {
			if cb.Generic() {
				continue
			}
			if t, ok := cb.ValueType(); ok {
				lines = append(lines, []any{"_ ", callablePkg.Ident("Callable"), "[", t.Expr, "] = (*", cb.Ident, ")(nil)"})
			}
			if cb.Serializable {
				lines = append(lines, []any{"_ ", callablePkg.Ident("Serializable"), " = (*", cb.Ident, ")(nil)"})
			}
		}
	}
	if len(lines) == 0 {
		return
	}
	g.P()
	g.P("var (")
	for _, l := range lines {
		g.P(l...)
	}
	g.P(")")
}

var (
	jsonPkg     = genkit.GoImportPath("encoding/json")
	errorsPkg   = genkit.GoImportPath("errors")
	callablePkg = genkit.GoImportPath(callableImportPath)
)
