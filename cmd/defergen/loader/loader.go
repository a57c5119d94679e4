// Package loader builds type descriptors from type-checked Go packages.
package loader

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/genkit"
)

// Annotation names.
const (
	MarkerAnnotation    = "callable"
	ContainerAnnotation = "container"
)

var errorType = types.Universe.Lookup("error").Type().Underlying().(*types.Interface)

// Options configures the loader.
type Options struct {
	// Tool is the annotation prefix, e.g. "defergen".
	Tool string
	// Defaults are applied before annotation arguments.
	Defaults model.Defaults
}

// Package returns the descriptors of every type of pkg with at least one
// annotated method. Invalid declarations are left out and reported in the
// returned error; the descriptor is always usable.
func Package(pkg *genkit.Package, opts Options) (*model.PackageDescriptor, error) {
	b := &builder{pkg: pkg, opts: opts}
	pd := &model.PackageDescriptor{
		Name:       pkg.Name,
		ImportPath: pkg.PkgPath,
		Dir:        pkg.Dir,
	}
	pd.Reserved = declaredNames(pkg.Syntax)

	for _, fn := range pkg.Funcs {
		anns := b.annotations(fn.Doc, fn.Name, docPos(pkg, fn))
		if anns.Has(opts.Tool, MarkerAnnotation) {
			b.errorf(model.CodeNotMethod, fn.Name, fn.Pos, "@%s can only be applied to methods", MarkerAnnotation)
		}
	}

	for _, typ := range pkg.Types {
		if td := b.typeDescriptor(typ); td != nil {
			pd.Types = append(pd.Types, td)
		}
	}
	return pd, utilerrors.NewAggregate(b.errs)
}

// declaredNames returns the sorted package-scope identifiers declared in files.
// The generated output is not among files, so its declarations stay free to
// be emitted again.
func declaredNames(files []*ast.File) []string {
	names := sets.New[string]()
	add := func(ids ...*ast.Ident) {
		for _, id := range ids {
			if id.Name != "_" {
				names.Insert(id.Name)
			}
		}
	}
	for _, file := range files {
		for _, decl := range file.Decls {
			switch d := decl.(type) {
			case *ast.FuncDecl:
				if d.Recv == nil && d.Name.Name != "init" {
					add(d.Name)
				}
			case *ast.GenDecl:
				for _, spec := range d.Specs {
					switch sp := spec.(type) {
					case *ast.TypeSpec:
						add(sp.Name)
					case *ast.ValueSpec:
						add(sp.Names...)
					}
				}
			}
		}
	}
	return sets.List(names)
}

type builder struct {
	pkg  *genkit.Package
	opts Options
	errs []error
}

func (b *builder) errorf(code, element string, pos token.Position, format string, args ...any) {
	b.errs = append(b.errs, model.ConfigError(code, element, pos, format, args...))
}

// annotations parses the tool's annotations of doc, reporting unknown ones.
func (b *builder) annotations(doc, element string, pos token.Position) genkit.Annotations {
	var out genkit.Annotations
	for _, ann := range genkit.ParseDoc(doc) {
		if ann.Tool != b.opts.Tool {
			continue
		}
		if ann.Name != MarkerAnnotation && ann.Name != ContainerAnnotation {
			b.errorf(model.CodeInvalidArgument, element, pos, "unknown annotation @%s", ann.Name)
			continue
		}
		out = append(out, ann)
	}
	return out
}

func (b *builder) typeDescriptor(typ *genkit.Type) *model.TypeDescriptor {
	typeAnns := b.annotations(typ.Doc, typ.Name, typ.Pos)
	if typeAnns.Has(b.opts.Tool, MarkerAnnotation) {
		b.errorf(model.CodeNotMethod, typ.Name, typ.Pos, "@%s can only be applied to methods", MarkerAnnotation)
	}

	var methods []*model.MethodDescriptor
	for _, fn := range typ.Methods {
		if m := b.methodDescriptor(typ, fn); m != nil {
			methods = append(methods, m)
		}
	}
	if len(methods) == 0 {
		return nil
	}

	td := &model.TypeDescriptor{
		Name:      typ.Name,
		Doc:       typ.Doc,
		Access:    model.AccessOf(typ.Name),
		Pos:       typ.Pos,
		Container: b.opts.Defaults.Container,
		Methods:   methods,
	}

	switch n := typeAnns.Count(b.opts.Tool, ContainerAnnotation); {
	case n > 1:
		b.errorf(model.CodeDuplicateMarker, typ.Name, typ.Pos, "@%s is given %d times", ContainerAnnotation, n)
		return nil
	case n == 1:
		ann := typeAnns.Get(b.opts.Tool, ContainerAnnotation)
		if err := apply(ann, td.Container.Set); err != nil {
			b.errorf(model.CodeInvalidArgument, typ.Name, typ.Pos, "@%s: %v", ContainerAnnotation, err)
			return nil
		}
	}

	if typ.Obj != nil {
		if named, ok := typ.Obj.Type().(*types.Named); ok {
			td.TypeParams = b.typeParams(named.TypeParams())
		}
	}
	return td
}

func (b *builder) methodDescriptor(typ *genkit.Type, fn *genkit.Func) *model.MethodDescriptor {
	element := typ.Name + "." + fn.Name
	pos := docPos(b.pkg, fn)
	anns := b.annotations(fn.Doc, element, pos)

	switch n := anns.Count(b.opts.Tool, MarkerAnnotation); {
	case n == 0:
		if anns.Has(b.opts.Tool, ContainerAnnotation) {
			b.errorf(model.CodeInvalidArgument, element, pos, "@%s can only be applied to types", ContainerAnnotation)
		}
		return nil
	case n > 1:
		b.errorf(model.CodeDuplicateMarker, element, pos, "@%s is given %d times", MarkerAnnotation, n)
		return nil
	}

	cfg := b.opts.Defaults.Callable
	if err := apply(anns.Get(b.opts.Tool, MarkerAnnotation), cfg.Set); err != nil {
		b.errorf(model.CodeInvalidArgument, element, pos, "@%s: %v", MarkerAnnotation, err)
		return nil
	}

	sig := fn.Signature()
	if sig == nil {
		b.errorf(model.CodeInvalidArgument, element, fn.Pos, "no type information")
		return nil
	}

	m := &model.MethodDescriptor{
		Name:           fn.Name,
		Doc:            fn.Doc,
		Access:         model.AccessOf(fn.Name),
		Variadic:       sig.Variadic(),
		PointerRecv:    fn.Pointer,
		RecvTypeParams: b.typeParams(sig.RecvTypeParams()),
		Pos:            fn.Pos,
		Config:         cfg,
	}
	params := sig.Params()
	for i := range params.Len() {
		v := params.At(i)
		t := v.Type()
		if m.Variadic && i == params.Len()-1 {
			if s, ok := t.(*types.Slice); ok {
				t = s.Elem()
			}
		}
		m.Params = append(m.Params, model.Param{Name: v.Name(), Type: b.typeRef(t)})
	}
	results := sig.Results()
	for i := range results.Len() {
		v := results.At(i)
		m.Results = append(m.Results, model.Result{Name: v.Name(), Type: b.typeRef(v.Type())})
	}
	return m
}

func (b *builder) typeParams(list *types.TypeParamList) []model.TypeParam {
	if list == nil || list.Len() == 0 {
		return nil
	}
	out := make([]model.TypeParam, list.Len())
	for i := range list.Len() {
		tp := list.At(i)
		out[i] = model.TypeParam{Name: tp.Obj().Name(), Constraint: b.typeRef(tp.Constraint())}
	}
	return out
}

// typeRef renders t relative to the loaded package.
func (b *builder) typeRef(t types.Type) model.TypeRef {
	var imports map[string]string
	expr := types.TypeString(t, func(p *types.Package) string {
		if p == b.pkg.TypesPkg {
			return ""
		}
		if imports == nil {
			imports = make(map[string]string)
		}
		imports[p.Path()] = p.Name()
		return p.Name()
	})
	_, isParam := t.(*types.TypeParam)
	return model.TypeRef{
		Expr:      expr,
		Imports:   imports,
		Error:     types.Implements(t, errorType),
		TypeParam: isParam,
	}
}

// apply passes every argument of ann to set. Positional flags are rejected.
func apply(ann *genkit.Annotation, set func(key, value string) error) error {
	if len(ann.Flags) > 0 {
		return fmt.Errorf("positional arguments are not supported: %s", strings.Join(ann.Flags, ", "))
	}
	for _, key := range ann.Keys {
		if err := set(key, ann.Args[key]); err != nil {
			return err
		}
	}
	return nil
}

// docPos returns the position of the doc comment of fn, falling back to the
// position of its name.
func docPos(pkg *genkit.Package, fn *genkit.Func) token.Position {
	if fn.Decl != nil && fn.Decl.Doc != nil && pkg.Fset != nil {
		return pkg.Fset.Position(fn.Decl.Doc.Pos())
	}
	return fn.Pos
}
