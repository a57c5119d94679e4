package model

import (
	"context"
	"fmt"
	"go/token"
	"maps"
	"slices"

	"github.com/iancoleman/strcase"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tlipoca9/defergen/cmd/defergen/pattern"
)

// Method names every callable declares; fields must not shadow them.
var callableMethods = []string{"Call", "MarshalJSON", "UnmarshalJSON"}

// Container is the plan of one generated container type.
type Container struct {
	// Name is the container pattern applied to the type name.
	Name string
	// Ident is Name cased for Access.
	Ident       string
	Access      Access
	Constructor string
	// Delegate is the name of the field holding the wrapped value.
	Delegate        string
	PointerDelegate bool
	Type            *TypeDescriptor
	// TypeParams are the type parameters of Type with blank names replaced.
	TypeParams []TypeParam
	Callables  []*Callable
}

// DelegateType returns the delegate type expression for the given type
// arguments, e.g. "*Box[T]".
func (c *Container) DelegateType(typeArgs string) string {
	s := c.Type.Name + typeArgs
	if c.PointerDelegate {
		return "*" + s
	}
	return s
}

// Imports returns the imports every callable of the container needs.
func (c *Container) Imports() map[string]string {
	out := make(map[string]string)
	for _, tp := range c.Type.TypeParams {
		maps.Copy(out, tp.Constraint.Imports)
	}
	for _, cb := range c.Callables {
		maps.Copy(out, cb.Method.Imports())
	}
	return out
}

// Callable is the plan of one generated callable type.
type Callable struct {
	Name   string
	Ident  string
	Access Access
	// Factory is the container method creating the callable.
	Factory      string
	Method       *MethodDescriptor
	Serializable bool
	// Delegate is the name of the field holding the wrapped value.
	Delegate string
	Fields   []Field
	// TypeParams are the receiver type parameters, named as in the method.
	TypeParams []TypeParam
	// FactoryRecv and Recv are the receiver names of the factory method and
	// of the callable methods.
	FactoryRecv string
	Recv        string
}

// Generic reports whether the callable has type parameters.
func (c *Callable) Generic() bool { return len(c.TypeParams) > 0 }

// ValueType returns T when Call has the shape (T, error), so that the
// callable satisfies callable.Callable[T].
func (c *Callable) ValueType() (TypeRef, bool) {
	rs := c.Method.Results
	if len(rs) != 2 || rs[0].Type.Error || !rs[1].Type.IsBuiltinError() {
		return TypeRef{}, false
	}
	return rs[0].Type, true
}

// Field is a captured argument.
type Field struct {
	// Name is the struct field name.
	Name string
	// Arg is the factory parameter name.
	Arg string
	// Key is the JSON object key of the argument.
	Key string
	// Shadow is the exported field name used for JSON encoding.
	Shadow   string
	Type     TypeRef
	Variadic bool
}

// FieldType returns the type expression of the struct field.
func (f Field) FieldType() string {
	if f.Variadic {
		return "[]" + f.Type.Expr
	}
	return f.Type.Expr
}

// PlanOptions configures planning.
type PlanOptions struct {
	// Reserved are identifiers already declared in the package scope.
	Reserved sets.Set[string]
	// Parallelism limits the number of types planned at once.
	// Zero or negative means no limit.
	Parallelism int
}

// Plan plans the container of a single type. The returned container is nil
// when the type produces no output; errors are aggregated.
func Plan(t *TypeDescriptor, opts PlanOptions) (*Container, error) {
	c, errs := prepare(t)
	if c != nil {
		r := newReservation(opts.Reserved)
		var ok bool
		ok, errs = r.claim(c, errs)
		if !ok {
			c = nil
		}
	}
	return c, utilerrors.NewAggregate(errs)
}

// PlanPackage plans every type of pkg. Types are prepared in parallel; names
// are then reserved in source order, so results and errors are identical
// between runs. The returned containers are a partial result when the error
// is non-nil.
func PlanPackage(ctx context.Context, pkg *PackageDescriptor, opts PlanOptions) ([]*Container, error) {
	prepared := make([]*Container, len(pkg.Types))
	prepareErrs := make([][]error, len(pkg.Types))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, t := range pkg.Types {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			prepared[i], prepareErrs[i] = prepare(t)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("plan package %s: %w", pkg.Name, err)
	}

	reserved := sets.New(pkg.Reserved...)
	if opts.Reserved != nil {
		reserved = reserved.Union(opts.Reserved)
	}
	r := newReservation(reserved)

	var (
		out  []*Container
		errs []error
	)
	for i, c := range prepared {
		errs = append(errs, prepareErrs[i]...)
		if c == nil {
			continue
		}
		var ok bool
		if ok, errs = r.claim(c, errs); ok {
			out = append(out, c)
		}
	}
	return out, utilerrors.NewAggregate(errs)
}

// prepare computes the container and its callables without looking at other
// types. It only reads t.
func prepare(t *TypeDescriptor) (*Container, []error) {
	name, err := pattern.Format(t.Container.Name, t.Name)
	if err != nil {
		return nil, []error{FormatError(t.Name, t.Pos, err)}
	}
	access := Resolve(t.Access, t.Container.Accessible)
	ident := Ident(name, access)
	if msg := checkIdent(ident, access); msg != "" {
		return nil, []error{ConfigError(CodeInvalidIdent, t.Name, t.Pos, "container name %q %s", ident, msg)}
	}

	c := &Container{
		Name:            name,
		Ident:           ident,
		Access:          access,
		Constructor:     constructorName(ident, access),
		PointerDelegate: t.PointerDelegate(),
		Type:            t,
		TypeParams:      nameTypeParams(t.TypeParams, nil),
	}

	var errs []error
	factories := sets.New[string]()
	for _, m := range t.Methods {
		cb, err := prepareCallable(c, m)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if factories.Has(cb.Factory) {
			errs = append(errs, ConfigError(CodeNameCollision, element(t, m), m.Pos,
				"factory method %s is already generated on %s", cb.Factory, c.Ident))
			continue
		}
		factories.Insert(cb.Factory)
		c.Callables = append(c.Callables, cb)
	}
	c.Delegate = uniqueName("delegate", factories)
	return c, errs
}

func prepareCallable(c *Container, m *MethodDescriptor) (*Callable, error) {
	el := element(c.Type, m)
	if !m.Access.Eligible() {
		return nil, ConfigError(CodePrivateMethod, el, m.Pos, "%s methods cannot be wrapped", m.Access)
	}
	for _, r := range m.Throws() {
		if r.Type.TypeParam {
			return nil, ConfigError(CodeTypeParamThrows, el, m.Pos,
				"error result of type parameter %s cannot be propagated by a callable", r.Type.Expr)
		}
	}

	name, err := pattern.Format(m.Config.Name, m.Name)
	if err != nil {
		return nil, FormatError(el, m.Pos, err)
	}
	access := Resolve(m.Access, m.Config.Accessible)
	ident := Ident(name, access)
	if msg := checkIdent(ident, access); msg != "" {
		return nil, ConfigError(CodeInvalidIdent, el, m.Pos, "callable name %q %s", ident, msg)
	}
	factory := Ident(m.Name, access)
	if msg := checkIdent(factory, access); msg != "" {
		return nil, ConfigError(CodeInvalidIdent, el, m.Pos, "factory name %q %s", factory, msg)
	}

	cb := &Callable{
		Name:         name,
		Ident:        ident,
		Access:       access,
		Factory:      factory,
		Method:       m,
		Serializable: m.Config.Serializable,
		TypeParams:   nameTypeParams(m.RecvTypeParams, c.Type.TypeParams),
	}
	cb.Fields, cb.Delegate, cb.FactoryRecv = planFields(cb)

	// The callable methods refer to type parameters, imports and the
	// UnmarshalJSON parameter.
	taken := sets.New("data")
	for _, tp := range cb.TypeParams {
		taken.Insert(tp.Name)
	}
	for _, name := range m.Imports() {
		taken.Insert(name)
	}
	cb.Recv = uniqueName("c", taken)
	return cb, nil
}

// nameTypeParams names blank type parameters, since the generated types
// must refer to them. decl are the parameters of the type declaration.
func nameTypeParams(tps, decl []TypeParam) []TypeParam {
	used := sets.New[string]()
	for _, tp := range tps {
		used.Insert(tp.Name)
	}
	out := slices.Clone(tps)
	for i := range out {
		if out[i].Name != "_" {
			continue
		}
		base := fmt.Sprintf("T%d", i)
		if i < len(decl) && decl[i].Name != "_" {
			base = decl[i].Name
		}
		out[i].Name = uniqueName(base, used)
		used.Insert(out[i].Name)
	}
	return out
}

// planFields names the captured fields, the delegate field and the factory
// receiver of cb.
func planFields(cb *Callable) (fields []Field, delegate, recv string) {
	m := cb.Method

	// Unnamed and blank parameters get positional names.
	keys := make([]string, len(m.Params))
	named := sets.New[string]()
	for _, p := range m.Params {
		if p.Name != "" && p.Name != "_" {
			named.Insert(p.Name)
		}
	}
	for i, p := range m.Params {
		keys[i] = p.Name
		if p.Name == "" || p.Name == "_" {
			keys[i] = uniqueName(fmt.Sprintf("arg%d", i), named)
			named.Insert(keys[i])
		}
	}

	// Names the factory body refers to.
	scope := sets.New(cb.Ident, "panic", "nil")
	for _, tp := range cb.TypeParams {
		scope.Insert(tp.Name)
	}
	if m.Variadic {
		scope.Insert("append")
		for _, name := range m.Params[len(m.Params)-1].Type.Imports {
			scope.Insert(name)
		}
	}

	fieldNames := sets.New(callableMethods...)
	args := named.Clone()
	shadows := sets.New[string]()
	for i, p := range m.Params {
		f := Field{
			Key:      keys[i],
			Type:     p.Type,
			Variadic: m.Variadic && i == len(m.Params)-1,
		}
		f.Name = uniqueName(keys[i], fieldNames)
		fieldNames.Insert(f.Name)

		f.Arg = keys[i]
		if scope.Has(f.Arg) {
			f.Arg = uniqueName(f.Arg, args.Union(scope))
			args.Insert(f.Arg)
		}

		f.Shadow = uniqueName(exportedName(keys[i]), shadows)
		shadows.Insert(f.Shadow)
		fields = append(fields, f)
	}

	delegate = uniqueName("delegate", fieldNames)
	taken := scope.Clone()
	for _, f := range fields {
		taken.Insert(f.Arg)
	}
	recv = uniqueName("d", taken)
	return fields, delegate, recv
}

type reservation struct {
	names   sets.Set[string]
	imports map[string]string // package name to import path
}

func newReservation(reserved sets.Set[string]) *reservation {
	r := &reservation{names: sets.New[string](), imports: make(map[string]string)}
	if reserved != nil {
		r.names = reserved.Clone()
	}
	return r
}

// claim reserves the identifiers of c. Callables that cannot be claimed are
// removed. It reports false when the container produces no output.
func (r *reservation) claim(c *Container, errs []error) (bool, []error) {
	t := c.Type
	for _, id := range []string{c.Ident, c.Constructor} {
		if msg := r.conflict(id); msg != "" {
			return false, append(errs, ConfigError(CodeNameCollision, t.Name, t.Pos, "%s %s", id, msg))
		}
	}
	for _, tp := range t.TypeParams {
		if err := r.claimImports(t.Name, t.Pos, tp.Constraint.Imports); err != nil {
			return false, append(errs, err)
		}
	}
	r.names.Insert(c.Ident, c.Constructor)

	kept := c.Callables[:0]
	for _, cb := range c.Callables {
		el := element(t, cb.Method)
		if msg := r.conflict(cb.Ident); msg != "" {
			errs = append(errs, ConfigError(CodeNameCollision, el, cb.Method.Pos, "%s %s", cb.Ident, msg))
			continue
		}
		if err := r.claimImports(el, cb.Method.Pos, cb.Method.Imports()); err != nil {
			errs = append(errs, err)
			continue
		}
		r.names.Insert(cb.Ident)
		kept = append(kept, cb)
	}
	c.Callables = kept
	return len(kept) > 0, errs
}

func (r *reservation) conflict(id string) string {
	if r.names.Has(id) {
		return "is already declared in the package"
	}
	if _, ok := r.imports[id]; ok {
		return "conflicts with an imported package name"
	}
	return ""
}

// claimImports registers imports, rejecting two paths under one name.
func (r *reservation) claimImports(el string, pos token.Position, imports map[string]string) error {
	for path, name := range imports {
		if existing, ok := r.imports[name]; ok && existing != path {
			return ConfigError(CodeImportConflict, el, pos,
				"package name %s refers to both %q and %q", name, existing, path)
		}
		if r.names.Has(name) {
			return ConfigError(CodeImportConflict, el, pos,
				"package name %s of %q is declared in the package scope", name, path)
		}
	}
	for path, name := range imports {
		r.imports[name] = path
	}
	return nil
}

func element(t *TypeDescriptor, m *MethodDescriptor) string {
	return t.Name + "." + m.Name
}

func constructorName(ident string, access Access) string {
	if access.Exported() {
		return "New" + ident
	}
	return "new" + Ident(ident, AccessPublic)
}

// checkIdent returns why id cannot be declared with access, or "".
func checkIdent(id string, access Access) string {
	switch {
	case id == "_" || !token.IsIdentifier(id):
		return "is not a valid Go identifier"
	case access.Exported() && !token.IsExported(id):
		return "cannot be exported"
	case !access.Exported() && token.IsExported(id):
		return "cannot be unexported"
	}
	return ""
}

// uniqueName appends underscores to base until it is not in taken.
func uniqueName(base string, taken sets.Set[string]) string {
	name := base
	for taken.Has(name) {
		name += "_"
	}
	return name
}

func exportedName(s string) string {
	name := strcase.ToCamel(s)
	if !token.IsIdentifier(name) || !token.IsExported(name) {
		name = "X" + name
	}
	return name
}
