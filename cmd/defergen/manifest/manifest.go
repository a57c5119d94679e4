// Package manifest reads type declarations from YAML files.
//
// A manifest describes the types for which code is generated without
// requiring the Go sources to type-check, and may declare every access
// level, including protected and private:
//
//	package: shop
//	import_path: example.com/shop
//	imports:
//	  - path: time
//	types:
//	  - name: Order
//	    container: {name: "{0}Tasks"}
//	    methods:
//	      - name: Total
//	        pointer: true
//	        params:
//	          - {name: timeout, type: time.Duration}
//	        results:
//	          - type: float64
//	          - type: error
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path"
	"path/filepath"

	"gopkg.in/yaml.v3"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/tlipoca9/defergen/cmd/defergen/model"
)

// File is the document structure of a manifest.
type File struct {
	Package    string       `yaml:"package"`
	ImportPath string       `yaml:"import_path"`
	Dir        string       `yaml:"dir"`
	Imports    []Import     `yaml:"imports"`
	Reserved   []string     `yaml:"reserved"`
	Types      []TypeDecl   `yaml:"types"`
	Defaults   *DefaultDecl `yaml:"defaults"`
}

// Import is an imported package available to type expressions.
type Import struct {
	Path string `yaml:"path"`
	// Name defaults to the last element of Path.
	Name string `yaml:"name"`
}

// DefaultDecl overrides the project defaults for one manifest.
type DefaultDecl struct {
	Callable  *CallableDecl  `yaml:"callable"`
	Container *ContainerDecl `yaml:"container"`
}

// TypeDecl declares an enclosing type.
type TypeDecl struct {
	Name       string          `yaml:"name"`
	Access     *model.Access   `yaml:"access"`
	TypeParams []TypeParamDecl `yaml:"type_params"`
	Container  *ContainerDecl  `yaml:"container"`
	Methods    []MethodDecl    `yaml:"methods"`
}

// TypeParamDecl declares a type parameter.
type TypeParamDecl struct {
	Name       string `yaml:"name"`
	Constraint string `yaml:"constraint"`
}

// MethodDecl declares an annotated method.
type MethodDecl struct {
	Name     string        `yaml:"name"`
	Access   *model.Access `yaml:"access"`
	Pointer  bool          `yaml:"pointer"`
	Variadic bool          `yaml:"variadic"`
	// RecvTypeParams rename the type parameters for this method.
	RecvTypeParams []string      `yaml:"recv_type_params"`
	Params         []ValueDecl   `yaml:"params"`
	Results        []ValueDecl   `yaml:"results"`
	Callable       *CallableDecl `yaml:"callable"`
}

// ValueDecl declares a parameter or result.
type ValueDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
	// Throws marks an error result. It defaults to true for "error".
	Throws *bool `yaml:"throws"`
	// TypeParam marks a type that is one of the type parameters. It is
	// inferred from the type parameter names when absent.
	TypeParam *bool `yaml:"type_param"`
}

// CallableDecl overrides the marker defaults.
type CallableDecl struct {
	Name         *string             `yaml:"name"`
	Accessible   *model.AccessPolicy `yaml:"accessible"`
	Serializable *bool               `yaml:"serializable"`
}

// ContainerDecl overrides the container defaults.
type ContainerDecl struct {
	Name       *string             `yaml:"name"`
	Accessible *model.AccessPolicy `yaml:"accessible"`
}

func (d *CallableDecl) apply(cfg model.GenerationConfig) model.GenerationConfig {
	if d == nil {
		return cfg
	}
	if d.Name != nil {
		cfg.Name = *d.Name
	}
	if d.Accessible != nil {
		cfg.Accessible = *d.Accessible
	}
	if d.Serializable != nil {
		cfg.Serializable = *d.Serializable
	}
	return cfg
}

func (d *ContainerDecl) apply(cfg model.ContainerConfig) model.ContainerConfig {
	if d == nil {
		return cfg
	}
	if d.Name != nil {
		cfg.Name = *d.Name
	}
	if d.Accessible != nil {
		cfg.Accessible = *d.Accessible
	}
	return cfg
}

// Load reads the manifest at filename.
func Load(filename string, defaults model.Defaults) (*model.PackageDescriptor, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	pd, err := Parse(data, filename, defaults)
	if pd != nil && !filepath.IsAbs(pd.Dir) {
		pd.Dir = filepath.Join(filepath.Dir(filename), pd.Dir)
	}
	return pd, err
}

// Parse decodes a manifest. Unknown fields are rejected. Declarations that
// are structurally invalid are left out and reported in the returned error.
func Parse(data []byte, filename string, defaults model.Defaults) (*model.PackageDescriptor, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode manifest %s: %w", filename, err)
	}
	if f.Package == "" || !token.IsIdentifier(f.Package) {
		return nil, fmt.Errorf("manifest %s: package must be a valid package name, got %q", filename, f.Package)
	}

	if f.Defaults != nil {
		defaults.Callable = f.Defaults.Callable.apply(defaults.Callable)
		defaults.Container = f.Defaults.Container.apply(defaults.Container)
	}

	c := &converter{
		filename: filename,
		defaults: defaults,
		imports:  make(map[string]string),
	}
	for _, imp := range f.Imports {
		name := imp.Name
		if name == "" {
			name = path.Base(imp.Path)
		}
		if !token.IsIdentifier(name) {
			c.errorf(imp.Path, "import name %q is not a valid identifier", name)
			continue
		}
		c.imports[name] = imp.Path
	}

	importPath := f.ImportPath
	if importPath == "" {
		importPath = f.Package
	}
	pd := &model.PackageDescriptor{
		Name:       f.Package,
		ImportPath: importPath,
		Dir:        f.Dir,
		Reserved:   f.Reserved,
	}
	for _, td := range f.Types {
		if t := c.typeDescriptor(td); t != nil {
			pd.Types = append(pd.Types, t)
		}
	}
	return pd, utilerrors.NewAggregate(c.errs)
}

type converter struct {
	filename string
	defaults model.Defaults
	imports  map[string]string // name to path
	errs     []error
}

func (c *converter) pos() token.Position {
	return token.Position{Filename: c.filename}
}

func (c *converter) errorf(element, format string, args ...any) {
	c.errs = append(c.errs, model.ConfigError(model.CodeManifestStructure, element, c.pos(), format, args...))
}

func (c *converter) typeDescriptor(d TypeDecl) *model.TypeDescriptor {
	if !token.IsIdentifier(d.Name) {
		c.errorf(d.Name, "type name %q is not a valid identifier", d.Name)
		return nil
	}
	t := &model.TypeDescriptor{
		Name:      d.Name,
		Access:    accessOr(d.Access, d.Name),
		Pos:       c.pos(),
		Container: d.Container.apply(c.defaults.Container),
	}

	for _, tp := range d.TypeParams {
		if !token.IsIdentifier(tp.Name) {
			c.errorf(d.Name, "type parameter %q is not a valid identifier", tp.Name)
			return nil
		}
		constraint := tp.Constraint
		if constraint == "" {
			constraint = "any"
		}
		ref, err := c.typeRef(constraint, false, nil)
		if err != nil {
			c.errorf(d.Name, "constraint of %s: %v", tp.Name, err)
			return nil
		}
		t.TypeParams = append(t.TypeParams, model.TypeParam{Name: tp.Name, Constraint: ref})
	}

	for _, md := range d.Methods {
		if m := c.methodDescriptor(t, md); m != nil {
			t.Methods = append(t.Methods, m)
		}
	}
	if len(t.Methods) == 0 {
		return nil
	}
	return t
}

func (c *converter) methodDescriptor(t *model.TypeDescriptor, d MethodDecl) *model.MethodDescriptor {
	element := t.Name + "." + d.Name
	if !token.IsIdentifier(d.Name) {
		c.errorf(element, "method name %q is not a valid identifier", d.Name)
		return nil
	}
	if d.Variadic && len(d.Params) == 0 {
		c.errorf(element, "variadic method has no parameters")
		return nil
	}

	m := &model.MethodDescriptor{
		Name:        d.Name,
		Access:      accessOr(d.Access, d.Name),
		Variadic:    d.Variadic,
		PointerRecv: d.Pointer,
		Pos:         c.pos(),
		Config:      d.Callable.apply(c.defaults.Callable),
	}

	// The method sees the type parameters under its own receiver names.
	names := d.RecvTypeParams
	if names == nil {
		for _, tp := range t.TypeParams {
			names = append(names, tp.Name)
		}
	}
	if len(names) != len(t.TypeParams) {
		c.errorf(element, "receiver declares %d type parameters, %s has %d", len(names), t.Name, len(t.TypeParams))
		return nil
	}
	typeParams := make(map[string]bool)
	for i, name := range names {
		if !token.IsIdentifier(name) {
			c.errorf(element, "type parameter %q is not a valid identifier", name)
			return nil
		}
		m.RecvTypeParams = append(m.RecvTypeParams, model.TypeParam{Name: name, Constraint: t.TypeParams[i].Constraint})
		typeParams[name] = true
	}

	for _, p := range d.Params {
		if p.Name != "" && !token.IsIdentifier(p.Name) && p.Name != "_" {
			c.errorf(element, "parameter name %q is not a valid identifier", p.Name)
			return nil
		}
		ref, err := c.typeRef(p.Type, false, typeParams)
		if err != nil {
			c.errorf(element, "parameter %s: %v", p.Name, err)
			return nil
		}
		ref.TypeParam = boolOr(p.TypeParam, ref.TypeParam)
		m.Params = append(m.Params, model.Param{Name: p.Name, Type: ref})
	}
	for i, r := range d.Results {
		ref, err := c.typeRef(r.Type, boolOr(r.Throws, r.Type == "error"), typeParams)
		if err != nil {
			c.errorf(element, "result %d: %v", i, err)
			return nil
		}
		ref.TypeParam = boolOr(r.TypeParam, ref.TypeParam)
		m.Results = append(m.Results, model.Result{Name: r.Name, Type: ref})
	}
	return m
}

// typeRef parses expr and resolves the package names it uses.
func (c *converter) typeRef(expr string, isError bool, typeParams map[string]bool) (model.TypeRef, error) {
	if expr == "" {
		return model.TypeRef{}, errors.New("missing type")
	}
	x, err := parser.ParseExpr(expr)
	if err != nil {
		return model.TypeRef{}, fmt.Errorf("invalid type %q: %w", expr, err)
	}

	var (
		imports map[string]string
		missing string
	)
	ast.Inspect(x, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		id, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		p, ok := c.imports[id.Name]
		if !ok {
			missing = id.Name
			return false
		}
		if imports == nil {
			imports = make(map[string]string)
		}
		imports[p] = id.Name
		return false
	})
	if missing != "" {
		return model.TypeRef{}, fmt.Errorf("type %q uses package %s which is not imported", expr, missing)
	}

	id, isIdent := x.(*ast.Ident)
	return model.TypeRef{
		Expr:      expr,
		Imports:   imports,
		Error:     isError,
		TypeParam: isIdent && typeParams[id.Name],
	}, nil
}

func accessOr(a *model.Access, name string) model.Access {
	if a != nil {
		return *a
	}
	return model.AccessOf(name)
}

func boolOr(b *bool, def bool) bool {
	if b != nil {
		return *b
	}
	return def
}
