package genkit

import (
	"bytes"
	"fmt"
	"go/format"
	"path"
	"sort"
	"strings"
)

// GeneratedFile represents a file to be generated.
type GeneratedFile struct {
	filename      string
	goImportPath  GoImportPath
	buf           *bytes.Buffer
	imports       map[GoImportPath]GoPackageName
	usedPackages  map[GoPackageName]GoImportPath
	manualImports map[GoImportPath]GoPackageName
	skip          bool
}

// NewGeneratedFile creates a new file to be generated.
// importPath is the import path of the package the file belongs to;
// identifiers from that package are printed unqualified.
func (g *Generator) NewGeneratedFile(filename string, importPath GoImportPath) *GeneratedFile {
	gf := &GeneratedFile{
		filename:      filename,
		goImportPath:  importPath,
		buf:           new(bytes.Buffer),
		imports:       make(map[GoImportPath]GoPackageName),
		usedPackages:  make(map[GoPackageName]GoImportPath),
		manualImports: make(map[GoImportPath]GoPackageName),
	}
	g.generatedFiles = append(g.generatedFiles, gf)
	return gf
}

// Filename returns the output path of the file.
func (g *GeneratedFile) Filename() string { return g.filename }

// GoPrintable is implemented by types that can print themselves to a GeneratedFile.
type GoPrintable interface {
	PrintTo(g *GeneratedFile)
}

// P prints a line to the generated file.
// Arguments are concatenated without spaces. Use GoIdent for automatic import handling.
// Special types: GoIdent, GoMethod, GoFunc, GoDoc, GoParams, GoResults are formatted appropriately.
func (g *GeneratedFile) P(v ...any) {
	for _, x := range v {
		g.print(x)
	}
	g.buf.WriteByte('\n')
}

func (g *GeneratedFile) print(v any) {
	switch v := v.(type) {
	case string:
		g.buf.WriteString(v)
	case GoIdent:
		g.buf.WriteString(g.QualifiedGoIdent(v))
	case *GoIdent:
		g.buf.WriteString(g.QualifiedGoIdent(*v))
	case GoPrintable:
		v.PrintTo(g)
	default:
		fmt.Fprint(g.buf, v)
	}
}

// QualifiedGoIdent returns the qualified identifier string with import handling.
func (g *GeneratedFile) QualifiedGoIdent(ident GoIdent) string {
	if ident.GoImportPath == g.goImportPath || ident.GoImportPath == "" {
		return ident.GoName
	}
	return string(g.goPackageName(ident.GoImportPath)) + "." + ident.GoName
}

// ImportAs explicitly imports a package with a custom alias.
// This is needed for packages whose import path does not end in the package name,
// e.g. "gopkg.in/yaml.v3" must be imported as "yaml".
func (g *GeneratedFile) ImportAs(importPath GoImportPath, alias GoPackageName) GoPackageName {
	if _, ok := g.imports[importPath]; !ok {
		g.manualImports[importPath] = alias
	}
	return g.goPackageName(importPath)
}

func (g *GeneratedFile) goPackageName(importPath GoImportPath) GoPackageName {
	if name, ok := g.imports[importPath]; ok {
		return name
	}

	base := GoPackageName(path.Base(string(importPath)))
	if alias, ok := g.manualImports[importPath]; ok {
		base = alias
	}

	name := base
	for i := 2; ; i++ {
		if existing, ok := g.usedPackages[name]; !ok || existing == importPath {
			break
		}
		name = GoPackageName(fmt.Sprintf("%s%d", base, i))
	}

	g.imports[importPath] = name
	g.usedPackages[name] = importPath
	return name
}

// Reserve marks names as taken in the file scope so that automatically
// named imports pick another name, e.g. when the package declares an
// identifier "json" at package level.
func (g *GeneratedFile) Reserve(names ...string) {
	for _, name := range names {
		if _, ok := g.usedPackages[GoPackageName(name)]; !ok {
			g.usedPackages[GoPackageName(name)] = ""
		}
	}
}

// Skip marks this file to be skipped.
func (g *GeneratedFile) Skip() { g.skip = true }

// Write implements io.Writer.
func (g *GeneratedFile) Write(p []byte) (int, error) { return g.buf.Write(p) }

// Content returns the gofmt-ed content with the import block inserted
// after the package clause.
func (g *GeneratedFile) Content() ([]byte, error) {
	if g.skip {
		return nil, nil
	}

	var out bytes.Buffer
	rest := g.buf.Bytes()
	for len(rest) > 0 {
		line, tail, _ := bytes.Cut(rest, []byte("\n"))
		out.Write(line)
		out.WriteByte('\n')
		rest = tail
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("package ")) {
			out.WriteByte('\n')
			g.writeImports(&out)
			break
		}
	}
	out.Write(rest)

	formatted, err := format.Source(out.Bytes())
	if err != nil {
		return out.Bytes(), fmt.Errorf("format: %w\n%s", err, out.Bytes())
	}
	return formatted, nil
}

func (g *GeneratedFile) writeImports(out *bytes.Buffer) {
	if len(g.imports) == 0 {
		return
	}
	paths := make([]GoImportPath, 0, len(g.imports))
	for p := range g.imports {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	out.WriteString("import (\n")
	for _, p := range paths {
		name := g.imports[p]
		if name != GoPackageName(path.Base(string(p))) {
			fmt.Fprintf(out, "\t%s %q\n", name, p)
		} else {
			fmt.Fprintf(out, "\t%q\n", p)
		}
	}
	out.WriteString(")\n\n")
}

// GoImportPath is a Go import path.
type GoImportPath string

// Ident returns a GoIdent for the given name in this import path.
func (p GoImportPath) Ident(name string) GoIdent {
	return GoIdent{GoImportPath: p, GoName: name}
}

// GoPackageName is a Go package name.
type GoPackageName string

// GoIdent is a Go identifier with its import path.
type GoIdent struct {
	GoImportPath GoImportPath
	GoName       string
}

func (id GoIdent) String() string {
	if id.GoImportPath == "" {
		return id.GoName
	}
	return string(id.GoImportPath) + "." + id.GoName
}

// GoDoc represents a documentation comment.
type GoDoc string

func (d GoDoc) PrintTo(g *GeneratedFile) {
	if d == "" {
		return
	}
	for _, line := range strings.Split(strings.TrimRight(string(d), "\n"), "\n") {
		g.buf.WriteString("// ")
		g.buf.WriteString(line)
		g.buf.WriteByte('\n')
	}
}

// GoParam represents a function/method parameter or return value.
type GoParam struct {
	Name string // parameter name (can be empty for returns)
	Type any    // type: string, GoIdent
}

// GoParams represents a parameter list.
type GoParams struct {
	List     []GoParam
	Variadic bool
}

func (p GoParams) PrintTo(g *GeneratedFile) {
	g.buf.WriteByte('(')
	for i, param := range p.List {
		if i > 0 {
			g.buf.WriteString(", ")
		}
		if param.Name != "" {
			g.buf.WriteString(param.Name)
			g.buf.WriteByte(' ')
		}
		if p.Variadic && i == len(p.List)-1 {
			g.buf.WriteString("...")
		}
		g.print(param.Type)
	}
	g.buf.WriteByte(')')
}

// GoResults represents a return value list.
type GoResults []GoParam

func (r GoResults) PrintTo(g *GeneratedFile) {
	if len(r) == 0 {
		return
	}
	g.buf.WriteByte(' ')
	if len(r) == 1 && r[0].Name == "" {
		g.print(r[0].Type)
		return
	}
	g.buf.WriteByte('(')
	for i, res := range r {
		if i > 0 {
			g.buf.WriteString(", ")
		}
		if res.Name != "" {
			g.buf.WriteString(res.Name)
			g.buf.WriteByte(' ')
		}
		g.print(res.Type)
	}
	g.buf.WriteByte(')')
}

// GoTypeParam is a single type parameter with its constraint.
type GoTypeParam struct {
	Name       string
	Constraint any // constraint: string, GoIdent
}

// GoTypeParams prints a type parameter list ("[K comparable, V any]").
// An empty list prints nothing.
type GoTypeParams []GoTypeParam

func (tp GoTypeParams) PrintTo(g *GeneratedFile) {
	if len(tp) == 0 {
		return
	}
	g.buf.WriteByte('[')
	for i, p := range tp {
		if i > 0 {
			g.buf.WriteString(", ")
		}
		g.buf.WriteString(p.Name)
		g.buf.WriteByte(' ')
		g.print(p.Constraint)
	}
	g.buf.WriteByte(']')
}

// Args returns the instantiation of the list with its own names ("[K, V]").
func (tp GoTypeParams) Args() string {
	if len(tp) == 0 {
		return ""
	}
	names := make([]string, len(tp))
	for i, p := range tp {
		names[i] = p.Name
	}
	return "[" + strings.Join(names, ", ") + "]"
}

// GoReceiver represents a method receiver.
type GoReceiver struct {
	Name     string   // receiver name (e.g., "x")
	Type     any      // receiver type: string, GoIdent
	TypeArgs []string // type parameter names of a generic receiver
	Pointer  bool     // whether receiver is pointer
}

// GoMethod represents a method signature for code generation.
type GoMethod struct {
	Doc     GoDoc      // documentation comment (without //)
	Recv    GoReceiver // receiver
	Name    string     // method name
	Params  GoParams   // parameters
	Results GoResults  // return values
}

func (m GoMethod) PrintTo(g *GeneratedFile) {
	m.Doc.PrintTo(g)
	g.buf.WriteString("func (")
	g.buf.WriteString(m.Recv.Name)
	g.buf.WriteByte(' ')
	if m.Recv.Pointer {
		g.buf.WriteByte('*')
	}
	g.print(m.Recv.Type)
	if len(m.Recv.TypeArgs) > 0 {
		g.buf.WriteString("[" + strings.Join(m.Recv.TypeArgs, ", ") + "]")
	}
	g.buf.WriteString(") ")
	g.buf.WriteString(m.Name)
	m.Params.PrintTo(g)
	m.Results.PrintTo(g)
}

// GoFunc represents a function signature (no receiver).
type GoFunc struct {
	Doc        GoDoc
	Name       string
	TypeParams GoTypeParams
	Params     GoParams
	Results    GoResults
}

func (f GoFunc) PrintTo(g *GeneratedFile) {
	f.Doc.PrintTo(g)
	g.buf.WriteString("func ")
	g.buf.WriteString(f.Name)
	f.TypeParams.PrintTo(g)
	f.Params.PrintTo(g)
	f.Results.PrintTo(g)
}

// RawString is printed as a raw string literal, e.g. a struct tag.
type RawString string

func (r RawString) PrintTo(g *GeneratedFile) {
	g.buf.WriteByte('`')
	g.buf.WriteString(string(r))
	g.buf.WriteByte('`')
}
