// Package genkit provides a small framework for building Go code generators,
// inspired by google.golang.org/protobuf/compiler/protogen and Go's standard toolchain.
//
// Key design principles:
//   - Library-first: designed as a library, not a plugin system
//   - Go toolchain compatible: supports "./..." patterns like go build
//   - Type-safe API: structured types for describing source code elements
//   - GeneratedFile abstraction: convenient code generation with automatic import management
//
// Basic usage:
//
//	gen := genkit.New()
//	if err := gen.Load("./..."); err != nil {
//	    log.Fatal(err)
//	}
//	for _, pkg := range gen.Packages {
//	    for _, typ := range pkg.Types {
//	        for _, m := range typ.Methods {
//	            // inspect m.Doc, m.Signature() ...
//	        }
//	    }
//	}
//	if err := gen.Write(); err != nil {
//	    log.Fatal(err)
//	}
package genkit

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

// Generator is the main entry point for code generation.
type Generator struct {
	// Packages are the loaded packages.
	Packages []*Package

	// Fset is the token file set.
	Fset *token.FileSet

	generatedFiles []*GeneratedFile
	opts           Options
}

// Options configures the generator.
type Options struct {
	// Tags are build tags to use when loading packages.
	Tags []string

	// Dir is the working directory. If empty, uses current directory.
	Dir string

	// IgnoreGeneratedFiles when true, leaves files that start with a
	// "// Code generated" comment out of Package.Syntax and drops type errors
	// reported in them. The files are still type-checked, so code that uses
	// previous output keeps compiling.
	IgnoreGeneratedFiles bool
}

// New creates a new Generator.
func New(opts ...Options) *Generator {
	g := &Generator{
		Fset: token.NewFileSet(),
	}
	if len(opts) > 0 {
		g.opts = opts[0]
	}
	return g
}

// Load loads packages matching the given patterns.
// Patterns follow Go's standard conventions:
//   - "./..."  - current directory and all subdirectories
//   - "./pkg"  - specific package
//   - "."      - current directory only
func (g *Generator) Load(patterns ...string) error {
	cfg := &packages.Config{
		Mode: packages.NeedName |
			packages.NeedFiles |
			packages.NeedCompiledGoFiles |
			packages.NeedImports |
			packages.NeedTypes |
			packages.NeedSyntax |
			packages.NeedTypesInfo,
		Fset:       g.Fset,
		Dir:        g.opts.Dir,
		BuildFlags: buildFlags(g.opts.Tags),
	}

	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return fmt.Errorf("load packages: %w", err)
	}

	var errs []error
	for _, pkg := range pkgs {
		for _, e := range pkg.Errors {
			if g.shouldIgnoreError(e) {
				continue
			}
			errs = append(errs, e)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("package errors: %v", errs)
	}

	for _, pkg := range pkgs {
		g.Packages = append(g.Packages, g.buildPackage(pkg))
	}
	return nil
}

// shouldIgnoreError reports whether e originates from a generated file.
func (g *Generator) shouldIgnoreError(e packages.Error) bool {
	if !g.opts.IgnoreGeneratedFiles {
		return false
	}
	if filename := extractFilename(e.Pos); filename != "" && isGeneratedFile(g.resolveFilename(filename)) {
		return true
	}
	if filename := extractFilenameFromMsg(e.Msg); filename != "" && isGeneratedFile(g.resolveFilename(filename)) {
		return true
	}
	return false
}

func (g *Generator) resolveFilename(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	if g.opts.Dir != "" {
		return filepath.Join(g.opts.Dir, filename)
	}
	if abs, err := filepath.Abs(filename); err == nil {
		return abs
	}
	return filename
}

// extractFilename extracts filename from position string (format: "file.go:line:col")
func extractFilename(pos string) string {
	if pos == "" {
		return ""
	}
	if idx := strings.Index(pos, ":"); idx > 0 {
		return pos[:idx]
	}
	return pos
}

// extractFilenameFromMsg extracts filename from error message.
// Message format may be: "# pkg\npath/to/file.go:line:col: error"
func extractFilenameFromMsg(msg string) string {
	for _, line := range strings.Split(msg, "\n") {
		if idx := strings.Index(line, ".go:"); idx >= 0 {
			return line[:idx+3]
		}
	}
	return ""
}

// Write writes all generated files to disk.
func (g *Generator) Write() error {
	for _, gf := range g.generatedFiles {
		if gf.skip {
			continue
		}
		content, err := gf.Content()
		if err != nil {
			return fmt.Errorf("generate %s: %w", gf.filename, err)
		}
		if content == nil {
			continue
		}

		dir := filepath.Dir(gf.filename)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
		if err := os.WriteFile(gf.filename, content, 0644); err != nil {
			return fmt.Errorf("write %s: %w", gf.filename, err)
		}
	}
	return nil
}

// DryRun returns generated content without writing files.
func (g *Generator) DryRun() (map[string][]byte, error) {
	result := make(map[string][]byte)
	for _, gf := range g.generatedFiles {
		if gf.skip {
			continue
		}
		content, err := gf.Content()
		if err != nil {
			return nil, err
		}
		if content != nil {
			result[gf.filename] = content
		}
	}
	return result, nil
}

func (g *Generator) buildPackage(pkg *packages.Package) *Package {
	var goFiles []string
	for _, f := range pkg.GoFiles {
		if !g.shouldIgnoreFile(f) {
			goFiles = append(goFiles, f)
		}
	}

	var syntax []*ast.File
	for _, file := range pkg.Syntax {
		if file == nil {
			continue
		}
		pos := g.Fset.Position(file.Pos())
		if !g.shouldIgnoreFile(pos.Filename) {
			syntax = append(syntax, file)
		}
	}

	p := &Package{
		Name:      pkg.Name,
		PkgPath:   pkg.PkgPath,
		Dir:       pkgDir(pkg),
		GoFiles:   goFiles,
		Fset:      g.Fset,
		TypesPkg:  pkg.Types,
		TypesInfo: pkg.TypesInfo,
		Syntax:    syntax,
	}

	// Methods may be declared in a different file than their receiver type,
	// so all type declarations are collected before any function is attached.
	typesByName := make(map[string]*Type)
	for _, file := range syntax {
		g.extractTypes(p, file, typesByName)
	}
	for _, file := range syntax {
		g.extractFuncs(p, file, typesByName)
	}

	return p
}

func (g *Generator) shouldIgnoreFile(filename string) bool {
	if !g.opts.IgnoreGeneratedFiles {
		return false
	}
	return isGeneratedFile(filename)
}

// isGeneratedFile checks if a file starts with "// Code generated" comment.
func isGeneratedFile(filename string) bool {
	f, err := os.Open(filename)
	if err != nil {
		return false
	}
	defer f.Close() //nolint:errcheck

	buf := make([]byte, 256)
	n, err := f.Read(buf)
	if err != nil || n == 0 {
		return false
	}
	return strings.HasPrefix(string(buf[:n]), "// Code generated")
}

func (g *Generator) extractTypes(pkg *Package, file *ast.File, typesByName map[string]*Type) {
	for _, decl := range file.Decls {
		gd, ok := decl.(*ast.GenDecl)
		if !ok || gd.Tok != token.TYPE {
			continue
		}

		for _, spec := range gd.Specs {
			ts := spec.(*ast.TypeSpec)
			doc := ts.Doc
			if doc == nil && len(gd.Specs) == 1 {
				doc = gd.Doc
			}
			typ := &Type{
				Name:     ts.Name.Name,
				Doc:      docText(doc),
				Pkg:      pkg,
				TypeSpec: ts,
				Pos:      g.Fset.Position(ts.Name.Pos()),
			}
			if pkg.TypesInfo != nil {
				if tn, ok := pkg.TypesInfo.Defs[ts.Name].(*types.TypeName); ok {
					typ.Obj = tn
				}
			}
			pkg.Types = append(pkg.Types, typ)
			typesByName[typ.Name] = typ
		}
	}
}

func (g *Generator) extractFuncs(pkg *Package, file *ast.File, typesByName map[string]*Type) {
	for _, decl := range file.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		fn := &Func{
			Name: fd.Name.Name,
			Doc:  docText(fd.Doc),
			Decl: fd,
			Pos:  g.Fset.Position(fd.Name.Pos()),
		}
		if pkg.TypesInfo != nil {
			if obj, ok := pkg.TypesInfo.Defs[fd.Name].(*types.Func); ok {
				fn.Obj = obj
			}
		}

		if fd.Recv == nil || len(fd.Recv.List) == 0 {
			pkg.Funcs = append(pkg.Funcs, fn)
			continue
		}

		recvName, pointer := receiverBase(fd.Recv.List[0].Type)
		fn.Pointer = pointer
		if typ, ok := typesByName[recvName]; ok {
			fn.Recv = typ
			typ.Methods = append(typ.Methods, fn)
		}
	}
}

// receiverBase returns the base type name of a receiver expression,
// stripping pointers and type arguments.
func receiverBase(expr ast.Expr) (name string, pointer bool) {
	for {
		switch e := expr.(type) {
		case *ast.StarExpr:
			pointer = true
			expr = e.X
		case *ast.ParenExpr:
			expr = e.X
		case *ast.IndexExpr:
			expr = e.X
		case *ast.IndexListExpr:
			expr = e.X
		case *ast.Ident:
			return e.Name, pointer
		default:
			return "", pointer
		}
	}
}

// Package represents a loaded Go package.
type Package struct {
	Name      string
	PkgPath   string
	Dir       string
	GoFiles   []string
	Fset      *token.FileSet
	TypesPkg  *types.Package
	TypesInfo *types.Info
	Syntax    []*ast.File
	Types     []*Type
	// Funcs are the package-level functions (no receiver).
	Funcs []*Func
}

// GoImportPath returns the import path for this package.
func (p *Package) GoImportPath() GoImportPath {
	return GoImportPath(p.PkgPath)
}

// Type represents a Go type declaration.
type Type struct {
	Name     string
	Doc      string
	Pkg      *Package
	TypeSpec *ast.TypeSpec
	Obj      *types.TypeName
	Methods  []*Func
	Pos      token.Position
}

// Func represents a function or method declaration.
type Func struct {
	Name string
	Doc  string
	// Recv is the receiver base type, nil for plain functions.
	Recv *Type
	// Pointer reports whether the receiver is a pointer.
	Pointer bool
	Decl    *ast.FuncDecl
	Obj     *types.Func
	Pos     token.Position
}

// Signature returns the type-checked signature, or nil if type information is unavailable.
func (f *Func) Signature() *types.Signature {
	if f.Obj == nil {
		return nil
	}
	sig, _ := f.Obj.Type().(*types.Signature)
	return sig
}

func buildFlags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return []string{"-tags=" + strings.Join(tags, ",")}
}

func pkgDir(pkg *packages.Package) string {
	if len(pkg.GoFiles) > 0 {
		return filepath.Dir(pkg.GoFiles[0])
	}
	return ""
}

func docText(cg *ast.CommentGroup) string {
	if cg == nil {
		return ""
	}
	return cg.Text()
}

// OutputPath joins directory and filename.
func OutputPath(dir, filename string) string {
	return filepath.Join(dir, filename)
}
