package loader_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"

	"github.com/tlipoca9/defergen/cmd/defergen/loader"
	"github.com/tlipoca9/defergen/cmd/defergen/model"
	"github.com/tlipoca9/defergen/genkit"
)

func TestLoader(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Loader Suite")
}

// load writes src into a throwaway module and loads it.
func load(src string) (*model.PackageDescriptor, error) {
	dir := GinkgoT().TempDir()
	Expect(os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module testpkg\n\ngo 1.21\n"), 0o644)).To(Succeed())
	Expect(os.WriteFile(filepath.Join(dir, "hoge.go"), []byte(src), 0o644)).To(Succeed())

	gen := genkit.New(genkit.Options{Dir: dir, IgnoreGeneratedFiles: true})
	Expect(gen.Load(".")).To(Succeed())
	Expect(gen.Packages).To(HaveLen(1))

	return loader.Package(gen.Packages[0], loader.Options{Tool: "defergen", Defaults: model.BuiltinDefaults()})
}

func codes(err error) []string {
	var agg utilerrors.Aggregate
	if !errors.As(err, &agg) {
		return nil
	}
	var out []string
	for _, e := range agg.Errors() {
		var merr *model.Error
		if errors.As(e, &merr) {
			out = append(out, merr.Code)
		}
	}
	return out
}

var _ = Describe("Package", func() {
	It("describes annotated methods", func() {
		pd, err := load(`package testpkg

import (
	"io"
	"time"
)

// Hoge is annotated.
//
// defergen:@container(name="{0}Tasks", accessible=public)
type Hoge struct{ n int }

// defergen:@callable
func (h *Hoge) Foo(bar int, d time.Duration) (string, error) { return "", nil }

// defergen:@callable(name="{0}Task", accessible=package, serializable=false)
func (h Hoge) Read(p []byte, _ string, rest ...io.Reader) (n int, err error) { return 0, nil }

func (h Hoge) NotAnnotated() {}

type Plain struct{}

func (Plain) Skip() {}
`)
		Expect(err).NotTo(HaveOccurred())
		Expect(pd.Name).To(Equal("testpkg"))
		Expect(pd.ImportPath).To(Equal("testpkg"))
		Expect(pd.Reserved).To(ContainElements("Hoge", "Plain"))
		Expect(pd.Types).To(HaveLen(1))

		td := pd.Types[0]
		Expect(td.Name).To(Equal("Hoge"))
		Expect(td.Access).To(Equal(model.AccessPublic))
		Expect(td.Container).To(Equal(model.ContainerConfig{Name: "{0}Tasks", Accessible: model.PolicyPublic}))
		Expect(td.Methods).To(HaveLen(2))
		Expect(td.PointerDelegate()).To(BeTrue())

		foo := td.Methods[0]
		Expect(foo.Name).To(Equal("Foo"))
		Expect(foo.PointerRecv).To(BeTrue())
		Expect(foo.Config).To(Equal(model.DefaultGenerationConfig()))
		Expect(foo.Params).To(HaveLen(2))
		Expect(foo.Params[1].Type.Expr).To(Equal("time.Duration"))
		Expect(foo.Params[1].Type.Imports).To(Equal(map[string]string{"time": "time"}))
		Expect(foo.Throws()).To(HaveLen(1))
		Expect(foo.Returns()).To(HaveLen(1))
		Expect(foo.Returns()[0].Type.Expr).To(Equal("string"))

		read := td.Methods[1]
		Expect(read.PointerRecv).To(BeFalse())
		Expect(read.Variadic).To(BeTrue())
		Expect(read.Config).To(Equal(model.GenerationConfig{Name: "{0}Task", Accessible: model.PolicyPackage}))
		Expect(read.Params[1].Name).To(Equal("_"))
		Expect(read.Params[2].Type.Expr).To(Equal("io.Reader"))
		Expect(read.Results[1].Name).To(Equal("err"))
		Expect(read.Results[1].Type.IsBuiltinError()).To(BeTrue())
	})

	It("classifies results implementing error", func() {
		pd, err := load(`package testpkg

type MyErr struct{}

func (*MyErr) Error() string { return "my" }

type Hoge struct{}

// defergen:@callable
func (Hoge) A() (MyErr, *MyErr, error, int) { return MyErr{}, nil, nil, 0 }
`)
		Expect(err).NotTo(HaveOccurred())
		rs := pd.Types[0].Methods[0].Results
		Expect(rs[0].Throws()).To(BeFalse())
		Expect(rs[1].Throws()).To(BeTrue())
		Expect(rs[2].Throws()).To(BeTrue())
		Expect(rs[3].Throws()).To(BeFalse())
	})

	It("reads type parameters of generic receivers", func() {
		pd, err := load(`package testpkg

type Box[T any, E error] struct{ v T }

// defergen:@callable
func (b *Box[U, F]) Get(key string) (U, F) { var f F; return b.v, f }
`)
		Expect(err).NotTo(HaveOccurred())
		td := pd.Types[0]
		Expect(td.TypeParams).To(HaveLen(2))
		Expect(td.TypeParams[0].Name).To(Equal("T"))
		Expect(td.TypeParams[0].Constraint.Expr).To(Equal("any"))

		m := td.Methods[0]
		Expect(m.RecvTypeParams).To(HaveLen(2))
		Expect(m.RecvTypeParams[0].Name).To(Equal("U"))
		Expect(m.RecvTypeParams[1].Name).To(Equal("F"))
		Expect(m.Results[0].Type.TypeParam).To(BeTrue())
		Expect(m.Results[0].Throws()).To(BeFalse())
		Expect(m.Results[1].Type.TypeParam).To(BeTrue())
		Expect(m.Results[1].Throws()).To(BeTrue())
	})

	It("rejects markers on functions and bad arguments", func() {
		pd, err := load(`package testpkg

// defergen:@callable
func Free() {}

type Hoge struct{}

// defergen:@callable(serializable=maybe)
func (Hoge) A() {}

// defergen:@callable(nme="x")
func (Hoge) B() {}

// defergen:@callable
// defergen:@callable
func (Hoge) C() {}

// defergen:@calable
func (Hoge) D() {}

// defergen:@callable
func (Hoge) E() {}
`)
		Expect(err).To(MatchError(model.ErrConfiguration))
		Expect(codes(err)).To(Equal([]string{
			model.CodeNotMethod,
			model.CodeInvalidArgument,
			model.CodeInvalidArgument,
			model.CodeDuplicateMarker,
			model.CodeInvalidArgument,
		}))
		Expect(pd.Types).To(HaveLen(1))
		Expect(pd.Types[0].Methods).To(HaveLen(1))
		Expect(pd.Types[0].Methods[0].Name).To(Equal("E"))
	})

	It("ignores previously generated files", func() {
		dir := GinkgoT().TempDir()
		Expect(os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module testpkg\n\ngo 1.21\n"), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "hoge.go"), []byte(`package testpkg

type Hoge struct{}

// defergen:@callable
func (Hoge) Run() {}
`), 0o644)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "testpkg_defer.go"), []byte(`// Code generated by defergen. DO NOT EDIT.

package testpkg

type HogeDefer struct{ stale Missing }
`), 0o644)).To(Succeed())

		gen := genkit.New(genkit.Options{Dir: dir, IgnoreGeneratedFiles: true})
		Expect(gen.Load(".")).To(Succeed())
		pd, err := loader.Package(gen.Packages[0], loader.Options{Tool: "defergen", Defaults: model.BuiltinDefaults()})
		Expect(err).NotTo(HaveOccurred())
		Expect(pd.Reserved).NotTo(ContainElement("HogeDefer"))
		Expect(pd.Types).To(HaveLen(1))
	})

	It("keeps type-checking code that uses previous output", func() {
		dir := GinkgoT().TempDir()
		files := map[string]string{
			"go.mod": "module testpkg\n\ngo 1.21\n",
			"hoge.go": `package testpkg

type Hoge struct{}

// defergen:@callable
func (Hoge) Run() {}
`,
			"use.go": `package testpkg

func Use(h Hoge) *Run { return NewHogeDefer(h).Run() }
`,
			"testpkg_defer.go": `// Code generated by defergen. DO NOT EDIT.

package testpkg

type HogeDefer struct{ delegate Hoge }

func NewHogeDefer(delegate Hoge) *HogeDefer { return &HogeDefer{delegate: delegate} }

func (d *HogeDefer) Run() *Run { return &Run{delegate: d.delegate} }

type Run struct{ delegate Hoge }

func (c *Run) Call() { c.delegate.Run() }
`,
		}
		for name, src := range files {
			Expect(os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644)).To(Succeed())
		}

		gen := genkit.New(genkit.Options{Dir: dir, IgnoreGeneratedFiles: true})
		Expect(gen.Load(".")).To(Succeed())
		pd, err := loader.Package(gen.Packages[0], loader.Options{Tool: "defergen", Defaults: model.BuiltinDefaults()})
		Expect(err).NotTo(HaveOccurred())
		Expect(pd.Reserved).To(Equal([]string{"Hoge", "Use"}))
		Expect(pd.Types).To(HaveLen(1))
		Expect(pd.Types[0].Methods).To(HaveLen(1))
	})
})
