package model_test

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/gmeasure"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/tlipoca9/defergen/cmd/defergen/model"
)

var (
	intRef    = model.TypeRef{Expr: "int"}
	stringRef = model.TypeRef{Expr: "string"}
	errorRef  = model.TypeRef{Expr: "error", Error: true}
)

func newMethod(name string, params []model.Param, results ...model.TypeRef) *model.MethodDescriptor {
	m := &model.MethodDescriptor{
		Name:   name,
		Access: model.AccessOf(name),
		Params: params,
		Pos:    token.Position{Filename: "hoge.go", Line: 10, Column: 1},
		Config: model.DefaultGenerationConfig(),
	}
	for _, r := range results {
		m.Results = append(m.Results, model.Result{Type: r})
	}
	return m
}

func newType(name string, methods ...*model.MethodDescriptor) *model.TypeDescriptor {
	return &model.TypeDescriptor{
		Name:      name,
		Access:    model.AccessOf(name),
		Pos:       token.Position{Filename: "hoge.go", Line: 3, Column: 6},
		Container: model.DefaultContainerConfig(),
		Methods:   methods,
	}
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

var _ = Describe("Plan", func() {
	It("plans one callable per annotated method", func() {
		foo := newMethod("Foo", []model.Param{{Name: "bar", Type: intRef}}, stringRef, errorRef)
		foo.PointerRecv = true
		ping := newMethod("Ping", nil)

		c, err := model.Plan(newType("Hoge", foo, ping), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Name).To(Equal("HogeDefer"))
		Expect(c.Ident).To(Equal("HogeDefer"))
		Expect(c.Constructor).To(Equal("NewHogeDefer"))
		Expect(c.Delegate).To(Equal("delegate"))
		Expect(c.PointerDelegate).To(BeTrue())
		Expect(c.DelegateType("")).To(Equal("*Hoge"))
		Expect(c.Callables).To(HaveLen(2))

		cb := c.Callables[0]
		Expect(cb.Ident).To(Equal("Foo"))
		Expect(cb.Factory).To(Equal("Foo"))
		Expect(cb.Serializable).To(BeTrue())
		Expect(cb.Fields).To(HaveLen(1))
		Expect(cb.Fields[0].Name).To(Equal("bar"))
		Expect(cb.Fields[0].Key).To(Equal("bar"))
		Expect(cb.Fields[0].Shadow).To(Equal("Bar"))
		vt, ok := cb.ValueType()
		Expect(ok).To(BeTrue())
		Expect(vt.Expr).To(Equal("string"))

		_, ok = c.Callables[1].ValueType()
		Expect(ok).To(BeFalse())
	})

	It("applies the name pattern to the method name", func() {
		compute := newMethod("compute", nil, intRef)
		compute.Config.Name = "{0}Task"

		c, err := model.Plan(newType("Worker", compute), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Callables[0].Name).To(Equal("computeTask"))
		Expect(c.Callables[0].Ident).To(Equal("computeTask"))
		Expect(c.Callables[0].Factory).To(Equal("compute"))
		Expect(c.PointerDelegate).To(BeFalse())
		Expect(c.DelegateType("")).To(Equal("Worker"))
	})

	DescribeTable("resolves the access of generated names",
		func(typeName string, policy model.AccessPolicy, wantIdent, wantCtor string) {
			t := newType(typeName, newMethod("Run", nil))
			t.Container.Accessible = policy
			c, err := model.Plan(t, model.PlanOptions{})
			Expect(err).NotTo(HaveOccurred())
			Expect(c.Ident).To(Equal(wantIdent))
			Expect(c.Constructor).To(Equal(wantCtor))
		},
		Entry("derived exported", "Hoge", model.PolicyDerived, "HogeDefer", "NewHogeDefer"),
		Entry("derived unexported", "hoge", model.PolicyDerived, "hogeDefer", "newHogeDefer"),
		Entry("forced public", "hoge", model.PolicyPublic, "HogeDefer", "NewHogeDefer"),
		Entry("forced package", "Hoge", model.PolicyPackage, "hogeDefer", "newHogeDefer"),
	)

	It("renders protected methods as exported callables", func() {
		m := newMethod("Foo", nil)
		m.Access = model.AccessProtected
		c, err := model.Plan(newType("Hoge", m), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Callables[0].Access).To(Equal(model.AccessProtected))
		Expect(c.Callables[0].Ident).To(Equal("Foo"))
	})

	It("rejects private methods and keeps the others", func() {
		secret := newMethod("secret", nil)
		secret.Access = model.AccessPrivate

		c, err := model.Plan(newType("Hoge", secret, newMethod("Open", nil)), model.PlanOptions{})
		Expect(err).To(MatchError(model.ErrConfiguration))
		Expect(codes(err)).To(Equal([]string{model.CodePrivateMethod}))
		Expect(c.Callables).To(HaveLen(1))
		Expect(c.Callables[0].Ident).To(Equal("Open"))
	})

	It("rejects type parameter error results", func() {
		m := newMethod("Get", nil, intRef, model.TypeRef{Expr: "E", Error: true, TypeParam: true})
		c, err := model.Plan(newType("Box", m), model.PlanOptions{})
		Expect(err).To(MatchError(model.ErrConfiguration))
		Expect(codes(err)).To(Equal([]string{model.CodeTypeParamThrows}))
		Expect(c).To(BeNil())
	})

	It("reports malformed method patterns as format errors", func() {
		m := newMethod("Foo", nil)
		m.Config.Name = "{1}"
		_, err := model.Plan(newType("Hoge", m, newMethod("Bar", nil)), model.PlanOptions{})
		Expect(err).To(MatchError(model.ErrFormat))
		Expect(codes(err)).To(Equal([]string{model.CodeMalformedPattern}))
	})

	It("aborts the type on a malformed container pattern", func() {
		t := newType("Hoge", newMethod("Foo", nil))
		t.Container.Name = "{0"
		c, err := model.Plan(t, model.PlanOptions{})
		Expect(c).To(BeNil())
		Expect(err).To(MatchError(model.ErrFormat))
	})

	It("rejects names that are not identifiers", func() {
		m := newMethod("Foo", nil)
		m.Config.Name = "{0}-x"
		_, err := model.Plan(newType("Hoge", m), model.PlanOptions{})
		Expect(codes(err)).To(Equal([]string{model.CodeInvalidIdent}))

		kw := newMethod("Type", nil)
		kw.Config.Accessible = model.PolicyPackage
		_, err = model.Plan(newType("Hoge", kw), model.PlanOptions{})
		Expect(codes(err)).To(Equal([]string{model.CodeInvalidIdent}))
	})

	It("rejects collisions with the container and the package scope", func() {
		clash := newMethod("Foo", nil)
		clash.Config.Name = "HogeDefer"
		taken := newMethod("Bar", nil)

		c, err := model.Plan(newType("Hoge", clash, taken, newMethod("Baz", nil)), model.PlanOptions{
			Reserved: sets.New("Bar"),
		})
		Expect(codes(err)).To(Equal([]string{model.CodeNameCollision, model.CodeNameCollision}))
		Expect(c.Callables).To(HaveLen(1))
		Expect(c.Callables[0].Ident).To(Equal("Baz"))
	})

	It("rejects two methods mapping to the same callable", func() {
		a := newMethod("Foo", nil)
		b := newMethod("foo", nil)
		b.Config.Accessible = model.PolicyPublic
		c, err := model.Plan(newType("Hoge", a, b), model.PlanOptions{})
		Expect(codes(err)).To(Equal([]string{model.CodeNameCollision}))
		Expect(c.Callables).To(HaveLen(1))
	})

	It("names captured fields without clashing", func() {
		m := newMethod("Foo", []model.Param{
			{Name: "", Type: intRef},
			{Name: "arg0", Type: intRef},
			{Name: "_", Type: stringRef},
			{Name: "Call", Type: stringRef},
			{Name: "delegate", Type: stringRef},
			{Name: "d", Type: stringRef},
		})
		c, err := model.Plan(newType("Hoge", m), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		cb := c.Callables[0]

		var keys, names []string
		for _, f := range cb.Fields {
			keys = append(keys, f.Key)
			names = append(names, f.Name)
		}
		Expect(keys).To(Equal([]string{"arg0_", "arg0", "arg2", "Call", "delegate", "d"}))
		Expect(names).To(Equal([]string{"arg0_", "arg0", "arg2", "Call_", "delegate", "d"}))
		Expect(cb.Delegate).To(Equal("delegate_"))
		Expect(cb.FactoryRecv).To(Equal("d_"))
		Expect(cb.Fields[0].Shadow).NotTo(Equal(cb.Fields[1].Shadow))
	})

	It("renames factory parameters that shadow the callable type", func() {
		m := newMethod("foo", []model.Param{{Name: "foo", Type: intRef}})
		c, err := model.Plan(newType("hoge", m), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		f := c.Callables[0].Fields[0]
		Expect(f.Name).To(Equal("foo"))
		Expect(f.Key).To(Equal("foo"))
		Expect(f.Arg).To(Equal("foo_"))
	})

	It("captures variadic parameters as slices", func() {
		m := newMethod("Sum", []model.Param{{Name: "xs", Type: intRef}}, intRef)
		m.Variadic = true
		c, err := model.Plan(newType("Calc", m), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Callables[0].Fields[0].Variadic).To(BeTrue())
		Expect(c.Callables[0].Fields[0].FieldType()).To(Equal("[]int"))
	})

	It("collects imports and rejects conflicting package names", func() {
		dur := model.TypeRef{Expr: "time.Duration", Imports: map[string]string{"time": "time"}}
		other := model.TypeRef{Expr: "time.Clock", Imports: map[string]string{"example.com/time": "time"}}

		c, err := model.Plan(newType("Hoge",
			newMethod("Wait", []model.Param{{Name: "d", Type: dur}}),
			newMethod("Tick", []model.Param{{Name: "c", Type: other}}),
		), model.PlanOptions{})
		Expect(codes(err)).To(Equal([]string{model.CodeImportConflict}))
		Expect(c.Imports()).To(Equal(map[string]string{"time": "time"}))
	})

	It("keeps receivers clear of imported package names", func() {
		ref := model.TypeRef{Expr: "c.Config", Imports: map[string]string{"example.com/c": "c"}}
		c, err := model.Plan(newType("Hoge", newMethod("Load", []model.Param{{Name: "cfg", Type: ref}})), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.Callables[0].Recv).To(Equal("c_"))
	})

	It("renames variadic arguments that hide their element package", func() {
		ref := model.TypeRef{Expr: "time.Duration", Imports: map[string]string{"time": "time"}}
		m := newMethod("Wait", []model.Param{{Name: "time", Type: ref}})
		m.Variadic = true
		c, err := model.Plan(newType("Hoge", m), model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		f := c.Callables[0].Fields[0]
		Expect(f.Name).To(Equal("time"))
		Expect(f.Arg).To(Equal("time_"))
	})

	It("names blank type parameters", func() {
		t := newType("Box")
		t.TypeParams = []model.TypeParam{
			{Name: "K", Constraint: model.TypeRef{Expr: "comparable"}},
			{Name: "_", Constraint: model.TypeRef{Expr: "any"}},
		}
		m := newMethod("Len", nil, intRef)
		m.RecvTypeParams = []model.TypeParam{
			{Name: "_", Constraint: model.TypeRef{Expr: "comparable"}},
			{Name: "K", Constraint: model.TypeRef{Expr: "any"}},
		}
		t.Methods = []*model.MethodDescriptor{m}

		c, err := model.Plan(t, model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(c.TypeParams[1].Name).To(Equal("T1"))
		Expect(c.Callables[0].TypeParams[0].Name).To(Equal("K_"))
		Expect(c.Callables[0].TypeParams[1].Name).To(Equal("K"))
		Expect(c.Callables[0].Generic()).To(BeTrue())
	})
})

var _ = Describe("PlanPackage", func() {
	It("keeps source order and reserves names across types", func() {
		pkg := &model.PackageDescriptor{
			Name:     "testpkg",
			Reserved: []string{"Hoge", "Fuga", "Existing"},
		}
		for i := range 20 {
			pkg.Types = append(pkg.Types, newType(fmt.Sprintf("T%02d", i), newMethod(fmt.Sprintf("M%02d", i), nil)))
		}
		shared := newMethod("M00", nil)
		exists := newMethod("Existing", nil)
		pkg.Types = append(pkg.Types, newType("Late", shared, exists))

		got, err := model.PlanPackage(context.Background(), pkg, model.PlanOptions{Parallelism: 4})
		Expect(codes(err)).To(Equal([]string{model.CodeNameCollision, model.CodeNameCollision}))
		Expect(got).To(HaveLen(20))
		for i, c := range got {
			Expect(c.Ident).To(Equal(fmt.Sprintf("T%02dDefer", i)))
		}
	})

	It("returns nothing for a package without annotated types", func() {
		got, err := model.PlanPackage(context.Background(), &model.PackageDescriptor{Name: "empty"}, model.PlanOptions{})
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("stops on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		pkg := &model.PackageDescriptor{Name: "p", Types: []*model.TypeDescriptor{newType("A", newMethod("Run", nil))}}
		_, err := model.PlanPackage(ctx, pkg, model.PlanOptions{})
		Expect(err).To(MatchError(context.Canceled))
	})

	It("plans large packages quickly", Label("measurement"), func() {
		pkg := &model.PackageDescriptor{Name: "big"}
		for i := range 200 {
			var methods []*model.MethodDescriptor
			for j := range 10 {
				methods = append(methods, newMethod(fmt.Sprintf("M%dx%d", i, j),
					[]model.Param{{Name: "a", Type: intRef}, {Name: "b", Type: stringRef}}, intRef, errorRef))
			}
			pkg.Types = append(pkg.Types, newType(fmt.Sprintf("Type%d", i), methods...))
		}

		experiment := gmeasure.NewExperiment("PlanPackage")
		AddReportEntry(experiment.Name, experiment)
		experiment.Sample(func(idx int) {
			experiment.MeasureDuration("plan", func() {
				_, err := model.PlanPackage(context.Background(), pkg, model.PlanOptions{Parallelism: 8})
				Expect(err).NotTo(HaveOccurred())
			})
		}, gmeasure.SamplingConfig{N: 10, Duration: 5 * time.Second})

		stats := experiment.GetStats("plan")
		Expect(stats.DurationFor(gmeasure.StatMedian)).To(BeNumerically("<", time.Second))
	})
})
