package model_test

import (
	"errors"
	"go/token"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tlipoca9/defergen/cmd/defergen/model"
)

func TestModel(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Model Suite")
}

var _ = Describe("Resolve", func() {
	DescribeTable("access resolution",
		func(declared model.Access, policy model.AccessPolicy, want model.Access) {
			Expect(model.Resolve(declared, policy)).To(Equal(want))
		},
		Entry("derived public", model.AccessPublic, model.PolicyDerived, model.AccessPublic),
		Entry("derived protected", model.AccessProtected, model.PolicyDerived, model.AccessProtected),
		Entry("derived package", model.AccessPackage, model.PolicyDerived, model.AccessPackage),
		Entry("derived private", model.AccessPrivate, model.PolicyDerived, model.AccessPrivate),
		Entry("public overrides package", model.AccessPackage, model.PolicyPublic, model.AccessPublic),
		Entry("public overrides protected", model.AccessProtected, model.PolicyPublic, model.AccessPublic),
		Entry("package overrides public", model.AccessPublic, model.PolicyPackage, model.AccessPackage),
		Entry("package overrides protected", model.AccessProtected, model.PolicyPackage, model.AccessPackage),
	)

	It("is idempotent", func() {
		for _, a := range []model.Access{model.AccessPublic, model.AccessProtected, model.AccessPackage, model.AccessPrivate} {
			for _, p := range []model.AccessPolicy{model.PolicyDerived, model.PolicyPublic, model.PolicyPackage} {
				once := model.Resolve(a, p)
				Expect(model.Resolve(once, p)).To(Equal(once))
			}
		}
	})
})

var _ = Describe("Access", func() {
	It("excludes only private methods", func() {
		Expect(model.AccessPublic.Eligible()).To(BeTrue())
		Expect(model.AccessProtected.Eligible()).To(BeTrue())
		Expect(model.AccessPackage.Eligible()).To(BeTrue())
		Expect(model.AccessPrivate.Eligible()).To(BeFalse())
	})

	DescribeTable("Ident",
		func(name string, access model.Access, want string) {
			Expect(model.Ident(name, access)).To(Equal(want))
		},
		Entry("export", "hogeDefer", model.AccessPublic, "HogeDefer"),
		Entry("protected exports", "hoge", model.AccessProtected, "Hoge"),
		Entry("unexport", "Compute", model.AccessPackage, "compute"),
		Entry("private unexports", "Compute", model.AccessPrivate, "compute"),
		Entry("non-letter untouched", "_x", model.AccessPublic, "_x"),
		Entry("empty", "", model.AccessPublic, ""),
	)

	It("derives access from Go identifiers", func() {
		Expect(model.AccessOf("Foo")).To(Equal(model.AccessPublic))
		Expect(model.AccessOf("foo")).To(Equal(model.AccessPackage))
		Expect(model.AccessOf("_foo")).To(Equal(model.AccessPackage))
	})

	It("round-trips through text", func() {
		var a model.Access
		Expect(a.UnmarshalText([]byte("Protected"))).To(Succeed())
		Expect(a).To(Equal(model.AccessProtected))
		text, err := a.MarshalText()
		Expect(err).NotTo(HaveOccurred())
		Expect(string(text)).To(Equal("protected"))

		var p model.AccessPolicy
		Expect(p.UnmarshalText([]byte("package"))).To(Succeed())
		Expect(p).To(Equal(model.PolicyPackage))
		Expect(p.UnmarshalText([]byte("friends"))).To(MatchError(ContainSubstring("invalid access policy")))
	})
})

var _ = Describe("Config", func() {
	It("has the documented defaults", func() {
		c := model.DefaultGenerationConfig()
		Expect(c.Name).To(Equal("{0}"))
		Expect(c.Accessible).To(Equal(model.PolicyDerived))
		Expect(c.Serializable).To(BeTrue())

		ct := model.DefaultContainerConfig()
		Expect(ct.Name).To(Equal("{0}Defer"))
		Expect(ct.Accessible).To(Equal(model.PolicyDerived))
	})

	It("applies annotation arguments", func() {
		c := model.DefaultGenerationConfig()
		Expect(c.Set("name", "{0}Task")).To(Succeed())
		Expect(c.Set("accessible", "public")).To(Succeed())
		Expect(c.Set("serializable", "false")).To(Succeed())
		Expect(c).To(Equal(model.GenerationConfig{Name: "{0}Task", Accessible: model.PolicyPublic}))

		Expect(c.Set("serializable", "yes")).To(MatchError(ContainSubstring("invalid boolean")))
		Expect(c.Set("nme", "x")).To(MatchError(ContainSubstring("unknown argument")))

		ct := model.DefaultContainerConfig()
		Expect(ct.Set("serializable", "true")).To(MatchError(ContainSubstring("unknown argument")))
	})
})

var _ = Describe("Error", func() {
	It("matches its kind", func() {
		err := model.ConfigError(model.CodePrivateMethod, "Hoge.foo", token.Position{}, "private methods cannot be wrapped")
		Expect(errors.Is(err, model.ErrConfiguration)).To(BeTrue())
		Expect(errors.Is(err, model.ErrFormat)).To(BeFalse())
		Expect(err.Error()).To(Equal("Hoge.foo: private methods cannot be wrapped"))
	})
})
