package pattern_test

import (
	"errors"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tlipoca9/defergen/cmd/defergen/pattern"
)

func TestPattern(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pattern Suite")
}

var _ = Describe("Format", func() {
	DescribeTable("substitutes the argument",
		func(src, arg, want string) {
			got, err := pattern.Format(src, arg)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(Equal(want))
		},
		Entry("identity", "{0}", "foo", "foo"),
		Entry("suffix", "{0}Defer", "Hoge", "HogeDefer"),
		Entry("prefix and suffix", "new{0}Task", "Compute", "newComputeTask"),
		Entry("repeated slot", "{0}{0}", "ab", "abab"),
		Entry("no slot", "Constant", "ignored", "Constant"),
		Entry("leading zero index", "{00}X", "a", "aX"),
		Entry("escaped quote", "{0}''s", "it", "it's"),
		Entry("quoted braces", "'{'{0}'}'", "x", "{x}"),
		Entry("quoted slot stays literal", "'{0}'", "x", "{0}"),
		Entry("quote inside quoted text", "'a''b'{0}", "x", "a'bx"),
		Entry("unterminated quote", "{0}'{", "x", "x{"),
		Entry("lone closing brace", "{0}}", "x", "x}"),
		Entry("empty pattern", "", "x", ""),
	)

	DescribeTable("rejects malformed patterns",
		func(src, reason string) {
			_, err := pattern.Format(src, "x")
			Expect(err).To(HaveOccurred())
			Expect(errors.Is(err, pattern.ErrFormat)).To(BeTrue())

			var perr *pattern.Error
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Pattern).To(Equal(src))
			Expect(perr.Reason).To(ContainSubstring(reason))
		},
		Entry("unmatched brace", "{0", "unmatched braces"),
		Entry("unmatched brace after text", "Foo{", "unmatched braces"),
		Entry("empty index", "{}", "missing argument index"),
		Entry("non-numeric index", "{name}", "can't parse argument number"),
		Entry("blank inside braces", "{ 0 }", "can't parse argument number"),
		Entry("negative index", "{-1}", "negative argument number"),
		Entry("second argument", "{1}", "out of range"),
		Entry("format type", "{0,number}", "format types are not supported"),
	)

	It("reports the offset of the offending element", func() {
		_, err := pattern.Format("ab{1}", "x")
		var perr *pattern.Error
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Offset).To(Equal(2))
		Expect(err.Error()).To(ContainSubstring(`pattern "ab{1}"`))
	})
})

var _ = Describe("Compile", func() {
	It("can be applied repeatedly", func() {
		p, err := pattern.Compile("{0}Task")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Apply("a")).To(Equal("aTask"))
		Expect(p.Apply("b")).To(Equal("bTask"))
		Expect(p.String()).To(Equal("{0}Task"))
	})

	It("reports whether the argument is used", func() {
		withSlot, err := pattern.Compile("x{0}")
		Expect(err).NotTo(HaveOccurred())
		Expect(withSlot.HasSlot()).To(BeTrue())

		quoted, err := pattern.Compile("'{0}'")
		Expect(err).NotTo(HaveOccurred())
		Expect(quoted.HasSlot()).To(BeFalse())
	})
})

var _ = Describe("Validate", func() {
	It("accepts the default patterns", func() {
		Expect(pattern.Validate("{0}")).To(Succeed())
		Expect(pattern.Validate("{0}Defer")).To(Succeed())
	})

	It("rejects broken patterns", func() {
		Expect(pattern.Validate("{0")).To(MatchError(pattern.ErrFormat))
	})
})
