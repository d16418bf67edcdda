package versiontag

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("VersionTag", func() {
	Describe("Match", func() {
		DescribeTable("range specs",
			func(version, spec string, expected bool) {
				Expect(Match(version, spec)).To(Equal(expected))
			},
			Entry("wildcard", "v1.2.3", "*", true),
			Entry("master alias", "v1.2.3", "master", true),
			Entry("exact", "v1.2.3", "1.2.3", true),
			Entry("exact miss", "v1.2.3", "1.2.4", false),
			Entry("major x-range", "v1.9.0", "1.x", true),
			Entry("major x-range miss", "v2.0.0", "1.x", false),
			Entry("minor x-range", "v1.2.9", "1.2.x", true),
			Entry("minor x-range miss", "v1.3.0", "1.2.x", false),
			Entry("double x-range", "v1.9.9", "1.x.x", true),
			Entry("bare tilde major", "v1.9.9", "~1", true),
			Entry("bare tilde major miss", "v2.0.0", "~1", false),
			Entry("caret", "v1.5.0", "^1.2.0", true),
			Entry("caret zero major", "v0.5.1", "^0.5.0", true),
			Entry("caret zero major miss", "v0.6.0", "^0.5.0", false),
			Entry("malformed spec", "v1.2.3", "one point two", false),
		)
	})

	Describe("DefaultVersion", func() {
		It("prefers the latest stable version", func() {
			Expect(DefaultVersion([]string{"v0.9.0", "v1.0.0", "v1.1.0-rc.1"})).To(Equal("v1.0.0"))
		})

		It("falls back to the latest pre-release", func() {
			Expect(DefaultVersion([]string{"v1.0.0-alpha.1", "v1.0.0-alpha.2"})).To(Equal("v1.0.0-alpha.2"))
		})

		It("returns empty for no versions", func() {
			Expect(DefaultVersion(nil)).To(BeEmpty())
		})
	})

	Describe("Categorize", func() {
		existing := []string{"v0.5.0", "v1.0.0"}

		DescribeTable("relative to ingested tags",
			func(candidate string, expected string) {
				Expect(Categorize(candidate, existing)).To(Equal(expected))
			},
			Entry("next major", "v2.0.0", CategoryMajor),
			Entry("next minor", "v1.1.0", CategoryMinor),
			Entry("next patch", "v1.0.1", CategoryPatch),
			Entry("pre-release", "v1.0.1-rc.0", CategoryPrerelease),
			Entry("unparseable", "latest", CategoryUnknown),
		)

		It("is unknown with no history", func() {
			Expect(Categorize("v1.0.0", nil)).To(Equal(CategoryUnknown))
		})
	})
})
