package versiontag

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestVersionTag(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "VersionTag Suite")
}
