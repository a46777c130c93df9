package frontier

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestFrontier(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Frontier Suite")
}
