package transport_test

import (
	"time"

	"github.com/nabbar/httpcore/transport"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("TimeoutPolicy", func() {
	It("keeps a five-minute MaxTransaction in DefaultTimeoutPolicy, the fallback for an unset policy", func() {
		c := transport.New(nil, nil, nil)
		c.SetDefaultPolicy(transport.TimeoutPolicy{})
		// the zero policy has no MaxTransaction; overallTimeout falls back to
		// DefaultTimeoutPolicy.MaxTransaction, whose value is checked here.
		Expect(transport.DefaultTimeoutPolicy.MaxTransaction).To(Equal(5 * time.Minute))
	})
})
