package tracing_test

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/csopesy/simcore/obs"
	"github.com/csopesy/simcore/tracing"
)

var _ = Describe("Recorder", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "trace.sqlite3")
	})

	It("queries back what it recorded after a flush", func() {
		r, err := tracing.NewRecorder(path)
		Expect(err).NotTo(HaveOccurred())

		r.Record(tracing.KindFaultIn, 1, 7, 0, 2)
		r.Record(tracing.KindEvict, 2, 7, 0, 2)
		Expect(r.Flush()).To(Succeed())
		Expect(r.Close()).To(Succeed())

		events, err := tracing.Query(path, tracing.KindFaultIn)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(1))
		Expect(events[0].ProcessID).To(Equal(7))
	})

	It("assigns reproducible event ids under the sequential generator", func() {
		r, err := tracing.NewRecorder(path)
		Expect(err).NotTo(HaveOccurred())

		// NewRecorder switches the process-wide generator to the parallel
		// one; force it back so this assertion is deterministic.
		obs.UseSequentialIDGenerator()

		r.Record(tracing.KindFaultIn, 1, 1, 0, 0)
		r.Record(tracing.KindFaultIn, 2, 1, 1, 1)
		Expect(r.Flush()).To(Succeed())
		Expect(r.Close()).To(Succeed())

		events, err := tracing.Query(path, tracing.KindFaultIn)
		Expect(err).NotTo(HaveOccurred())
		Expect(events).To(HaveLen(2))
		ids := []string{events[0].ID, events[1].ID}
		Expect(ids).To(ConsistOf("1", "2"))
	})

	It("is a safe no-op on a nil receiver", func() {
		var r *tracing.Recorder
		r.Record(tracing.KindDispatch, 1, 1, -1, -1)
		Expect(r.Flush()).To(Succeed())
		Expect(r.Close()).To(Succeed())
	})
})
