package memory_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/csopesy/simcore/memory"
	"github.com/csopesy/simcore/process"
)

var _ = Describe("Manager", func() {
	var (
		mgr  *memory.Manager
		path string
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "backing-store.bin")
	})

	AfterEach(func() {
		if mgr != nil {
			mgr.Close()
		}
	})

	newManagerWithBudget := func(frameSize, maxOverallMem, memPerProc int) *memory.Manager {
		m, err := memory.MakeBuilder().
			WithFrameSize(frameSize).
			WithMaxOverallMem(maxOverallMem).
			WithMemPerProc(memPerProc).
			WithBackingStorePath(path).
			Build()
		Expect(err).NotTo(HaveOccurred())
		return m
	}

	newManager := func(frameSize, maxOverallMem int) *memory.Manager {
		return newManagerWithBudget(frameSize, maxOverallMem, maxOverallMem)
	}

	It("round-trips a write through a read on the same process", func() {
		mgr = newManager(16, 32) // 2 frames total
		p := process.New(1, "p1", 4096, nil)
		Expect(mgr.ReserveBlock(p)).To(BeTrue())

		Expect(mgr.WriteWord(p, 4, 0xABCD)).To(Succeed())
		v, err := mgr.ReadWord(p, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(uint16(0xABCD)))
	})

	It("rejects addresses at or beyond memory_size as an access fault", func() {
		mgr = newManager(16, 32)
		p := process.New(1, "p1", 16, nil)
		Expect(mgr.ReserveBlock(p)).To(BeTrue())

		_, err := mgr.ReadWord(p, 16)
		Expect(err).To(HaveOccurred())
		var fault memory.ErrAccessFault
		Expect(err).To(BeAssignableToTypeOf(fault))
	})

	It("conserves used+free == total frames at every step", func() {
		mgr = newManager(16, 32) // 2 frames
		p := process.New(1, "p1", 64, nil)
		Expect(mgr.ReserveBlock(p)).To(BeTrue())

		for _, addr := range []uint32{0, 16, 32, 48} {
			Expect(mgr.WriteWord(p, addr, 1)).To(Succeed())
			s := mgr.Stats()
			Expect(s.UsedFrames + s.FreeFrames).To(Equal(s.TotalFrames))
		}
	})

	It("preserves round-trip values across a forced eviction", func() {
		mgr = newManager(16, 16) // 1 frame only
		p := process.New(1, "p1", 64, nil)
		Expect(mgr.ReserveBlock(p)).To(BeTrue())

		Expect(mgr.WriteWord(p, 0, 111)).To(Succeed())  // page 0
		Expect(mgr.WriteWord(p, 16, 222)).To(Succeed()) // page 1, evicts page 0
		Expect(mgr.WriteWord(p, 32, 333)).To(Succeed()) // page 2, evicts page 1

		v0, err := mgr.ReadWord(p, 0) // faults page 0 back in
		Expect(err).NotTo(HaveOccurred())
		Expect(v0).To(Equal(uint16(111)))

		v1, err := mgr.ReadWord(p, 16)
		Expect(err).NotTo(HaveOccurred())
		Expect(v1).To(Equal(uint16(222)))

		s := mgr.Stats()
		Expect(s.PagedOut).To(BeNumerically(">=", uint64(2)))
	})

	It("frees every frame a process held on release", func() {
		mgr = newManager(16, 32) // 2 frames
		p := process.New(1, "p1", 64, nil)
		Expect(mgr.ReserveBlock(p)).To(BeTrue())
		Expect(mgr.WriteWord(p, 0, 1)).To(Succeed())
		Expect(mgr.WriteWord(p, 16, 2)).To(Succeed())

		before := mgr.Stats()
		Expect(before.UsedFrames).To(Equal(2))

		mgr.Release(p)

		after := mgr.Stats()
		Expect(after.UsedFrames).To(Equal(0))
		Expect(after.FreeFrames).To(Equal(after.TotalFrames))
	})

	It("rejects reservation once the block allocator is exhausted", func() {
		mgr = newManagerWithBudget(16, 64, 64)
		p1 := process.New(1, "p1", 64, nil)
		p2 := process.New(2, "p2", 32, nil)
		Expect(mgr.ReserveBlock(p1)).To(BeTrue())
		Expect(mgr.ReserveBlock(p2)).To(BeFalse())
	})

	It("persists evicted page contents where a freshly opened backing store reads them", func() {
		mgr = newManager(16, 16) // 1 frame
		p := process.New(1, "p1", 64, nil)
		Expect(mgr.ReserveBlock(p)).To(BeTrue())

		Expect(mgr.WriteWord(p, 0, 42)).To(Succeed())
		Expect(mgr.WriteWord(p, 16, 99)).To(Succeed()) // evicts page 0 to disk

		_, statErr := os.Stat(path)
		Expect(statErr).NotTo(HaveOccurred())

		bs, err := memory.NewBackingStore(path)
		Expect(err).NotTo(HaveOccurred())
		defer bs.Close()

		entries, ok, err := bs.Read("p1", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ok).To(BeTrue())
		Expect(entries).To(ContainElement(memory.Entry{Address: 0, Value: 42}))
	})
})
