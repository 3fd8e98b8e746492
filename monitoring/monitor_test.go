package monitoring

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/csopesy/simcore/config"
	"github.com/csopesy/simcore/kernel"
)

var _ = Describe("Monitor", func() {
	var (
		k    *kernel.Kernel
		addr string
	)

	BeforeEach(func() {
		dir := GinkgoT().TempDir()
		cfg := config.Default()

		var err error
		k, err = kernel.New(cfg, filepath.Join(dir, "backing-store.bin"), dir)
		Expect(err).NotTo(HaveOccurred())
		k.Start()

		mon := New(k)
		addr, err = mon.StartServer()
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		k.Shutdown()
	})

	It("reports memory_stats as JSON", func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/memory", addr))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var stats map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&stats)).To(Succeed())
		Expect(stats).To(HaveKey("FrameSize"))
	})

	It("submits a process over POST /api/submit", func() {
		body := `{"name":"m1","memory_size":64,"script":"SLEEP 5;"}`
		resp, err := http.Post(fmt.Sprintf("http://%s/api/submit", addr),
			"application/json", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		p, ok := k.GetProcess("m1")
		Expect(ok).To(BeTrue())
		Expect(p.MemorySize).To(Equal(uint32(64)))
	})

	It("404s on an unknown process name", func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/process/nope", addr))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("serves an empty trace list for a kind with no events yet", func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/trace?kind=preempt", addr))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var events []map[string]any
		Expect(json.NewDecoder(resp.Body).Decode(&events)).To(Succeed())
		Expect(events).To(BeEmpty())
	})
})
