// Package monitoring exposes a read-only HTTP inspection server over a
// running kernel: core and memory state, per-process detail, resource
// usage, and an on-demand CPU profile, plus the one write path a shell
// would otherwise own — submitting a process.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	// Enable net/http/pprof's own debug endpoints alongside ours.
	_ "net/http/pprof"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	gopsprocess "github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/csopesy/simcore/kernel"
	"github.com/csopesy/simcore/process"
	"github.com/csopesy/simcore/tracing"
)

// Monitor turns a Kernel into an inspectable HTTP server.
type Monitor struct {
	k          *kernel.Kernel
	portNumber int
}

// New wraps k for HTTP inspection.
func New(k *kernel.Kernel) *Monitor {
	return &Monitor{k: k}
}

// WithPortNumber sets the port the server listens on; a value below
// 1000 is refused and a random port is used instead, matching the
// convention of never binding the well-known port range.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"port %d is not allowed for the monitoring server, using a random port\n",
			portNumber)
		portNumber = 0
	}
	m.portNumber = portNumber
	return m
}

// StartServer starts the HTTP server in the background and returns the
// address it bound to.
func (m *Monitor) StartServer() (string, error) {
	r := mux.NewRouter()
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/cores", m.cores)
	r.HandleFunc("/api/processes", m.processes)
	r.HandleFunc("/api/process/{name}", m.process)
	r.HandleFunc("/api/memory", m.memory)
	r.HandleFunc("/api/resource", m.resource)
	r.HandleFunc("/api/profile", m.profile)
	r.HandleFunc("/api/trace", m.trace)
	r.HandleFunc("/api/submit", m.submit).Methods(http.MethodPost)
	r.PathPrefix("/debug/pprof/").Handler(http.DefaultServeMux)

	actualPort := ":0"
	if m.portNumber >= 1000 {
		actualPort = ":" + strconv.Itoa(m.portNumber)
	}

	listener, err := net.Listen("tcp", actualPort)
	if err != nil {
		return "", fmt.Errorf("start monitor listener: %w", err)
	}

	addr := listener.Addr().String()
	go func() {
		_ = http.Serve(listener, r)
	}()

	return addr, nil
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]any{
		"tick": m.k.TickCount(),
		"now":  time.Now().Format(time.RFC3339),
	})
}

func (m *Monitor) cores(w http.ResponseWriter, _ *http.Request) {
	stats := m.k.CoreStats()
	writeJSON(w, map[string]any{
		"cores":     stats.Cores,
		"queue_len": stats.QueueLen,
		"memory":    stats.MemoryStats,
	})
}

func (m *Monitor) processes(w http.ResponseWriter, r *http.Request) {
	statusParam := r.URL.Query().Get("status")

	var list []*process.Process
	if statusParam == "" {
		list = m.allProcesses()
	} else {
		list = m.k.ListByStatus(parseStatus(statusParam))
	}

	writeJSON(w, list)
}

func (m *Monitor) allProcesses() []*process.Process {
	var out []*process.Process
	for _, s := range []process.Status{
		process.Waiting, process.Running, process.Sleeping,
		process.Finished, process.Faulted,
	} {
		out = append(out, m.k.ListByStatus(s)...)
	}
	return out
}

func parseStatus(s string) process.Status {
	switch s {
	case "Running":
		return process.Running
	case "Sleeping":
		return process.Sleeping
	case "Finished":
		return process.Finished
	case "Faulted":
		return process.Faulted
	default:
		return process.Waiting
	}
}

func (m *Monitor) process(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	p, ok := m.k.GetProcess(name)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintf(w, "process %q not found", name)
		return
	}

	serializer := goseth.NewSerializer()
	serializer.SetRoot(p)
	serializer.SetMaxDepth(2)
	if err := serializer.Serialize(w); err != nil {
		log500(w, err)
	}
}

func (m *Monitor) memory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.k.MemoryStats())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) resource(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		log500(w, err)
		return
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		log500(w, err)
		return
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		log500(w, err)
		return
	}

	writeJSON(w, resourceRsp{CPUPercent: cpuPercent, MemorySize: memInfo.RSS})
}

func (m *Monitor) profile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	if err := pprof.StartCPUProfile(buf); err != nil {
		log500(w, err)
		return
	}
	time.Sleep(time.Second)
	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	if err != nil {
		log500(w, err)
		return
	}

	writeJSON(w, prof)
}

func (m *Monitor) trace(w http.ResponseWriter, r *http.Request) {
	kind := tracing.Kind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = tracing.KindFaultIn
	}

	events, err := m.k.Trace(kind)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, err.Error())
		return
	}

	writeJSON(w, events)
}

type submitReq struct {
	Name       string `json:"name"`
	MemorySize uint32 `json:"memory_size"`
	Script     string `json:"script"`
}

func (m *Monitor) submit(w http.ResponseWriter, r *http.Request) {
	var req submitReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprintf(w, "invalid request body: %s", err)
		return
	}

	p, err := m.k.SubmitProcess(req.Name, req.MemorySize, req.Script)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, err.Error())
		return
	}

	writeJSON(w, map[string]any{"id": p.ID, "name": p.Name})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log500(w, err)
	}
}

func log500(w http.ResponseWriter, err error) {
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, "internal error: %s", err)
}
