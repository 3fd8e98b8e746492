// Package config loads the whitespace key-value configuration file that
// governs a simulation run, falling back to documented defaults for any
// key it cannot parse.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config mirrors the enumerated configuration keys of a run.
type Config struct {
	NumCPU           int
	Scheduler        string
	QuantumCycles    int
	BatchProcessFreq int
	MinIns           int
	MaxIns           int
	DelayPerExec     int
	MaxOverallMem    int
	MemPerFrame      int
	MemPerProc       int
	MinMemPerProc    int
	MaxMemPerProc    int
}

// Default returns the documented default configuration.
func Default() Config {
	return Config{
		NumCPU:           1,
		Scheduler:        "fcfs",
		QuantumCycles:    0,
		BatchProcessFreq: 1,
		MinIns:           1000,
		MaxIns:           2000,
		DelayPerExec:     0,
		MaxOverallMem:    16384,
		MemPerFrame:      16,
		MemPerProc:       4096,
		MinMemPerProc:    64,
		MaxMemPerProc:    4096,
	}
}

// Load reads a whitespace key-value config file, `#`-prefixed comments
// allowed, keeping the default for any key that is absent or fails to
// parse (a warning is written to stderr, and the process is not
// stopped: a malformed one-line config should not fail the whole run).
func Load(path string) (Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != 2 {
			fmt.Fprintf(os.Stderr, "config: ignoring malformed line %q\n", line)
			continue
		}

		if err := cfg.set(fields[0], fields[1]); err != nil {
			fmt.Fprintf(os.Stderr, "config: %s\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("scan config: %w", err)
	}

	return cfg, nil
}

func (c *Config) set(key, value string) error {
	intVal := func() (int, error) { return strconv.Atoi(value) }

	switch key {
	case "num-cpu":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("num-cpu: %w", err)
		}
		c.NumCPU = v
	case "scheduler":
		c.Scheduler = strings.Trim(value, `"`)
	case "quantum-cycles":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("quantum-cycles: %w", err)
		}
		c.QuantumCycles = v
	case "batch-process-freq":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("batch-process-freq: %w", err)
		}
		c.BatchProcessFreq = v
	case "min-ins":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("min-ins: %w", err)
		}
		c.MinIns = v
	case "max-ins":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("max-ins: %w", err)
		}
		c.MaxIns = v
	case "delay-per-exec":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("delay-per-exec: %w", err)
		}
		c.DelayPerExec = v
	case "max-overall-mem":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("max-overall-mem: %w", err)
		}
		c.MaxOverallMem = v
	case "mem-per-frame":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("mem-per-frame: %w", err)
		}
		c.MemPerFrame = v
	case "mem-per-proc":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("mem-per-proc: %w", err)
		}
		c.MemPerProc = v
	case "min-mem-per-proc":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("min-mem-per-proc: %w", err)
		}
		c.MinMemPerProc = v
	case "max-mem-per-proc":
		v, err := intVal()
		if err != nil {
			return fmt.Errorf("max-mem-per-proc: %w", err)
		}
		c.MaxMemPerProc = v
	default:
		return fmt.Errorf("unknown key %q", key)
	}

	return nil
}

// LoadEnv loads .env overrides for SIMCTL_CONFIG and SIMCTL_MONITOR_ADDR
// into the process environment. A missing .env file is not an error:
// overrides are optional.
func LoadEnv(path string) {
	_ = godotenv.Load(path)
}

// EnvConfigPath returns SIMCTL_CONFIG if set.
func EnvConfigPath() (string, bool) {
	v, ok := os.LookupEnv("SIMCTL_CONFIG")
	return v, ok
}

// EnvMonitorAddr returns SIMCTL_MONITOR_ADDR if set.
func EnvMonitorAddr() (string, bool) {
	v, ok := os.LookupEnv("SIMCTL_MONITOR_ADDR")
	return v, ok
}
