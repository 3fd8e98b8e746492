package cmd

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/pkg/browser"
	"github.com/spf13/cobra"

	"github.com/csopesy/simcore/config"
	"github.com/csopesy/simcore/kernel"
	"github.com/csopesy/simcore/monitoring"
)

var (
	runConfigPath  string
	runMonitor     bool
	runMonitorPort int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation until interrupted.",
	RunE:  runSimulation,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "config.txt", "path to the configuration file")
	runCmd.Flags().BoolVar(&runMonitor, "monitor", false, "start the HTTP monitor and open it in a browser")
	runCmd.Flags().IntVar(&runMonitorPort, "monitor-port", 0, "monitor port (0 picks a random port)")
	rootCmd.AddCommand(runCmd)
}

func runSimulation(_ *cobra.Command, _ []string) error {
	config.LoadEnv(".env")
	if envPath, ok := config.EnvConfigPath(); ok {
		runConfigPath = envPath
	}

	cfg, err := config.Load(runConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %s, using defaults\n", err)
		cfg = config.Default()
	}

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	k, err := kernel.New(cfg, filepath.Join(wd, "csopesy-backing-store-data.bin"), wd)
	if err != nil {
		return fmt.Errorf("build kernel: %w", err)
	}

	k.Start()

	if runMonitor {
		if envAddr, ok := config.EnvMonitorAddr(); ok {
			if _, portStr, err := net.SplitHostPort(envAddr); err == nil {
				if port, err := strconv.Atoi(portStr); err == nil {
					runMonitorPort = port
				}
			}
		}

		mon := monitoring.New(k).WithPortNumber(runMonitorPort)
		addr, err := mon.StartServer()
		if err != nil {
			return fmt.Errorf("start monitor: %w", err)
		}

		url := "http://" + addr
		fmt.Fprintf(os.Stderr, "monitoring simulation at %s\n", url)
		_ = browser.OpenURL(url)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	fmt.Fprintln(os.Stderr, "shutting down...")
	k.Shutdown()

	return nil
}
