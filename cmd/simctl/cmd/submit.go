package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

var (
	submitAddr       string
	submitMemorySize uint32
	submitScript     string
)

var submitCmd = &cobra.Command{
	Use:   "submit NAME",
	Short: "Submit a process to a running monitor.",
	Args:  cobra.ExactArgs(1),
	RunE:  runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitAddr, "monitor", "localhost:8080", "address of a running monitor")
	submitCmd.Flags().Uint32Var(&submitMemorySize, "memory-size", 64, "process memory size in bytes, power of two")
	submitCmd.Flags().StringVar(&submitScript, "script", "", "instruction script, empty generates a random one")
	rootCmd.AddCommand(submitCmd)
}

func runSubmit(_ *cobra.Command, args []string) error {
	body, err := json.Marshal(map[string]any{
		"name":        args[0],
		"memory_size": submitMemorySize,
		"script":      submitScript,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post("http://"+submitAddr+"/api/submit", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("monitor rejected submission: %s", respBody)
	}

	fmt.Println(string(respBody))
	return nil
}
