// Command simctl runs and controls a simulation from the terminal.
package main

import "github.com/csopesy/simcore/cmd/simctl/cmd"

func main() {
	cmd.Execute()
}
