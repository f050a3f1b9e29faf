package main

import (
	"fmt"
	"os"

	"autotrader/internal/cli"
	"autotrader/internal/logging"
)

func main() {
	// Configuration is loaded by the root command so --config applies.
	rootCmd := cli.NewRootCmd(nil, logging.NewLogger())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
