// cmd/mbtransport/main.go
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tamzrod/modbus-transport/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type globalFlags struct {
	logLevel  string
	logFormat string
}

func (g *globalFlags) logger() (zerolog.Logger, error) {
	return logging.New(g.logLevel, g.logFormat, os.Stderr)
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "mbtransport",
		Short: "Modbus transport manager",
		Long: `mbtransport runs Modbus reads and writes over pooled, serialized
connections to TCP, UDP and serial slaves, and mirrors polled data into targets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&g.logFormat, "log-format", logging.FormatConsole, "Log format: console, json")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newRunCmd(g))
	rootCmd.AddCommand(newReadCmd(g))
	rootCmd.AddCommand(newWriteCmd(g))
	rootCmd.AddCommand(newValidateConfigCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
