package cmd

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

// global flags shared by every subcommand, following cmd/index.go's
// package-level flag var convention.
var (
	proc      *int
	profiling *bool
	logFile   *string
)

// RootCmd is the base command every subcommand attaches to.
var RootCmd = &cobra.Command{
	Use:   "sshash-go",
	Short: "a compact, queryable k-mer dictionary",
	Long:  `sshash-go builds and queries a minimal perfect hash index over the k-mers of a set of DNA sequences.`,
}

func init() {
	proc = RootCmd.PersistentFlags().IntP("processors", "p", runtime.NumCPU(), "number of processors to use")
	profiling = RootCmd.PersistentFlags().Bool("profile", false, "run with CPU and memory profiling")
	logFile = RootCmd.PersistentFlags().String("logFile", "", "file to write logs to (defaults to stdout)")
}

// Execute adds all child commands to the root command and runs it; this
// is called by main.main().
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
