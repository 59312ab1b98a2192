package cmd

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/NPSDC/sshash-go/src/dictionary"
	"github.com/NPSDC/sshash-go/src/miscutil"
)

var iterateDictFile *string

var iterateCmd = &cobra.Command{
	Use:   "iterate",
	Short: "print every (id, k-mer) pair a dictionary holds",
	Long:  `iterate loads a dictionary file written by the build subcommand and walks it from id 0 to its last id, printing each pair to stdout`,
	Run: func(cmd *cobra.Command, args []string) {
		runIterate()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return iterateParamCheck()
	},
}

func init() {
	iterateDictFile = iterateCmd.Flags().StringP("dict", "d", "", "dictionary file written by build - required")
	iterateCmd.MarkFlagRequired("dict")
	RootCmd.AddCommand(iterateCmd)
}

func iterateParamCheck() error {
	if *iterateDictFile == "" {
		return fmt.Errorf("no dictionary file specified - run `sshash-go iterate --help` for more info")
	}
	if _, err := os.Stat(*iterateDictFile); os.IsNotExist(err) {
		return fmt.Errorf("can't find specified dictionary file: %v", *iterateDictFile)
	}
	return nil
}

func runIterate() {
	if *profiling {
		defer profile.Start(profile.ProfilePath("./")).Stop()
	}
	if *logFile != "" {
		logFH := miscutil.StartLogging(*logFile)
		defer logFH.Close()
		log.SetOutput(logFH)
	} else {
		log.SetOutput(os.Stdout)
	}

	log.Printf("starting the iterate subcommand")
	log.Printf("checking parameters...")
	miscutil.ErrorCheck(iterateParamCheck())
	log.Printf("\tdictionary file: %s", *iterateDictFile)

	data, err := os.ReadFile(*iterateDictFile)
	miscutil.ErrorCheck(err)

	dict := &dictionary.Dictionary{}
	miscutil.ErrorCheck(dict.UnmarshalBinary(data))

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	it := dict.Iterate()
	for it.HasNext() {
		id, seq := it.Next()
		fmt.Fprintf(w, "%d\t%s\n", id, seq)
	}
	log.Println("finished")
}
