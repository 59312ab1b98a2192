package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/NPSDC/sshash-go/src/dictionary"
	"github.com/NPSDC/sshash-go/src/miscutil"
)

var (
	accessDictFile *string
	accessID       *uint64
)

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "reconstruct the k-mer assigned to a dictionary id",
	Long:  `access loads a dictionary file written by the build subcommand and prints the k-mer a given id resolves to`,
	Run: func(cmd *cobra.Command, args []string) {
		runAccess()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return accessParamCheck()
	},
}

func init() {
	accessDictFile = accessCmd.Flags().StringP("dict", "d", "", "dictionary file written by build - required")
	accessID = accessCmd.Flags().Uint64P("id", "n", 0, "dictionary id to resolve")
	accessCmd.MarkFlagRequired("dict")
	RootCmd.AddCommand(accessCmd)
}

func accessParamCheck() error {
	if *accessDictFile == "" {
		return fmt.Errorf("no dictionary file specified - run `sshash-go access --help` for more info")
	}
	if _, err := os.Stat(*accessDictFile); os.IsNotExist(err) {
		return fmt.Errorf("can't find specified dictionary file: %v", *accessDictFile)
	}
	return nil
}

func runAccess() {
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

	log.Printf("starting the access subcommand")
	log.Printf("checking parameters...")
	miscutil.ErrorCheck(accessParamCheck())
	log.Printf("\tdictionary file: %s", *accessDictFile)
	log.Printf("\tid: %d", *accessID)

	data, err := os.ReadFile(*accessDictFile)
	miscutil.ErrorCheck(err)

	dict := &dictionary.Dictionary{}
	miscutil.ErrorCheck(dict.UnmarshalBinary(data))

	seq, err := dict.Access(*accessID)
	miscutil.ErrorCheck(err)
	fmt.Printf("%d\t%s\n", *accessID, seq)
	log.Println("finished")
}
