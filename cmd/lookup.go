package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/NPSDC/sshash-go/src/dictionary"
	"github.com/NPSDC/sshash-go/src/kmer"
	"github.com/NPSDC/sshash-go/src/miscutil"
)

var (
	lookupDictFile *string
	lookupQuery    *string
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "look up a k-mer in a built dictionary",
	Long:  `lookup loads a dictionary file written by the build subcommand and reports the id assigned to a query k-mer, if any`,
	Run: func(cmd *cobra.Command, args []string) {
		runLookup()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return lookupParamCheck()
	},
}

func init() {
	lookupDictFile = lookupCmd.Flags().StringP("dict", "d", "", "dictionary file written by build - required")
	lookupQuery = lookupCmd.Flags().StringP("query", "q", "", "k-mer to look up - required")
	lookupCmd.MarkFlagRequired("dict")
	lookupCmd.MarkFlagRequired("query")
	RootCmd.AddCommand(lookupCmd)
}

func lookupParamCheck() error {
	if *lookupDictFile == "" {
		return fmt.Errorf("no dictionary file specified - run `sshash-go lookup --help` for more info")
	}
	if _, err := os.Stat(*lookupDictFile); os.IsNotExist(err) {
		return fmt.Errorf("can't find specified dictionary file: %v", *lookupDictFile)
	}
	if *lookupQuery == "" {
		return fmt.Errorf("no query k-mer specified")
	}
	if !kmer.IsValid(*lookupQuery) {
		return fmt.Errorf("query %q is not a valid k-mer (A, C, G, T only)", *lookupQuery)
	}
	return nil
}

func runLookup() {
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

	log.Printf("starting the lookup subcommand")
	log.Printf("checking parameters...")
	miscutil.ErrorCheck(lookupParamCheck())
	log.Printf("\tdictionary file: %s", *lookupDictFile)
	log.Printf("\tquery: %s", *lookupQuery)

	data, err := os.ReadFile(*lookupDictFile)
	miscutil.ErrorCheck(err)

	dict := &dictionary.Dictionary{}
	miscutil.ErrorCheck(dict.UnmarshalBinary(data))

	id, found, err := dict.Lookup(*lookupQuery)
	miscutil.ErrorCheck(err)
	if !found {
		fmt.Printf("%s\tnot found\n", *lookupQuery)
		log.Println("finished")
		return
	}
	fmt.Printf("%s\t%d\n", *lookupQuery, id)
	log.Println("finished")
}
