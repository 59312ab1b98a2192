package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/mholt/archiver/v3"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"

	"github.com/NPSDC/sshash-go/src/config"
	"github.com/NPSDC/sshash-go/src/dictionary"
	"github.com/NPSDC/sshash-go/src/miscutil"
	"github.com/NPSDC/sshash-go/src/parse"
)

var (
	buildInputFile      *string
	buildOutputFile     *string
	buildKsize          *int
	buildMsize          *int
	buildSeed           *uint64
	buildSparsity       *float64
	buildSkewL          *int
	buildStoreAbundance *bool
	buildContigFile     *string
	buildCanonical      *bool
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "build a k-mer dictionary from a set of input sequences",
	Long:  `build reads a FASTA-like input file, builds the compact string pool, minimizer MPHF, bucket table and skew index, and writes the dictionary to disk`,
	Run: func(cmd *cobra.Command, args []string) {
		runBuild()
	},
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return buildParamCheck()
	},
}

func init() {
	buildInputFile = buildCmd.Flags().StringP("input", "i", "", "input file of sequences, one per two-line record - required")
	buildOutputFile = buildCmd.Flags().StringP("output", "o", "dict.bin", "path to write the built dictionary to")
	buildKsize = buildCmd.Flags().IntP("kmerSize", "k", 31, "k-mer length")
	buildMsize = buildCmd.Flags().IntP("minimizerSize", "m", config.DefaultMinimizerLength, "minimizer length")
	buildSeed = buildCmd.Flags().Uint64P("seed", "s", config.DefaultSeed, "hash seed")
	buildSparsity = buildCmd.Flags().Float64P("sparsity", "c", config.DefaultSparsity, "MPHF tuning constant c (stored in the index; not read by the MPHF builder)")
	buildSkewL = buildCmd.Flags().IntP("skewL", "l", config.DefaultSkewMinLog2, "log2 of the bucket-size threshold above which a bucket is folded into the skew index")
	buildStoreAbundance = buildCmd.Flags().Bool("store-abundances", false, "also store a per-k-mer abundance sidecar, derived from exact-duplicate input counts")
	buildContigFile = buildCmd.Flags().String("contig-file", "", "optional second input file of contigs to index into a separate contig table")
	buildCanonical = buildCmd.Flags().Bool("canonical-parsing", false, "treat a k-mer and its reverse complement as the same dictionary entry")
	buildCmd.MarkFlagRequired("input")
	RootCmd.AddCommand(buildCmd)
}

func buildParamCheck() error {
	if *buildInputFile == "" {
		return fmt.Errorf("no input file specified - run `sshash-go build --help` for more info")
	}
	if _, err := os.Stat(*buildInputFile); os.IsNotExist(err) {
		return fmt.Errorf("can't find specified input file: %v", *buildInputFile)
	}
	return nil
}

// openInput opens inputFile, transparently decompressing it first if it
// has a .gz suffix, following stream.go's own suffix-detection convention
// one level up the call stack.
func openInput(inputFile string) (io.ReadCloser, error) {
	fh, err := os.Open(inputFile)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(inputFile, ".gz") {
		return fh, nil
	}
	pr, pw := io.Pipe()
	gz := archiver.NewGz()
	go func() {
		defer fh.Close()
		defer pw.Close()
		if err := gz.Decompress(fh, pw); err != nil {
			pw.CloseWithError(err)
		}
	}()
	return pr, nil
}

func runBuild() {
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

	log.Printf("sshash-go %s", version)
	log.Printf("starting the build subcommand")
	log.Printf("checking parameters...")
	miscutil.ErrorCheck(buildParamCheck())
	log.Printf("\tinput file: %s", *buildInputFile)
	log.Printf("\tk-mer size: %d", *buildKsize)
	log.Printf("\tminimizer size: %d", *buildMsize)
	log.Printf("\tseed: %d", *buildSeed)
	log.Printf("\tsparsity: %f", *buildSparsity)
	log.Printf("\tskew index l: %d", *buildSkewL)
	log.Printf("\tcanonical parsing: %v", *buildCanonical)
	log.Printf("\tstore abundances: %v", *buildStoreAbundance)

	start := time.Now()

	in, err := openInput(*buildInputFile)
	miscutil.ErrorCheck(err)
	defer in.Close()

	log.Printf("parsing input sequences...")
	sequences, abundances, err := parse.ReadSequencesWithAbundances(in)
	miscutil.ErrorCheck(err)
	log.Printf("\tnumber of sequences: %d", len(sequences))

	cfg := config.NewDefault()
	cfg.K = *buildKsize
	cfg.M = *buildMsize
	cfg.Seed = *buildSeed
	cfg.Sparsity = *buildSparsity
	cfg.L = *buildSkewL
	cfg.Canonical = *buildCanonical
	cfg.NumThreads = *proc
	cfg.StoreAbundances = *buildStoreAbundance
	cfg.ContigFile = *buildContigFile

	log.Printf("building dictionary...")
	dict, err := dictionary.BuildWithAbundances(sequences, abundances, cfg)
	miscutil.ErrorCheck(err)
	log.Printf("\tnumber of k-mers: %d", dict.NumKmers())

	data, err := dict.MarshalBinary()
	miscutil.ErrorCheck(err)
	miscutil.ErrorCheck(os.WriteFile(*buildOutputFile, data, 0644))
	log.Printf("saved dictionary to \"%s\"", *buildOutputFile)

	if cfg.ContigFile != "" {
		log.Printf("building contig table from \"%s\"...", cfg.ContigFile)
		cin, err := openInput(cfg.ContigFile)
		miscutil.ErrorCheck(err)
		contigSeqs, err := parse.ReadSequences(cin)
		miscutil.ErrorCheck(err)
		cin.Close()

		ct, err := dictionary.BuildContigTable(contigSeqs, cfg.K, cfg.Seed)
		miscutil.ErrorCheck(err)
		ctData, err := ct.MarshalBinary()
		miscutil.ErrorCheck(err)
		miscutil.ErrorCheck(os.WriteFile(*buildOutputFile+".contigtable", ctData, 0644))
		log.Printf("\tsaved contig table to \"%s.contigtable\" (%d contigs)", *buildOutputFile, ct.NumContigs())
	}

	info := &miscutil.BuildInfo{
		K:             cfg.K,
		M:             cfg.M,
		Seed:          cfg.Seed,
		Sparsity:      cfg.Sparsity,
		NumSequences:  len(sequences),
		NumKmers:      dict.NumKmers(),
		NumPieces:     dict.NumPieces(),
		NumBuckets:    dict.NumBuckets(),
		NumSkewed:     dict.NumSkewed(),
		BuildDuration: time.Since(start).String(),
	}
	miscutil.ErrorCheck(info.Dump(*buildOutputFile + ".info"))
	log.Printf("\tsaved build info to \"%s.info\"", *buildOutputFile)
	log.Println("finished")
}
