// Package miscutil collects the small ambient helpers the CLI leans on:
// a single ErrorCheck chokepoint for fatal errors, a log-file opener, and
// the build-statistics sidecar dumped alongside a built dictionary.
// Grounded directly on the teacher's own src/misc package as used from
// cmd/index.go (misc.ErrorCheck, misc.StartLogging) and on
// src/graph/graphio.go's msgpack Dump/Load pair for the sidecar.
package miscutil

import (
	"io/ioutil"
	"log"
	"os"

	"gopkg.in/vmihailenco/msgpack.v2"
)

// ErrorCheck is the CLI's single point of fatal-error handling: anything
// that reaches it is unrecoverable for the current run.
func ErrorCheck(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

// StartLogging opens (creating if necessary) the given path for logging
// and returns the handle so the caller can defer its Close.
func StartLogging(logFile string) *os.File {
	fh, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	ErrorCheck(err)
	return fh
}

// BuildInfo is the per-build statistics sidecar written to
// "<dict>.info" next to every built dictionary file, the equivalent of
// stream.PipelineInfo in the teacher's own index command.
type BuildInfo struct {
	K             int
	M             int
	Seed          uint64
	Sparsity      float64
	NumSequences  int
	NumKmers      uint64
	NumPieces     uint64
	NumBuckets    uint64
	NumSkewed     uint64
	BuildDuration string
}

// Dump serialises the build info with msgpack and writes it to path.
func (i *BuildInfo) Dump(path string) error {
	b, err := msgpack.Marshal(i)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(path, b, 0644)
}

// Load reads a build info sidecar previously written by Dump.
func (i *BuildInfo) Load(path string) error {
	b, err := ioutil.ReadFile(path)
	if err != nil {
		return err
	}
	return msgpack.Unmarshal(b, i)
}
