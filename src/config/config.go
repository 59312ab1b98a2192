// Package config holds the dictionary's build-time parameters and the
// sentinel errors raised when those parameters are violated. Modelled on
// the teacher's cmd/index.go flag-validation pattern (a single struct
// checked once, up front, before any expensive work starts) and wrapped
// with github.com/pkg/errors at the point each error crosses into the CLI.
package config

import (
	"runtime"

	"github.com/pkg/errors"
)

// Defaults mirror the original SSHash build tool's defaults.
const (
	DefaultMinimizerLength = 6
	DefaultSeed            = uint64(1)
	DefaultSparsity        = 5.0
	DefaultSkewMinLog2     = 6
	MaxK                   = 32
	MaxMinimizerLength     = 32
	// MaxSkewMinLog2 bounds how large l may be asked to be; a reasonable
	// value lies between 2 and 12, per the original tool's own guidance.
	MaxSkewMinLog2 = 20
)

// Sentinel errors for the three failure modes the build pipeline can hit.
// These are wrapped with errors.Wrap at the CLI boundary so the user sees
// both the stable diagnostic and the call-site context.
var (
	// ErrConfig covers malformed build parameters and rejected input: k, m
	// or l out of range, m > k, non-ACGT bases, and similar problems.
	ErrConfig = errors.New("invalid build configuration")

	// ErrWidth fires when a quantity meant to fit a fixed-width field
	// overflows it (e.g. more than 65535 k-mers packed into one string).
	ErrWidth = errors.New("value does not fit its fixed-width encoding")

	// ErrEmptyPartition fires when one of the skew index's log-spaced size
	// windows holds no crowded bucket, or a crowded bucket fits no window;
	// a build with a different l or seed may avoid it.
	ErrEmptyPartition = errors.New("skew index partition has no members")
)

// BuildConfiguration holds every parameter that affects how a dictionary is
// built from raw input sequences. It corresponds to build_configuration in
// the original tool.
type BuildConfiguration struct {
	// K is the k-mer length.
	K int
	// M is the minimizer length.
	M int
	// Seed is mixed into every hash call made during the build and reused
	// for lookups, so it must be persisted alongside the dictionary.
	Seed uint64
	// Sparsity (c) is the MPHF tuning constant. It is validated and stored
	// in the dictionary's header and build info; the MPHF builder does not
	// read it, and its displacement table size is fixed at one bucket per
	// four keys.
	Sparsity float64
	// L (l in the original tool) is the log2 of the bucket-size threshold
	// above which a minimizer bucket is considered crowded and folded into
	// the skew index: buckets with more than 2^L strings get an O(1)
	// lookup via the skew index instead of a linear scan.
	L int
	// Canonical selects canonical parsing: when true, minimizer selection
	// and lookup both use min(kmer, revcomp(kmer)), so a k-mer and its
	// reverse complement are indexed as the same dictionary entry. When
	// false, orientation is significant and only the forward strand as it
	// appears in the input is matched.
	Canonical bool
	// NumThreads bounds how many goroutines the dictionary build uses to
	// scan input pieces; the MPHF builder itself is single-threaded.
	NumThreads int
	// StoreAbundances requests that the optional src/weights sidecar be
	// built alongside the core dictionary.
	StoreAbundances bool
	// ContigFile, if set, requests that the optional src/contigtable
	// sidecar be built from a second input file.
	ContigFile string
}

// NewDefault returns a BuildConfiguration populated with the tool's
// defaults, ready for a caller to override individual fields.
func NewDefault() *BuildConfiguration {
	return &BuildConfiguration{
		M:          DefaultMinimizerLength,
		Seed:       DefaultSeed,
		Sparsity:   DefaultSparsity,
		L:          DefaultSkewMinLog2,
		NumThreads: numWorkers(),
	}
}

// numWorkers mirrors the original tool's
// std::thread::hardware_concurrency() >= 8 ? 8 : 1 rule of thumb.
func numWorkers() int {
	if n := runtime.NumCPU(); n >= 8 {
		return 8
	}
	return 1
}

// Validate checks the configuration for the error conditions described in
// the dictionary's error-handling design, returning a wrapped ErrConfig
// describing exactly what is wrong.
func (c *BuildConfiguration) Validate() error {
	if c.K <= 0 || c.K > MaxK {
		return errors.Wrapf(ErrConfig, "k must be in (0, %d], got %d", MaxK, c.K)
	}
	if c.M <= 0 || c.M > MaxMinimizerLength {
		return errors.Wrapf(ErrConfig, "m must be in (0, %d], got %d", MaxMinimizerLength, c.M)
	}
	if c.M > c.K {
		return errors.Wrapf(ErrConfig, "m (%d) must not exceed k (%d)", c.M, c.K)
	}
	if c.Sparsity <= 0 {
		return errors.Wrapf(ErrConfig, "sparsity must be positive, got %f", c.Sparsity)
	}
	if c.L < 0 || c.L > MaxSkewMinLog2 {
		return errors.Wrapf(ErrConfig, "l must be in [0, %d], got %d", MaxSkewMinLog2, c.L)
	}
	if c.NumThreads <= 0 {
		return errors.Wrapf(ErrConfig, "num threads must be positive, got %d", c.NumThreads)
	}
	return nil
}
