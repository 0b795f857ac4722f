package directory

import (
	"ftlog/filter"
	"ftlog/logio"
	"ftlog/metrics"
	"ftlog/workpool"
)

// Mode selects the compaction-time duplicate-key policy (spec.md §4.5
// step 2).
type Mode byte

const (
	ModeUnique     Mode = iota // require distinct keys; fail on duplicate
	ModeUniqueDrop             // keep first occurrence, drop later duplicates
	ModeMultiMap               // preserve every entry
)

// Options configures one Directory Logger/Reader pair, one field per row
// of spec.md §6's configuration table, flat-struct-with-defaults in the
// same style as the teacher's options.go/lsmT.Options.
type Options struct {
	// Dir and Rank locate the two on-disk logs: <Dir>/<Rank>.dat,
	// <Dir>/<Rank>.idx (spec.md §6).
	Dir  string
	Rank int

	TotalMemtableBudget int64
	BlockSize           int
	BlockUtil           float64
	LgParts             int
	Mode                Mode
	SkipSort            bool
	NonBlocking         bool

	Compression      bool
	ForceCompression bool

	Filter           bool
	FilterTag        filter.Tag
	BFBitsPerKey     int
	FilterBitsPerKey int
	BMKeyBits        int
	CuckooFrac       float64
	CuckooMaxMoves   int
	// CuckooSeed is accepted for parity with spec.md §6 but has no
	// effect: filter.NewCuckooBuilder always pins the seed to its
	// default (see filter.CuckooOptions.Seed).
	CuckooSeed uint64

	DataBuffer     int
	MinDataBuffer  int
	IndexBuffer    int
	MinIndexBuffer int

	VerifyChecksums bool
	ParanoidChecks  bool

	RestartInterval int

	// Pool runs background compactions; a nil Pool defaults to
	// workpool.Inline (synchronous, useful for tests and for
	// non_blocking=false setups that want deterministic ordering).
	Pool workpool.Pool
	// ReaderPool, when set, dispatches per-epoch Read fetches
	// concurrently (spec.md §4.6); nil means sequential.
	ReaderPool workpool.Pool

	FS       logio.FS
	Counters metrics.Counters
}

// WithDefaults fills in zero-valued fields with the documented defaults
// and returns the result; the receiver is left unmodified.
func (o Options) WithDefaults() Options {
	if o.BlockSize <= 0 {
		o.BlockSize = 4096
	}
	if o.BlockUtil <= 0 {
		o.BlockUtil = 0.9
	}
	if o.TotalMemtableBudget <= 0 {
		o.TotalMemtableBudget = 64 << 20
	}
	if o.RestartInterval <= 0 {
		o.RestartInterval = 16
	}
	if o.BFBitsPerKey <= 0 {
		o.BFBitsPerKey = 10
	}
	if o.FilterBitsPerKey <= 0 {
		o.FilterBitsPerKey = 16
	}
	if o.BMKeyBits <= 0 {
		o.BMKeyBits = 20
	}
	if o.CuckooFrac <= 0 {
		o.CuckooFrac = 0.95
	}
	if o.CuckooMaxMoves <= 0 {
		o.CuckooMaxMoves = 500
	}
	if o.CuckooSeed == 0 {
		o.CuckooSeed = filter.DefaultCuckooOptions().Seed
	}
	if o.MinDataBuffer <= 0 {
		o.MinDataBuffer = 64 << 10
	}
	if o.MinIndexBuffer <= 0 {
		o.MinIndexBuffer = 16 << 10
	}
	if o.Pool == nil {
		o.Pool = workpool.Inline{}
	}
	if o.FS == nil {
		o.FS = logio.OSFilesystem{}
	}
	if o.Counters == nil {
		o.Counters = metrics.Noop{}
	}
	return o
}

// perBufferBudget is the byte budget for one of the two write buffers:
// the total per-partition memtable budget, halved for the active/
// immutable pair, per spec.md §4.5.
func (o Options) perBufferBudget() int64 {
	budget := o.TotalMemtableBudget >> uint(o.LgParts)
	return budget / 2
}
