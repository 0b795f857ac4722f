package directory

import "ftlog/filter"

// newFilterBuilder constructs the filter builder selected by opts, or nil
// when filtering is disabled. Sizing follows spec.md §4.5's
// "entries_per_tb" guidance in spirit: each compaction resets the builder
// with the exact number of entries about to be streamed into it, which is
// the precise figure entries_per_tb only approximates ahead of time.
func newFilterBuilder(opts Options) filter.Builder {
	if !opts.Filter {
		return nil
	}
	switch opts.FilterTag {
	case filter.TagBloom:
		return filter.NewBloomBuilder(opts.BFBitsPerKey)
	case filter.TagBitmapUncompressed:
		return filter.NewUncompressedBitmapBuilder(opts.BMKeyBits)
	case filter.TagBitmapVarint:
		return filter.NewVarintBitmapBuilder(opts.BMKeyBits)
	case filter.TagBitmapVarintPlus:
		return filter.NewVarintPlusBitmapBuilder(opts.BMKeyBits)
	case filter.TagBitmapPFORDelta:
		return filter.NewPForDeltaBitmapBuilder(opts.BMKeyBits)
	case filter.TagBitmapRoaring:
		return filter.NewRoaringBitmapBuilder(opts.BMKeyBits)
	case filter.TagBitmapPartitionedRoaring:
		return filter.NewPartitionedRoaringBitmapBuilder(opts.BMKeyBits)
	case filter.TagCuckoo:
		return filter.NewCuckooBuilder(filter.CuckooOptions{
			BitsPerKey: opts.FilterBitsPerKey,
			Frac:       opts.CuckooFrac,
			MaxMoves:   opts.CuckooMaxMoves,
			Seed:       opts.CuckooSeed,
		})
	default:
		return nil
	}
}
