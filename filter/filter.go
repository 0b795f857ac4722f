// Package filter implements the probabilistic/exact membership filters
// from spec.md §4.2: a classic bloom filter and six no-false-positive
// bitmap encodings sharing one key->index domain mapping, plus a cuckoo
// fingerprint filter. All of them expose the same capability set -
// Reset/AddKey/Finish/ChunkType - per spec.md §9's "polymorphic filters"
// design note, dispatched by the tag byte persisted in the filter payload
// rather than by a type switch, generalizing the teacher's single
// hard-coded bloom filter (utils/boomFilter.go) into a family.
package filter

import "ftlog/errs"

// Tag identifies the filter family/encoding. It is persisted as the type
// byte of the filter block's [type][crc32c] trailer (format.WrapTrailer),
// which the Directory Reader uses to pick a decoder; the bitmap family
// also repeats it as the payload's own last byte.
type Tag byte

const (
	TagBloom Tag = iota
	TagBitmapUncompressed
	TagBitmapVarint
	TagBitmapVarintPlus
	TagBitmapPFORDelta
	TagBitmapRoaring
	TagBitmapPartitionedRoaring
	TagCuckoo
)

// Builder is the uniform construction interface every filter variant
// implements.
type Builder interface {
	// Reset prepares the builder for numKeys upcoming AddKey calls.
	Reset(numKeys int)
	// AddKey records one key. For the bitmap family and cuckoo, key is
	// mapped into the filter's domain internally.
	AddKey(key []byte)
	// Finish renders the filter payload, including its own trailer.
	Finish() []byte
	// ChunkType is the Tag this builder produces.
	ChunkType() Tag
}

// Recognized reports whether tag is one of the filter encodings this
// package knows how to probe, so callers can log the "degraded to full
// scan" case KeyMayMatch otherwise handles silently when paranoidChecks
// is off.
func Recognized(tag Tag) bool {
	switch tag {
	case TagBloom, TagBitmapUncompressed, TagBitmapVarint, TagBitmapVarintPlus,
		TagBitmapPFORDelta, TagBitmapRoaring, TagBitmapPartitionedRoaring, TagCuckoo:
		return true
	default:
		return false
	}
}

// KeyMayMatch dispatches to the matcher for tag and tests key against
// payload. On an unrecognized tag: if paranoidChecks is set this is a
// NotSupported error (spec.md §7); otherwise it degrades to
// "may match" (true, nil) so the caller falls back to a full block scan,
// preserving backward compatibility with older filter bytes per spec.md
// §9's third Open Question.
func KeyMayMatch(tag Tag, key, payload []byte, paranoidChecks bool) (bool, error) {
	switch tag {
	case TagBloom:
		return bloomMayMatch(key, payload), nil
	case TagBitmapUncompressed, TagBitmapVarint, TagBitmapVarintPlus,
		TagBitmapPFORDelta, TagBitmapRoaring, TagBitmapPartitionedRoaring:
		return bitmapMayMatch(tag, key, payload)
	case TagCuckoo:
		return cuckooMayMatch(key, payload)
	default:
		if paranoidChecks {
			return false, errs.New(errs.KindNotSupported, "filter: unknown chunk tag %d", tag)
		}
		return true, nil
	}
}
