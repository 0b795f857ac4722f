// Shared domain mapping for the bitmap filter family (spec.md §4.2): all
// six encodings test/insert over the logical domain [0, 2^bm_key_bits),
// reached from a key by a little-endian read of its first 4 bytes
// (zero-padded if shorter), masked to bm_key_bits.
package filter

import "ftlog/errs"

// keyToIndex maps key into [0, 2^keyBits) per spec.md §4.2.
func keyToIndex(key []byte, keyBits int) uint64 {
	var buf [4]byte
	copy(buf[:], key) // zero-padded if key is shorter than 4 bytes
	v := uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24
	if keyBits >= 32 {
		return uint64(v)
	}
	mask := uint64(1)<<uint(keyBits) - 1
	return uint64(v) & mask
}

// bitmapMayMatch splits the payload's shared (key_bits, tag) trailer off
// and hands the remaining bytes to the matching decoder.
func bitmapMayMatch(tag Tag, key, payload []byte) (bool, error) {
	if len(payload) < 2 {
		return false, errs.New(errs.KindCorruption, "filter: bitmap payload too short")
	}
	keyBits := int(payload[len(payload)-2])
	body := payload[:len(payload)-2]
	index := keyToIndex(key, keyBits)

	switch tag {
	case TagBitmapUncompressed:
		return uncompressedTest(index, body), nil
	case TagBitmapVarint:
		return varintTest(index, body), nil
	case TagBitmapVarintPlus:
		return varintPlusTest(index, body), nil
	case TagBitmapPFORDelta:
		return pforDeltaTest(index, body), nil
	case TagBitmapRoaring:
		return roaringTest(index, keyBits, body)
	case TagBitmapPartitionedRoaring:
		return partitionedRoaringTest(index, keyBits, body)
	default:
		return false, errs.New(errs.KindNotSupported, "filter: unknown bitmap tag %d", tag)
	}
}

// appendBitmapTrailer appends the shared (key_bits_byte, format_tag_byte)
// trailer every bitmap encoding ends with.
func appendBitmapTrailer(payload []byte, keyBits int, tag Tag) []byte {
	return append(payload, byte(keyBits), byte(tag))
}

// bitmapBase holds the state common to every bitmap builder: the target
// domain width and the sorted set of inserted indices. Concrete builders
// embed it and implement their own Finish encoding.
type bitmapBase struct {
	keyBits int
	indices []uint64
}

func (b *bitmapBase) reset(keyBits, numKeys int) {
	b.keyBits = keyBits
	b.indices = make([]uint64, 0, numKeys)
}

func (b *bitmapBase) addKey(key []byte) {
	b.indices = append(b.indices, keyToIndex(key, b.keyBits))
}

func (b *bitmapBase) sortedUniqueIndices() []uint64 {
	sorted := append([]uint64{}, b.indices...)
	insertionSort(sorted)
	out := sorted[:0]
	var prev uint64
	for i, v := range sorted {
		if i == 0 || v != prev {
			out = append(out, v)
		}
		prev = v
	}
	return out
}

// insertionSort is adequate here: filters are built once per table flush
// over entries_per_tb keys, already close to sorted in the common case
// (index values derived from already-sorted table keys), so this
// degrades to near-linear in practice.
func insertionSort(s []uint64) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
