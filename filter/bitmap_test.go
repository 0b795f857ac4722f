package filter

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func bitmapBuilders(keyBits int) map[Tag]Builder {
	return map[Tag]Builder{
		TagBitmapUncompressed:       NewUncompressedBitmapBuilder(keyBits),
		TagBitmapVarint:             NewVarintBitmapBuilder(keyBits),
		TagBitmapVarintPlus:         NewVarintPlusBitmapBuilder(keyBits),
		TagBitmapPFORDelta:          NewPForDeltaBitmapBuilder(keyBits),
		TagBitmapRoaring:            NewRoaringBitmapBuilder(keyBits),
		TagBitmapPartitionedRoaring: NewPartitionedRoaringBitmapBuilder(keyBits),
	}
}

func indexKey(i uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], i)
	return buf[:]
}

func TestBitmapFamilyExactMembership(t *testing.T) {
	const keyBits = 16
	const domain = 1 << keyBits

	present := map[uint32]bool{}
	var inserted []uint32
	for i := uint32(0); i < domain; i += 7 {
		inserted = append(inserted, i)
		present[i] = true
	}

	for tag, b := range bitmapBuilders(keyBits) {
		tag, b := tag, b
		t.Run(fmt.Sprintf("tag-%d", tag), func(t *testing.T) {
			b.Reset(len(inserted))
			for _, idx := range inserted {
				b.AddKey(indexKey(idx))
			}
			payload := b.Finish()
			require.Equal(t, tag, b.ChunkType())

			for _, idx := range inserted {
				ok, err := KeyMayMatch(tag, indexKey(idx), payload, true)
				require.NoError(t, err)
				require.True(t, ok, "inserted index %d must match", idx)
			}
			for i := uint32(0); i < domain; i++ {
				if present[i] {
					continue
				}
				ok, err := KeyMayMatch(tag, indexKey(i), payload, true)
				require.NoError(t, err)
				require.False(t, ok, "absent index %d must not match", i)
			}
		})
	}
}

func TestBitmapFamilySmallDomain(t *testing.T) {
	const keyBits = 6 // forces roaring/partitioned-roaring into 64 buckets with zero-width offsets
	const domain = 1 << keyBits
	var inserted []uint32
	for i := uint32(0); i < domain; i += 2 {
		inserted = append(inserted, i)
	}
	for tag, b := range bitmapBuilders(keyBits) {
		b.Reset(len(inserted))
		for _, idx := range inserted {
			b.AddKey(indexKey(idx))
		}
		payload := b.Finish()
		for i := uint32(0); i < domain; i++ {
			ok, err := KeyMayMatch(tag, indexKey(i), payload, true)
			require.NoError(t, err)
			require.Equal(t, i%2 == 0, ok)
		}
	}
}
