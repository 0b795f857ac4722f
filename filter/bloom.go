// Bloom filter: classic double-hashed k-probe bloom, directly generalized
// from the teacher's utils/boomFilter.go (same seed/multiplier constants,
// same delta-hash probing, same k derivation) from a one-shot
// []uint32-hashes function into the Builder interface.
package filter

import "math"

const (
	bloomSeed = 0xbc9f1d34
	bloomM    = 0xc6a4a793
)

// BitsPerKey derives the bits-per-key setting for a target false-positive
// probability and entry count, exactly as utils/boomFilter.go#BitsPerkey.
func BitsPerKey(entries int, falsePositive float64) int {
	if entries <= 0 {
		return 0
	}
	size := -1 * float64(entries) * math.Log(falsePositive) / (0.69314718056 * 0.69314718056)
	return int(math.Ceil(size / float64(entries)))
}

// bloomHash is the teacher's Hash function (utils/boomFilter.go#Hash).
func bloomHash(key []byte) uint32 {
	const seed = uint32(bloomSeed)
	h := seed ^ uint32(len(key))*bloomM
	for ; len(key) >= 4; key = key[4:] {
		h += uint32(key[0]) | uint32(key[1])<<8 | uint32(key[2])<<16 | uint32(key[3])<<24
		h *= bloomM
		h ^= h >> 16
	}
	switch len(key) {
	case 3:
		h += uint32(key[2]) << 16
		fallthrough
	case 2:
		h += uint32(key[1]) << 8
		fallthrough
	case 1:
		h += uint32(key[0])
		h *= bloomM
		h ^= h >> 24
	}
	return h
}

// BloomBuilder builds a classic bloom filter block.
type BloomBuilder struct {
	bitsPerKey int
	hashes     []uint32
}

// NewBloomBuilder creates a builder targeting bitsPerKey bits per
// inserted key.
func NewBloomBuilder(bitsPerKey int) *BloomBuilder {
	return &BloomBuilder{bitsPerKey: bitsPerKey}
}

func (b *BloomBuilder) Reset(numKeys int) {
	b.hashes = make([]uint32, 0, numKeys)
}

func (b *BloomBuilder) AddKey(key []byte) {
	b.hashes = append(b.hashes, bloomHash(key))
}

func (b *BloomBuilder) ChunkType() Tag { return TagBloom }

// Finish builds the filter bytes: k probes derived from bits_per_key,
// clamped to [1,30]; filter length max(ceil(n*bits_per_key/8),8)*8 bits;
// last byte stores k (spec.md §4.2).
func (b *BloomBuilder) Finish() []byte {
	bitsPerKey := b.bitsPerKey
	if bitsPerKey < 0 {
		bitsPerKey = 0
	}
	k := int(float64(bitsPerKey) * 0.69)
	if k < 1 {
		k = 1
	}
	if k > 30 {
		k = 30
	}

	numBits := len(b.hashes) * bitsPerKey
	if numBits < 64 {
		numBits = 64
	}
	numBytes := (numBits + 7) / 8
	numBits = numBytes * 8

	filter := make([]byte, numBytes+1)
	for _, h := range b.hashes {
		delta := h>>17 | h<<15
		for j := 0; j < k; j++ {
			offset := h % uint32(numBits)
			filter[offset/8] |= 1 << (offset % 8)
			h += delta
		}
	}
	filter[numBytes] = byte(k)
	return filter
}

// bloomMayMatch is the teacher's MayContain, generalized to take a raw key
// and re-derive the hash (utils/boomFilter.go#MayContainKey).
func bloomMayMatch(key, filter []byte) bool {
	if len(filter) < 2 {
		return false
	}
	k := filter[len(filter)-1]
	bits := uint32(8 * (len(filter) - 1))
	h := bloomHash(key)
	delta := h>>17 | h<<15
	for j := byte(0); j < k; j++ {
		offset := h % bits
		if filter[offset/8]&(1<<(offset%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
